package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type SharingRepository struct {
	collection *mongo.Collection
}

func NewSharingRepository(db *mongo.Database) *SharingRepository {
	return &SharingRepository{
		collection: db.Collection("ResourceSharing"),
	}
}

func (r *SharingRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "resourceId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "sharedWith", Value: 1}, {Key: "sharedWithType", Value: 1}, {Key: "status", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *SharingRepository) New(ctx context.Context, sharing *models.ResourceSharing) (*models.ResourceSharing, error) {
	if sharing.ID.IsZero() {
		sharing.ID = bson.NewObjectID()
	}
	now := time.Now().Unix()
	if sharing.CreatedAt == 0 {
		sharing.CreatedAt = now
	}
	sharing.UpdatedAt = now
	if sharing.Status == "" {
		sharing.Status = models.SharingActive
	}

	if _, err := r.collection.InsertOne(ctx, sharing); err != nil {
		return nil, fmt.Errorf("failed to insert resource sharing: %w", err)
	}
	return sharing, nil
}

// UpsertDirectUserShare replaces the active direct-user share for the
// (resource, user) pair, keeping at most one effective direct share.
func (r *SharingRepository) UpsertDirectUserShare(ctx context.Context, sharing *models.ResourceSharing) (*models.ResourceSharing, error) {
	filter := bson.M{
		"resourceId":     sharing.ResourceID,
		"sharedWith":     sharing.SharedWith,
		"sharedWithType": models.SharedWithUser,
		"status":         models.SharingActive,
	}

	now := time.Now().Unix()
	update := bson.M{"$set": bson.M{"status": models.SharingRevoked, "updatedAt": now}}
	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return nil, fmt.Errorf("failed to supersede direct share: %w", err)
	}

	return r.New(ctx, sharing)
}

func (r *SharingRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.ResourceSharing, error) {
	var sharing models.ResourceSharing
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&sharing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("resource sharing %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &sharing, nil
}

func (r *SharingRepository) Update(ctx context.Context, id bson.ObjectID, accessLevel models.AccessLevel, expiresAt int64) error {
	set := bson.M{"updatedAt": time.Now().Unix()}
	if accessLevel != "" {
		set["accessLevel"] = accessLevel
	}
	if expiresAt != 0 {
		set["expiresAt"] = expiresAt
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update resource sharing: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("resource sharing %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

func (r *SharingRepository) Revoke(ctx context.Context, id bson.ObjectID) error {
	update := bson.M{"$set": bson.M{"status": models.SharingRevoked, "updatedAt": time.Now().Unix()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to revoke resource sharing: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("resource sharing %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// revokeExpired flips active shares whose expiry has passed, the same
// lazy-deactivation the user-role store does for expired role assignments.
func (r *SharingRepository) revokeExpired(ctx context.Context, filter bson.M) error {
	expired := bson.M{
		"status":    models.SharingActive,
		"expiresAt": bson.M{"$gt": 0, "$lte": time.Now().Unix()},
	}
	for k, v := range filter {
		expired[k] = v
	}
	update := bson.M{"$set": bson.M{"status": models.SharingRevoked, "updatedAt": time.Now().Unix()}}
	_, err := r.collection.UpdateMany(ctx, expired, update)
	if err != nil {
		return fmt.Errorf("error revoking expired shares: %w", err)
	}
	return nil
}

func (r *SharingRepository) FindActiveByResource(ctx context.Context, resourceID bson.ObjectID) ([]*models.ResourceSharing, error) {
	if err := r.revokeExpired(ctx, bson.M{"resourceId": resourceID}); err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{"resourceId": resourceID, "status": models.SharingActive}, nil)
}

// FindEffectiveForTargets returns the active shares of one resource
// addressed to any of the given targets of one kind.
func (r *SharingRepository) FindEffectiveForTargets(ctx context.Context, resourceID bson.ObjectID, targetType models.SharedWithType, targetIDs []bson.ObjectID) ([]*models.ResourceSharing, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	if err := r.revokeExpired(ctx, bson.M{"resourceId": resourceID}); err != nil {
		return nil, err
	}

	filter := bson.M{
		"resourceId":     resourceID,
		"sharedWithType": targetType,
		"sharedWith":     bson.M{"$in": targetIDs},
		"status":         models.SharingActive,
	}
	return r.find(ctx, filter, nil)
}

// FindSharedWith lists active shares addressed to the user directly or to
// any of the user's teams, newest first.
func (r *SharingRepository) FindSharedWith(ctx context.Context, userID bson.ObjectID, teamIDs []bson.ObjectID, resourceType models.ResourceType) ([]*models.ResourceSharing, error) {
	targets := bson.A{
		bson.M{"sharedWithType": models.SharedWithUser, "sharedWith": userID},
	}
	if len(teamIDs) > 0 {
		targets = append(targets, bson.M{"sharedWithType": models.SharedWithTeam, "sharedWith": bson.M{"$in": teamIDs}})
	}

	filter := bson.M{
		"status": models.SharingActive,
		"$or":    targets,
	}
	if resourceType != "" {
		filter["resourceType"] = resourceType
	}

	opts := options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(200)
	return r.find(ctx, filter, opts)
}

func (r *SharingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*models.ResourceSharing, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.collection.Find(ctx, filter, opts)
	} else {
		cursor, err = r.collection.Find(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sharings []*models.ResourceSharing
	if err = cursor.All(ctx, &sharings); err != nil {
		return nil, err
	}
	return sharings, nil
}
