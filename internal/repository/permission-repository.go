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

// ErrNotFound is wrapped by every repository lookup that misses.
var ErrNotFound = errors.New("not found")

type PermissionRepository struct {
	collection *mongo.Collection
}

func NewPermissionRepository(db *mongo.Database) *PermissionRepository {
	return &PermissionRepository{
		collection: db.Collection("Permission"),
	}
}

func (r *PermissionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "resourceType", Value: 1}, {Key: "action", Value: 1}, {Key: "isActive", Value: 1}}},
		{Keys: bson.D{{Key: "resourceType", Value: 1}, {Key: "resourceId", Value: 1}, {Key: "isActive", Value: 1}}},
		{Keys: bson.D{{Key: "targetType", Value: 1}, {Key: "targetId", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *PermissionRepository) New(ctx context.Context, grant *models.PermissionGrant) (*models.PermissionGrant, error) {
	if grant.ID.IsZero() {
		grant.ID = bson.NewObjectID()
	}
	if grant.CreatedAt == 0 {
		grant.CreatedAt = time.Now().Unix()
	}
	grant.IsActive = true

	if _, err := r.collection.InsertOne(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to insert permission grant: %w", err)
	}
	return grant, nil
}

func (r *PermissionRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.PermissionGrant, error) {
	var grant models.PermissionGrant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&grant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("permission grant %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &grant, nil
}

// Deactivate soft-deletes a grant. Grants are never physically removed so
// the audit trail stays intact.
func (r *PermissionRepository) Deactivate(ctx context.Context, id bson.ObjectID) error {
	update := bson.M{"$set": bson.M{"isActive": false, "updatedAt": time.Now().Unix()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to deactivate permission grant: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("permission grant %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// FindCandidates returns active grants for the given type and action that
// either are type-level or name the supplied resource. With a zero
// resourceID only type-level grants are relevant. Target matching and
// expiry checks stay in the caller's predicate so matching logic lives in
// one place.
func (r *PermissionRepository) FindCandidates(ctx context.Context, resourceType models.ResourceType, action models.PermissionAction, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	filter := bson.M{
		"resourceType": resourceType,
		"action":       action,
		"isActive":     true,
	}
	applyResourceScope(filter, resourceID)
	return r.find(ctx, filter)
}

// FindCandidatesForResource is FindCandidates without the action filter,
// used to enumerate the distinct actions a principal holds on a resource.
func (r *PermissionRepository) FindCandidatesForResource(ctx context.Context, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	filter := bson.M{
		"resourceType": resourceType,
		"isActive":     true,
	}
	applyResourceScope(filter, resourceID)
	return r.find(ctx, filter)
}

// FindForResource returns the active grants naming exactly this resource,
// type-level grants excluded. Used for permission inspection.
func (r *PermissionRepository) FindForResource(ctx context.Context, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	filter := bson.M{
		"resourceType": resourceType,
		"resourceId":   resourceID,
		"isActive":     true,
	}
	return r.find(ctx, filter)
}

func applyResourceScope(filter bson.M, resourceID bson.ObjectID) {
	if resourceID.IsZero() {
		filter["resourceId"] = bson.M{"$exists": false}
	} else {
		filter["$or"] = bson.A{
			bson.M{"resourceId": bson.M{"$exists": false}},
			bson.M{"resourceId": resourceID},
		}
	}
}

func (r *PermissionRepository) find(ctx context.Context, filter bson.M) ([]*models.PermissionGrant, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var grants []*models.PermissionGrant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// ReplaceForResource deactivates every active grant naming the resource and
// inserts the replacements inside one transaction. Readers never observe
// the intermediate state with zero effective grants.
func (r *PermissionRepository) ReplaceForResource(ctx context.Context, resourceType models.ResourceType, resourceID bson.ObjectID, grants []*models.PermissionGrant) error {
	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		filter := bson.M{
			"resourceType": resourceType,
			"resourceId":   resourceID,
			"isActive":     true,
		}
		update := bson.M{"$set": bson.M{"isActive": false, "updatedAt": time.Now().Unix()}}
		if _, err := r.collection.UpdateMany(sessCtx, filter, update); err != nil {
			return nil, fmt.Errorf("failed to deactivate existing grants: %w", err)
		}

		if len(grants) > 0 {
			docs := make([]any, len(grants))
			for i, g := range grants {
				docs[i] = g
			}
			if _, err := r.collection.InsertMany(sessCtx, docs); err != nil {
				return nil, fmt.Errorf("failed to insert replacement grants: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

// InsertBatch inserts the grants as one all-or-nothing unit. Rule
// application never partially authorizes a resource.
func (r *PermissionRepository) InsertBatch(ctx context.Context, grants []*models.PermissionGrant) error {
	if len(grants) == 0 {
		return nil
	}

	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		docs := make([]any, len(grants))
		for i, g := range grants {
			docs[i] = g
		}
		opts := options.InsertMany().SetOrdered(true)
		if _, err := r.collection.InsertMany(sessCtx, docs, opts); err != nil {
			return nil, fmt.Errorf("failed to insert grant batch: %w", err)
		}
		return nil, nil
	})
	return err
}
