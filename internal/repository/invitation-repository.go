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

type InvitationRepository struct {
	collection *mongo.Collection
}

func NewInvitationRepository(db *mongo.Database) *InvitationRepository {
	return &InvitationRepository{
		collection: db.Collection("ShareInvitation"),
	}
}

func (r *InvitationRepository) New(ctx context.Context, inv *models.ShareInvitation) (*models.ShareInvitation, error) {
	if inv.ID.IsZero() {
		inv.ID = bson.NewObjectID()
	}
	now := time.Now().Unix()
	if inv.CreatedAt == 0 {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	if inv.Status == "" {
		inv.Status = models.InvitationPending
	}

	if _, err := r.collection.InsertOne(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to insert share invitation: %w", err)
	}
	return inv, nil
}

func (r *InvitationRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.ShareInvitation, error) {
	var inv models.ShareInvitation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&inv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("share invitation %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) UpdateStatus(ctx context.Context, id bson.ObjectID, status models.InvitationStatus, processedBy bson.ObjectID) error {
	set := bson.M{
		"status":    status,
		"updatedAt": time.Now().Unix(),
	}
	if !processedBy.IsZero() {
		set["processedBy"] = processedBy
		set["processedAt"] = time.Now().Unix()
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("share invitation %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// FindForTargets lists invitations addressed to the user id, the user's
// email, or any of the user's teams, newest first.
func (r *InvitationRepository) FindForTargets(ctx context.Context, userID bson.ObjectID, email string, teamIDs []bson.ObjectID, status models.InvitationStatus) ([]*models.ShareInvitation, error) {
	targets := bson.A{
		bson.M{"targetType": models.InviteUser, "targetId": userID.Hex()},
	}
	if email != "" {
		targets = append(targets, bson.M{"targetType": models.InviteEmail, "targetId": email})
	}
	if len(teamIDs) > 0 {
		hexIDs := make([]string, len(teamIDs))
		for i, id := range teamIDs {
			hexIDs[i] = id.Hex()
		}
		targets = append(targets, bson.M{"targetType": models.InviteTeam, "targetId": bson.M{"$in": hexIDs}})
	}

	filter := bson.M{"$or": targets}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(100)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var invitations []*models.ShareInvitation
	if err = cursor.All(ctx, &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}
