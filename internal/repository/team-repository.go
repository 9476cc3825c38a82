package repository

import (
	"context"
	"errors"
	"fmt"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// TeamRepository reads the platform team directory.
type TeamRepository struct {
	collection *mongo.Collection
}

func NewTeamRepository(db *mongo.Database) *TeamRepository {
	return &TeamRepository{
		collection: db.Collection("Team"),
	}
}

func (r *TeamRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Team, error) {
	var team models.Team
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&team)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("team %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &team, nil
}

// FindActiveTeamIDs returns the ids of every unarchived team the user is an
// active member of. Archived teams carry no identities.
func (r *TeamRepository) FindActiveTeamIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	filter := bson.M{
		"isArchived": false,
		"members": bson.M{"$elemMatch": bson.M{
			"user":   userID,
			"status": models.TeamMemberActive,
		}},
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]bson.ObjectID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// IsOwnerOrAdmin reports whether the user owns the team or holds the admin
// member role in it.
func (r *TeamRepository) IsOwnerOrAdmin(ctx context.Context, teamID, userID bson.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":        teamID,
		"isArchived": false,
		"$or": bson.A{
			bson.M{"ownerId": userID},
			bson.M{"members": bson.M{"$elemMatch": bson.M{
				"user":   userID,
				"role":   "admin",
				"status": models.TeamMemberActive,
			}}},
		},
	}
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsActiveMember reports whether the user is an active member of the
// unarchived team.
func (r *TeamRepository) IsActiveMember(ctx context.Context, teamID, userID bson.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":        teamID,
		"isArchived": false,
		"members": bson.M{"$elemMatch": bson.M{
			"user":   userID,
			"status": models.TeamMemberActive,
		}},
	}
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
