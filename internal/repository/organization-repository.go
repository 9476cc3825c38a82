package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// OrganizationRepository reads the platform organization directory.
// Membership is carried by the managers and members arrays only; the
// parent link never implies membership.
type OrganizationRepository struct {
	collection *mongo.Collection
}

func NewOrganizationRepository(db *mongo.Database) *OrganizationRepository {
	return &OrganizationRepository{
		collection: db.Collection("Organization"),
	}
}

// FindOrgIDs returns the ids of every active organization that lists the
// user as a manager or member.
func (r *OrganizationRepository) FindOrgIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	filter := bson.M{
		"isActive": true,
		"$or": bson.A{
			bson.M{"managers": userID},
			bson.M{"members": userID},
		},
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
