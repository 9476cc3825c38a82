package repository

import (
	"context"
	"errors"
	"fmt"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ResourceRepository reads the generic resource catalog for owner checks
// and audit display names.
type ResourceRepository struct {
	collection *mongo.Collection
}

func NewResourceRepository(db *mongo.Database) *ResourceRepository {
	return &ResourceRepository{
		collection: db.Collection("Resource"),
	}
}

func (r *ResourceRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Resource, error) {
	var resource models.Resource
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&resource)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("resource %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &resource, nil
}
