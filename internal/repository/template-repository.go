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

type TemplateRepository struct {
	collection *mongo.Collection
}

func NewTemplateRepository(db *mongo.Database) *TemplateRepository {
	return &TemplateRepository{
		collection: db.Collection("SharingTemplate"),
	}
}

func (r *TemplateRepository) New(ctx context.Context, tpl *models.SharingTemplate) (*models.SharingTemplate, error) {
	if tpl.ID.IsZero() {
		tpl.ID = bson.NewObjectID()
	}
	now := time.Now().Unix()
	if tpl.CreatedAt == 0 {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	if tpl.Status == "" {
		tpl.Status = models.TemplateActive
	}

	if _, err := r.collection.InsertOne(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to insert sharing template: %w", err)
	}
	return tpl, nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.SharingTemplate, error) {
	var tpl models.SharingTemplate
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "status": models.TemplateActive}).Decode(&tpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("sharing template %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *TemplateRepository) FindByOwner(ctx context.Context, ownerID bson.ObjectID) ([]*models.SharingTemplate, error) {
	filter := bson.M{"ownerId": ownerID, "status": models.TemplateActive}
	opts := options.Find().SetSort(bson.M{"createdAt": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var templates []*models.SharingTemplate
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepository) SoftDelete(ctx context.Context, id bson.ObjectID) error {
	update := bson.M{"$set": bson.M{"status": models.TemplateDeleted, "updatedAt": time.Now().Unix()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to delete sharing template: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("sharing template %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}
