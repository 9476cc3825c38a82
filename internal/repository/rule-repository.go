package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type RuleRepository struct {
	collection *mongo.Collection
}

func NewRuleRepository(db *mongo.Database) *RuleRepository {
	return &RuleRepository{
		collection: db.Collection("PermissionRule"),
	}
}

func (r *RuleRepository) New(ctx context.Context, rule *models.PermissionRule) (*models.PermissionRule, error) {
	existing := r.collection.FindOne(ctx, bson.M{"name": rule.Name})
	if err := existing.Err(); err == nil {
		return nil, fmt.Errorf("permission rule with name '%s' already exists", rule.Name)
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error checking existing rule: %w", err)
	}

	if rule.ID.IsZero() {
		rule.ID = bson.NewObjectID()
	}
	if rule.CreatedAt == 0 {
		rule.CreatedAt = time.Now().Unix()
	}

	if _, err := r.collection.InsertOne(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to insert permission rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.PermissionRule, error) {
	var rule models.PermissionRule
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("permission rule %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) FindAll(ctx context.Context, page, limit int) ([]*models.PermissionRule, error) {
	opts := options.Find().SetSort(bson.M{"createdAt": -1})
	if page > 0 && limit > 0 {
		opts.SetSkip(int64((page - 1) * limit))
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []*models.PermissionRule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Delete removes a rule. The built-in check belongs to the service layer;
// the repository only deletes.
func (r *RuleRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete permission rule: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("permission rule %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// EnsureBuiltIn inserts the built-in rules that are missing, keyed by name.
// Existing rules are left untouched.
func (r *RuleRepository) EnsureBuiltIn(ctx context.Context, rules []*models.PermissionRule) error {
	for _, rule := range rules {
		err := r.collection.FindOne(ctx, bson.M{"name": rule.Name}).Err()
		if err == nil {
			continue
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("error checking built-in rule '%s': %w", rule.Name, err)
		}

		rule.ID = bson.NewObjectID()
		rule.IsBuiltIn = true
		rule.CreatedAt = time.Now().Unix()
		if _, err := r.collection.InsertOne(ctx, rule); err != nil {
			return fmt.Errorf("failed to insert built-in rule '%s': %w", rule.Name, err)
		}
		log.Printf("Created built-in permission rule: %s", rule.Name)
	}
	return nil
}
