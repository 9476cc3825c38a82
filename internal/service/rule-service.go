package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"permission_service/internal/events"
	"permission_service/internal/models"
	"permission_service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RuleService manages named permission rule templates and stamps them onto
// resources.
type RuleService struct {
	rules       RuleStore
	permissions *PermissionService
	grants      GrantStore
	publisher   EventPublisher
}

func NewRuleService(rules RuleStore, grants GrantStore, permissions *PermissionService, publisher EventPublisher) *RuleService {
	return &RuleService{
		rules:       rules,
		permissions: permissions,
		grants:      grants,
		publisher:   publisher,
	}
}

func (s *RuleService) CreateRule(ctx context.Context, creatorID bson.ObjectID, rule *models.PermissionRule) (*models.PermissionRule, error) {
	if rule.Name == "" {
		return nil, fmt.Errorf("%w: rule name is required", ErrInvalidInput)
	}
	if len(rule.Permissions) == 0 {
		return nil, fmt.Errorf("%w: rule needs at least one permission", ErrInvalidInput)
	}
	for i := range rule.Permissions {
		if err := rule.Permissions[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: permission %d: %v", ErrInvalidInput, i, err)
		}
	}

	rule.IsBuiltIn = false
	rule.CreatedBy = creatorID
	return s.rules.New(ctx, rule)
}

func (s *RuleService) GetRule(ctx context.Context, id bson.ObjectID) (*models.PermissionRule, error) {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id.Hex())
		}
		return nil, err
	}
	return rule, nil
}

func (s *RuleService) ListRules(ctx context.Context, page, limit int) ([]*models.PermissionRule, error) {
	return s.rules.FindAll(ctx, page, limit)
}

// DeleteRule removes a custom rule. Built-in rules are refused; grants
// already stamped from the rule are untouched.
func (s *RuleService) DeleteRule(ctx context.Context, id bson.ObjectID) error {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if rule.IsBuiltIn {
		return ErrBuiltInRule
	}
	return s.rules.Delete(ctx, id)
}

// ApplyRule materializes every spec of the rule against the resource and
// inserts the grants as one unit, additively: existing grants stay.
func (s *RuleService) ApplyRule(ctx context.Context, actorID, ruleID bson.ObjectID, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	rule, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if !s.permissions.CheckPermission(ctx, actorID, resourceType, models.ActionManage, resourceID) {
		return nil, ErrForbidden
	}

	now := time.Now()
	grants := make([]*models.PermissionGrant, len(rule.Permissions))
	for i := range rule.Permissions {
		grants[i] = rule.Permissions[i].Materialize(resourceType, resourceID, actorID, now)
		grants[i].ID = bson.NewObjectID()
	}

	if err := s.grants.InsertBatch(ctx, grants); err != nil {
		return nil, fmt.Errorf("failed to apply rule %s: %w", rule.Name, err)
	}

	if s.publisher != nil {
		evt := events.NewPermissionEvent(events.RuleApplied,
			string(resourceType), resourceID.Hex(), "", "", "", actorID.Hex())
		evt.RuleID = ruleID.Hex()
		if err := s.publisher.Publish(ctx, string(events.RuleApplied), evt); err != nil {
			log.Printf("Failed to publish %s event: %v", events.RuleApplied, err)
		}
	}
	return grants, nil
}

// CreateBuiltInRules seeds the default rule templates at startup. Existing
// rules are left untouched, so operator edits survive restarts.
func (s *RuleService) CreateBuiltInRules(ctx context.Context) error {
	builtIn := []*models.PermissionRule{
		{
			Name:        "team-collaboration",
			Description: "Team members can read and execute, team admins can update",
			Permissions: []models.GrantSpec{
				{Action: models.ActionRead, TargetType: models.TargetRole, TargetID: string(models.RoleStudent)},
				{Action: models.ActionRead, TargetType: models.TargetRole, TargetID: string(models.RoleTeacher)},
				{Action: models.ActionExecute, TargetType: models.TargetRole, TargetID: string(models.RoleTeacher)},
				{Action: models.ActionUpdate, TargetType: models.TargetRole, TargetID: string(models.RoleTeacher)},
			},
		},
		{
			Name:        "classroom-readonly",
			Description: "Students can view, teachers can manage",
			Permissions: []models.GrantSpec{
				{Action: models.ActionRead, TargetType: models.TargetRole, TargetID: string(models.RoleStudent)},
				{Action: models.ActionRead, TargetType: models.TargetRole, TargetID: string(models.RoleTeacher)},
				{Action: models.ActionManage, TargetType: models.TargetRole, TargetID: string(models.RoleTeacher)},
			},
		},
		{
			Name:        "public-read",
			Description: "Everyone can view",
			Permissions: []models.GrantSpec{
				{Action: models.ActionRead, TargetType: models.TargetPublic},
			},
		},
	}
	return s.rules.EnsureBuiltIn(ctx, builtIn)
}
