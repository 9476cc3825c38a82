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

// PermissionService evaluates and mutates standing permission grants.
// Evaluation is fail-closed: any storage or resolution error reads as
// denied, never as an error the caller could misread as allowed.
type PermissionService struct {
	grants     GrantStore
	principals *PrincipalService
	publisher  EventPublisher
}

func NewPermissionService(grants GrantStore, principals *PrincipalService, publisher EventPublisher) *PermissionService {
	return &PermissionService{
		grants:     grants,
		principals: principals,
		publisher:  publisher,
	}
}

// CheckPermission decides whether the user may perform the action on the
// resource. A zero resourceID asks about the resource type as a whole.
// Admins always pass; otherwise one effective grant addressed to any of the
// user's identities is enough.
func (s *PermissionService) CheckPermission(ctx context.Context, userID bson.ObjectID, resourceType models.ResourceType, action models.PermissionAction, resourceID bson.ObjectID) bool {
	principal, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		log.Printf("Permission check denied, failed to resolve principal %s: %v", userID.Hex(), err)
		return false
	}

	if principal.Role == models.RoleAdmin {
		return true
	}

	candidates, err := s.grants.FindCandidates(ctx, resourceType, action, resourceID)
	if err != nil {
		log.Printf("Permission check denied, grant lookup failed for %s/%s: %v", resourceType, action, err)
		return false
	}

	now := time.Now()
	for _, grant := range candidates {
		if grant.AppliesTo(principal, now) {
			return true
		}
	}
	return false
}

// GetUserPermissions returns the distinct actions the user holds on the
// resource. Admins are reported as holding every action.
func (s *PermissionService) GetUserPermissions(ctx context.Context, userID bson.ObjectID, resourceType models.ResourceType, resourceID bson.ObjectID) ([]models.PermissionAction, error) {
	principal, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if principal.Role == models.RoleAdmin {
		return models.AllPermissionActions(), nil
	}

	candidates, err := s.grants.FindCandidatesForResource(ctx, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("error listing grants for %s: %w", resourceType, err)
	}

	now := time.Now()
	seen := make(map[models.PermissionAction]bool)
	var actions []models.PermissionAction
	for _, grant := range candidates {
		if !grant.AppliesTo(principal, now) {
			continue
		}
		if !seen[grant.Action] {
			seen[grant.Action] = true
			actions = append(actions, grant.Action)
		}
	}
	return actions, nil
}

// GetResourcePermissions lists the effective grants naming the exact
// resource, for inspection by holders of manage on it.
func (s *PermissionService) GetResourcePermissions(ctx context.Context, requesterID bson.ObjectID, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	if !s.CheckPermission(ctx, requesterID, resourceType, models.ActionManage, resourceID) {
		return nil, ErrForbidden
	}

	grants, err := s.grants.FindForResource(ctx, resourceType, resourceID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	effective := grants[:0]
	for _, grant := range grants {
		if grant.IsEffective(now) {
			effective = append(effective, grant)
		}
	}
	return effective, nil
}

// GrantPermission creates a grant. The grantor needs manage on the target
// resource (or its type, for type-level grants).
func (s *PermissionService) GrantPermission(ctx context.Context, grantorID bson.ObjectID, grant *models.PermissionGrant) (*models.PermissionGrant, error) {
	spec := models.GrantSpec{
		Action:     grant.Action,
		TargetType: grant.TargetType,
		TargetID:   grant.TargetID,
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if !s.CheckPermission(ctx, grantorID, grant.ResourceType, models.ActionManage, grant.ResourceID) {
		return nil, ErrForbidden
	}

	grant.CreatedBy = grantorID
	created, err := s.grants.New(ctx, grant)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.PermissionGranted, created, grantorID)
	return created, nil
}

// RevokePermission soft-deletes a grant, gated by manage on the grant's own
// resource scope.
func (s *PermissionService) RevokePermission(ctx context.Context, grantorID, grantID bson.ObjectID) error {
	grant, err := s.grants.FindByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrResourceNotFound, grantID.Hex())
		}
		return err
	}

	if !s.CheckPermission(ctx, grantorID, grant.ResourceType, models.ActionManage, grant.ResourceID) {
		return ErrForbidden
	}

	if err := s.grants.Deactivate(ctx, grantID); err != nil {
		return err
	}

	s.publish(ctx, events.PermissionRevoked, grant, grantorID)
	return nil
}

// UpdateResourcePermissions atomically replaces the resource's grant set.
// Concurrent readers observe either the old set or the new one, never the
// gap between them.
func (s *PermissionService) UpdateResourcePermissions(ctx context.Context, actorID bson.ObjectID, resourceType models.ResourceType, resourceID bson.ObjectID, specs []models.GrantSpec) error {
	if resourceID.IsZero() {
		return fmt.Errorf("%w: resource id is required", ErrInvalidInput)
	}
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return fmt.Errorf("%w: permission %d: %v", ErrInvalidInput, i, err)
		}
	}

	if !s.CheckPermission(ctx, actorID, resourceType, models.ActionManage, resourceID) {
		return ErrForbidden
	}

	now := time.Now()
	grants := make([]*models.PermissionGrant, len(specs))
	for i := range specs {
		grants[i] = specs[i].Materialize(resourceType, resourceID, actorID, now)
		grants[i].ID = bson.NewObjectID()
	}

	if err := s.grants.ReplaceForResource(ctx, resourceType, resourceID, grants); err != nil {
		return err
	}

	if s.publisher != nil {
		evt := events.NewPermissionEvent(events.PermissionsReplaced,
			string(resourceType), resourceID.Hex(), "", "", "", actorID.Hex())
		if err := s.publisher.Publish(ctx, string(events.PermissionsReplaced), evt); err != nil {
			log.Printf("Failed to publish %s event: %v", events.PermissionsReplaced, err)
		}
	}
	return nil
}

func (s *PermissionService) publish(ctx context.Context, eventType events.EventType, grant *models.PermissionGrant, actorID bson.ObjectID) {
	if s.publisher == nil {
		return
	}
	resourceID := ""
	if !grant.ResourceID.IsZero() {
		resourceID = grant.ResourceID.Hex()
	}
	evt := events.NewPermissionEvent(eventType,
		string(grant.ResourceType), resourceID, string(grant.Action),
		string(grant.TargetType), grant.TargetID, actorID.Hex())
	if err := s.publisher.Publish(ctx, string(eventType), evt); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
