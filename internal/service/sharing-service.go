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

// SharingService manages per-resource shares and answers the tiered access
// question. Like permission checks, access validation is fail-closed.
type SharingService struct {
	sharings   SharingStore
	resources  ResourceCatalog
	principals *PrincipalService
	activity   *ActivityService
	publisher  EventPublisher
}

func NewSharingService(sharings SharingStore, resources ResourceCatalog, principals *PrincipalService, activity *ActivityService, publisher EventPublisher) *SharingService {
	return &SharingService{
		sharings:   sharings,
		resources:  resources,
		principals: principals,
		activity:   activity,
		publisher:  publisher,
	}
}

// ValidateAccess decides whether the user may perform the access on the
// resource through the sharing channel. Owners and admins always pass.
// Every outcome lands in the audit log with the evaluated tier.
func (s *SharingService) ValidateAccess(ctx context.Context, userID, resourceID bson.ObjectID, access models.AccessType) bool {
	level, ok, err := s.GetUserAccessLevel(ctx, userID, resourceID)
	if err != nil {
		log.Printf("Access validation denied, lookup failed for resource %s: %v", resourceID.Hex(), err)
		s.auditAccessCheck(ctx, userID, resourceID, access, level, false, "lookup failed")
		return false
	}
	if !ok {
		s.auditAccessCheck(ctx, userID, resourceID, access, level, false, "no share")
		return false
	}

	allowed := models.IsAccessAllowed(level, access)
	reason := ""
	if !allowed {
		reason = "insufficient tier"
	}
	s.auditAccessCheck(ctx, userID, resourceID, access, level, allowed, reason)
	return allowed
}

func (s *SharingService) auditAccessCheck(ctx context.Context, userID, resourceID bson.ObjectID, access models.AccessType, level models.AccessLevel, allowed bool, reason string) {
	details := map[string]any{"requestedAccess": access}
	if level != "" {
		details["accessLevel"] = level
	}
	if reason != "" {
		details["reason"] = reason
	}
	s.activity.RecordResourceAccess(ctx, &models.ResourceAccessLog{
		ResourceID: resourceID,
		UserID:     userID,
		Action:     "access_check",
		Successful: allowed,
		Details:    details,
	})
}

// GetUserAccessLevel reconciles every channel conveying access to the
// resource: ownership and admin read as full, otherwise the maximum tier
// across the user's direct share and team shares wins.
func (s *SharingService) GetUserAccessLevel(ctx context.Context, userID, resourceID bson.ObjectID) (models.AccessLevel, bool, error) {
	principal, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		return "", false, err
	}

	if principal.Role == models.RoleAdmin {
		return models.AccessFull, true, nil
	}

	resource, err := s.resources.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A lingering share on a deleted resource conveys nothing.
			return "", false, nil
		}
		return "", false, err
	}
	if resource.OwnerID == userID {
		return models.AccessFull, true, nil
	}

	direct, err := s.sharings.FindEffectiveForTargets(ctx, resourceID, models.SharedWithUser, []bson.ObjectID{userID})
	if err != nil {
		return "", false, err
	}
	viaTeams, err := s.sharings.FindEffectiveForTargets(ctx, resourceID, models.SharedWithTeam, principal.TeamIDs)
	if err != nil {
		return "", false, err
	}

	now := time.Now()
	var level models.AccessLevel
	found := false
	for _, share := range append(direct, viaTeams...) {
		if !share.IsEffective(now) {
			continue
		}
		if !found {
			level = share.AccessLevel
			found = true
			continue
		}
		level = models.MaxAccessLevel(level, share.AccessLevel)
	}
	return level, found, nil
}

// canManageSharing reports whether the user may create, change or revoke
// shares of the resource: the owner, an admin, or a holder of a full-tier
// share.
func (s *SharingService) canManageSharing(ctx context.Context, userID, resourceID bson.ObjectID) (bool, error) {
	level, ok, err := s.GetUserAccessLevel(ctx, userID, resourceID)
	if err != nil {
		return false, err
	}
	return ok && level == models.AccessFull, nil
}

// ShareResource shares the resource with a user or team. A direct user
// share supersedes any previous active direct share for the same pair, so
// re-sharing adjusts the tier instead of stacking shares.
func (s *SharingService) ShareResource(ctx context.Context, actorID bson.ObjectID, sharing *models.ResourceSharing) (*models.ResourceSharing, error) {
	if !models.IsValidAccessLevel(sharing.AccessLevel) {
		return nil, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, sharing.AccessLevel)
	}
	if sharing.SharedWithType != models.SharedWithUser && sharing.SharedWithType != models.SharedWithTeam {
		return nil, fmt.Errorf("%w: unknown share target type %q", ErrInvalidInput, sharing.SharedWithType)
	}
	if sharing.ResourceID.IsZero() || sharing.SharedWith.IsZero() {
		return nil, fmt.Errorf("%w: resource and share target are required", ErrInvalidInput)
	}

	resource, err := s.resources.FindByID(ctx, sharing.ResourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, sharing.ResourceID.Hex())
		}
		return nil, err
	}

	allowed, err := s.canManageSharing(ctx, actorID, sharing.ResourceID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	sharing.ResourceType = resource.Type
	sharing.ResourceName = resource.Name
	sharing.OwnerID = resource.OwnerID
	sharing.SharedBy = actorID
	sharing.Status = models.SharingActive

	var created *models.ResourceSharing
	if sharing.SharedWithType == models.SharedWithUser {
		created, err = s.sharings.UpsertDirectUserShare(ctx, sharing)
	} else {
		created, err = s.sharings.New(ctx, sharing)
	}
	if err != nil {
		return nil, err
	}

	s.activity.RecordResourceAccess(ctx, &models.ResourceAccessLog{
		ResourceID:   created.ResourceID,
		ResourceType: created.ResourceType,
		ResourceName: created.ResourceName,
		UserID:       actorID,
		Action:       "share",
		Successful:   true,
		Details: map[string]any{
			"sharedWith":     created.SharedWith.Hex(),
			"sharedWithType": created.SharedWithType,
			"accessLevel":    created.AccessLevel,
		},
	})
	s.publishSharing(ctx, events.ResourceShared, created, actorID)
	return created, nil
}

// UpdateSharing changes the tier or expiry of an existing share.
func (s *SharingService) UpdateSharing(ctx context.Context, actorID, sharingID bson.ObjectID, accessLevel models.AccessLevel, expiresAt int64) (*models.ResourceSharing, error) {
	if accessLevel != "" && !models.IsValidAccessLevel(accessLevel) {
		return nil, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, accessLevel)
	}

	sharing, err := s.getSharing(ctx, sharingID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canManageSharing(ctx, actorID, sharing.ResourceID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	if err := s.sharings.Update(ctx, sharingID, accessLevel, expiresAt); err != nil {
		return nil, err
	}

	updated, err := s.getSharing(ctx, sharingID)
	if err != nil {
		return nil, err
	}
	s.publishSharing(ctx, events.SharingUpdated, updated, actorID)
	return updated, nil
}

// RevokeSharing withdraws a share immediately.
func (s *SharingService) RevokeSharing(ctx context.Context, actorID, sharingID bson.ObjectID) error {
	sharing, err := s.getSharing(ctx, sharingID)
	if err != nil {
		return err
	}

	allowed, err := s.canManageSharing(ctx, actorID, sharing.ResourceID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}

	if err := s.sharings.Revoke(ctx, sharingID); err != nil {
		return err
	}

	s.activity.RecordResourceAccess(ctx, &models.ResourceAccessLog{
		ResourceID:   sharing.ResourceID,
		ResourceType: sharing.ResourceType,
		ResourceName: sharing.ResourceName,
		UserID:       actorID,
		Action:       "unshare",
		Successful:   true,
		Details: map[string]any{
			"sharedWith":     sharing.SharedWith.Hex(),
			"sharedWithType": sharing.SharedWithType,
		},
	})
	s.publishSharing(ctx, events.SharingRevoked, sharing, actorID)
	return nil
}

// GetResourceSharing lists the active shares of a resource, for holders of
// full access.
func (s *SharingService) GetResourceSharing(ctx context.Context, requesterID, resourceID bson.ObjectID) ([]*models.ResourceSharing, error) {
	allowed, err := s.canManageSharing(ctx, requesterID, resourceID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return s.sharings.FindActiveByResource(ctx, resourceID)
}

// GetSharedWithMe lists resources shared with the user directly or through
// any of the user's teams.
func (s *SharingService) GetSharedWithMe(ctx context.Context, userID bson.ObjectID, resourceType models.ResourceType) ([]*models.ResourceSharing, error) {
	principal, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.sharings.FindSharedWith(ctx, userID, principal.TeamIDs, resourceType)
}

func (s *SharingService) getSharing(ctx context.Context, id bson.ObjectID) (*models.ResourceSharing, error) {
	sharing, err := s.sharings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSharingNotFound, id.Hex())
		}
		return nil, err
	}
	return sharing, nil
}

func (s *SharingService) publishSharing(ctx context.Context, eventType events.EventType, sharing *models.ResourceSharing, actorID bson.ObjectID) {
	if s.publisher == nil {
		return
	}
	evt := events.NewSharingEvent(eventType,
		sharing.ID.Hex(), sharing.ResourceID.Hex(), string(sharing.ResourceType),
		sharing.SharedWith.Hex(), string(sharing.SharedWithType),
		string(sharing.AccessLevel), actorID.Hex())
	if err := s.publisher.Publish(ctx, string(eventType), evt); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
