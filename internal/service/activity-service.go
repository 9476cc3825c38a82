package service

import (
	"context"
	"errors"
	"log"

	"permission_service/internal/models"
	"permission_service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ActivityService is the best-effort audit sink and the gated audit query
// surface. Recording never fails the operation being recorded; storage
// errors are logged and swallowed.
type ActivityService struct {
	store      ActivityStore
	resources  ResourceCatalog
	teams      TeamDirectory
	principals *PrincipalService
}

func NewActivityService(store ActivityStore, resources ResourceCatalog, teams TeamDirectory, principals *PrincipalService) *ActivityService {
	return &ActivityService{
		store:      store,
		resources:  resources,
		teams:      teams,
		principals: principals,
	}
}

func (s *ActivityService) RecordResourceAccess(ctx context.Context, entry *models.ResourceAccessLog) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.InsertAccessLog(ctx, entry); err != nil {
		log.Printf("Failed to record resource access log: %v", err)
	}
}

func (s *ActivityService) RecordTeamActivity(ctx context.Context, entry *models.TeamActivityLog) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.InsertTeamLog(ctx, entry); err != nil {
		log.Printf("Failed to record team activity log: %v", err)
	}
}

func (s *ActivityService) RecordUserActivity(ctx context.Context, entry *models.UserActivityLog) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.InsertUserLog(ctx, entry); err != nil {
		log.Printf("Failed to record user activity log: %v", err)
	}
}

// GetResourceAccessLogs pages through a resource's audit rows. Admins and
// the resource owner see every row; everyone else sees only their own.
func (s *ActivityService) GetResourceAccessLogs(ctx context.Context, requesterID, resourceID bson.ObjectID, filter models.AccessLogFilter) ([]*models.ResourceAccessLog, int64, error) {
	principal, err := s.principals.Resolve(ctx, requesterID)
	if err != nil {
		return nil, 0, err
	}

	filter.ResourceID = resourceID

	seesAll := principal.Role == models.RoleAdmin
	if !seesAll {
		resource, err := s.resources.FindByID(ctx, resourceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, 0, err
		}
		seesAll = resource != nil && resource.OwnerID == requesterID
	}
	if !seesAll {
		filter.UserID = requesterID
	}

	return s.store.FindAccessLogs(ctx, filter)
}

// GetTeamActivityLogs pages through a team's activity, for the team owner
// or a team admin only.
func (s *ActivityService) GetTeamActivityLogs(ctx context.Context, requesterID, teamID bson.ObjectID, filter models.AccessLogFilter) ([]*models.TeamActivityLog, int64, error) {
	principal, err := s.principals.Resolve(ctx, requesterID)
	if err != nil {
		return nil, 0, err
	}

	if principal.Role != models.RoleAdmin {
		allowed, err := s.teams.IsOwnerOrAdmin(ctx, teamID, requesterID)
		if err != nil {
			return nil, 0, err
		}
		if !allowed {
			return nil, 0, ErrForbidden
		}
	}

	return s.store.FindTeamLogs(ctx, teamID, filter)
}
