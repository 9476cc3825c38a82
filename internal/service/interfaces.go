package service

import (
	"context"
	"time"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// The stores the services depend on. Each interface is the slice of the
// repository a service actually calls, so tests can swap in fakes.

type GrantStore interface {
	New(ctx context.Context, grant *models.PermissionGrant) (*models.PermissionGrant, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.PermissionGrant, error)
	Deactivate(ctx context.Context, id bson.ObjectID) error
	FindCandidates(ctx context.Context, resourceType models.ResourceType, action models.PermissionAction, resourceID bson.ObjectID) ([]*models.PermissionGrant, error)
	FindCandidatesForResource(ctx context.Context, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error)
	FindForResource(ctx context.Context, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error)
	ReplaceForResource(ctx context.Context, resourceType models.ResourceType, resourceID bson.ObjectID, grants []*models.PermissionGrant) error
	InsertBatch(ctx context.Context, grants []*models.PermissionGrant) error
}

type RuleStore interface {
	New(ctx context.Context, rule *models.PermissionRule) (*models.PermissionRule, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.PermissionRule, error)
	FindAll(ctx context.Context, page, limit int) ([]*models.PermissionRule, error)
	Delete(ctx context.Context, id bson.ObjectID) error
	EnsureBuiltIn(ctx context.Context, rules []*models.PermissionRule) error
}

type SharingStore interface {
	New(ctx context.Context, sharing *models.ResourceSharing) (*models.ResourceSharing, error)
	UpsertDirectUserShare(ctx context.Context, sharing *models.ResourceSharing) (*models.ResourceSharing, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.ResourceSharing, error)
	Update(ctx context.Context, id bson.ObjectID, accessLevel models.AccessLevel, expiresAt int64) error
	Revoke(ctx context.Context, id bson.ObjectID) error
	FindActiveByResource(ctx context.Context, resourceID bson.ObjectID) ([]*models.ResourceSharing, error)
	FindEffectiveForTargets(ctx context.Context, resourceID bson.ObjectID, targetType models.SharedWithType, targetIDs []bson.ObjectID) ([]*models.ResourceSharing, error)
	FindSharedWith(ctx context.Context, userID bson.ObjectID, teamIDs []bson.ObjectID, resourceType models.ResourceType) ([]*models.ResourceSharing, error)
}

type InvitationStore interface {
	New(ctx context.Context, inv *models.ShareInvitation) (*models.ShareInvitation, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.ShareInvitation, error)
	UpdateStatus(ctx context.Context, id bson.ObjectID, status models.InvitationStatus, processedBy bson.ObjectID) error
	FindForTargets(ctx context.Context, userID bson.ObjectID, email string, teamIDs []bson.ObjectID, status models.InvitationStatus) ([]*models.ShareInvitation, error)
}

type TemplateStore interface {
	New(ctx context.Context, tpl *models.SharingTemplate) (*models.SharingTemplate, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.SharingTemplate, error)
	FindByOwner(ctx context.Context, ownerID bson.ObjectID) ([]*models.SharingTemplate, error)
	SoftDelete(ctx context.Context, id bson.ObjectID) error
}

type UserDirectory interface {
	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
}

type TeamDirectory interface {
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Team, error)
	FindActiveTeamIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error)
	IsActiveMember(ctx context.Context, teamID, userID bson.ObjectID) (bool, error)
	IsOwnerOrAdmin(ctx context.Context, teamID, userID bson.ObjectID) (bool, error)
}

type OrgDirectory interface {
	FindOrgIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error)
}

type ResourceCatalog interface {
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Resource, error)
}

type ActivityStore interface {
	InsertAccessLog(ctx context.Context, entry *models.ResourceAccessLog) error
	InsertTeamLog(ctx context.Context, entry *models.TeamActivityLog) error
	InsertUserLog(ctx context.Context, entry *models.UserActivityLog) error
	FindAccessLogs(ctx context.Context, filter models.AccessLogFilter) ([]*models.ResourceAccessLog, int64, error)
	FindTeamLogs(ctx context.Context, teamID bson.ObjectID, filter models.AccessLogFilter) ([]*models.TeamActivityLog, int64, error)
}

// Cache is the Redis surface the services use.
type Cache interface {
	SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) error
	GetStructCached(ctx context.Context, key string, model any) error
	DeleteKey(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// EventPublisher pushes domain events onto the broker. Implementations must
// be safe to call with a disabled broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}
