package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type ResourceType string

const (
	ResourceExperiment   ResourceType = "experiment"
	ResourceTemplate     ResourceType = "template"
	ResourceDevice       ResourceType = "device"
	ResourceGeneric      ResourceType = "resource"
	ResourceTeam         ResourceType = "team"
	ResourceOrganization ResourceType = "organization"
	ResourceReport       ResourceType = "report"
	ResourceSetting      ResourceType = "setting"
	ResourceUser         ResourceType = "user"
)

type PermissionAction string

const (
	ActionCreate  PermissionAction = "create"
	ActionRead    PermissionAction = "read"
	ActionUpdate  PermissionAction = "update"
	ActionDelete  PermissionAction = "delete"
	ActionExecute PermissionAction = "execute"
	ActionShare   PermissionAction = "share"
	ActionApprove PermissionAction = "approve"
	ActionAssign  PermissionAction = "assign"
	ActionManage  PermissionAction = "manage"
)

// AllPermissionActions returns every action in the enum, in declaration
// order. Admins are reported as holding all of them.
func AllPermissionActions() []PermissionAction {
	return []PermissionAction{
		ActionCreate, ActionRead, ActionUpdate, ActionDelete,
		ActionExecute, ActionShare, ActionApprove, ActionAssign, ActionManage,
	}
}

func IsValidPermissionAction(a PermissionAction) bool {
	for _, known := range AllPermissionActions() {
		if a == known {
			return true
		}
	}
	return false
}

type PermissionTargetType string

const (
	TargetUser         PermissionTargetType = "user"
	TargetRole         PermissionTargetType = "role"
	TargetTeam         PermissionTargetType = "team"
	TargetOrganization PermissionTargetType = "organization"
	TargetPublic       PermissionTargetType = "public"
)

// PermissionGrant is a standing authorization record. A zero ResourceID
// means the grant applies to every resource of its type. TargetID is empty
// for public grants.
type PermissionGrant struct {
	ID           bson.ObjectID        `bson:"_id,omitempty" json:"id"`
	ResourceType ResourceType         `bson:"resourceType" json:"resourceType"`
	ResourceID   bson.ObjectID        `bson:"resourceId,omitempty" json:"resourceId,omitempty"`
	Action       PermissionAction     `bson:"action" json:"action"`
	TargetType   PermissionTargetType `bson:"targetType" json:"targetType"`
	TargetID     string               `bson:"targetId,omitempty" json:"targetId,omitempty"`
	Conditions   map[string]any       `bson:"conditions,omitempty" json:"conditions,omitempty"`
	ExpiresAt    int64                `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	IsActive     bool                 `bson:"isActive" json:"isActive"`
	CreatedBy    bson.ObjectID        `bson:"createdBy,omitempty" json:"createdBy"`
	CreatedAt    int64                `bson:"createdAt" json:"createdAt"`
	UpdatedAt    int64                `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// IsEffective reports whether the grant counts as evidence of access:
// active and not expired. Every read path goes through this predicate.
func (g *PermissionGrant) IsEffective(now time.Time) bool {
	return g.IsActive && (g.ExpiresAt == 0 || g.ExpiresAt > now.Unix())
}

// AppliesTo reports whether an effective grant is addressed to any of the
// principal's identities: the user itself, its role, one of its teams, one
// of its organizations, or everyone.
func (g *PermissionGrant) AppliesTo(p *PrincipalContext, now time.Time) bool {
	if !g.IsEffective(now) {
		return false
	}
	switch g.TargetType {
	case TargetUser:
		return g.TargetID == p.UserID.Hex()
	case TargetRole:
		return g.TargetID == string(p.Role)
	case TargetTeam:
		for _, teamID := range p.TeamIDs {
			if g.TargetID == teamID.Hex() {
				return true
			}
		}
		return false
	case TargetOrganization:
		for _, orgID := range p.OrgIDs {
			if g.TargetID == orgID.Hex() {
				return true
			}
		}
		return false
	case TargetPublic:
		return true
	default:
		return false
	}
}

// GrantSpec is a partial grant: the shape of PermissionGrant minus
// resourceType, resourceId and createdBy, which are filled in when a rule
// is applied or a permission set is replaced.
type GrantSpec struct {
	Action     PermissionAction     `bson:"action" json:"action"`
	TargetType PermissionTargetType `bson:"targetType" json:"targetType"`
	TargetID   string               `bson:"targetId,omitempty" json:"targetId,omitempty"`
	Conditions map[string]any       `bson:"conditions,omitempty" json:"conditions,omitempty"`
	ExpiresAt  int64                `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

// Materialize turns the spec into a full grant bound to a concrete
// resource.
func (s *GrantSpec) Materialize(resourceType ResourceType, resourceID, createdBy bson.ObjectID, now time.Time) *PermissionGrant {
	return &PermissionGrant{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       s.Action,
		TargetType:   s.TargetType,
		TargetID:     s.TargetID,
		Conditions:   s.Conditions,
		ExpiresAt:    s.ExpiresAt,
		IsActive:     true,
		CreatedBy:    createdBy,
		CreatedAt:    now.Unix(),
	}
}

// Validate checks the spec's enum values and target id presence.
func (s *GrantSpec) Validate() error {
	if !IsValidPermissionAction(s.Action) {
		return ErrInvalidAction
	}
	switch s.TargetType {
	case TargetUser, TargetRole, TargetTeam, TargetOrganization:
		if s.TargetID == "" {
			return ErrMissingTargetID
		}
	case TargetPublic:
	default:
		return ErrInvalidTargetType
	}
	return nil
}

// PermissionRule is a named, reusable bundle of grant specs. Built-in
// rules cannot be deleted.
type PermissionRule struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string        `bson:"name" json:"name"`
	Description string        `bson:"description,omitempty" json:"description"`
	Permissions []GrantSpec   `bson:"permissions" json:"permissions"`
	IsBuiltIn   bool          `bson:"isBuiltIn" json:"isBuiltIn"`
	CreatedBy   bson.ObjectID `bson:"createdBy,omitempty" json:"createdBy"`
	CreatedAt   int64         `bson:"createdAt" json:"createdAt"`
}
