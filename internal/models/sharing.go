package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// AccessLevel is the sharing tier, totally ordered readonly < edit < full.
type AccessLevel string

const (
	AccessReadonly AccessLevel = "readonly"
	AccessEdit     AccessLevel = "edit"
	AccessFull     AccessLevel = "full"
)

var accessLevelRank = map[AccessLevel]int{
	AccessReadonly: 1,
	AccessEdit:     2,
	AccessFull:     3,
}

func IsValidAccessLevel(l AccessLevel) bool {
	_, ok := accessLevelRank[l]
	return ok
}

// IsHigherAccessLevel reports whether a is at least as high a tier as b.
// Unknown levels rank below everything.
func IsHigherAccessLevel(a, b AccessLevel) bool {
	return accessLevelRank[a] >= accessLevelRank[b]
}

// MaxAccessLevel returns the higher of the two tiers.
func MaxAccessLevel(a, b AccessLevel) AccessLevel {
	if accessLevelRank[b] > accessLevelRank[a] {
		return b
	}
	return a
}

// AccessType is an operation gated by the sharing channel.
type AccessType string

const (
	AccessView     AccessType = "view"
	AccessTypeEdit AccessType = "edit"
	AccessDelete   AccessType = "delete"
	AccessShare    AccessType = "share"
	AccessDownload AccessType = "download"
)

// IsAccessAllowed is the closed allowed-action matrix per tier. An unknown
// level allows nothing.
func IsAccessAllowed(level AccessLevel, access AccessType) bool {
	switch level {
	case AccessReadonly:
		return access == AccessView || access == AccessDownload
	case AccessEdit:
		return access == AccessView || access == AccessTypeEdit || access == AccessDownload
	case AccessFull:
		return true
	default:
		return false
	}
}

type SharedWithType string

const (
	SharedWithUser SharedWithType = "user"
	SharedWithTeam SharedWithType = "team"
)

type SharingStatus string

const (
	SharingActive  SharingStatus = "active"
	SharingRevoked SharingStatus = "revoked"
)

// ResourceSharing shares one concrete resource with a user or a team at a
// given tier. It is a separate channel from PermissionGrant.
type ResourceSharing struct {
	ID             bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	ResourceID     bson.ObjectID  `bson:"resourceId" json:"resourceId"`
	ResourceType   ResourceType   `bson:"resourceType" json:"resourceType"`
	ResourceName   string         `bson:"resourceName,omitempty" json:"resourceName,omitempty"`
	OwnerID        bson.ObjectID  `bson:"ownerId,omitempty" json:"ownerId"`
	SharedBy       bson.ObjectID  `bson:"sharedBy" json:"sharedBy"`
	SharedWith     bson.ObjectID  `bson:"sharedWith" json:"sharedWith"`
	SharedWithType SharedWithType `bson:"sharedWithType" json:"sharedWithType"`
	AccessLevel    AccessLevel    `bson:"accessLevel" json:"accessLevel"`
	Status         SharingStatus  `bson:"status" json:"status"`
	InvitationID   bson.ObjectID  `bson:"invitationId,omitempty" json:"invitationId,omitempty"`
	ExpiresAt      int64          `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	CreatedAt      int64          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      int64          `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// IsEffective reports whether the share still conveys access.
func (s *ResourceSharing) IsEffective(now time.Time) bool {
	return s.Status == SharingActive && (s.ExpiresAt == 0 || s.ExpiresAt > now.Unix())
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

type InvitationTargetType string

const (
	InviteUser  InvitationTargetType = "user"
	InviteTeam  InvitationTargetType = "team"
	InviteEmail InvitationTargetType = "email"
)

// ShareInvitation is a pending proposal; acceptance is the only path that
// creates the corresponding ResourceSharing.
type ShareInvitation struct {
	ID           bson.ObjectID        `bson:"_id,omitempty" json:"id"`
	ResourceID   bson.ObjectID        `bson:"resourceId" json:"resourceId"`
	ResourceType ResourceType         `bson:"resourceType" json:"resourceType"`
	TargetType   InvitationTargetType `bson:"targetType" json:"targetType"`
	TargetID     string               `bson:"targetId" json:"targetId"`
	Message      string               `bson:"message,omitempty" json:"message,omitempty"`
	AccessLevel  AccessLevel          `bson:"accessLevel" json:"accessLevel"`
	Status       InvitationStatus     `bson:"status" json:"status"`
	ExpiresAt    int64                `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	CreatedBy    bson.ObjectID        `bson:"createdBy" json:"createdBy"`
	ProcessedBy  bson.ObjectID        `bson:"processedBy,omitempty" json:"processedBy,omitempty"`
	ProcessedAt  int64                `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	CreatedAt    int64                `bson:"createdAt" json:"createdAt"`
	UpdatedAt    int64                `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// IsExpired reports whether a pending invitation can no longer be accepted.
func (i *ShareInvitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt != 0 && i.ExpiresAt <= now.Unix()
}

// SharingSetting is one tuple of a sharing template.
type SharingSetting struct {
	TargetType  SharedWithType `bson:"targetType" json:"targetType"`
	TargetID    bson.ObjectID  `bson:"targetId" json:"targetId"`
	AccessLevel AccessLevel    `bson:"accessLevel" json:"accessLevel"`
}

type TemplateStatus string

const (
	TemplateActive  TemplateStatus = "active"
	TemplateDeleted TemplateStatus = "deleted"
)

// SharingTemplate is a named, owner-scoped list of sharing settings that
// can be stamped onto a batch of resources.
type SharingTemplate struct {
	ID          bson.ObjectID    `bson:"_id,omitempty" json:"id"`
	Name        string           `bson:"templateName" json:"templateName"`
	Description string           `bson:"description,omitempty" json:"description,omitempty"`
	OwnerID     bson.ObjectID    `bson:"ownerId" json:"ownerId"`
	Settings    []SharingSetting `bson:"sharingSettings" json:"sharingSettings"`
	Status      TemplateStatus   `bson:"status" json:"status"`
	CreatedAt   int64            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   int64            `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// ShareOutcome is the per-resource detail of a batch operation.
type ShareOutcome struct {
	ResourceID      string `json:"resourceId"`
	ResourceName    string `json:"resourceName,omitempty"`
	Reason          string `json:"reason,omitempty"`
	AppliedSettings int    `json:"appliedSettings,omitempty"`
}

// BatchShareResult summarizes a best-effort batch: callers must not assume
// all-or-nothing semantics.
type BatchShareResult struct {
	TotalResources        int            `json:"totalResources"`
	SuccessfulShares      int            `json:"successfulShares"`
	FailedShares          int            `json:"failedShares"`
	UnauthorizedResources int            `json:"unauthorizedResources"`
	SuccessDetails        []ShareOutcome `json:"successDetails"`
	FailureDetails        []ShareOutcome `json:"failureDetails"`
}
