package events

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type EventType string

const (
	// Published by this service.
	PermissionGranted   EventType = "permission.granted"
	PermissionRevoked   EventType = "permission.revoked"
	PermissionsReplaced EventType = "permission.replaced"
	RuleApplied         EventType = "rule.applied"
	ResourceShared      EventType = "resource.shared"
	SharingUpdated      EventType = "sharing.updated"
	SharingRevoked      EventType = "sharing.revoked"
	InvitationCreated   EventType = "invitation.created"
	InvitationAccepted  EventType = "invitation.accepted"
	InvitationRejected  EventType = "invitation.rejected"

	// Consumed from the directory services.
	TeamMemberAdded   EventType = "team.member.added"
	TeamMemberRemoved EventType = "team.member.removed"
	TeamArchived      EventType = "team.archived"
	UserRoleChanged   EventType = "user.role.changed"
	OrgMemberChanged  EventType = "organization.member.changed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{
		ID:        time.Now().Format("20060102150405") + "-" + bson.NewObjectID().Hex(),
		Type:      t,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

// PermissionEvent covers grant, revoke, replace and rule application.
type PermissionEvent struct {
	BaseEvent
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	Action       string `json:"action,omitempty"`
	TargetType   string `json:"target_type,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	RuleID       string `json:"rule_id,omitempty"`
	ActorID      string `json:"actor_id"`
}

func NewPermissionEvent(t EventType, resourceType, resourceID, action, targetType, targetID, actorID string) *PermissionEvent {
	return &PermissionEvent{
		BaseEvent:    newBaseEvent(t),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		TargetType:   targetType,
		TargetID:     targetID,
		ActorID:      actorID,
	}
}

func (e *PermissionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SharingEvent covers share creation, update and revocation.
type SharingEvent struct {
	BaseEvent
	SharingID      string `json:"sharing_id"`
	ResourceID     string `json:"resource_id"`
	ResourceType   string `json:"resource_type"`
	SharedWith     string `json:"shared_with"`
	SharedWithType string `json:"shared_with_type"`
	AccessLevel    string `json:"access_level"`
	ActorID        string `json:"actor_id"`
}

func NewSharingEvent(t EventType, sharingID, resourceID, resourceType, sharedWith, sharedWithType, accessLevel, actorID string) *SharingEvent {
	return &SharingEvent{
		BaseEvent:      newBaseEvent(t),
		SharingID:      sharingID,
		ResourceID:     resourceID,
		ResourceType:   resourceType,
		SharedWith:     sharedWith,
		SharedWithType: sharedWithType,
		AccessLevel:    accessLevel,
		ActorID:        actorID,
	}
}

func (e *SharingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// InvitationEvent covers the invitation lifecycle.
type InvitationEvent struct {
	BaseEvent
	InvitationID string `json:"invitation_id"`
	ResourceID   string `json:"resource_id"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_id"`
	AccessLevel  string `json:"access_level"`
	ActorID      string `json:"actor_id"`
}

func NewInvitationEvent(t EventType, invitationID, resourceID, targetType, targetID, accessLevel, actorID string) *InvitationEvent {
	return &InvitationEvent{
		BaseEvent:    newBaseEvent(t),
		InvitationID: invitationID,
		ResourceID:   resourceID,
		TargetType:   targetType,
		TargetID:     targetID,
		AccessLevel:  accessLevel,
		ActorID:      actorID,
	}
}

func (e *InvitationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// MembershipEvent is the shape of the directory events this service
// consumes to invalidate cached principal contexts.
type MembershipEvent struct {
	BaseEvent
	UserID  string   `json:"user_id,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
	TeamID  string   `json:"team_id,omitempty"`
	OrgID   string   `json:"org_id,omitempty"`
}
