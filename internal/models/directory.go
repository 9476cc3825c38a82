package models

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Validation errors shared by model constructors and services.
var (
	ErrInvalidAction     = errors.New("invalid permission action")
	ErrInvalidTargetType = errors.New("invalid target type")
	ErrMissingTargetID   = errors.New("target id is required for this target type")
)

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
	RoleGuest   UserRole = "guest"
)

// User is an external read from the platform user directory. This service
// never mutates it.
type User struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string        `bson:"name" json:"name"`
	Email         string        `bson:"email" json:"email"`
	Role          UserRole      `bson:"role" json:"role"`
	IsActive      bool          `bson:"isActive" json:"isActive"`
	CurrentTeamID bson.ObjectID `bson:"currentTeamId,omitempty" json:"currentTeamId,omitempty"`
}

type TeamMemberStatus string

const (
	TeamMemberActive  TeamMemberStatus = "active"
	TeamMemberRemoved TeamMemberStatus = "removed"
)

type TeamMember struct {
	UserID bson.ObjectID    `bson:"user" json:"user"`
	Role   string           `bson:"role,omitempty" json:"role,omitempty"`
	Status TeamMemberStatus `bson:"status" json:"status"`
}

// Team is an external read; archived teams carry no identities.
type Team struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name       string        `bson:"name" json:"name"`
	OwnerID    bson.ObjectID `bson:"ownerId" json:"ownerId"`
	Members    []TeamMember  `bson:"members" json:"members"`
	IsArchived bool          `bson:"isArchived" json:"isArchived"`
}

// Organization is an external read. Membership is carried by the managers
// and members arrays only; parent/children links exist in the document but
// never imply membership in either direction.
type Organization struct {
	ID       bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name     string          `bson:"name" json:"name"`
	Type     string          `bson:"type" json:"type"`
	Parent   bson.ObjectID   `bson:"parent,omitempty" json:"parent,omitempty"`
	Managers []bson.ObjectID `bson:"managers" json:"managers"`
	Members  []bson.ObjectID `bson:"members" json:"members"`
	IsActive bool            `bson:"isActive" json:"isActive"`
}

// Resource is the generic lookup used for owner checks and audit display.
type Resource struct {
	ID      bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name    string        `bson:"name" json:"name"`
	Type    ResourceType  `bson:"type" json:"type"`
	OwnerID bson.ObjectID `bson:"ownerId" json:"ownerId"`
}

// PrincipalContext is the full identity set a grant can be addressed to.
type PrincipalContext struct {
	UserID  bson.ObjectID   `json:"userId"`
	Role    UserRole        `json:"role"`
	TeamIDs []bson.ObjectID `json:"teamIds"`
	OrgIDs  []bson.ObjectID `json:"orgIds"`
}
