package models

import "go.mongodb.org/mongo-driver/v2/bson"

// ResourceAccessLog is one append-only audit row for a resource access
// decision or sharing action.
type ResourceAccessLog struct {
	ID           bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	ResourceID   bson.ObjectID  `bson:"resourceId" json:"resourceId"`
	ResourceType ResourceType   `bson:"resourceType" json:"resourceType"`
	ResourceName string         `bson:"resourceName" json:"resourceName"`
	UserID       bson.ObjectID  `bson:"userId" json:"userId"`
	UserName     string         `bson:"userName" json:"userName"`
	UserEmail    string         `bson:"userEmail" json:"userEmail"`
	Action       string         `bson:"action" json:"action"`
	Details      map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	Successful   bool           `bson:"successful" json:"successful"`
	TeamID       bson.ObjectID  `bson:"teamId,omitempty" json:"teamId,omitempty"`
	RequestID    string         `bson:"requestId" json:"requestId"`
	Timestamp    int64          `bson:"timestamp" json:"timestamp"`
}

type TeamActivityLog struct {
	ID        bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	TeamID    bson.ObjectID  `bson:"teamId" json:"teamId"`
	TeamName  string         `bson:"teamName" json:"teamName"`
	UserID    bson.ObjectID  `bson:"userId" json:"userId"`
	UserName  string         `bson:"userName" json:"userName"`
	Action    string         `bson:"action" json:"action"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	RequestID string         `bson:"requestId" json:"requestId"`
	Timestamp int64          `bson:"timestamp" json:"timestamp"`
}

type UserActivityLog struct {
	ID        bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    bson.ObjectID  `bson:"userId" json:"userId"`
	UserName  string         `bson:"userName" json:"userName"`
	Action    string         `bson:"action" json:"action"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	RequestID string         `bson:"requestId" json:"requestId"`
	Timestamp int64          `bson:"timestamp" json:"timestamp"`
}

// AccessLogFilter narrows audit queries; zero values mean "no filter".
type AccessLogFilter struct {
	ResourceID    bson.ObjectID
	UserID        bson.ObjectID
	Actions       []string
	ResourceTypes []ResourceType
	UserIDs       []bson.ObjectID
	StartTime     int64
	EndTime       int64
	Page          int
	Limit         int
}
