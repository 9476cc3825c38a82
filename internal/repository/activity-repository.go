package repository

import (
	"context"
	"fmt"
	"time"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ActivityRepository appends audit rows and serves the audit queries.
// Rows are never updated or deleted.
type ActivityRepository struct {
	accessLogs *mongo.Collection
	teamLogs   *mongo.Collection
	userLogs   *mongo.Collection
}

func NewActivityRepository(db *mongo.Database) *ActivityRepository {
	return &ActivityRepository{
		accessLogs: db.Collection("ResourceAccessLog"),
		teamLogs:   db.Collection("TeamActivityLog"),
		userLogs:   db.Collection("UserActivityLog"),
	}
}

func (r *ActivityRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.accessLogs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "resourceId", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = r.teamLogs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "teamId", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}

func (r *ActivityRepository) InsertAccessLog(ctx context.Context, entry *models.ResourceAccessLog) error {
	if entry.ID.IsZero() {
		entry.ID = bson.NewObjectID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	if _, err := r.accessLogs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert access log: %w", err)
	}
	return nil
}

func (r *ActivityRepository) InsertTeamLog(ctx context.Context, entry *models.TeamActivityLog) error {
	if entry.ID.IsZero() {
		entry.ID = bson.NewObjectID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	if _, err := r.teamLogs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert team activity log: %w", err)
	}
	return nil
}

func (r *ActivityRepository) InsertUserLog(ctx context.Context, entry *models.UserActivityLog) error {
	if entry.ID.IsZero() {
		entry.ID = bson.NewObjectID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	if _, err := r.userLogs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert user activity log: %w", err)
	}
	return nil
}

// FindAccessLogs pages through the resource access log, newest first, and
// returns the total matching count alongside the page.
func (r *ActivityRepository) FindAccessLogs(ctx context.Context, filter models.AccessLogFilter) ([]*models.ResourceAccessLog, int64, error) {
	query := buildAccessLogQuery(filter)

	total, err := r.accessLogs.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.M{"timestamp": -1})
	applyPaging(opts, filter.Page, filter.Limit)

	cursor, err := r.accessLogs.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var logs []*models.ResourceAccessLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r *ActivityRepository) FindTeamLogs(ctx context.Context, teamID bson.ObjectID, filter models.AccessLogFilter) ([]*models.TeamActivityLog, int64, error) {
	query := bson.M{"teamId": teamID}
	if len(filter.Actions) > 0 {
		query["action"] = bson.M{"$in": filter.Actions}
	}
	if len(filter.UserIDs) > 0 {
		query["userId"] = bson.M{"$in": filter.UserIDs}
	}
	applyTimeRange(query, filter.StartTime, filter.EndTime)

	total, err := r.teamLogs.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.M{"timestamp": -1})
	applyPaging(opts, filter.Page, filter.Limit)

	cursor, err := r.teamLogs.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var logs []*models.TeamActivityLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func buildAccessLogQuery(filter models.AccessLogFilter) bson.M {
	query := bson.M{}
	if !filter.ResourceID.IsZero() {
		query["resourceId"] = filter.ResourceID
	}
	if !filter.UserID.IsZero() {
		query["userId"] = filter.UserID
	}
	if len(filter.Actions) > 0 {
		query["action"] = bson.M{"$in": filter.Actions}
	}
	if len(filter.ResourceTypes) > 0 {
		query["resourceType"] = bson.M{"$in": filter.ResourceTypes}
	}
	applyTimeRange(query, filter.StartTime, filter.EndTime)
	return query
}

func applyTimeRange(query bson.M, start, end int64) {
	if start == 0 && end == 0 {
		return
	}
	ts := bson.M{}
	if start > 0 {
		ts["$gte"] = start
	}
	if end > 0 {
		ts["$lte"] = end
	}
	query["timestamp"] = ts
}

func applyPaging(opts *options.FindOptionsBuilder, page, limit int) {
	if limit <= 0 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	opts.SetSkip(int64((page - 1) * limit))
	opts.SetLimit(int64(limit))
}
