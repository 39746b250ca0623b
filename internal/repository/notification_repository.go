package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// notificationDoc is the stored shape. dedup_key is only present on unsent
// reminders and is removed on claim, so the unique sparse index on it allows
// one pending reminder per (task, tier).
type notificationDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       string             `bson:"user_id"`
	TaskID       *string            `bson:"task_id,omitempty"`
	Type         string             `bson:"type"`
	Tier         string             `bson:"tier,omitempty"`
	Message      string             `bson:"message"`
	ScheduledFor time.Time          `bson:"scheduled_for"`
	SentAt       *time.Time         `bson:"sent_at,omitempty"`
	IsRead       bool               `bson:"is_read"`
	CreatedAt    time.Time          `bson:"created_at"`
	PushStatus   string             `bson:"push_status,omitempty"`
	EmailStatus  string             `bson:"email_status,omitempty"`
	LastError    string             `bson:"last_error,omitempty"`
	DedupKey     string             `bson:"dedup_key,omitempty"`
}

func dedupKey(n *models.Notification) string {
	if n.Kind != models.KindReminder || n.TaskID == nil || n.SentAt != nil {
		return ""
	}
	return *n.TaskID + "|" + n.Tier
}

func toDoc(n *models.Notification) notificationDoc {
	return notificationDoc{
		UserID:       n.UserID,
		TaskID:       n.TaskID,
		Type:         n.Kind.String(),
		Tier:         n.Tier,
		Message:      n.Message,
		ScheduledFor: n.ScheduledFor.UTC(),
		SentAt:       n.SentAt,
		IsRead:       n.IsRead,
		CreatedAt:    n.CreatedAt.UTC(),
		DedupKey:     dedupKey(n),
	}
}

func (d notificationDoc) toModel() (models.Notification, error) {
	kind, err := models.ParseKind(d.Type)
	if err != nil {
		return models.Notification{}, err
	}
	return models.Notification{
		ID:           d.ID.Hex(),
		UserID:       d.UserID,
		TaskID:       d.TaskID,
		Kind:         kind,
		Tier:         d.Tier,
		Message:      d.Message,
		ScheduledFor: d.ScheduledFor,
		SentAt:       d.SentAt,
		IsRead:       d.IsRead,
		CreatedAt:    d.CreatedAt,
		PushStatus:   d.PushStatus,
		EmailStatus:  d.EmailStatus,
		LastError:    d.LastError,
	}, nil
}

type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection("notifications"),
	}
}

// EnsureIndexes creates the dedup, due-scan and per-user indexes.
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "dedup_key", Value: 1}},
			Options: options.Index().SetName("ux_pending_reminder").SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "sent_at", Value: 1}, {Key: "scheduled_for", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}
	return nil
}

func (r *NotificationRepository) insert(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	result, err := r.collection.InsertOne(ctx, toDoc(n))
	if err != nil {
		return err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("failed to cast inserted ID")
	}
	n.ID = insertedID.Hex()
	return nil
}

// Create inserts an ad-hoc notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.insert(ctx, n); err != nil {
		logger.Log.WithError(err).Error("Failed to insert notification")
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// CreateReminders inserts planned reminders. A duplicate key means another
// planner got there first, which is not an error.
func (r *NotificationRepository) CreateReminders(ctx context.Context, reminders []models.Notification) ([]models.Notification, error) {
	var written []models.Notification
	for i := range reminders {
		n := reminders[i]
		err := r.insert(ctx, &n)
		if mongo.IsDuplicateKeyError(err) {
			logger.Log.WithFields(logrus.Fields{
				"task_id": derefString(n.TaskID),
				"tier":    n.Tier,
			}).Debug("Reminder already pending, skipping")
			continue
		}
		if err != nil {
			return written, fmt.Errorf("failed to insert reminder: %w", err)
		}
		written = append(written, n)
	}
	return written, nil
}

func (r *NotificationRepository) PendingReminderTiers(ctx context.Context, taskID string) (map[string]bool, error) {
	filter := bson.M{
		"task_id": taskID,
		"type":    models.KindReminder.String(),
		"sent_at": nil,
	}
	opts := options.Find().SetProjection(bson.M{"tier": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending reminders: %w", err)
	}
	defer cursor.Close(ctx)

	tiers := make(map[string]bool)
	for cursor.Next(ctx) {
		var doc struct {
			Tier string `bson:"tier"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode reminder tier: %w", err)
		}
		tiers[doc.Tier] = true
	}
	return tiers, cursor.Err()
}

func (r *NotificationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Notification, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	notifications := make([]models.Notification, 0, len(docs))
	for _, d := range docs {
		n, err := d.toModel()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	filter := bson.M{
		"sent_at":       nil,
		"scheduled_for": bson.M{"$lte": now.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_for", Value: 1}, {Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

// Claim sets sent_at on an unsent notification. Only the caller whose update
// matched wins.
func (r *NotificationRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrNotFound
	}
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "sent_at": nil},
		bson.M{
			"$set":   bson.M{"sent_at": at.UTC()},
			"$unset": bson.M{"dedup_key": ""},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *NotificationRepository) RecordOutcome(ctx context.Context, id string, push, email models.ChannelOutcome) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"push_status":  push.Status,
		"email_status": email.Status,
		"last_error":   models.FailureSummary(push, email),
	}})
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc notificationDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}
	n, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListForUser returns a user's notifications, newest first
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, filter ListFilter) ([]models.Notification, error) {
	query := bson.M{"user_id": userID}
	if filter.UnreadOnly {
		query["is_read"] = false
	}
	if filter.Kind != nil {
		query["type"] = filter.Kind.String()
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, query, opts)
}

// MarkRead sets is_read to true
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// DeleteReadBefore removes read notifications older than cutoff
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{"is_read": true, "created_at": bson.M{"$lt": cutoff.UTC()}}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	logger.Log.Infof("Deleted %d old notifications", result.DeletedCount)
	return result.DeletedCount, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
