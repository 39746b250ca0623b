package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dias221467/taskreminder/internal/jobs"
	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/pkg/clock"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/sirupsen/logrus"
)

var ErrEmptyMessage = errors.New("message is required")

const defaultListLimit = 50

type dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) (jobs.Outcome, error)
}

// NotificationService is what request handlers and other collaborators use.
type NotificationService struct {
	store      repository.NotificationStore
	dispatcher dispatcher
	streaks    *StreakService
	clock      clock.Clock
}

func NewNotificationService(store repository.NotificationStore, d dispatcher, streaks *StreakService, clk clock.Clock) *NotificationService {
	if clk == nil {
		clk = clock.Real{}
	}
	return &NotificationService{
		store:      store,
		dispatcher: d,
		streaks:    streaks,
		clock:      clk,
	}
}

// CreateInstantNotification stores a notification due now, dispatches it
// right away and counts it as activity for the user's streak.
func (s *NotificationService) CreateInstantNotification(ctx context.Context, userID string, taskID *string, message string, kind models.Kind) (*models.Notification, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	now := s.clock.Now()
	n := &models.Notification{
		UserID:       userID,
		TaskID:       taskID,
		Kind:         kind,
		Message:      message,
		ScheduledFor: now,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	out, err := s.dispatcher.Dispatch(ctx, *n)
	if err != nil {
		logger.Log.WithError(err).WithField("notification_id", n.ID).Error("Instant notification dispatch failed")
		return n, fmt.Errorf("dispatching notification: %w", err)
	}
	if out.Claimed {
		n.SentAt = &now
		n.PushStatus = out.Push.Status
		n.EmailStatus = out.Email.Status
		n.LastError = models.FailureSummary(out.Push, out.Email)
	}

	if s.streaks != nil {
		if _, err := s.streaks.RecordActivity(ctx, userID); err != nil {
			logger.Log.WithError(err).WithField("user_id", userID).Warn("Failed to record streak activity")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         userID,
		"type":            kind.String(),
	}).Info("Instant notification sent")
	return n, nil
}

func (s *NotificationService) GetStreak(ctx context.Context, userID string) (*models.UserStreakState, error) {
	return s.streaks.GetStreak(ctx, userID)
}

func (s *NotificationService) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	return s.store.GetByID(ctx, id)
}

// ListForUser returns the user's notifications, newest first. A zero limit
// means the default page size.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, filter repository.ListFilter) ([]models.Notification, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	return s.store.ListForUser(ctx, userID, filter)
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

// CleanupOlderThan deletes read notifications created more than days ago.
func (s *NotificationService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed, err := s.store.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logger.Log.WithFields(logrus.Fields{
		"days":    days,
		"removed": removed,
	}).Info("Old notifications cleaned up")
	return removed, nil
}
