package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
)

var ErrNotFound = errors.New("not found")

// TaskStore is the read-only view of the external task store.
type TaskStore interface {
	ListActiveTasksWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]models.Task, error)
	// ListActiveTasksWithReminderBetween matches on reminder_time only, whatever the deadline.
	ListActiveTasksWithReminderBetween(ctx context.Context, from, to time.Time) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
}

// UserDirectory resolves email targets. An empty address means none.
type UserDirectory interface {
	GetEmail(ctx context.Context, userID string) (string, error)
}

type ListFilter struct {
	UnreadOnly bool
	Kind       *models.Kind
	Limit      int
}

type NotificationStore interface {
	// Create inserts an ad-hoc notification and fills in its ID and CreatedAt.
	Create(ctx context.Context, n *models.Notification) error
	// CreateReminders inserts planned reminders, silently dropping any whose
	// (task, tier) already has an unsent reminder. Returns the rows written.
	CreateReminders(ctx context.Context, reminders []models.Notification) ([]models.Notification, error)
	// PendingReminderTiers lists tiers of the task's unsent reminders.
	PendingReminderTiers(ctx context.Context, taskID string) (map[string]bool, error)
	// ListDue returns unsent rows scheduled at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	// Claim sets sent_at only if it is still unset. Exactly one caller wins.
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	RecordOutcome(ctx context.Context, id string, push, email models.ChannelOutcome) error

	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListForUser(ctx context.Context, userID string, filter ListFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) (bool, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	// DeleteReadBefore removes read notifications created before cutoff.
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type StreakStore interface {
	// GetStreak returns ErrNotFound for users without recorded activity.
	GetStreak(ctx context.Context, userID string) (*models.UserStreakState, error)
	SaveStreak(ctx context.Context, state *models.UserStreakState) error
	// ListStale returns users with a running streak whose last activity day is before day.
	ListStale(ctx context.Context, before time.Time) ([]string, error)
	ResetCurrent(ctx context.Context, userID string) error
	Stats(ctx context.Context) (*models.StreakStats, error)
}

// Store bundles everything one backend provides.
type Store interface {
	TaskStore
	UserDirectory
	NotificationStore
	StreakStore
	Ping(ctx context.Context) error
	Close() error
}
