package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
)

const notificationColumns = `id, user_id, task_id, kind, tier, message, scheduled_for,
	sent_at, is_read, created_at, push_status, email_status, last_error`

type notificationRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	TaskID       sql.NullString `db:"task_id"`
	Kind         string         `db:"kind"`
	Tier         string         `db:"tier"`
	Message      string         `db:"message"`
	ScheduledFor string         `db:"scheduled_for"`
	SentAt       sql.NullString `db:"sent_at"`
	IsRead       bool           `db:"is_read"`
	CreatedAt    string         `db:"created_at"`
	PushStatus   string         `db:"push_status"`
	EmailStatus  string         `db:"email_status"`
	LastError    string         `db:"last_error"`
}

func (r notificationRow) toModel() (models.Notification, error) {
	kind, err := models.ParseKind(r.Kind)
	if err != nil {
		return models.Notification{}, err
	}
	scheduled, err := parseTime(r.ScheduledFor)
	if err != nil {
		return models.Notification{}, fmt.Errorf("parsing scheduled_for of %s: %w", r.ID, err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return models.Notification{}, fmt.Errorf("parsing created_at of %s: %w", r.ID, err)
	}
	sentAt, err := parseNullTime(r.SentAt)
	if err != nil {
		return models.Notification{}, fmt.Errorf("parsing sent_at of %s: %w", r.ID, err)
	}

	n := models.Notification{
		ID:           r.ID,
		UserID:       r.UserID,
		Kind:         kind,
		Tier:         r.Tier,
		Message:      r.Message,
		ScheduledFor: scheduled,
		SentAt:       sentAt,
		IsRead:       r.IsRead,
		CreatedAt:    created,
		PushStatus:   r.PushStatus,
		EmailStatus:  r.EmailStatus,
		LastError:    r.LastError,
	}
	if r.TaskID.Valid {
		taskID := r.TaskID.String
		n.TaskID = &taskID
	}
	return n, nil
}

func toModels(rows []notificationRow) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

const insertNotification = `
	INSERT OR IGNORE INTO notifications (
		id, user_id, task_id, kind, tier, message, scheduled_for,
		sent_at, is_read, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, e execer, n *models.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := e.ExecContext(ctx, insertNotification,
		n.ID, n.UserID, nullString(n.TaskID), n.Kind.String(), n.Tier, n.Message,
		formatTime(n.ScheduledFor), nullTime(n.SentAt), n.IsRead, formatTime(n.CreatedAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Store) Create(ctx context.Context, n *models.Notification) error {
	ok, err := insert(ctx, s.db, n)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	if !ok {
		return fmt.Errorf("inserting notification %s: duplicate", n.ID)
	}
	return nil
}

func (s *Store) CreateReminders(ctx context.Context, reminders []models.Notification) ([]models.Notification, error) {
	if len(reminders) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var written []models.Notification
	for i := range reminders {
		n := reminders[i]
		ok, err := insert(ctx, tx, &n)
		if err != nil {
			return nil, fmt.Errorf("inserting reminder %s/%s: %w", deref(n.TaskID), n.Tier, err)
		}
		if ok {
			written = append(written, n)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reminders: %w", err)
	}
	return written, nil
}

func (s *Store) PendingReminderTiers(ctx context.Context, taskID string) (map[string]bool, error) {
	var tiers []string
	err := s.db.SelectContext(ctx, &tiers,
		`SELECT tier FROM notifications WHERE task_id = ? AND kind = 'reminder' AND sent_at IS NULL`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("listing pending tiers for task %s: %w", taskID, err)
	}
	out := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		out[t] = true
	}
	return out, nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE sent_at IS NULL AND scheduled_for <= ?
		ORDER BY scheduled_for ASC, created_at ASC`
	args := []any{formatTime(now)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing due notifications: %w", err)
	}
	return toModels(rows)
}

func (s *Store) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
		formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("claiming notification %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming notification %s: %w", id, err)
	}
	return affected == 1, nil
}

func (s *Store) RecordOutcome(ctx context.Context, id string, push, email models.ChannelOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET push_status = ?, email_status = ?, last_error = ? WHERE id = ?`,
		push.Status, email.Status, models.FailureSummary(push, email), id)
	if err != nil {
		return fmt.Errorf("recording outcome of %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	n, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) ListForUser(ctx context.Context, userID string, filter repository.ListFilter) ([]models.Notification, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`)
	args := []any{userID}

	if filter.UnreadOnly {
		b.WriteString(` AND is_read = 0`)
	}
	if filter.Kind != nil {
		b.WriteString(` AND kind = ?`)
		args = append(args, filter.Kind.String())
	}
	b.WriteString(` ORDER BY created_at DESC`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, fmt.Errorf("listing notifications for %s: %w", userID, err)
	}
	return toModels(rows)
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("marking all read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting notification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("counting unread for %s: %w", userID, err)
	}
	return count, nil
}

func (s *Store) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting old notifications: %w", err)
	}
	return res.RowsAffected()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
