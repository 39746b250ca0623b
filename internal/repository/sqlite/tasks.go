package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
)

// The tasks and users tables mirror data owned elsewhere. The engine only
// reads them; SaveTask and SaveUser exist for imports and fixtures.

const taskColumns = `id, user_id, title, description, deadline, priority, status, reminder_time`

type taskRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	Deadline     sql.NullString `db:"deadline"`
	Priority     string         `db:"priority"`
	Status       string         `db:"status"`
	ReminderTime sql.NullString `db:"reminder_time"`
}

func (r taskRow) toModel() (models.Task, error) {
	deadline, err := parseNullTime(r.Deadline)
	if err != nil {
		return models.Task{}, fmt.Errorf("parsing deadline of task %s: %w", r.ID, err)
	}
	reminder, err := parseNullTime(r.ReminderTime)
	if err != nil {
		return models.Task{}, fmt.Errorf("parsing reminder_time of task %s: %w", r.ID, err)
	}
	return models.Task{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Description:  r.Description,
		Deadline:     deadline,
		Priority:     models.Priority(r.Priority),
		Status:       models.TaskStatus(r.Status),
		ReminderTime: reminder,
	}, nil
}

func (s *Store) ListActiveTasksWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+taskColumns+` FROM tasks
		WHERE deadline IS NOT NULL AND deadline >= ? AND deadline <= ? AND status != ?
		ORDER BY deadline ASC`,
		formatTime(from), formatTime(to), string(models.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("listing tasks with upcoming deadlines: %w", err)
	}
	return taskModels(rows)
}

func (s *Store) ListActiveTasksWithReminderBetween(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+taskColumns+` FROM tasks
		WHERE reminder_time IS NOT NULL AND reminder_time >= ? AND reminder_time <= ?
			AND deadline IS NOT NULL AND status != ?
		ORDER BY reminder_time ASC`,
		formatTime(from), formatTime(to), string(models.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("listing tasks with upcoming reminders: %w", err)
	}
	return taskModels(rows)
}

func taskModels(rows []taskRow) ([]models.Task, error) {
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	t, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTask inserts or replaces a task. An empty ID gets a fresh UUID.
func (s *Store) SaveTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, nullTime(t.Deadline),
		string(t.Priority), string(t.Status), nullTime(t.ReminderTime))
	if err != nil {
		return fmt.Errorf("saving task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, id, username, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, username, email) VALUES (?, ?, ?)`,
		id, username, email)
	if err != nil {
		return fmt.Errorf("saving user %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.db.GetContext(ctx, &email, `SELECT email FROM users WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up email of %s: %w", userID, err)
	}
	return email, nil
}
