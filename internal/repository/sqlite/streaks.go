package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
)

type streakRow struct {
	UserID           string         `db:"user_id"`
	CurrentStreak    int            `db:"current_streak"`
	LongestStreak    int            `db:"longest_streak"`
	LastActivityDate sql.NullString `db:"last_activity_date"`
	TotalDaysActive  int            `db:"total_days_active"`
}

func (s *Store) GetStreak(ctx context.Context, userID string) (*models.UserStreakState, error) {
	var row streakRow
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, current_streak, longest_streak, last_activity_date, total_days_active
		FROM user_streaks WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting streak of %s: %w", userID, err)
	}

	state := &models.UserStreakState{
		UserID:          row.UserID,
		CurrentStreak:   row.CurrentStreak,
		LongestStreak:   row.LongestStreak,
		TotalDaysActive: row.TotalDaysActive,
	}
	if row.LastActivityDate.Valid {
		day, err := models.ParseDay(row.LastActivityDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_activity_date of %s: %w", userID, err)
		}
		state.LastActivityDate = &day
	}
	return state, nil
}

func (s *Store) SaveStreak(ctx context.Context, state *models.UserStreakState) error {
	var last sql.NullString
	if state.LastActivityDate != nil {
		last = sql.NullString{String: state.LastActivityDate.Format(models.DateLayout), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_streaks (user_id, current_streak, longest_streak, last_activity_date, total_days_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_activity_date = excluded.last_activity_date,
			total_days_active = excluded.total_days_active,
			updated_at = excluded.updated_at`,
		state.UserID, state.CurrentStreak, state.LongestStreak, last, state.TotalDaysActive,
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving streak of %s: %w", state.UserID, err)
	}
	return nil
}

func (s *Store) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM user_streaks
		WHERE current_streak > 0 AND last_activity_date IS NOT NULL AND last_activity_date < ?
		ORDER BY user_id`,
		before.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("listing stale streaks: %w", err)
	}
	return ids, nil
}

func (s *Store) ResetCurrent(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_streaks SET current_streak = 0, updated_at = ? WHERE user_id = ?`,
		formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("resetting streak of %s: %w", userID, err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (*models.StreakStats, error) {
	var stats models.StreakStats
	err := s.db.GetContext(ctx, &stats,
		`SELECT
			COUNT(*) AS total_users,
			COALESCE(AVG(current_streak), 0.0) AS avg_current_streak,
			COALESCE(MAX(current_streak), 0) AS max_current_streak,
			COALESCE(AVG(longest_streak), 0.0) AS avg_longest_streak,
			COALESCE(MAX(longest_streak), 0) AS max_longest_streak,
			COALESCE(AVG(total_days_active), 0.0) AS avg_days_active
		FROM user_streaks`)
	if err != nil {
		return nil, fmt.Errorf("computing streak stats: %w", err)
	}
	return &stats, nil
}
