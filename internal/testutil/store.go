package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository/sqlite"
)

// NewTestStore creates an in-memory store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedTask saves a pending task owned by userID due at deadline.
func SeedTask(t *testing.T, s *sqlite.Store, userID, title string, priority models.Priority, deadline time.Time) *models.Task {
	t.Helper()

	task := &models.Task{
		UserID:   userID,
		Title:    title,
		Priority: priority,
		Status:   models.StatusPending,
		Deadline: &deadline,
	}
	if err := s.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("seeding task: %v", err)
	}
	return task
}

func Ptr[T any](v T) *T {
	return &v
}
