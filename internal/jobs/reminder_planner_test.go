package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tiersOf(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Tier)
	}
	return out
}

func TestCandidatesLadder(t *testing.T) {
	p := NewReminderPlanner(nil, nil, DefaultPolicy(), 0)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	deadline := now.Add(72 * time.Hour)

	tests := []struct {
		priority models.Priority
		want     []string
	}{
		{models.PriorityHigh, []string{"24h", "4h", "30m"}},
		{models.PriorityMedium, []string{"24h", "2h"}},
		{models.PriorityLow, []string{"4h"}},
		{"Urgent", []string{"2h"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			task := &models.Task{ID: "t", Priority: tt.priority, Status: models.StatusPending, Deadline: &deadline}
			assert.Equal(t, tt.want, tiersOf(p.Candidates(task, now)))
		})
	}
}

func TestCandidatesOnlyFuture(t *testing.T) {
	p := NewReminderPlanner(nil, nil, DefaultPolicy(), 0)
	today10 := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	deadline := time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)
	task := &models.Task{ID: "t", Priority: models.PriorityHigh, Status: models.StatusPending, Deadline: &deadline}

	cs := p.Candidates(task, today10)
	require.Equal(t, []string{"24h", "4h", "30m"}, tiersOf(cs))
	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), cs[0].At)

	today16 := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"4h", "30m"}, tiersOf(p.Candidates(task, today16)))

	// A candidate exactly at now is not strictly future.
	assert.Equal(t, []string{"4h", "30m"}, tiersOf(p.Candidates(task, deadline.Add(-24*time.Hour))))
}

func TestCandidatesExplicitAndSkips(t *testing.T) {
	p := NewReminderPlanner(nil, nil, DefaultPolicy(), 0)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	deadline := now.Add(3 * time.Hour)
	reminder := now.Add(time.Hour)

	task := &models.Task{ID: "t", Priority: models.PriorityLow, Status: models.StatusPending, Deadline: &deadline, ReminderTime: &reminder}
	assert.Equal(t, []string{models.TierExplicit}, tiersOf(p.Candidates(task, now)))

	past := now.Add(-time.Minute)
	task.ReminderTime = &past
	assert.Empty(t, p.Candidates(task, now))

	task.ReminderTime = &reminder
	task.Status = models.StatusCompleted
	assert.Empty(t, p.Candidates(task, now))

	assert.Empty(t, p.Candidates(&models.Task{ID: "x", Status: models.StatusPending, ReminderTime: &reminder}, now))
}

func TestPlanIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := NewReminderPlanner(s, s, DefaultPolicy(), 0)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	task := testutil.SeedTask(t, s, "u1", "Report", models.PriorityHigh, now.Add(48*time.Hour))

	written, err := p.Plan(ctx, task, now)
	require.NoError(t, err)
	require.Len(t, written, 3)
	assert.Equal(t, `Reminder: "Report" is due in 2 days`, written[0].Message)
	for _, n := range written {
		assert.Equal(t, models.KindReminder, n.Kind)
		assert.Equal(t, task.ID, *n.TaskID)
		assert.Nil(t, n.SentAt)
	}

	written, err = p.Plan(ctx, task, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestReconcileHorizon(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := NewReminderPlanner(s, s, DefaultPolicy(), 7*24*time.Hour)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	testutil.SeedTask(t, s, "u1", "Soon", models.PriorityMedium, now.Add(30*time.Hour))
	testutil.SeedTask(t, s, "u1", "Far", models.PriorityMedium, now.Add(9*24*time.Hour))

	created, err := p.Reconcile(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = p.Reconcile(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestReconcilePlansExplicitReminderOfFarTask(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := NewReminderPlanner(s, s, DefaultPolicy(), 7*24*time.Hour)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	task := testutil.SeedTask(t, s, "u1", "Far", models.PriorityHigh, now.Add(10*24*time.Hour))
	task.ReminderTime = testutil.Ptr(now.Add(time.Hour))
	require.NoError(t, s.SaveTask(ctx, task))

	created, err := p.Reconcile(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	due, err := s.ListDue(ctx, now.Add(2*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.TierExplicit, due[0].Tier)
	assert.Equal(t, task.ID, *due[0].TaskID)

	created, err = p.Reconcile(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, created)
}

type failingTasks struct{}

func (failingTasks) ListActiveTasksWithDeadlineBetween(context.Context, time.Time, time.Time) ([]models.Task, error) {
	return nil, errors.New("task store down")
}

func (failingTasks) ListActiveTasksWithReminderBetween(context.Context, time.Time, time.Time) ([]models.Task, error) {
	return nil, errors.New("task store down")
}

func (failingTasks) GetTask(context.Context, string) (*models.Task, error) {
	return nil, repository.ErrNotFound
}

func TestReconcileLookupFailureWritesNothing(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := NewReminderPlanner(failingTasks{}, s, DefaultPolicy(), 0)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	_, err := p.Reconcile(context.Background(), now)
	require.Error(t, err)

	due, err := s.ListDue(context.Background(), now.Add(30*24*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRelativeDeadline(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "in 3 days", relativeDeadline(now.Add(80*time.Hour), now))
	assert.Equal(t, "tomorrow", relativeDeadline(now.Add(30*time.Hour), now))
	assert.Equal(t, "in 5 hours", relativeDeadline(now.Add(5*time.Hour+10*time.Minute), now))
	assert.Equal(t, "in 1 hour", relativeDeadline(now.Add(90*time.Minute), now))
	assert.Equal(t, "very soon", relativeDeadline(now.Add(20*time.Minute), now))
}
