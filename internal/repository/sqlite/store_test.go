package sqlite_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/internal/testutil"
)

var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func reminder(taskID, tier string, at time.Time) models.Notification {
	return models.Notification{
		UserID:       "u1",
		TaskID:       testutil.Ptr(taskID),
		Kind:         models.KindReminder,
		Tier:         tier,
		Message:      "Reminder",
		ScheduledFor: at,
	}
}

func TestCreateRemindersDedup(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	written, err := s.CreateReminders(ctx, []models.Notification{
		reminder("t1", "24h", base.Add(time.Hour)),
		reminder("t1", "4h", base.Add(2*time.Hour)),
	})
	require.NoError(t, err)
	assert.Len(t, written, 2)
	for _, n := range written {
		assert.NotEmpty(t, n.ID)
	}

	// Same (task, tier) while the first is still unsent is silently dropped.
	written, err = s.CreateReminders(ctx, []models.Notification{
		reminder("t1", "24h", base.Add(time.Hour)),
		reminder("t1", "30m", base.Add(3*time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, "30m", written[0].Tier)

	tiers, err := s.PendingReminderTiers(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"24h": true, "4h": true, "30m": true}, tiers)
}

func TestSentReminderFreesTier(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	written, err := s.CreateReminders(ctx, []models.Notification{reminder("t1", "explicit", base)})
	require.NoError(t, err)
	require.Len(t, written, 1)

	won, err := s.Claim(ctx, written[0].ID, base)
	require.NoError(t, err)
	require.True(t, won)

	tiers, err := s.PendingReminderTiers(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, tiers)

	written, err = s.CreateReminders(ctx, []models.Notification{reminder("t1", "explicit", base.Add(time.Hour))})
	require.NoError(t, err)
	assert.Len(t, written, 1)
}

func TestListDueOrderAndBounds(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.CreateReminders(ctx, []models.Notification{
		reminder("t1", "24h", base.Add(-time.Minute)),
		reminder("t2", "24h", base.Add(-time.Hour)),
		reminder("t3", "24h", base),
		reminder("t4", "24h", base.Add(time.Second)),
	})
	require.NoError(t, err)

	due, err := s.ListDue(ctx, base, 0)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "t2", *due[0].TaskID)
	assert.Equal(t, "t1", *due[1].TaskID)
	assert.Equal(t, "t3", *due[2].TaskID)

	due, err = s.ListDue(ctx, base, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	won, err := s.Claim(ctx, due[0].ID, base)
	require.NoError(t, err)
	require.True(t, won)

	due, err = s.ListDue(ctx, base, 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestClaimHasSingleWinner(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n := models.Notification{UserID: "u1", Kind: models.KindInfo, Message: "hi", ScheduledFor: base}
	require.NoError(t, s.Create(ctx, &n))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := s.Claim(ctx, n.ID, base.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	got, err := s.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SentAt)

	// sent_at is never overwritten.
	won, err := s.Claim(ctx, n.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)
	again, err := s.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.SentAt.Equal(*again.SentAt))
}

func TestRecordOutcome(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n := models.Notification{UserID: "u1", Kind: models.KindReminder, Message: "x", ScheduledFor: base}
	require.NoError(t, s.Create(ctx, &n))
	require.NoError(t, s.RecordOutcome(ctx, n.ID,
		models.ChannelOutcome{Status: models.OutcomeSent},
		models.ChannelOutcome{Status: models.OutcomeFailed, Detail: "dial timeout"}))

	got, err := s.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSent, got.PushStatus)
	assert.Equal(t, models.OutcomeFailed, got.EmailStatus)
	assert.Equal(t, "email: dial timeout", got.LastError)
	assert.Nil(t, got.TaskID)
	assert.Equal(t, models.KindReminder, got.Kind)
}

func TestUserPassthroughs(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i, kind := range []models.Kind{models.KindInfo, models.KindWarning, models.KindInfo} {
		n := models.Notification{
			UserID:       "u1",
			Kind:         kind,
			Message:      "m",
			ScheduledFor: base,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.Create(ctx, &n))
	}
	other := models.Notification{UserID: "u2", Kind: models.KindInfo, Message: "m", ScheduledFor: base}
	require.NoError(t, s.Create(ctx, &other))

	all, err := s.ListForUser(ctx, "u1", repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	info := models.KindInfo
	infos, err := s.ListForUser(ctx, "u1", repository.ListFilter{Kind: &info, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	require.NoError(t, s.MarkRead(ctx, all[0].ID))
	assert.ErrorIs(t, s.MarkRead(ctx, "missing"), repository.ErrNotFound)

	count, err := s.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	unread, err := s.ListForUser(ctx, "u1", repository.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	marked, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	deleted, err := s.Delete(ctx, all[1].ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, all[1].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetByID(ctx, all[1].ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteReadBefore(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	old := base.AddDate(0, 0, -40)
	rows := []models.Notification{
		{UserID: "u1", Kind: models.KindInfo, Message: "old read", ScheduledFor: old, CreatedAt: old, IsRead: true},
		{UserID: "u1", Kind: models.KindInfo, Message: "old unread", ScheduledFor: old, CreatedAt: old},
		{UserID: "u1", Kind: models.KindInfo, Message: "new read", ScheduledFor: base, CreatedAt: base, IsRead: true},
	}
	for i := range rows {
		require.NoError(t, s.Create(ctx, &rows[i]))
	}

	removed, err := s.DeleteReadBefore(ctx, base.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := s.ListForUser(ctx, "u1", repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestTasksAndUsers(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	soon := testutil.SeedTask(t, s, "u1", "Soon", models.PriorityHigh, base.Add(24*time.Hour))
	testutil.SeedTask(t, s, "u1", "Later", models.PriorityLow, base.Add(10*24*time.Hour))
	done := testutil.SeedTask(t, s, "u1", "Done", models.PriorityLow, base.Add(time.Hour))
	done.Status = models.StatusCompleted
	require.NoError(t, s.SaveTask(ctx, done))
	require.NoError(t, s.SaveTask(ctx, &models.Task{UserID: "u1", Title: "No deadline", Status: models.StatusPending}))

	tasks, err := s.ListActiveTasksWithDeadlineBetween(ctx, base, base.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, soon.ID, tasks[0].ID)
	assert.True(t, tasks[0].Deadline.Equal(*soon.Deadline))

	withReminder := tasks[0]
	withReminder.ReminderTime = testutil.Ptr(base.Add(2 * time.Hour))
	require.NoError(t, s.SaveTask(ctx, &withReminder))
	reminding, err := s.ListActiveTasksWithReminderBetween(ctx, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, reminding, 1)
	assert.Equal(t, soon.ID, reminding[0].ID)

	_, err = s.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.SaveUser(ctx, "u1", "ann", "ann@example.com"))
	email, err := s.GetEmail(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", email)

	email, err = s.GetEmail(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestStreakPersistence(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetStreak(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	day := models.DayOf(base, time.UTC)
	require.NoError(t, s.SaveStreak(ctx, &models.UserStreakState{
		UserID: "u1", CurrentStreak: 3, LongestStreak: 5, LastActivityDate: &day, TotalDaysActive: 9,
	}))
	old := day.AddDate(0, 0, -4)
	require.NoError(t, s.SaveStreak(ctx, &models.UserStreakState{
		UserID: "u2", CurrentStreak: 1, LongestStreak: 1, LastActivityDate: &old, TotalDaysActive: 1,
	}))

	got, err := s.GetStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStreak)
	assert.True(t, day.Equal(*got.LastActivityDate))

	stale, err := s.ListStale(ctx, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, stale)

	require.NoError(t, s.ResetCurrent(ctx, "u2"))
	got, err = s.GetStreak(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStreak)
	assert.Equal(t, 1, got.TotalDaysActive)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, 3, stats.MaxCurrentStreak)
	assert.Equal(t, 5, stats.MaxLongestStreak)
	assert.InDelta(t, 1.5, stats.AvgCurrentStreak, 0.001)
	assert.InDelta(t, 5.0, stats.AvgDaysActive, 0.001)
}
