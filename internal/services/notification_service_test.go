package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dias221467/taskreminder/internal/jobs"
	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/internal/repository/sqlite"
	"github.com/Dias221467/taskreminder/internal/testutil"
	"github.com/Dias221467/taskreminder/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, n models.Notification) (jobs.Outcome, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(jobs.Outcome), args.Error(1)
}

type nopPush struct{}

func (nopPush) Broadcast(context.Context, string, []byte) error { return nil }

func newNotificationService(t *testing.T) (*NotificationService, *sqlite.Store, *clock.Fake) {
	t.Helper()
	s := testutil.NewTestStore(t)
	clk := clock.NewFake(dayD)
	d := jobs.NewDispatcher(jobs.DispatcherConfig{
		Notifications: s,
		Tasks:         s,
		Users:         s,
		Push:          nopPush{},
		Policy:        jobs.DefaultPolicy(),
		Clock:         clk,
	})
	streaks := NewStreakService(s, clk, time.UTC, true)
	return NewNotificationService(s, d, streaks, clk), s, clk
}

func TestCreateInstantNotification(t *testing.T) {
	svc, store, _ := newNotificationService(t)
	ctx := context.Background()

	n, err := svc.CreateInstantNotification(ctx, "u1", nil, "Well done", models.KindSuccess)
	require.NoError(t, err)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, models.OutcomeSent, n.PushStatus)
	assert.Equal(t, models.OutcomeSkipped, n.EmailStatus)

	stored, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.SentAt)

	// Not picked up again by the due scan.
	due, err := store.ListDue(ctx, dayD.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	streak, err := svc.GetStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
}

func TestCreateInstantNotificationValidates(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	_, err := svc.CreateInstantNotification(context.Background(), "u1", nil, "  ", models.KindInfo)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestCreateInstantNotificationDispatchError(t *testing.T) {
	s := testutil.NewTestStore(t)
	d := &mockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.Anything).Return(jobs.Outcome{}, errors.New("store gone"))
	svc := NewNotificationService(s, d, nil, clock.NewFake(dayD))

	n, err := svc.CreateInstantNotification(context.Background(), "u1", nil, "hi", models.KindInfo)
	require.Error(t, err)
	require.NotNil(t, n)
	assert.NotEmpty(t, n.ID)
	d.AssertExpectations(t)
}

func TestPassthroughs(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	ctx := context.Background()

	var ids []string
	for _, msg := range []string{"a", "b", "c"} {
		n, err := svc.CreateInstantNotification(ctx, "u1", nil, msg, models.KindInfo)
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	count, err := svc.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, svc.MarkRead(ctx, ids[0]))
	unread, err := svc.ListForUser(ctx, "u1", repository.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	marked, err := svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	deleted, err := svc.Delete(ctx, ids[2])
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := svc.GetNotification(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}

func TestCleanupOlderThan(t *testing.T) {
	svc, _, clk := newNotificationService(t)
	ctx := context.Background()

	old, err := svc.CreateInstantNotification(ctx, "u1", nil, "old", models.KindInfo)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, old.ID))
	_, err = svc.CreateInstantNotification(ctx, "u1", nil, "old unread", models.KindInfo)
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)
	fresh, err := svc.CreateInstantNotification(ctx, "u1", nil, "fresh", models.KindInfo)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, fresh.ID))

	removed, err := svc.CleanupOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := svc.ListForUser(ctx, "u1", repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}
