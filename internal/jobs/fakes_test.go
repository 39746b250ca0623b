package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/stretchr/testify/mock"
)

type pushed struct {
	UserID  string
	Payload map[string]any
}

type fakePush struct {
	mu    sync.Mutex
	sent  []pushed
	err   error
	delay time.Duration
}

func (f *fakePush) Broadcast(ctx context.Context, userID string, payload []byte) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, pushed{UserID: userID, Payload: decoded})
	f.mu.Unlock()
	return nil
}

func (f *fakePush) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) SendReminder(ctx context.Context, address string, task *models.Task) error {
	args := m.Called(ctx, address, task)
	return args.Error(0)
}
