package jobs

import (
	"context"

	"github.com/Dias221467/taskreminder/internal/models"
)

// PushChannel delivers a payload to a user's live connections. Having none
// is not an error.
type PushChannel interface {
	Broadcast(ctx context.Context, userID string, payload []byte) error
}

type EmailChannel interface {
	SendReminder(ctx context.Context, address string, task *models.Task) error
}
