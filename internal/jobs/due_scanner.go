package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
)

// DueScanner selects unsent notifications whose time has come.
type DueScanner struct {
	notifications repository.NotificationStore
	batchSize     int
}

func NewDueScanner(notifications repository.NotificationStore, batchSize int) *DueScanner {
	return &DueScanner{notifications: notifications, batchSize: batchSize}
}

// Due returns at most batchSize unsent notifications scheduled at or before
// now, oldest first. Anything beyond the batch is picked up next tick.
func (s *DueScanner) Due(ctx context.Context, now time.Time) ([]models.Notification, error) {
	due, err := s.notifications.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("scanning due notifications: %w", err)
	}
	return due, nil
}
