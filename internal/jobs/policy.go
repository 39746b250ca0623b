package jobs

import (
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
)

// ReminderPolicy decides when reminders fire and when email may go out.
type ReminderPolicy struct {
	Offsets        map[models.Priority][]time.Duration
	DefaultOffsets []time.Duration

	// Email goes out only if the reminder is dispatched within these
	// windows of its nominal trigger time.
	ExplicitWindow time.Duration
	OffsetWindow   time.Duration
}

func DefaultPolicy() ReminderPolicy {
	return ReminderPolicy{
		Offsets: map[models.Priority][]time.Duration{
			models.PriorityHigh:   {24 * time.Hour, 4 * time.Hour, 30 * time.Minute},
			models.PriorityMedium: {24 * time.Hour, 2 * time.Hour},
			models.PriorityLow:    {4 * time.Hour},
		},
		DefaultOffsets: []time.Duration{2 * time.Hour},
		ExplicitWindow: time.Minute,
		OffsetWindow:   15 * time.Minute,
	}
}

// OffsetsFor returns the ladder for p; unknown priorities get the default.
func (p ReminderPolicy) OffsetsFor(priority models.Priority) []time.Duration {
	if offsets, ok := p.Offsets[priority]; ok {
		return offsets
	}
	return p.DefaultOffsets
}

// EmailWindowOpen reports whether a reminder dispatched at now is still close
// enough to the time it was meant for. The task is re-read at dispatch, so a
// moved deadline or reminder_time closes the window.
func (p ReminderPolicy) EmailWindowOpen(n *models.Notification, task *models.Task, now time.Time) bool {
	if n.Tier == models.TierExplicit {
		if task.ReminderTime == nil {
			return false
		}
		return absDuration(now.Sub(*task.ReminderTime)) <= p.ExplicitWindow
	}

	offset, ok := n.TierOffset()
	if !ok || task.Deadline == nil {
		return false
	}
	return absDuration(now.Sub(task.Deadline.Add(-offset))) <= p.OffsetWindow
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
