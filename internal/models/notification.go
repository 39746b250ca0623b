package models

import (
	"strings"
	"time"
)

// TierExplicit marks the reminder planned from a task's own reminder_time.
const TierExplicit = "explicit"

// Channel outcome values stored on a notification.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type Notification struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	TaskID       *string    `json:"task_id,omitempty"` // nil for ad-hoc notifications
	Kind         Kind       `json:"type"`
	Tier         string     `json:"tier,omitempty"` // only set on reminders
	Message      string     `json:"message"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	IsRead       bool       `json:"is_read"`
	CreatedAt    time.Time  `json:"created_at"`

	PushStatus  string `json:"push_status,omitempty"`
	EmailStatus string `json:"email_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

func (n *Notification) IsSent() bool {
	return n.SentAt != nil
}

// TierOffset returns the offset before the deadline encoded in the tier.
// ok is false for explicit and non-reminder notifications.
func (n *Notification) TierOffset() (time.Duration, bool) {
	if n.Tier == "" || n.Tier == TierExplicit {
		return 0, false
	}
	d, err := time.ParseDuration(n.Tier)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// OffsetTier renders an offset compactly: 24h, 4h, 30m, 1h30m.
func OffsetTier(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

// ChannelOutcome is what a dispatch attempt records for a single channel.
type ChannelOutcome struct {
	Status string
	Detail string
}

// FailureSummary joins the details of failed legs, e.g. "email: dial timeout".
func FailureSummary(push, email ChannelOutcome) string {
	var parts []string
	if push.Status == OutcomeFailed {
		parts = append(parts, "push: "+push.Detail)
	}
	if email.Status == OutcomeFailed {
		parts = append(parts, "email: "+email.Detail)
	}
	return strings.Join(parts, "; ")
}
