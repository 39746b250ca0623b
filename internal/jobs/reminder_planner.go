package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Candidate is one reminder the planner would like to exist.
type Candidate struct {
	Tier string
	At   time.Time
}

type ReminderPlanner struct {
	tasks         repository.TaskStore
	notifications repository.NotificationStore
	policy        ReminderPolicy
	horizon       time.Duration
}

// NewReminderPlanner creates a planner that looks horizon ahead on every reconcile.
func NewReminderPlanner(tasks repository.TaskStore, notifications repository.NotificationStore, policy ReminderPolicy, horizon time.Duration) *ReminderPlanner {
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	return &ReminderPlanner{
		tasks:         tasks,
		notifications: notifications,
		policy:        policy,
		horizon:       horizon,
	}
}

// Candidates lists the reminder times for task that are strictly after now.
func (p *ReminderPlanner) Candidates(task *models.Task, now time.Time) []Candidate {
	if task.Deadline == nil || task.IsCompleted() {
		return nil
	}

	var out []Candidate
	seen := make(map[string]bool)
	for _, offset := range p.policy.OffsetsFor(task.Priority) {
		at := task.Deadline.Add(-offset)
		tier := models.OffsetTier(offset)
		if !at.After(now) || seen[tier] {
			continue
		}
		seen[tier] = true
		out = append(out, Candidate{Tier: tier, At: at})
	}

	if task.ReminderTime != nil && task.ReminderTime.After(now) {
		out = append(out, Candidate{Tier: models.TierExplicit, At: *task.ReminderTime})
	}
	return out
}

// Plan persists the candidates whose tier has no unsent reminder yet and
// returns what was written.
func (p *ReminderPlanner) Plan(ctx context.Context, task *models.Task, now time.Time) ([]models.Notification, error) {
	return p.plan(ctx, task, now, p.Candidates(task, now))
}

func (p *ReminderPlanner) plan(ctx context.Context, task *models.Task, now time.Time, candidates []Candidate) ([]models.Notification, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	pending, err := p.notifications.PendingReminderTiers(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("loading pending reminders for task %s: %w", task.ID, err)
	}

	message := fmt.Sprintf(`Reminder: "%s" is due %s`, task.Title, relativeDeadline(*task.Deadline, now))
	var reminders []models.Notification
	for _, c := range candidates {
		if pending[c.Tier] {
			continue
		}
		taskID := task.ID
		reminders = append(reminders, models.Notification{
			UserID:       task.UserID,
			TaskID:       &taskID,
			Kind:         models.KindReminder,
			Tier:         c.Tier,
			Message:      message,
			ScheduledFor: c.At,
			CreatedAt:    now,
		})
	}
	if len(reminders) == 0 {
		return nil, nil
	}

	written, err := p.notifications.CreateReminders(ctx, reminders)
	if err != nil {
		return nil, fmt.Errorf("saving reminders for task %s: %w", task.ID, err)
	}
	return written, nil
}

// Reconcile plans every active task whose deadline falls inside the horizon,
// plus the explicit reminder of tasks due later whose reminder_time falls
// inside it. A failing task is skipped; a failing task lookup skips the pass.
func (p *ReminderPlanner) Reconcile(ctx context.Context, now time.Time) (int, error) {
	tasks, err := p.tasks.ListActiveTasksWithDeadlineBetween(ctx, now, now.Add(p.horizon))
	if err != nil {
		logger.Log.WithError(err).Warn("Task lookup failed, skipping planning this tick")
		return 0, fmt.Errorf("listing upcoming tasks: %w", err)
	}
	early, err := p.tasks.ListActiveTasksWithReminderBetween(ctx, now, now.Add(p.horizon))
	if err != nil {
		logger.Log.WithError(err).Warn("Task lookup failed, skipping planning this tick")
		return 0, fmt.Errorf("listing upcoming reminders: %w", err)
	}

	created := 0
	inHorizon := make(map[string]bool, len(tasks))
	for i := range tasks {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		inHorizon[tasks[i].ID] = true
		written, err := p.Plan(ctx, &tasks[i], now)
		if err != nil {
			logger.Log.WithError(err).WithField("task_id", tasks[i].ID).Error("Failed to plan reminders")
			continue
		}
		created += len(written)
	}

	for i := range early {
		if inHorizon[early[i].ID] {
			continue
		}
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		written, err := p.plan(ctx, &early[i], now, explicitOnly(p.Candidates(&early[i], now)))
		if err != nil {
			logger.Log.WithError(err).WithField("task_id", early[i].ID).Error("Failed to plan explicit reminder")
			continue
		}
		created += len(written)
	}

	if created > 0 {
		logger.Log.WithFields(logrus.Fields{
			"tasks":     len(tasks),
			"reminders": created,
		}).Info("Reminders planned")
	}
	return created, nil
}

func explicitOnly(candidates []Candidate) []Candidate {
	for _, c := range candidates {
		if c.Tier == models.TierExplicit {
			return []Candidate{c}
		}
	}
	return nil
}

// relativeDeadline renders the deadline as seen from now: "in 3 days",
// "tomorrow", "in 5 hours", "in 1 hour" or "very soon".
func relativeDeadline(deadline, now time.Time) string {
	hours := int(deadline.Sub(now) / time.Hour)
	days := hours / 24

	switch {
	case days > 1:
		return fmt.Sprintf("in %d days", days)
	case days == 1:
		return "tomorrow"
	case hours > 1:
		return fmt.Sprintf("in %d hours", hours)
	case hours == 1:
		return "in 1 hour"
	default:
		return "very soon"
	}
}
