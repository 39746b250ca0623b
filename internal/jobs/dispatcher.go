package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/pkg/clock"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Outcome is what happened to one dispatch attempt.
type Outcome struct {
	Claimed bool
	Push    models.ChannelOutcome
	Email   models.ChannelOutcome
}

type DispatcherConfig struct {
	Notifications  repository.NotificationStore
	Tasks          repository.TaskStore
	Users          repository.UserDirectory
	Push           PushChannel
	Email          EmailChannel
	Policy         ReminderPolicy
	Clock          clock.Clock
	ChannelTimeout time.Duration
}

// Dispatcher claims a notification and then delivers it over push and email.
// Claim precedes delivery: a crash mid-send drops the delivery, it never repeats it.
type Dispatcher struct {
	notifications  repository.NotificationStore
	tasks          repository.TaskStore
	users          repository.UserDirectory
	push           PushChannel
	email          EmailChannel
	policy         ReminderPolicy
	clock          clock.Clock
	channelTimeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 10 * time.Second
	}
	return &Dispatcher{
		notifications:  cfg.Notifications,
		tasks:          cfg.Tasks,
		users:          cfg.Users,
		push:           cfg.Push,
		email:          cfg.Email,
		policy:         cfg.Policy,
		clock:          cfg.Clock,
		channelTimeout: cfg.ChannelTimeout,
	}
}

type pushMessage struct {
	Type string      `json:"type"`
	Data pushPayload `json:"data"`
}

type pushPayload struct {
	ID        string      `json:"id"`
	Message   string      `json:"message"`
	Type      models.Kind `json:"type"`
	TaskID    *string     `json:"task_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// Dispatch delivers n if this caller wins the claim. A lost claim returns
// Outcome{Claimed: false} and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) (Outcome, error) {
	now := d.clock.Now()

	won, err := d.notifications.Claim(ctx, n.ID, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("claiming %s: %w", n.ID, err)
	}
	if !won {
		logger.Log.WithField("notification_id", n.ID).Debug("Notification already claimed")
		return Outcome{}, nil
	}

	task, taskNote := d.resolveTask(ctx, &n)
	out := Outcome{Claimed: true}

	var g errgroup.Group
	g.Go(func() error {
		out.Push = d.sendPush(ctx, &n, now)
		return nil
	})
	g.Go(func() error {
		out.Email = d.sendEmail(ctx, &n, task, taskNote, now)
		return nil
	})
	_ = g.Wait()

	log := logger.Log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"type":            n.Kind.String(),
		"tier":            n.Tier,
		"push":            out.Push.Status,
		"email":           out.Email.Status,
	})
	if out.Push.Status == models.OutcomeFailed || out.Email.Status == models.OutcomeFailed {
		log.WithField("error", models.FailureSummary(out.Push, out.Email)).Warn("Notification dispatched with failures")
	} else {
		log.Info("Notification dispatched")
	}

	if err := d.notifications.RecordOutcome(ctx, n.ID, out.Push, out.Email); err != nil {
		return out, fmt.Errorf("recording outcome of %s: %w", n.ID, err)
	}
	return out, nil
}

// resolveTask returns the task behind n, or nil and the reason it is missing.
func (d *Dispatcher) resolveTask(ctx context.Context, n *models.Notification) (*models.Task, string) {
	if n.TaskID == nil {
		return nil, "no task"
	}
	task, err := d.tasks.GetTask(ctx, *n.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "task deleted"
	}
	if err != nil {
		logger.Log.WithError(err).WithField("task_id", *n.TaskID).Warn("Task lookup failed during dispatch")
		return nil, "task lookup failed"
	}
	return task, ""
}

func (d *Dispatcher) sendPush(ctx context.Context, n *models.Notification, now time.Time) models.ChannelOutcome {
	payload, err := json.Marshal(pushMessage{
		Type: "notification",
		Data: pushPayload{
			ID:        n.ID,
			Message:   n.Message,
			Type:      n.Kind,
			TaskID:    n.TaskID,
			Timestamp: now.UTC(),
		},
	})
	if err != nil {
		return models.ChannelOutcome{Status: models.OutcomeFailed, Detail: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()
	if err := d.push.Broadcast(ctx, n.UserID, payload); err != nil {
		return models.ChannelOutcome{Status: models.OutcomeFailed, Detail: err.Error()}
	}
	return models.ChannelOutcome{Status: models.OutcomeSent}
}

func (d *Dispatcher) sendEmail(ctx context.Context, n *models.Notification, task *models.Task, taskNote string, now time.Time) models.ChannelOutcome {
	skip := func(reason string) models.ChannelOutcome {
		return models.ChannelOutcome{Status: models.OutcomeSkipped, Detail: reason}
	}

	switch {
	case !n.Kind.SendsEmail():
		return skip("no email for " + n.Kind.String())
	case task == nil:
		return skip(taskNote)
	case task.IsCompleted():
		return skip("task completed")
	case n.Tier == "":
		return skip("no reminder tier")
	case !d.policy.EmailWindowOpen(n, task, now):
		return skip("outside email window")
	}

	ctx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()

	address, err := d.users.GetEmail(ctx, n.UserID)
	if err != nil {
		return models.ChannelOutcome{Status: models.OutcomeFailed, Detail: err.Error()}
	}
	if address == "" {
		return skip("no email address")
	}

	if err := d.email.SendReminder(ctx, address, task); err != nil {
		return models.ChannelOutcome{Status: models.OutcomeFailed, Detail: err.Error()}
	}
	return models.ChannelOutcome{Status: models.OutcomeSent}
}
