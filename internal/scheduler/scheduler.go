package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dias221467/taskreminder/internal/jobs"
	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/pkg/clock"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrTickInProgress is returned by Tick when the previous tick has not finished.
var ErrTickInProgress = errors.New("tick already in progress")

const (
	DefaultTickSpec     = "@every 1m"
	DefaultTickTimeout  = 50 * time.Second
	defaultConcurrency  = 8
	defaultAlertMissing = 3
)

type Planner interface {
	Reconcile(ctx context.Context, now time.Time) (int, error)
}

type Scanner interface {
	Due(ctx context.Context, now time.Time) ([]models.Notification, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) (jobs.Outcome, error)
}

type Cleaner interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

type StreakSweeper interface {
	ResetStale(ctx context.Context) (int, error)
}

type Config struct {
	Planner    Planner
	Scanner    Scanner
	Dispatcher Dispatcher

	// Optional nightly maintenance. A nil collaborator or empty schedule disables the job.
	Cleaner          Cleaner
	CleanupSpec      string
	CleanupAfterDays int
	Sweeper          StreakSweeper
	StreakSweepSpec  string

	Clock               clock.Clock
	Location            *time.Location
	TickSpec            string
	TickTimeout         time.Duration
	DispatchConcurrency int
	GuardAlertThreshold int
}

// TickReport summarises one pass of the reminder pipeline.
type TickReport struct {
	Planned        int           `json:"planned"`
	Due            int           `json:"due"`
	Dispatched     int           `json:"dispatched"`
	AlreadyClaimed int           `json:"already_claimed"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"duration"`
}

// Scheduler drives the planner, scanner and dispatcher on a cron cadence.
// At most one tick runs at a time.
type Scheduler struct {
	cfg  Config
	cron *cron.Cron

	guard  sync.Mutex
	misses atomic.Int32

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TickSpec == "" {
		cfg.TickSpec = DefaultTickSpec
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = DefaultTickTimeout
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = defaultConcurrency
	}
	if cfg.GuardAlertThreshold <= 0 {
		cfg.GuardAlertThreshold = defaultAlertMissing
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start registers the jobs and starts the cron. It does not block.
func (s *Scheduler) Start() error {
	l := cronLogger{entry: logger.Component("scheduler")}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l)),
	)
	// Ticks go through the guard in Tick; maintenance jobs skip while still running.
	skip := cron.NewChain(cron.SkipIfStillRunning(l))

	if _, err := c.AddFunc(s.cfg.TickSpec, s.runTick); err != nil {
		return fmt.Errorf("tick schedule %q: %w", s.cfg.TickSpec, err)
	}
	if s.cfg.Cleaner != nil && s.cfg.CleanupSpec != "" {
		if _, err := c.AddJob(s.cfg.CleanupSpec, skip.Then(cron.FuncJob(s.runCleanup))); err != nil {
			return fmt.Errorf("cleanup schedule %q: %w", s.cfg.CleanupSpec, err)
		}
	}
	if s.cfg.Sweeper != nil && s.cfg.StreakSweepSpec != "" {
		if _, err := c.AddJob(s.cfg.StreakSweepSpec, skip.Then(cron.FuncJob(s.runSweep))); err != nil {
			return fmt.Errorf("streak sweep schedule %q: %w", s.cfg.StreakSweepSpec, err)
		}
	}

	s.cron = c
	c.Start()
	logger.Log.WithFields(logrus.Fields{
		"tick":     s.cfg.TickSpec,
		"cleanup":  s.cfg.CleanupSpec,
		"sweep":    s.cfg.StreakSweepSpec,
		"location": s.cfg.Location.String(),
	}).Info("Scheduler started")
	return nil
}

// Stop stops the cron and waits for running jobs, bounded by ctx. Jobs still
// running when ctx ends are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()
	if s.cron == nil {
		return nil
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		logger.Log.Warn("Scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}

// Misses returns the number of consecutive ticks that found the guard held.
func (s *Scheduler) Misses() int {
	return int(s.misses.Load())
}

// Tick runs reconcile, scan and dispatch once. Per-notification failures are
// counted in the report; only a failed scan is returned as an error.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	if !s.guard.TryLock() {
		missed := s.misses.Add(1)
		entry := logger.Log.WithField("consecutive_misses", missed)
		if int(missed) >= s.cfg.GuardAlertThreshold {
			entry.Error("Scheduler tick still running, reminders are falling behind")
		} else {
			entry.Warn("Skipping tick, previous tick still running")
		}
		return TickReport{}, ErrTickInProgress
	}
	defer s.guard.Unlock()
	s.misses.Store(0)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	started := time.Now()
	now := s.cfg.Clock.Now()
	var report TickReport

	planned, err := s.cfg.Planner.Reconcile(ctx, now)
	if err != nil {
		// Retried next tick; already planned reminders can still go out.
		logger.Log.WithError(err).Error("Reminder planning failed")
	}
	report.Planned = planned

	due, err := s.cfg.Scanner.Due(ctx, now)
	if err != nil {
		report.Duration = time.Since(started)
		return report, fmt.Errorf("scanning due notifications: %w", err)
	}
	report.Due = len(due)

	var dispatched, lost, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DispatchConcurrency)
	for _, n := range due {
		g.Go(func() error {
			out, err := s.cfg.Dispatcher.Dispatch(gctx, n)
			switch {
			case err != nil:
				failed.Add(1)
				logger.Log.WithError(err).WithField("notification_id", n.ID).Error("Dispatch failed")
			case !out.Claimed:
				lost.Add(1)
			default:
				dispatched.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Dispatched = int(dispatched.Load())
	report.AlreadyClaimed = int(lost.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(started)

	logger.Log.WithFields(logrus.Fields{
		"planned":         report.Planned,
		"due":             report.Due,
		"dispatched":      report.Dispatched,
		"already_claimed": report.AlreadyClaimed,
		"failed":          report.Failed,
		"duration_ms":     report.Duration.Milliseconds(),
	}).Info("Scheduler tick finished")
	return report, nil
}

func (s *Scheduler) runTick() {
	if _, err := s.Tick(s.baseCtx); err != nil && !errors.Is(err, ErrTickInProgress) {
		logger.Log.WithError(err).Error("Scheduler tick failed")
	}
}

func (s *Scheduler) runCleanup() {
	if _, err := s.cfg.Cleaner.CleanupOlderThan(s.baseCtx, s.cfg.CleanupAfterDays); err != nil {
		logger.Log.WithError(err).Error("Notification cleanup failed")
	}
}

func (s *Scheduler) runSweep() {
	reset, err := s.cfg.Sweeper.ResetStale(s.baseCtx)
	if err != nil {
		logger.Log.WithError(err).Error("Streak sweep failed")
		return
	}
	logger.Log.WithField("reset", reset).Info("Streak sweep finished")
}

// cronLogger routes robfig/cron's own logging into logrus.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	return fields
}
