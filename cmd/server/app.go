package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/taskreminder/internal/config"
	"github.com/Dias221467/taskreminder/internal/database"
	"github.com/Dias221467/taskreminder/internal/jobs"
	"github.com/Dias221467/taskreminder/internal/push"
	"github.com/Dias221467/taskreminder/internal/repository"
	"github.com/Dias221467/taskreminder/internal/repository/sqlite"
	"github.com/Dias221467/taskreminder/internal/scheduler"
	"github.com/Dias221467/taskreminder/internal/services"
	"github.com/Dias221467/taskreminder/pkg/clock"
	"github.com/Dias221467/taskreminder/pkg/email"
	"github.com/Dias221467/taskreminder/pkg/logger"
)

// app is the fully wired engine shared by every command.
type app struct {
	cfg           *config.Config
	store         repository.Store
	hub           *push.Hub
	streaks       *services.StreakService
	notifications *services.NotificationService
	scheduler     *scheduler.Scheduler
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := logger.InitLogger(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		return nil, fmt.Errorf("initialising logger: %w", err)
	}
	logger.Log.Info("Logger initialized")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	clk := clock.Real{}
	sc := cfg.Scheduler

	policy := jobs.DefaultPolicy()
	policy.ExplicitWindow = sc.ExplicitEmailWindow
	policy.OffsetWindow = sc.OffsetEmailWindow

	hub := push.NewHub()
	dispatcher := jobs.NewDispatcher(jobs.DispatcherConfig{
		Notifications:  store,
		Tasks:          store,
		Users:          store,
		Push:           hub,
		Email:          email.NewSender(cfg.SMTP, cfg.AppURL, loc),
		Policy:         policy,
		Clock:          clk,
		ChannelTimeout: sc.ChannelTimeout,
	})

	streaks := services.NewStreakService(store, clk, loc, cfg.StreakResetOnRead)
	notifications := services.NewNotificationService(store, dispatcher, streaks, clk)

	sched := scheduler.New(scheduler.Config{
		Planner:             jobs.NewReminderPlanner(store, store, policy, sc.PlanningHorizon),
		Scanner:             jobs.NewDueScanner(store, sc.DueBatchSize),
		Dispatcher:          dispatcher,
		Cleaner:             notifications,
		CleanupSpec:         sc.CleanupSpec,
		CleanupAfterDays:    sc.CleanupAfterDays,
		Sweeper:             streaks,
		StreakSweepSpec:     sc.StreakSweepSpec,
		Clock:               clk,
		Location:            loc,
		TickSpec:            sc.TickSpec,
		TickTimeout:         sc.TickTimeout,
		DispatchConcurrency: sc.DispatchConcurrency,
		GuardAlertThreshold: sc.GuardAlertThreshold,
	})

	return &app{
		cfg:           cfg,
		store:         store,
		hub:           hub,
		streaks:       streaks,
		notifications: notifications,
		scheduler:     sched,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Log.WithField("path", cfg.SQLitePath).Info("Using SQLite store")
		return s, nil
	default:
		client, db, err := database.ConnectDB(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection error: %w", err)
		}
		s := repository.NewMongoStore(client, db)

		ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.EnsureIndexes(ictx); err != nil {
			s.Close()
			return nil, fmt.Errorf("creating indexes: %w", err)
		}
		return s, nil
	}
}

// Close releases the store. Push sockets are closed by serve on shutdown.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close store")
	}
}
