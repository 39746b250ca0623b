package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dias221467/taskreminder/internal/handlers"
	"github.com/Dias221467/taskreminder/pkg/logger"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, push socket and reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running ticks")
	return cmd
}

func runServe(parent context.Context, withScheduler bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set to serve the API")
	}

	router := handlers.NewRouter(handlers.Handlers{
		Notifications: handlers.NewNotificationHandler(a.notifications),
		Streaks:       handlers.NewStreakHandler(a.streaks),
		Push:          handlers.NewPushHandler(a.hub),
		Health:        handlers.NewHealthHandler(a.store),
	}, a.cfg.JWTSecret)

	c := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withScheduler {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Infof("Server running on port %s", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Push sockets are hijacked and not covered by Shutdown.
		a.hub.Close()
		err := srv.Shutdown(shutdownCtx)
		if withScheduler {
			if serr := a.scheduler.Stop(shutdownCtx); serr != nil && err == nil {
				err = serr
			}
		}
		return err
	})
	return g.Wait()
}
