package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mealbuddy/mealbuddy/internal/app"
	"github.com/mealbuddy/mealbuddy/internal/database"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting MealBuddy",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.Bool("debug", cfg.Debug),
	)

	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to MariaDB: %w", err)
	}
	defer db.Close()
	slog.Info("connected to MariaDB")

	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}
	defer rdb.Close()
	slog.Info("connected to Redis")

	if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
		return err
	}

	application, err := app.New(cfg, db, rdb)
	if err != nil {
		return err
	}
	application.RegisterRoutes()

	if email, password := cfg.Auth.FirstSuperuserEmail, cfg.Auth.FirstSuperuserPassword; email != "" && password != "" {
		user, created, err := application.Auth.EnsureSuperuser(ctx, email, password)
		if err != nil {
			return fmt.Errorf("creating first superuser: %w", err)
		}
		if created {
			slog.Info("first superuser created", slog.String("user_id", user.ID), slog.String("email", user.Email))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
