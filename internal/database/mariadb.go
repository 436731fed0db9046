// Package database provides connection setup for MariaDB and Redis.
// Both connections are created once at startup and shared across the
// application via dependency injection. This package owns the connection
// lifecycle (open, configure pool, ping, close) and the transaction helper
// repositories run inside.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/mealbuddy/mealbuddy/internal/config"
)

// pingTimeout bounds a single connectivity check.
const pingTimeout = 5 * time.Second

// Startup retry intervals. Variables so tests can shrink them.
var (
	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
)

// NewMariaDB creates a new MariaDB connection pool configured with the
// settings from the provided config. It pings the database to verify
// connectivity before returning.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// MariaDB may still be starting up when the app container launches.
	if err := pingWithRetry(ctx, "mariadb", cfg.ConnectAttempts, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// pingWithRetry calls ping with exponential backoff until it succeeds or
// maxTries attempts have failed.
func pingWithRetry(ctx context.Context, name string, maxTries uint, ping func(context.Context) error) error {
	if maxTries == 0 {
		maxTries = 1
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = retryInitialInterval
	expBackoff.MaxInterval = retryMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return struct{}{}, ping(pingCtx)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn(name+" not ready, retrying",
				slog.Duration("backoff", wait),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("pinging %s after %d attempts: %w", name, maxTries, err)
	}
	return nil
}
