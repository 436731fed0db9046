package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mealbuddy/mealbuddy/internal/middleware"
	"github.com/mealbuddy/mealbuddy/internal/plugins/auth"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes: health and metrics at the
// root, and every plugin under the versioned API prefix.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check for container orchestration and load balancers.
	e.GET("/healthz", a.healthz)
	e.GET("/metrics", middleware.MetricsHandler(a.Registry))

	api := e.Group(a.Config.APIPrefix)

	limiter := middleware.NewRateLimiter(a.Redis)
	auth.RegisterRoutes(api, auth.NewHandler(a.Auth, a.cookies), a.Auth, a.cookies, limiter)
}

// healthz pings MariaDB and Redis. Any failure yields 503 with the name of
// the failing dependency.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	status := http.StatusOK

	if err := a.DB.PingContext(ctx); err != nil {
		slog.Warn("health check failed", slog.String("dependency", "database"), slog.Any("error", err))
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		slog.Warn("health check failed", slog.String("dependency", "redis"), slog.Any("error", err))
		checks["redis"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusOK {
		checks["status"] = "ok"
	} else {
		checks["status"] = "degraded"
	}
	return c.JSON(status, checks)
}
