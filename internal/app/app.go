// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance, metrics registry) and wires the auth plugin into it.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
	"github.com/mealbuddy/mealbuddy/internal/config"
	"github.com/mealbuddy/mealbuddy/internal/mailer"
	"github.com/mealbuddy/mealbuddy/internal/middleware"
	"github.com/mealbuddy/mealbuddy/internal/plugins/auth"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool.
	DB *sql.DB

	// Redis backs OAuth state and rate limiting.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Registry collects HTTP and auth metrics served on /metrics.
	Registry *prometheus.Registry

	// Auth is the authentication service, also used by the CLI to seed the
	// first superuser.
	Auth auth.AuthService

	cookies *auth.CookieManager
}

// New creates a new App instance with the given dependencies, configures
// the Echo server with global middleware and error handling, and builds the
// auth service.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() feeds the per-IP rate limits, so only honor forwarding
	// headers from known proxies.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Echo:     e,
		Registry: reg,
		cookies:  auth.NewCookieManager(cfg.Auth.AccessTokenTTL(), cfg.SecureCookies()),
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	service, err := app.newAuthService()
	if err != nil {
		return nil, err
	}
	app.Auth = service

	return app, nil
}

// newAuthService builds the auth service and its collaborators from config.
// Google login is enabled only when both client credentials are set.
func (a *App) newAuthService() (auth.AuthService, error) {
	cfg := a.Config

	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.SecretKey, cfg.Auth.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	mail, err := mailer.New(cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("creating mailer: %w", err)
	}

	deps := auth.ServiceDeps{
		Store:          auth.NewStore(a.DB),
		Hasher:         hasher,
		Tokens:         tokens,
		Mail:           mail,
		Metrics:        auth.NewMetrics(a.Registry),
		AccessTokenTTL: cfg.Auth.AccessTokenTTL(),
		EmailTokenTTL:  cfg.Auth.EmailTokenTTL(),
		FrontendURL:    cfg.FrontendURL,
	}

	if cfg.Google.Enabled() {
		deps.Federation = auth.NewGoogleClient(auth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL(),
			Timeout:      cfg.Google.HTTPTimeout,
		})
		deps.States = auth.NewRedisStateStore(a.Redis)
	} else {
		slog.Info("google login disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	return auth.NewAuthService(deps), nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.NewHTTPMetrics(a.Registry).Middleware())

	// HSTS only makes sense when cookies are Secure, i.e. behind TLS.
	a.Echo.Use(middleware.SecurityHeaders(a.Config.SecureCookies()))

	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.CORSOrigins,
		AllowCredentials: true,
	}))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's router errors to a JSON {"detail": ...} body.
// Internal causes are logged, never rendered.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	detail := apperror.InternalMessage

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		detail = appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok && code < http.StatusInternalServerError {
			detail = msg
		} else if code != http.StatusInternalServerError {
			detail = http.StatusText(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if code == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, map[string]string{"detail": detail}); err != nil {
		slog.Warn("writing error response", slog.Any("error", err))
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting MealBuddy API",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
