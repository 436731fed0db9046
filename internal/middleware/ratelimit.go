// Package middleware provides HTTP middleware for MealBuddy.
// ratelimit.go implements a per-IP fixed window counter stored in Redis, so
// limits hold across every API replica. Used on the credential endpoints.
package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
)

// rateLimitKeyPrefix namespaces limiter counters in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter builds per-route limits that share one Redis client.
type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter creates a limiter backed by rdb. A nil client disables
// limiting.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{redis: rdb}
}

// Limit returns middleware that allows maxRequests per client IP within
// window for the named route. Returns 429 when exceeded. Redis failures are
// logged and the request is let through.
func (l *RateLimiter) Limit(name string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil || l.redis == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			key := rateLimitKeyPrefix + name + ":" + c.RealIP()

			// The window is opened and counted in one MULTI/EXEC, so a counter
			// can never exist without a TTL.
			var (
				incr *redis.IntCmd
				ttl  *redis.DurationCmd
			)
			_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetNX(ctx, key, 0, window)
				incr = pipe.Incr(ctx, key)
				ttl = pipe.TTL(ctx, key)
				return nil
			})
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("route", name),
					slog.Any("error", err),
				)
				return next(c)
			}
			count := incr.Val()

			if count > int64(maxRequests) {
				if remaining := ttl.Val(); remaining > 0 {
					c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(int(remaining.Round(time.Second).Seconds())))
				}
				slog.Warn("rate limit exceeded",
					slog.String("route", name),
					slog.String("remote_ip", c.RealIP()),
				)
				return apperror.NewTooManyRequests("Too many requests. Please try again later.")
			}

			return next(c)
		}
	}
}
