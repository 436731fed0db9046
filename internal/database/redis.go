package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mealbuddy/mealbuddy/internal/config"
)

// redisConnectAttempts bounds startup pings; Redis usually comes up fast.
const redisConnectAttempts = 5

// NewRedis creates a new Redis client from the given config. It parses the
// URL, connects, and pings to verify connectivity before returning.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ping := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	if err := pingWithRetry(ctx, "redis", redisConnectAttempts, ping); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
