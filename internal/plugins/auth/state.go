package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// oauthStateKeyPrefix is the Redis key prefix for pending OAuth logins.
const oauthStateKeyPrefix = "oauth_state:"

// oauthStateTTL is how long a user has to complete the Google consent screen.
const oauthStateTTL = 10 * time.Minute

// StateStore issues and consumes one-shot OAuth state values that bind a
// callback to a login this server started.
type StateStore interface {
	Issue(ctx context.Context) (string, error)
	Consume(ctx context.Context, state string) (bool, error)
}

// redisStateStore keeps pending states in Redis with a TTL.
type redisStateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStateStore creates a StateStore backed by Redis.
func NewRedisStateStore(rdb *redis.Client) StateStore {
	return &redisStateStore{redis: rdb, ttl: oauthStateTTL}
}

// Issue stores a new random state and returns it.
func (s *redisStateStore) Issue(ctx context.Context) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	if err := s.redis.Set(ctx, oauthStateKeyPrefix+state, "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing oauth state: %w", err)
	}
	return state, nil
}

// Consume deletes state and reports whether it was pending. A state can be
// consumed at most once.
func (s *redisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}

	err := s.redis.GetDel(ctx, oauthStateKeyPrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consuming oauth state: %w", err)
	}
	return true, nil
}
