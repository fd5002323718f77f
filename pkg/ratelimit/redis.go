package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aisu-run/aisu-core/pkg/apperr"
)

// RedisLimiter is the shared-counter backend: one counter per key,
// created with a TTL on the first hit of each window. Multiple control
// plane replicas can share it.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter connects to the shared counter store
func NewRedisLimiter(url string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisLimiter{client: redis.NewClient(opts)}, nil
}

func (l *RedisLimiter) Hit(ctx context.Context, key string, limit int, window time.Duration) error {
	counterKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "Rate limit backend unavailable", err)
	}
	if count == 1 {
		// first hit of the window sets its expiry
		if err := l.client.Expire(ctx, counterKey, window).Err(); err != nil {
			return apperr.Wrap(apperr.Unavailable, "Rate limit backend unavailable", err)
		}
	}

	if count > int64(limit) {
		return apperr.New(apperr.RateLimited, "Too many requests")
	}
	return nil
}

// Close releases the redis connection
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
