package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/config"
)

// Limiter is the fixed-window rate limit contract. Hit returns nil when
// the request is admitted, a RateLimited error when the window is full,
// and Unavailable when the backend cannot be reached (callers fail
// closed and surface 503).
type Limiter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) error
}

var (
	mu       sync.Mutex
	instance Limiter
)

// Get returns the process-wide limiter, creating it on first use from
// the given configuration.
func Get(cfg config.RateLimitConfig) (Limiter, error) {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance, nil
	}

	switch cfg.Backend {
	case config.RateLimitRedis:
		limiter, err := NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		instance = limiter
	default:
		instance = NewMemoryLimiter()
	}
	return instance, nil
}

// Reset drops the memoized limiter and all of its windows. The next Get
// builds a fresh instance. Test harnesses rely on this between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

// MemoryLimiter is the in-process backend: a per-key deque of monotonic
// timestamps trimmed to the window on every hit.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

func (l *MemoryLimiter) Hit(_ context.Context, key string, limit int, window time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.hits[key] = kept
		return apperr.New(apperr.RateLimited, "Too many requests")
	}

	l.hits[key] = append(kept, now)
	return nil
}
