package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one CheckLimit call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

const defaultPrefix = "goidentity:rl:"

// Limiter enforces fixed-window limits with shared Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client. An empty prefix
// uses "goidentity:rl:".
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// CheckLimit records one hit on key and reports whether it fits in the window.
func (l *Limiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{}, ErrInvalidLimit
	}

	full := l.prefix + key
	count, err := l.incrementWithTTL(ctx, full, window)
	if err != nil {
		return Decision{}, err
	}
	if count <= int64(limit) {
		return Decision{Allowed: true, Remaining: limit - int(count)}, nil
	}

	ttl, err := l.redis.PTTL(ctx, full).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		ttl = window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a single-process fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemory returns an empty MemoryLimiter. A nil now uses time.Now.
func NewMemory(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{windows: make(map[string]*window), now: now}
}

// CheckLimit implements the same contract as Limiter.CheckLimit.
func (l *MemoryLimiter) CheckLimit(_ context.Context, key string, limit int, win time.Duration) (Decision, error) {
	if limit <= 0 || win <= 0 {
		return Decision{}, ErrInvalidLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		l.windows[key] = w
	}
	w.count++
	if w.count <= limit {
		return Decision{Allowed: true, Remaining: limit - w.count}, nil
	}
	return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
}

// Reset clears the counter for key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Sweep drops windows that have already closed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
			n++
		}
	}
	return n
}
