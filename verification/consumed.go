package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultConsumedPrefix = "goidentity:consumed:"

// RedisConsumedStore keeps consumed ids as SET NX keys expiring with the token.
type RedisConsumedStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisConsumedStore returns a store. An empty prefix uses
// "goidentity:consumed:" and a nil now uses time.Now.
func NewRedisConsumedStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisConsumedStore {
	if prefix == "" {
		prefix = defaultConsumedPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisConsumedStore{redis: client, prefix: prefix, now: now}
}

// MarkConsumed implements ConsumedStore.
func (s *RedisConsumedStore) MarkConsumed(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.redis.SetNX(ctx, s.prefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release implements ConsumedStore.
func (s *RedisConsumedStore) Release(ctx context.Context, jti string) error {
	if err := s.redis.Del(ctx, s.prefix+jti).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// MemoryConsumedStore is an in-process ConsumedStore.
type MemoryConsumedStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryConsumedStore returns an empty store. A nil now uses time.Now.
func NewMemoryConsumedStore(now func() time.Time) *MemoryConsumedStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryConsumedStore{entries: make(map[string]time.Time), now: now}
}

// MarkConsumed implements ConsumedStore.
func (s *MemoryConsumedStore) MarkConsumed(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.entries[jti]; ok && exp.After(s.now()) {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

// Release implements ConsumedStore.
func (s *MemoryConsumedStore) Release(_ context.Context, jti string) error {
	s.mu.Lock()
	delete(s.entries, jti)
	s.mu.Unlock()
	return nil
}

// PurgeExpired drops entries whose token expired before the cutoff.
func (s *MemoryConsumedStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for jti, exp := range s.entries {
		if exp.Before(before) {
			delete(s.entries, jti)
			n++
		}
	}
	return n, nil
}
