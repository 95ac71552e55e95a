package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "goidentity:revoked:"

// RedisRevocationStore keeps revocations as expiring Redis keys.
type RedisRevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore returns a store using prefix for its keys. An empty
// prefix uses "goidentity:revoked:".
func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &RedisRevocationStore{redis: client, prefix: prefix}
}

// Revoke implements RevocationStore.
func (s *RedisRevocationStore) Revoke(ctx context.Context, key string, ttl time.Duration) error {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := s.redis.Set(ctx, s.prefix+key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	n, err := s.redis.Exists(ctx, full...).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MemoryRevocationStore is an in-process RevocationStore. Entries are dropped
// lazily once expired.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore returns an empty store. A nil now uses time.Now.
func NewMemoryRevocationStore(now func() time.Time) *MemoryRevocationStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocationStore{entries: make(map[string]time.Time), now: now}
}

// Revoke implements RevocationStore.
func (s *MemoryRevocationStore) Revoke(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := s.now().Add(ttl)
	if current, ok := s.entries[key]; ok && current.After(expires) {
		return nil
	}
	s.entries[key] = expires
	return nil
}

// IsRevoked implements RevocationStore.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, keys ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, k := range keys {
		expires, ok := s.entries[k]
		if !ok {
			continue
		}
		if expires.After(now) {
			return true, nil
		}
		delete(s.entries, k)
	}
	return false, nil
}

// Len returns the number of entries, including expired ones not yet dropped.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
