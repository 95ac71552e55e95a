package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/google/uuid"
)

const (
	// DefaultMaxSessions is the per-user cap on active sessions.
	DefaultMaxSessions = 5
	// DefaultLifetime is how long a new session stays valid.
	DefaultLifetime = 7 * 24 * time.Hour
)

// Config configures a Manager.
type Config struct {
	MaxSessions int
	Lifetime    time.Duration
	// Sliding pushes ExpiresAt forward by Lifetime on every successful validation.
	Sliding bool
	Now     func() time.Time
}

// Manager is safe for concurrent use.
type Manager struct {
	store Store
	cfg   Config
}

// NewManager returns a Manager over store. Zero values in cfg take defaults.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.MaxSessions < 0 || cfg.Lifetime < 0 {
		return nil, errors.New("invalid session configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: store, cfg: cfg}, nil
}

// Lifetime returns the configured session lifetime.
func (m *Manager) Lifetime() time.Duration { return m.cfg.Lifetime }

// CreateSession opens a session for userID or fails with
// autherr.ErrMaxSessionsExceeded when the cap is reached.
func (m *Manager) CreateSession(ctx context.Context, userID string, meta Meta) (*Session, error) {
	now := m.cfg.Now()
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.cfg.Lifetime),
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
	}

	if err := m.store.CreateCapped(ctx, s, m.cfg.MaxSessions, now); err != nil {
		if errors.Is(err, ErrCapReached) {
			return nil, autherr.ErrMaxSessionsExceeded
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// ValidateSession returns the live session id. Missing or revoked sessions fail
// with autherr.ErrSessionNotFound; an expired one is revoked and fails with
// autherr.ErrSessionExpired.
func (m *Manager) ValidateSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, autherr.ErrSessionNotFound
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, autherr.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.Revoked {
		return nil, autherr.ErrSessionNotFound
	}

	now := m.cfg.Now()
	if !s.ExpiresAt.After(now) {
		if _, err := m.store.Revoke(ctx, id, now); err != nil {
			return nil, fmt.Errorf("revoke expired session: %w", err)
		}
		return nil, autherr.ErrSessionExpired
	}

	if m.cfg.Sliding {
		expires := now.Add(m.cfg.Lifetime)
		if err := m.store.Touch(ctx, id, now, expires); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, autherr.ErrSessionNotFound
			}
			return nil, fmt.Errorf("touch session: %w", err)
		}
		s.LastActiveAt = now
		s.ExpiresAt = expires
	}
	return s, nil
}

// ExtendSession sets lastActiveAt to now and expiresAt to now+d on a live session.
func (m *Manager) ExtendSession(ctx context.Context, id string, d time.Duration) (*Session, error) {
	if d <= 0 {
		return nil, errors.New("extension must be positive")
	}
	s, err := m.ValidateSession(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.cfg.Now()
	expires := now.Add(d)
	if err := m.store.Touch(ctx, id, now, expires); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, autherr.ErrSessionNotFound
		}
		return nil, fmt.Errorf("extend session: %w", err)
	}
	s.LastActiveAt = now
	s.ExpiresAt = expires
	return s, nil
}

// InvalidateSession revokes id. Revoking an unknown or already revoked session is
// not an error.
func (m *Manager) InvalidateSession(ctx context.Context, id string) error {
	if _, err := m.store.Revoke(ctx, id, m.cfg.Now()); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// InvalidateAllForUser revokes every session of userID and returns the revoked ids.
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := m.store.RevokeAllForUser(ctx, userID, m.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("revoke user sessions: %w", err)
	}
	return ids, nil
}

// ListActive returns the user's live sessions, oldest first.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := m.store.ListActive(ctx, userID, m.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Purge deletes sessions that expired more than retention ago.
func (m *Manager) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return m.store.PurgeExpired(ctx, m.cfg.Now().Add(-retention))
}
