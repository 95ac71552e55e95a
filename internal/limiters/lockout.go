package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/user"
)

const (
	// DefaultMaxAttempts is the failure count that locks an account.
	DefaultMaxAttempts = 5
	// DefaultLockDuration is how long a lock lasts.
	DefaultLockDuration = 15 * time.Minute
)

// LockoutConfig holds configuration for the account lockout policy.
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
	Now          func() time.Time
}

// AttemptStore is the subset of user.Store the lockout policy needs.
type AttemptStore interface {
	IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (user.LockState, error)
	ResetFailedAttempts(ctx context.Context, id string, now time.Time) (bool, error)
	ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error)
}

// Result describes the row after a recorded failure.
type Result struct {
	Attempts    int
	Locked      bool
	LockedUntil time.Time
}

// LockoutManager tracks persistent failed login attempts and locks the account
// when the configured threshold is reached.
type LockoutManager struct {
	store  AttemptStore
	config LockoutConfig
}

// NewLockoutManager creates a lockout manager. Zero config values take defaults.
func NewLockoutManager(store AttemptStore, cfg LockoutConfig) (*LockoutManager, error) {
	if store == nil {
		return nil, errors.New("lockout attempt store is required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockDuration == 0 {
		cfg.LockDuration = DefaultLockDuration
	}
	if cfg.MaxAttempts < 0 || cfg.LockDuration < 0 {
		return nil, errors.New("invalid lockout configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LockoutManager{store: store, config: cfg}, nil
}

// RecordFailure increments the failure counter of userID. Locked is true when
// the row is locked after the update.
func (m *LockoutManager) RecordFailure(ctx context.Context, userID string) (Result, error) {
	now := m.config.Now()
	state, err := m.store.IncrementFailedAttempts(ctx, userID, m.config.MaxAttempts, now.Add(m.config.LockDuration), now)
	if err != nil {
		return Result{}, fmt.Errorf("record login failure: %w", err)
	}

	res := Result{Attempts: state.Attempts}
	if state.Status == user.StatusLocked && state.LockedUntil != nil && state.LockedUntil.After(now) {
		res.Locked = true
		res.LockedUntil = *state.LockedUntil
	}
	return res, nil
}

// RecordSuccess resets the counter. It returns autherr.ErrAccountLocked when a
// concurrent failure locked the row first.
func (m *LockoutManager) RecordSuccess(ctx context.Context, userID string) error {
	ok, err := m.store.ResetFailedAttempts(ctx, userID, m.config.Now())
	if err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	if !ok {
		return autherr.ErrAccountLocked
	}
	return nil
}

// IsLocked reports whether u is in an active lock window.
func (m *LockoutManager) IsLocked(u *user.User) bool {
	return u.LockedAt(m.config.Now())
}

// ClearIfExpired returns an elapsed lock to ACTIVE and updates u in place.
func (m *LockoutManager) ClearIfExpired(ctx context.Context, u *user.User) (bool, error) {
	if u.Status != user.StatusLocked {
		return false, nil
	}
	now := m.config.Now()
	if u.LockedAt(now) {
		return false, nil
	}
	cleared, err := m.store.ClearExpiredLock(ctx, u.ID, now)
	if err != nil {
		return false, fmt.Errorf("clear expired lock: %w", err)
	}
	if cleared {
		u.Status = user.StatusActive
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}
	return cleared, nil
}
