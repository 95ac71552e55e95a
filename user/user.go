package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by a Store when no row matches.
var ErrNotFound = errors.New("user not found")

// ErrEmailTaken is returned by Create when the normalised email already exists.
var ErrEmailTaken = errors.New("email already registered")

// Status is the persisted account state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusLocked   Status = "LOCKED"
	StatusDisabled Status = "DISABLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusDisabled:
		return true
	}
	return false
}

// User is one account row.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                string
	Status              Status
	FailedLoginAttempts int
	LockedUntil         *time.Time
	EmailVerifiedAt     *time.Time
	TwoFactorEnabled    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EmailVerified reports whether the email has been confirmed.
func (u *User) EmailVerified() bool { return u.EmailVerifiedAt != nil }

// LockedAt reports whether the account is inside an active lock window at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.Status == StatusLocked && u.LockedUntil != nil && u.LockedUntil.After(now)
}

// LockState is the row state returned by IncrementFailedAttempts.
type LockState struct {
	Attempts    int
	Status      Status
	LockedUntil *time.Time
}

// Store persists users.
//
// IncrementFailedAttempts, ResetFailedAttempts and ClearExpiredLock must each be a
// single atomic conditional operation in the backend.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error)

	// IncrementFailedAttempts adds one failure. When the post-increment count
	// reaches threshold the row becomes LOCKED until lockUntil in the same update.
	IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (LockState, error)
	// ResetFailedAttempts zeroes the counter and clears an elapsed lock. It
	// returns false without changes when the row is locked past now.
	ResetFailedAttempts(ctx context.Context, id string, now time.Time) (bool, error)
	// ClearExpiredLock returns a LOCKED row whose lock elapsed to ACTIVE.
	ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error)
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
