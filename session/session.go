package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when the session row does not exist.
	ErrNotFound = errors.New("session row not found")
	// ErrCapReached is returned by CreateCapped when the user already holds max active sessions.
	ErrCapReached = errors.New("session cap reached")
)

// Session is one persisted login session.
type Session struct {
	ID           string
	UserID       string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	UserAgent    string
	IPAddress    string
	Revoked      bool
}

// ActiveAt reports whether s is neither revoked nor expired at now.
func (s *Session) ActiveAt(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// Meta is the client information recorded on a session.
type Meta struct {
	UserAgent string
	IPAddress string
}

// Store persists sessions.
type Store interface {
	// CreateCapped inserts s unless the user already has max active sessions at
	// now, in which case it returns ErrCapReached. Count and insert are atomic.
	CreateCapped(ctx context.Context, s *Session, max int, now time.Time) error
	Get(ctx context.Context, id string) (*Session, error)
	// Touch updates activity and expiry of a non-revoked session.
	Touch(ctx context.Context, id string, lastActiveAt, expiresAt time.Time) error
	// Revoke marks one session revoked and reports whether it changed.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	// RevokeAllForUser revokes every non-revoked session and returns their ids.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) ([]string, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]Session, error)
	// PurgeExpired deletes rows that expired before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
