package refresh

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when no record has the requested id.
var ErrNotFound = errors.New("refresh record not found")

// Record is the persisted side of one refresh token.
type Record struct {
	ID        string
	UserID    string
	SessionID string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Filter selects records for bulk revocation. At least one field must be set;
// when both are set a record must match both.
type Filter struct {
	UserID    string
	SessionID string
}

// Empty reports whether f selects nothing.
func (f Filter) Empty() bool { return f.UserID == "" && f.SessionID == "" }

// Store persists refresh records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Consume marks id revoked only if it is not revoked yet and reports whether
	// this call performed the transition.
	Consume(ctx context.Context, id string, now time.Time) (bool, error)
	// Revoke marks every non-revoked record matching f and returns the count.
	Revoke(ctx context.Context, f Filter, now time.Time) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
