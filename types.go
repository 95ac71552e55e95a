package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/MrEthical07/goIdentity/verification"
)

// AuthResult is returned by Login and Refresh.
type AuthResult struct {
	UserID           string
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	CorrelationID    string
}

// AccessClaims is the verified identity returned by ValidateAccess.
type AccessClaims struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

// User is the persisted account.
type User = user.User

// UserStatus is the account lifecycle state.
type UserStatus = user.Status

// Account states.
const (
	StatusActive   = user.StatusActive
	StatusLocked   = user.StatusLocked
	StatusDisabled = user.StatusDisabled
)

// Session is one logged-in device.
type Session = session.Session

// AuditEvent is one audit record handed to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events. Emit must not block for long; the engine
// dispatches asynchronously when auditing is enabled.
type AuditSink = audit.Sink

// Audit sinks shipped with the engine.
type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
	MultiSink      = audit.MultiSink
)

var (
	// NewChannelSink returns a sink that buffers events on a channel.
	NewChannelSink = audit.NewChannelSink
	// NewJSONWriterSink writes one JSON object per line.
	NewJSONWriterSink = audit.NewJSONWriterSink
	// NewZapSink logs events through a zap logger.
	NewZapSink = audit.NewZapSink
)

// RateDecision is the outcome of one rate limit check.
type RateDecision = rate.Decision

// RateLimiter throttles requests per key.
type RateLimiter = flows.RateLimiter

// EmailSender delivers templated mail carrying a token.
type EmailSender = flows.EmailSender

// Email templates.
const (
	TemplateEmailVerification = flows.TemplateEmailVerification
	TemplatePasswordReset     = flows.TemplatePasswordReset
)

// Store bundles every persistence port used by the Engine. store/memory and
// store/postgres implement it.
type Store interface {
	Users() user.Store
	Sessions() session.Store
	RefreshTokens() refresh.Store
	ConsumedTokens() verification.ConsumedStore

	// ResetPassword replaces the hash, clears lockout and revokes every
	// session and refresh token of userID in one atomic step. It returns the
	// revoked session ids.
	ResetPassword(ctx context.Context, userID, passwordHash string, now time.Time) ([]string, error)
	// PurgeConsumed removes consumed token ids that expired before the cutoff.
	PurgeConsumed(ctx context.Context, before time.Time) (int64, error)
}

// SweepResult counts rows removed by one Sweep.
type SweepResult struct {
	Sessions       int64
	RefreshTokens  int64
	ConsumedTokens int64
}
