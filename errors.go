package goIdentity

import "github.com/MrEthical07/goIdentity/autherr"

// Error taxonomy. Every failure returned by an Engine operation matches exactly
// one of these with errors.Is.
var (
	ErrInvalidCredentials  = autherr.ErrInvalidCredentials
	ErrAccountLocked       = autherr.ErrAccountLocked
	ErrAccountDisabled     = autherr.ErrAccountDisabled
	ErrEmailNotVerified    = autherr.ErrEmailNotVerified
	ErrRateLimitExceeded   = autherr.ErrRateLimitExceeded
	ErrTokenExpired        = autherr.ErrTokenExpired
	ErrInvalidToken        = autherr.ErrInvalidToken
	ErrTokenRevoked        = autherr.ErrTokenRevoked
	ErrMaxSessionsExceeded = autherr.ErrMaxSessionsExceeded
	ErrSessionNotFound     = autherr.ErrSessionNotFound
	ErrSessionExpired      = autherr.ErrSessionExpired
	ErrPasswordRejected    = autherr.ErrPasswordRejected
	ErrInternal            = autherr.ErrInternal
)

var (
	// ErrAccountExists is returned by CreateAccount for a taken email.
	ErrAccountExists = autherr.ErrAccountExists
	// ErrInvalidEmail is returned by CreateAccount for an unparsable address.
	ErrInvalidEmail = autherr.ErrInvalidEmail
	// ErrUserNotFound is returned by account administration for an unknown id.
	ErrUserNotFound = autherr.ErrUserNotFound
	// ErrEngineNotReady is returned by methods of a nil or closed Engine.
	ErrEngineNotReady = autherr.ErrEngineNotReady
)

// Error is the concrete error type carrying audit metadata.
type Error = autherr.Error

// AsError extracts the *Error behind err.
func AsError(err error) (*Error, bool) { return autherr.As(err) }

// IsDomain reports whether err is a user-facing outcome rather than an
// infrastructure failure.
func IsDomain(err error) bool { return autherr.IsDomain(err) }
