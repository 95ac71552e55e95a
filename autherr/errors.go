package autherr

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is retryable once the lock window elapses.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is terminal until an operator re-enables the account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailNotVerified is only reported after a successful password check.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrRateLimitExceeded is retryable after the limiter's retry-after hint.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrTokenExpired means the signature was valid but exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken covers bad signatures, malformed payloads, wrong token types and replays.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for revoked access tokens and reused refresh tokens.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrMaxSessionsExceeded is returned when the per-user session cap is reached.
	ErrMaxSessionsExceeded = errors.New("maximum sessions exceeded")
	// ErrSessionNotFound is returned for missing, revoked or foreign sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned the first time an expired session is observed.
	ErrSessionExpired = errors.New("session expired")
	// ErrPasswordRejected is returned when a new password is outside the accepted length bounds.
	ErrPasswordRejected = errors.New("password rejected")
	// ErrUserNotFound is only returned by administrative operations addressed by user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidEmail is returned when an address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrAccountExists is returned when an email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrEngineNotReady is returned by a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInternal wraps storage and infrastructure failures.
	ErrInternal = errors.New("internal error")
)

// Error is a domain or internal failure enriched with audit metadata.
//
// Error() only renders the taxonomy kind so callers never see backend details.
type Error struct {
	Kind          error
	CorrelationID string
	UserID        string
	RetryAfter    time.Duration
	LockedUntil   time.Time

	cause error
}

// New builds an Error of the given kind.
func New(kind error) *Error {
	return &Error{Kind: kind}
}

// Internal wraps an infrastructure failure as ErrInternal.
func Internal(cause error) *Error {
	return &Error{Kind: ErrInternal, cause: cause}
}

func (e *Error) Error() string {
	if e == nil || e.Kind == nil {
		return ErrInternal.Error()
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and, when present, the hidden cause.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

// Cause returns the wrapped backend error, if any.
func (e *Error) Cause() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// WithCorrelation sets the correlation id and returns e.
func (e *Error) WithCorrelation(id string) *Error {
	e.CorrelationID = id
	return e
}

// WithUser sets the user id and returns e.
func (e *Error) WithUser(userID string) *Error {
	e.UserID = userID
	return e
}

// As returns the *Error inside err, if any.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsDomain reports whether err belongs to the user-facing taxonomy.
func IsDomain(err error) bool {
	if err == nil || errors.Is(err, ErrInternal) {
		return false
	}
	for _, kind := range domainKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

var domainKinds = []error{
	ErrInvalidCredentials,
	ErrAccountLocked,
	ErrAccountDisabled,
	ErrEmailNotVerified,
	ErrRateLimitExceeded,
	ErrTokenExpired,
	ErrInvalidToken,
	ErrTokenRevoked,
	ErrMaxSessionsExceeded,
	ErrSessionNotFound,
	ErrSessionExpired,
	ErrPasswordRejected,
	ErrAccountExists,
	ErrInvalidEmail,
	ErrUserNotFound,
}

// Code returns a stable snake_case code for audit metadata.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInternal):
		return "internal_error"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrMaxSessionsExceeded):
		return "max_sessions_exceeded"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrPasswordRejected):
		return "password_rejected"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	default:
		return "internal_error"
	}
}

// Classify converts err into an *Error. Existing *Error values are returned as-is,
// taxonomy sentinels (possibly wrapped) keep their kind and anything else becomes
// an internal error carrying err as its cause.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	if errors.Is(err, ErrInternal) {
		return Internal(err)
	}
	for _, kind := range domainKinds {
		if errors.Is(err, kind) {
			return New(kind)
		}
	}
	return Internal(err)
}
