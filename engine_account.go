package goIdentity

import (
	"context"
	"errors"
	"net/mail"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/google/uuid"
)

// CreateAccount registers a new ACTIVE account with an unverified email.
func (e *Engine) CreateAccount(ctx context.Context, email, pw, role string) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, correlationID := ensureCorrelation(ctx)
	email = user.NormalizeEmail(email)

	fail := func(userID, reason string, err *autherr.Error) (*User, error) {
		if errors.Is(err, autherr.ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
		}
		e.emitAudit(ctx, auditEventAccountCreated, userID, "", err, func() map[string]string {
			return map[string]string{"identifier": email, "reason": reason}
		})
		return nil, err.WithCorrelation(correlationID)
	}

	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fail("", "invalid_email", autherr.New(autherr.ErrInvalidEmail))
	}
	if err := e.passwordRules().Check(pw); err != nil {
		return fail("", "password_rejected", autherr.Classify(err))
	}
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return fail("", "hash_failed", autherr.Internal(err))
	}

	now := e.now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       user.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return fail("", "duplicate", autherr.New(autherr.ErrAccountExists))
		}
		return fail("", "create_failed", autherr.Internal(err))
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreated, u.ID, "", nil, func() map[string]string {
		return map[string]string{"identifier": email}
	})
	out := *u
	out.PasswordHash = ""
	return &out, nil
}

// DisableAccount blocks future logins of userID and terminates every session.
func (e *Engine) DisableAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	if err := e.setStatus(ctx, userID, user.StatusDisabled); err != nil {
		return err.WithCorrelation(correlationID)
	}
	if _, err := e.terminateAll(ctx, userID); err != nil {
		return e.statusFailure(ctx, userID, user.StatusDisabled, autherr.Internal(err)).WithCorrelation(correlationID)
	}
	e.metricInc(MetricAccountDisabled)
	e.statusChanged(ctx, userID, user.StatusDisabled)
	return nil
}

// EnableAccount returns a DISABLED or LOCKED account to ACTIVE and clears its
// failure counter.
func (e *Engine) EnableAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	if err := e.setStatus(ctx, userID, user.StatusActive); err != nil {
		return err.WithCorrelation(correlationID)
	}
	e.metricInc(MetricAccountEnabled)
	e.statusChanged(ctx, userID, user.StatusActive)
	return nil
}

// UnlockAccount lifts a lockout before it elapses. Disabled accounts stay
// disabled and report ErrAccountDisabled.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	u, err := e.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return autherr.New(autherr.ErrUserNotFound).WithUser(userID).WithCorrelation(correlationID)
		}
		return autherr.Internal(err).WithUser(userID).WithCorrelation(correlationID)
	}
	if u.Status == user.StatusDisabled {
		return autherr.New(autherr.ErrAccountDisabled).WithUser(userID).WithCorrelation(correlationID)
	}
	if aerr := e.setStatus(ctx, userID, user.StatusActive); aerr != nil {
		return aerr.WithCorrelation(correlationID)
	}
	e.metricInc(MetricAccountUnlocked)
	e.statusChanged(ctx, userID, user.StatusActive)
	return nil
}

func (e *Engine) setStatus(ctx context.Context, userID string, status user.Status) *autherr.Error {
	err := e.store.Users().UpdateStatus(ctx, userID, status, e.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, user.ErrNotFound):
		return e.statusFailure(ctx, userID, status, autherr.New(autherr.ErrUserNotFound))
	default:
		return e.statusFailure(ctx, userID, status, autherr.Internal(err))
	}
}

func (e *Engine) statusFailure(ctx context.Context, userID string, status user.Status, err *autherr.Error) *autherr.Error {
	e.emitAudit(ctx, auditEventAccountStatusChange, userID, "", err, func() map[string]string {
		return map[string]string{"status": string(status)}
	})
	return err.WithUser(userID)
}

func (e *Engine) statusChanged(ctx context.Context, userID string, status user.Status) {
	e.emitAudit(ctx, auditEventAccountStatusChange, userID, "", nil, func() map[string]string {
		return map[string]string{"status": string(status)}
	})
}
