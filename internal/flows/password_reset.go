package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/access"
	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/MrEthical07/goIdentity/verification"
	"go.uber.org/zap"
)

// Email template ids.
const (
	TemplateEmailVerification = "email_verification"
	TemplatePasswordReset     = "password_reset"
)

// EmailSender delivers a template carrying a token.
type EmailSender interface {
	Send(ctx context.Context, to, templateID, token string) error
}

// PasswordResetter replaces a password hash, clears lockout and revokes every
// session and refresh token of the user atomically.
type PasswordResetter interface {
	ResetPassword(ctx context.Context, userID, passwordHash string, now time.Time) ([]string, error)
}

// PasswordRules bounds accepted password lengths in bytes.
type PasswordRules struct {
	MinLength int
	MaxLength int
}

// Check returns autherr.ErrPasswordRejected when pw is out of bounds.
func (r PasswordRules) Check(pw string) error {
	if len(pw) == 0 || len(pw) < r.MinLength || (r.MaxLength > 0 && len(pw) > r.MaxLength) {
		return autherr.New(autherr.ErrPasswordRejected)
	}
	return nil
}

// PasswordResetMetrics carries metric IDs needed by the reset flows.
type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	RateLimitHit                int
	SessionInvalidated          int
}

// PasswordResetEvents carries audit event names used by the reset flows.
type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	TTL          time.Duration
	RequestLimit RateRule
	Rules        PasswordRules
	Now          func() time.Time

	Limiter      RateLimiter
	Users        user.Store
	Resetter     PasswordResetter
	Hasher       password.Hasher
	Verification *verification.Service
	Access       *access.Service
	Mailer       EmailSender

	Hooks
	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
}

// ResetEmailKey is the rate limit key for reset requests per address.
func ResetEmailKey(email string) string { return "reset:email:" + email }

// ResetIPKey is the rate limit key for reset requests per client address.
func ResetIPKey(ip string) string { return "reset:ip:" + ip }

// RunRequestPasswordReset mails a reset token when the address belongs to an
// account that is not disabled. Unknown addresses produce the same nil result.
func RunRequestPasswordReset(ctx context.Context, email, ip string, deps PasswordResetDeps) error {
	deps.Hooks.normalize()
	email = user.NormalizeEmail(email)
	deps.MetricInc(deps.Metrics.PasswordResetRequest)

	audit := func(userID, reason string, err error) {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, userID, "", err, func() map[string]string {
			return map[string]string{"identifier": email, "reason": reason}
		})
	}

	if err := checkRate(ctx, deps.Limiter, deps.RequestLimit, ResetEmailKey(email), deps.Warn); err != nil {
		if rateLimited(err) {
			deps.MetricInc(deps.Metrics.RateLimitHit)
			audit("", "rate_limited", err)
		} else {
			audit("", "rate_limiter_unavailable", err)
		}
		return err
	}
	if ip != "" {
		if err := checkRate(ctx, deps.Limiter, deps.RequestLimit, ResetIPKey(ip), deps.Warn); err != nil {
			if rateLimited(err) {
				deps.MetricInc(deps.Metrics.RateLimitHit)
			}
			audit("", "rate_limited", err)
			return err
		}
	}

	u, err := deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			audit("", "user_not_found", nil)
			return nil
		}
		e := internal(err, "")
		audit("", "user_lookup_failed", e)
		return e
	}
	if u.Status == user.StatusDisabled {
		audit(u.ID, "account_disabled", nil)
		return nil
	}

	token, _, err := deps.Verification.IssueBoundToken(jwt.TypePasswordReset, u.ID, u.Email, verification.Fingerprint(u.PasswordHash), deps.TTL)
	if err != nil {
		e := internal(err, u.ID)
		audit(u.ID, "token_issue_failed", e)
		return e
	}

	if deps.Mailer != nil {
		if err := deps.Mailer.Send(ctx, u.Email, TemplatePasswordReset, token); err != nil {
			deps.Warn("password reset mail not sent", zap.String("user_id", u.ID), zap.Error(err))
			audit(u.ID, "mail_failed", nil)
			return nil
		}
	}
	audit(u.ID, "sent", nil)
	return nil
}

// RunResetPassword consumes a reset token and replaces the password. Every
// session and refresh token of the user is revoked in the same store operation,
// then the access tokens of those sessions are revoked.
//
// A reset token is bound to the password hash current when it was issued, so
// any password change (including a rehash on login) invalidates every reset
// token issued before it.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}

	fail := func(userID string, err *autherr.Error) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, userID, "", err, nil)
		return err
	}

	if err := deps.Rules.Check(newPassword); err != nil {
		return fail("", autherr.Classify(err))
	}

	claims, err := deps.Verification.Consume(ctx, token, jwt.TypePasswordReset)
	if err != nil {
		return fail("", classify(err, ""))
	}
	userID := claims.UserID()

	release := func() {
		cctx, cancel := detached(ctx)
		defer cancel()
		if err := deps.Verification.Release(cctx, claims.TokenID()); err != nil {
			deps.Warn("failed to release reset token", zap.String("user_id", userID), zap.Error(err))
		}
	}

	u, err := deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return fail(userID, domain(autherr.ErrInvalidToken, userID))
		}
		release()
		return fail(userID, internal(err, userID))
	}
	if u.Email != user.NormalizeEmail(claims.Email) || claims.Bnd != verification.Fingerprint(u.PasswordHash) {
		return fail(userID, domain(autherr.ErrInvalidToken, userID))
	}

	hash, err := deps.Hasher.Hash(newPassword)
	if err != nil {
		release()
		if errors.Is(err, password.ErrPasswordTooLong) {
			return fail(userID, domain(autherr.ErrPasswordRejected, userID))
		}
		return fail(userID, internal(err, userID))
	}

	sessionIDs, err := deps.Resetter.ResetPassword(ctx, userID, hash, deps.Now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return fail(userID, domain(autherr.ErrInvalidToken, userID))
		}
		release()
		return fail(userID, internal(err, userID))
	}

	// The store change is committed; access revocation must not depend on ctx.
	rctx, cancel := detached(ctx)
	defer cancel()
	for _, id := range sessionIDs {
		if err := deps.Access.InvalidateSession(rctx, id); err != nil {
			deps.Warn("failed to revoke access tokens after password reset", zap.String("session_id", id), zap.Error(err))
		}
	}
	if len(sessionIDs) > 0 {
		deps.MetricInc(deps.Metrics.SessionInvalidated)
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": itoa(len(sessionIDs))}
	})
	return nil
}
