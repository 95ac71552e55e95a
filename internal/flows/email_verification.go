package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/MrEthical07/goIdentity/verification"
	"go.uber.org/zap"
)

// EmailVerificationMetrics carries metric IDs needed by the verification flows.
type EmailVerificationMetrics struct {
	EmailVerificationRequest int
	EmailVerificationSuccess int
	EmailVerificationFailure int
	RateLimitHit             int
}

// EmailVerificationEvents carries audit event names used by the verification flows.
type EmailVerificationEvents struct {
	EmailVerificationRequest string
	EmailVerificationConfirm string
}

// EmailVerificationDeps captures email verification dependencies.
type EmailVerificationDeps struct {
	TTL          time.Duration
	RequestLimit RateRule
	Now          func() time.Time

	Limiter      RateLimiter
	Users        user.Store
	Verification *verification.Service
	Mailer       EmailSender

	Hooks
	Metrics EmailVerificationMetrics
	Events  EmailVerificationEvents
}

// VerifyUserKey is the rate limit key for verification mail requests per user.
func VerifyUserKey(userID string) string { return "verify:user:" + userID }

// RunRequestEmailVerification mails a verification token to an unverified user.
// Unknown and already verified users produce nil without mail.
func RunRequestEmailVerification(ctx context.Context, userID string, deps EmailVerificationDeps) error {
	deps.Hooks.normalize()
	deps.MetricInc(deps.Metrics.EmailVerificationRequest)

	audit := func(reason string, err error) {
		deps.EmitAudit(ctx, deps.Events.EmailVerificationRequest, userID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
	}

	if err := checkRate(ctx, deps.Limiter, deps.RequestLimit, VerifyUserKey(userID), deps.Warn); err != nil {
		if rateLimited(err) {
			deps.MetricInc(deps.Metrics.RateLimitHit)
			audit("rate_limited", err)
		} else {
			audit("rate_limiter_unavailable", err)
		}
		return err
	}

	u, err := deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			audit("user_not_found", nil)
			return nil
		}
		e := internal(err, userID)
		audit("user_lookup_failed", e)
		return e
	}
	if u.EmailVerified() {
		audit("already_verified", nil)
		return nil
	}

	token, _, err := deps.Verification.IssueToken(jwt.TypeEmailVerification, u.ID, u.Email, deps.TTL)
	if err != nil {
		e := internal(err, u.ID)
		audit("token_issue_failed", e)
		return e
	}
	if deps.Mailer != nil {
		if err := deps.Mailer.Send(ctx, u.Email, TemplateEmailVerification, token); err != nil {
			deps.Warn("verification mail not sent", zap.String("user_id", u.ID), zap.Error(err))
			audit("mail_failed", nil)
			return nil
		}
	}
	audit("sent", nil)
	return nil
}

// RunVerifyEmail consumes an email verification token and stamps emailVerifiedAt.
func RunVerifyEmail(ctx context.Context, token string, deps EmailVerificationDeps) error {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}

	fail := func(userID string, err *autherr.Error) error {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, userID, "", err, nil)
		return err
	}

	claims, err := deps.Verification.Consume(ctx, token, jwt.TypeEmailVerification)
	if err != nil {
		return fail("", classify(err, ""))
	}
	userID := claims.UserID()

	u, err := deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return fail(userID, domain(autherr.ErrInvalidToken, userID))
		}
		deps.releaseToken(ctx, claims)
		return fail(userID, internal(err, userID))
	}
	if u.Email != user.NormalizeEmail(claims.Email) {
		return fail(userID, domain(autherr.ErrInvalidToken, userID))
	}

	first, err := deps.Users.MarkEmailVerified(ctx, userID, deps.Now())
	if err != nil {
		deps.releaseToken(ctx, claims)
		return fail(userID, internal(err, userID))
	}

	deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, userID, "", nil, func() map[string]string {
		return map[string]string{"first_verification": strconv.FormatBool(first)}
	})
	return nil
}

func (deps EmailVerificationDeps) releaseToken(ctx context.Context, claims *jwt.Claims) {
	cctx, cancel := detached(ctx)
	defer cancel()
	if err := deps.Verification.Release(cctx, claims.TokenID()); err != nil {
		deps.Warn("failed to release verification token", zap.String("user_id", claims.UserID()), zap.Error(err))
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
