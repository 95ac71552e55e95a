package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/internal/flows"
)

// RequestEmailVerification mails a verification token to userID. Unknown and
// already verified users get no mail and a nil error.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, span, correlationID := e.startSpan(ctx, "RequestEmailVerification")
	err := flows.RunRequestEmailVerification(ctx, userID, e.emailVerificationDeps())
	return finish(span, correlationID, err)
}

// VerifyEmail consumes an email verification token and marks the address verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, span, correlationID := e.startSpan(ctx, "VerifyEmail")
	err := flows.RunVerifyEmail(ctx, token, e.emailVerificationDeps())
	return finish(span, correlationID, err)
}

func (e *Engine) emailVerificationDeps() flows.EmailVerificationDeps {
	return flows.EmailVerificationDeps{
		TTL: e.config.EmailVerification.TokenTTL,
		RequestLimit: flows.RateRule{
			Limit:    e.config.EmailVerification.Request.Limit,
			Window:   e.config.EmailVerification.Request.Window,
			FailOpen: e.config.RateLimit.FailOpen,
		},
		Now:          e.now,
		Limiter:      e.limiter,
		Users:        e.store.Users(),
		Verification: e.verification,
		Mailer:       e.mailer,
		Hooks:        e.hooks(),
		Metrics: flows.EmailVerificationMetrics{
			EmailVerificationRequest: int(MetricEmailVerificationRequest),
			EmailVerificationSuccess: int(MetricEmailVerificationSuccess),
			EmailVerificationFailure: int(MetricEmailVerificationFailure),
			RateLimitHit:             int(MetricRateLimitHit),
		},
		Events: flows.EmailVerificationEvents{
			EmailVerificationRequest: auditEventEmailVerificationRequest,
			EmailVerificationConfirm: auditEventEmailVerificationConfirm,
		},
	}
}
