package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/internal/flows"
)

// RequestPasswordReset mails a single-use reset token to email. It returns nil
// whether or not the address belongs to an account; only rate limiting and
// infrastructure failures are reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, span, correlationID := e.startSpan(ctx, "RequestPasswordReset")
	err := flows.RunRequestPasswordReset(ctx, email, clientIPFromContext(ctx), e.passwordResetDeps())
	return finish(span, correlationID, err)
}

// ResetPassword consumes a reset token and sets newPassword. All sessions,
// refresh tokens and access tokens of the account are revoked and any lockout
// is cleared.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, span, correlationID := e.startSpan(ctx, "ResetPassword")
	err := flows.RunResetPassword(ctx, token, newPassword, e.passwordResetDeps())
	return finish(span, correlationID, err)
}

func (e *Engine) passwordResetDeps() flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		TTL: e.config.PasswordReset.TokenTTL,
		RequestLimit: flows.RateRule{
			Limit:    e.config.PasswordReset.Request.Limit,
			Window:   e.config.PasswordReset.Request.Window,
			FailOpen: e.config.RateLimit.FailOpen,
		},
		Rules:        e.passwordRules(),
		Now:          e.now,
		Limiter:      e.limiter,
		Users:        e.store.Users(),
		Resetter:     e.store,
		Hasher:       e.hasher,
		Verification: e.verification,
		Access:       e.access,
		Mailer:       e.mailer,
		Hooks:        e.hooks(),
		Metrics: flows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			RateLimitHit:                int(MetricRateLimitHit),
			SessionInvalidated:          int(MetricSessionInvalidated),
		},
		Events: flows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
	}
}

func (e *Engine) passwordRules() flows.PasswordRules {
	return flows.PasswordRules{
		MinLength: e.config.Password.MinLength,
		MaxLength: e.config.Password.MaxLength,
	}
}
