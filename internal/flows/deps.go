package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"go.uber.org/zap"
)

// RateLimiter is the external limiter contract.
type RateLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (rate.Decision, error)
}

// RateRule is one limit applied to a key namespace. A zero Limit disables it.
type RateRule struct {
	Limit  int
	Window time.Duration
	// FailOpen lets the request through when the limiter backend errors.
	FailOpen bool
}

// EmitAuditFunc records one audit event. A nil err is a success.
type EmitAuditFunc func(ctx context.Context, eventType, userID, sessionID string, err error, metadata func() map[string]string)

// Hooks are the observability callbacks shared by every flow.
type Hooks struct {
	MetricInc func(int)
	EmitAudit EmitAuditFunc
	Warn      func(msg string, fields ...zap.Field)
}

func (h *Hooks) normalize() {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, string, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...zap.Field) {}
	}
}

// cleanupTimeout bounds compensating writes made after the request context ended.
const cleanupTimeout = 5 * time.Second

// detached keeps the values of ctx but not its cancellation or deadline, so a
// compensating write still runs when ctx already expired.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// checkRate applies rule to key. It returns nil when allowed or disabled.
func checkRate(ctx context.Context, limiter RateLimiter, rule RateRule, key string, warn func(string, ...zap.Field)) error {
	if limiter == nil || rule.Limit <= 0 {
		return nil
	}
	decision, err := limiter.CheckLimit(ctx, key, rule.Limit, rule.Window)
	if err != nil {
		if rule.FailOpen {
			warn("rate limiter unavailable, failing open", zap.String("key", key), zap.Error(err))
			return nil
		}
		return autherr.Internal(err)
	}
	if !decision.Allowed {
		e := autherr.New(autherr.ErrRateLimitExceeded)
		e.RetryAfter = decision.RetryAfter
		return e
	}
	return nil
}

func rateLimited(err error) bool {
	return errors.Is(err, autherr.ErrRateLimitExceeded)
}

// internal wraps err as an internal error tagged with userID.
func internal(err error, userID string) *autherr.Error {
	return autherr.Internal(err).WithUser(userID)
}

// domain returns a taxonomy error tagged with userID.
func domain(kind error, userID string) *autherr.Error {
	return autherr.New(kind).WithUser(userID)
}

// classify keeps taxonomy errors and turns everything else into internal errors.
func classify(err error, userID string) *autherr.Error {
	e := autherr.Classify(err)
	if e != nil && e.UserID == "" {
		e.UserID = userID
	}
	return e
}
