package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/access"
	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/refresh"
	"go.uber.org/zap"
)

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess       int
	RefreshFailure       int
	RefreshReuseDetected int
	SessionInvalidated   int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	RefreshSuccess       string
	RefreshFailure       string
	RefreshReuseDetected string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Refresh *refresh.Service
	Access  *access.Service

	Hooks
	Metrics RefreshMetrics
	Events  RefreshEvents
}

// RunRefresh rotates a refresh token. Detected reuse is audited separately and,
// when the session was revoked, every access token of that session is revoked too.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) (*refresh.Pair, error) {
	deps.Hooks.normalize()

	pair, err := deps.Refresh.Refresh(ctx, token)
	if err == nil {
		deps.MetricInc(deps.Metrics.RefreshSuccess)
		deps.EmitAudit(ctx, deps.Events.RefreshSuccess, pair.UserID, pair.SessionID, nil, nil)
		return pair, nil
	}

	var reuse *refresh.ReuseError
	if errors.As(err, &reuse) {
		deps.MetricInc(deps.Metrics.RefreshReuseDetected)
		if reuse.SessionRevoked {
			deps.MetricInc(deps.Metrics.SessionInvalidated)
			if revokeErr := deps.Access.InvalidateSession(ctx, reuse.SessionID); revokeErr != nil {
				deps.Warn("failed to revoke access tokens after refresh reuse",
					zap.String("session_id", reuse.SessionID), zap.Error(revokeErr))
			}
		}
		e := domain(autherr.ErrTokenRevoked, reuse.UserID)
		deps.EmitAudit(ctx, deps.Events.RefreshReuseDetected, reuse.UserID, reuse.SessionID, e, func() map[string]string {
			if reuse.SessionRevoked {
				return map[string]string{"session_revoked": "true"}
			}
			return map[string]string{"session_revoked": "false"}
		})
		return nil, e
	}

	e := classify(err, "")
	deps.MetricInc(deps.Metrics.RefreshFailure)
	deps.EmitAudit(ctx, deps.Events.RefreshFailure, "", "", e, nil)
	return nil, e
}
