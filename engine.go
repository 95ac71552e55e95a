package goIdentity

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goIdentity/access"
	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/sweeper"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/MrEthical07/goIdentity/verification"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine runs the identity and session lifecycle.
//
// Engine instances are configured once through Builder and are safe for
// concurrent use afterwards.
type Engine struct {
	config Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	store        Store
	hasher       password.Hasher
	equalizer    *password.Equalizer
	lockout      *limiters.LockoutManager
	limiter      RateLimiter
	sessions     *session.Manager
	access       *access.Service
	refresh      *refresh.Service
	verification *verification.Service
	mailer       EmailSender

	audit   *audit.Dispatcher
	metrics *Metrics
	sweeper *sweeper.Sweeper
	closed  atomic.Bool
}

// Close stops the sweeper and drains pending audit events. Operations on a
// closed Engine return ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.sweeper != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.config.Sweep.Timeout)
		if err := e.sweeper.Stop(ctx); err != nil {
			e.logger.Warn("sweeper did not stop in time", zap.Error(err))
		}
		cancel()
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) hooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
	}
}

// startSpan opens a span carrying the correlation id of ctx.
func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span, string) {
	ctx, correlationID := ensureCorrelation(ctx)
	ctx, span := e.tracer.Start(ctx, "goIdentity."+name, trace.WithAttributes(attribute.String("correlation_id", correlationID)))
	return ctx, span, correlationID
}

// finish records the outcome on span and stamps the correlation id on err.
func finish(span trace.Span, correlationID string, err error) error {
	defer span.End()
	if err == nil {
		span.SetAttributes(attribute.String("outcome", audit.OutcomeSuccess))
		return nil
	}
	ae := autherr.Classify(err)
	ae.CorrelationID = correlationID
	span.SetAttributes(attribute.String("outcome", audit.OutcomeFailure), attribute.String("error.code", autherr.Code(ae)))
	if !autherr.IsDomain(ae) {
		span.SetStatus(codes.Error, ae.Error())
	}
	return ae
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates email and password and, on success, opens a session.
// The client IP and user agent are taken from ctx (WithClientIP, WithUserAgent).
func (e *Engine) Login(ctx context.Context, email, pw string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.LoginTimeout)
	defer cancel()
	ctx, span, correlationID := e.startSpan(ctx, "Login")

	res, err := flows.RunLogin(ctx, email, pw, session.Meta{
		UserAgent: userAgentFromContext(ctx),
		IPAddress: clientIPFromContext(ctx),
	}, flows.LoginDeps{
		RequireVerifiedEmail: e.config.EmailVerification.RequireForLogin,
		UpgradeHashOnLogin:   e.config.Password.UpgradeOnLogin,
		RateLimit: flows.RateRule{
			Limit:    e.config.RateLimit.Login.Limit,
			Window:   e.config.RateLimit.Login.Window,
			FailOpen: e.config.RateLimit.FailOpen,
		},
		Now:       e.now,
		Limiter:   e.limiter,
		Users:     e.store.Users(),
		Lockout:   e.lockout,
		Hasher:    e.hasher,
		Equalizer: e.equalizer,
		Sessions:  e.sessions,
		Access:    e.access,
		Refresh:   e.refresh,
		Hooks:     e.hooks(),
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			LockoutTriggered: int(MetricLockoutTriggered),
			SessionCreated:   int(MetricSessionCreated),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
		},
	})
	if err != nil {
		return nil, finish(span, correlationID, err)
	}
	span.SetAttributes(attribute.String("user_id", res.UserID))
	_ = finish(span, correlationID, nil)

	return &AuthResult{
		UserID:           res.UserID,
		SessionID:        res.SessionID,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		CorrelationID:    correlationID,
	}, nil
}

/*
====================================
REFRESH
====================================
*/

// Refresh rotates refreshToken into a new access and refresh pair bound to the
// same session. A refresh token is accepted at most once.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, span, correlationID := e.startSpan(ctx, "Refresh")

	pair, err := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		Refresh: e.refresh,
		Access:  e.access,
		Hooks:   e.hooks(),
		Metrics: flows.RefreshMetrics{
			RefreshSuccess:       int(MetricRefreshSuccess),
			RefreshFailure:       int(MetricRefreshFailure),
			RefreshReuseDetected: int(MetricRefreshReuseDetected),
			SessionInvalidated:   int(MetricSessionInvalidated),
		},
		Events: flows.RefreshEvents{
			RefreshSuccess:       auditEventRefreshSuccess,
			RefreshFailure:       auditEventRefreshFailure,
			RefreshReuseDetected: auditEventRefreshReuseDetected,
		},
	})
	if err != nil {
		return nil, finish(span, correlationID, err)
	}
	_ = finish(span, correlationID, nil)

	return &AuthResult{
		UserID:           pair.UserID,
		SessionID:        pair.SessionID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		CorrelationID:    correlationID,
	}, nil
}

// subjectResolver re-reads the account and session before a refresh so a
// disabled account or a terminated session cannot mint new tokens.
type subjectResolver struct{ engine *Engine }

func (r subjectResolver) ResolveSubject(ctx context.Context, userID, sessionID string) (jwt.Subject, error) {
	e := r.engine
	sess, err := e.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return jwt.Subject{}, err
	}
	if sess.UserID != userID {
		return jwt.Subject{}, autherr.ErrInvalidToken
	}
	u, err := e.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return jwt.Subject{}, autherr.ErrInvalidToken
		}
		return jwt.Subject{}, err
	}
	switch {
	case u.Status == user.StatusDisabled:
		return jwt.Subject{}, autherr.ErrAccountDisabled
	case e.lockout.IsLocked(u):
		return jwt.Subject{}, autherr.ErrAccountLocked
	}
	return jwt.Subject{UserID: u.ID, Email: u.Email, Role: u.Role, SessionID: sessionID}, nil
}

/*
====================================
ACCESS VALIDATION
====================================
*/

// ValidateAccess verifies an access token. The token must be signed, unexpired,
// of type ACCESS and not revoked; with Security.ValidateSessionOnAccess its
// session must also still be active.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	claims, err := e.access.Verify(ctx, accessToken)
	if err == nil && e.config.Security.ValidateSessionOnAccess {
		_, err = e.sessions.ValidateSession(ctx, claims.SID)
	}
	if err != nil {
		e.metricInc(MetricValidateFailure)
		ae := autherr.Classify(err)
		ae.CorrelationID = CorrelationIDFromContext(ctx)
		return nil, ae
	}
	e.metricInc(MetricValidateSuccess)

	return &AccessClaims{
		UserID:    claims.UserID(),
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SID,
		TokenID:   claims.TokenID(),
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

/*
====================================
LOGOUT AND SESSIONS
====================================
*/

// Logout terminates sessionID, its refresh tokens and its access tokens.
// Unknown or already terminated sessions are a no-op.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	sess, err := e.store.Sessions().Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil
	case err != nil:
		return autherr.Internal(err).WithCorrelation(correlationID)
	}
	if err := e.terminate(ctx, sessionID); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, sess.UserID, sessionID, err, nil)
		return autherr.Classify(err).WithCorrelation(correlationID)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, sess.UserID, sessionID, nil, nil)
	return nil
}

// LogoutWithToken revokes accessToken and terminates its session.
func (e *Engine) LogoutWithToken(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	claims, err := e.access.Invalidate(ctx, accessToken)
	if err != nil {
		return autherr.Classify(err).WithCorrelation(correlationID)
	}
	if claims == nil {
		return nil
	}
	return e.Logout(ctx, claims.SID)
}

// ListSessions returns the active sessions of userID, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	list, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, autherr.Classify(err).WithCorrelation(CorrelationIDFromContext(ctx))
	}
	return list, nil
}

// TerminateSession ends one session of userID. A session owned by another user
// is reported as ErrSessionNotFound.
func (e *Engine) TerminateSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	sess, err := e.store.Sessions().Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return autherr.New(autherr.ErrSessionNotFound).WithUser(userID).WithCorrelation(correlationID)
	case err != nil:
		return autherr.Internal(err).WithUser(userID).WithCorrelation(correlationID)
	}
	if sess.UserID != userID || sess.Revoked {
		return autherr.New(autherr.ErrSessionNotFound).WithUser(userID).WithCorrelation(correlationID)
	}

	if err := e.terminate(ctx, sessionID); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, userID, sessionID, err, nil)
		return autherr.Classify(err).WithUser(userID).WithCorrelation(correlationID)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, userID, sessionID, nil, nil)
	return nil
}

// TerminateAllSessions ends every session of userID.
func (e *Engine) TerminateAllSessions(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, correlationID := ensureCorrelation(ctx)

	n, err := e.terminateAll(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, userID, "", err, nil)
		return autherr.Classify(err).WithUser(userID).WithCorrelation(correlationID)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": itoa(n)}
	})
	return nil
}

// terminate revokes one session with its refresh and access tokens.
func (e *Engine) terminate(ctx context.Context, sessionID string) error {
	if err := e.sessions.InvalidateSession(ctx, sessionID); err != nil {
		return err
	}
	if _, err := e.refresh.RevokeAll(ctx, refresh.Filter{SessionID: sessionID}); err != nil {
		return err
	}
	if err := e.access.InvalidateSession(ctx, sessionID); err != nil {
		return err
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// terminateAll revokes every session of userID and returns how many were live.
func (e *Engine) terminateAll(ctx context.Context, userID string) (int, error) {
	ids, err := e.sessions.InvalidateAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if _, err := e.refresh.RevokeAll(ctx, refresh.Filter{UserID: userID}); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := e.access.InvalidateSession(ctx, id); err != nil {
			return 0, err
		}
		e.metricInc(MetricSessionInvalidated)
	}
	return len(ids), nil
}

/*
====================================
HOUSEKEEPING
====================================
*/

// Sweep purges sessions, refresh tokens and consumed token ids that expired
// more than Session.Retention ago. Nothing depends on it for correctness.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if err := e.ready(); err != nil {
		return SweepResult{}, err
	}
	e.metricInc(MetricSweepRun)
	retention := e.config.Session.Retention

	var res SweepResult
	var err error
	if res.Sessions, err = e.sessions.Purge(ctx, retention); err != nil {
		e.metricInc(MetricSweepFailure)
		return res, autherr.Internal(err)
	}
	if res.RefreshTokens, err = e.refresh.Purge(ctx, retention); err != nil {
		e.metricInc(MetricSweepFailure)
		return res, autherr.Internal(err)
	}
	if res.ConsumedTokens, err = e.store.PurgeConsumed(ctx, e.now()); err != nil {
		e.metricInc(MetricSweepFailure)
		return res, autherr.Internal(err)
	}
	e.logger.Debug("sweep finished",
		zap.Int64("sessions", res.Sessions),
		zap.Int64("refresh_tokens", res.RefreshTokens),
		zap.Int64("consumed_tokens", res.ConsumedTokens),
	)
	return res, nil
}
