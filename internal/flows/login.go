package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/access"
	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/user"
	"go.uber.org/zap"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	UserID           string
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	LockoutTriggered int
	SessionCreated   int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	RequireVerifiedEmail bool
	UpgradeHashOnLogin   bool
	RateLimit            RateRule
	Now                  func() time.Time

	Limiter   RateLimiter
	Users     user.Store
	Lockout   *limiters.LockoutManager
	Hasher    password.Hasher
	Equalizer *password.Equalizer
	Sessions  *session.Manager
	Access    *access.Service
	Refresh   *refresh.Service

	Hooks
	Metrics LoginMetrics
	Events  LoginEvents
}

// LoginKey is the rate limit key for a client address.
func LoginKey(ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return "login:ip:" + ip
}

// RunLogin executes the gates RATE_LIMIT_CHECK, USER_LOOKUP, STATUS_CHECK,
// PASSWORD_CHECK, EMAIL_VERIFIED_CHECK and SESSION_ISSUE strictly in order.
func RunLogin(ctx context.Context, email, pw string, meta session.Meta, deps LoginDeps) (*LoginResult, error) {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	email = user.NormalizeEmail(email)

	fail := func(userID, reason string, err *autherr.Error) (*LoginResult, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, userID, "", err, func() map[string]string {
			return map[string]string{"identifier": email, "reason": reason}
		})
		return nil, err
	}

	// RATE_LIMIT_CHECK
	if err := checkRate(ctx, deps.Limiter, deps.RateLimit, LoginKey(meta.IPAddress), deps.Warn); err != nil {
		ae := autherr.Classify(err)
		if errors.Is(ae, autherr.ErrRateLimitExceeded) {
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			deps.EmitAudit(ctx, deps.Events.LoginRateLimited, "", "", ae, func() map[string]string {
				return map[string]string{
					"identifier":  email,
					"retry_after": strconv.FormatInt(int64(ae.RetryAfter/time.Second), 10),
				}
			})
			return nil, ae
		}
		return fail("", "rate_limiter_unavailable", ae)
	}

	// USER_LOOKUP
	u, err := deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			deps.Equalizer.Burn(pw)
			return fail("", "user_not_found", domain(autherr.ErrInvalidCredentials, ""))
		}
		return fail("", "user_lookup_failed", internal(err, ""))
	}

	// STATUS_CHECK
	switch u.Status {
	case user.StatusDisabled:
		return fail(u.ID, "account_disabled", domain(autherr.ErrAccountDisabled, u.ID))
	case user.StatusLocked:
		if deps.Lockout.IsLocked(u) {
			e := domain(autherr.ErrAccountLocked, u.ID)
			e.LockedUntil = *u.LockedUntil
			return fail(u.ID, "account_locked", e)
		}
		if _, err := deps.Lockout.ClearIfExpired(ctx, u); err != nil {
			return fail(u.ID, "lock_clear_failed", internal(err, u.ID))
		}
	}

	// PASSWORD_CHECK
	ok, err := deps.Hasher.Verify(pw, u.PasswordHash)
	if err != nil {
		return fail(u.ID, "password_verify_failed", internal(err, u.ID))
	}
	if !ok {
		res, err := deps.Lockout.RecordFailure(ctx, u.ID)
		if err != nil {
			return fail(u.ID, "record_failure_failed", internal(err, u.ID))
		}
		if res.Locked {
			deps.MetricInc(deps.Metrics.LockoutTriggered)
			e := domain(autherr.ErrAccountLocked, u.ID)
			e.LockedUntil = res.LockedUntil
			return fail(u.ID, "lockout_triggered", e)
		}
		return fail(u.ID, "wrong_password", domain(autherr.ErrInvalidCredentials, u.ID))
	}

	// EMAIL_VERIFIED_CHECK
	if deps.RequireVerifiedEmail && !u.EmailVerified() {
		return fail(u.ID, "email_not_verified", domain(autherr.ErrEmailNotVerified, u.ID))
	}

	// SESSION_ISSUE
	if err := deps.Lockout.RecordSuccess(ctx, u.ID); err != nil {
		return fail(u.ID, "record_success_failed", classify(err, u.ID))
	}

	sess, err := deps.Sessions.CreateSession(ctx, u.ID, meta)
	if err != nil {
		return fail(u.ID, "session_create_failed", classify(err, u.ID))
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	abort := func(reason string, cause error) (*LoginResult, error) {
		cctx, cancel := detached(ctx)
		defer cancel()
		if err := deps.Sessions.InvalidateSession(cctx, sess.ID); err != nil {
			deps.Warn("failed to revoke session after token issue failure", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return fail(u.ID, reason, internal(cause, u.ID))
	}

	accessToken, accessExp, err := deps.Access.Issue(u.ID, u.Email, u.Role, sess.ID)
	if err != nil {
		return abort("access_issue_failed", err)
	}
	refreshToken, refreshExp, err := deps.Refresh.Issue(ctx, u.ID, sess.ID)
	if err != nil {
		return abort("refresh_issue_failed", err)
	}

	if deps.UpgradeHashOnLogin {
		upgradeHash(ctx, deps, u, pw)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, u.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"identifier": email}
	})

	return &LoginResult{
		UserID:           u.ID,
		SessionID:        sess.ID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func upgradeHash(ctx context.Context, deps LoginDeps, u *user.User, pw string) {
	needs, err := deps.Hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := deps.Hasher.Hash(pw)
	if err != nil {
		deps.Warn("password rehash failed", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	if err := deps.Users.UpdatePasswordHash(ctx, u.ID, hash, deps.Now()); err != nil {
		deps.Warn("password hash upgrade not persisted", zap.String("user_id", u.ID), zap.Error(err))
	}
}
