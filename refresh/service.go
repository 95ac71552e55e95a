package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/google/uuid"
)

// DefaultTTL is the refresh token lifetime.
const DefaultTTL = 7 * 24 * time.Hour

// ErrReuseDetected marks a refresh attempt with an already revoked record.
var ErrReuseDetected = errors.New("refresh token reuse detected")

// ReuseError is returned by Refresh when a revoked record is presented again.
// It matches both autherr.ErrTokenRevoked and ErrReuseDetected.
type ReuseError struct {
	UserID         string
	SessionID      string
	SessionRevoked bool
}

func (e *ReuseError) Error() string { return ErrReuseDetected.Error() }

func (e *ReuseError) Unwrap() []error {
	return []error{autherr.ErrTokenRevoked, ErrReuseDetected}
}

// SubjectResolver loads the principal a rotated pair is issued for. It fails
// when the account can no longer authenticate or the session is gone.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, userID, sessionID string) (jwt.Subject, error)
}

// AccessIssuer signs access tokens.
type AccessIssuer interface {
	IssueFor(sub jwt.Subject) (string, time.Time, error)
}

// SessionRevoker revokes a session after reuse is detected.
type SessionRevoker interface {
	InvalidateSession(ctx context.Context, id string) error
}

// Pair is the result of a successful rotation.
type Pair struct {
	UserID           string
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Config configures a Service.
type Config struct {
	TTL time.Duration
	// RevokeSessionOnReuse revokes the session and all its refresh records when
	// an already revoked record is presented.
	RevokeSessionOnReuse bool
	// ReuseGrace treats a record consumed less than ReuseGrace ago as a lost
	// rotation race instead of reuse. Zero disables the window.
	ReuseGrace time.Duration
	Now        func() time.Time
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    Store
	Codec    *jwt.Codec
	Subjects SubjectResolver
	Access   AccessIssuer
	Sessions SessionRevoker
}

// Service is safe for concurrent use.
type Service struct {
	store    Store
	codec    *jwt.Codec
	subjects SubjectResolver
	access   AccessIssuer
	sessions SessionRevoker
	cfg      Config
}

// NewService wires a Service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil || deps.Codec == nil || deps.Subjects == nil || deps.Access == nil {
		return nil, errors.New("refresh service requires store, codec, subject resolver and access issuer")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("refresh ttl must be positive")
	}
	if cfg.ReuseGrace < 0 {
		return nil, errors.New("refresh reuse grace must not be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    deps.Store,
		codec:    deps.Codec,
		subjects: deps.Subjects,
		access:   deps.Access,
		sessions: deps.Sessions,
		cfg:      cfg,
	}, nil
}

// Issue persists a record for the session and returns its signed token.
func (s *Service) Issue(ctx context.Context, userID, sessionID string) (string, time.Time, error) {
	now := s.cfg.Now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return "", time.Time{}, fmt.Errorf("create refresh record: %w", err)
	}

	token, _, err := s.codec.IssueWithID(jwt.TypeRefresh, jwt.Subject{UserID: userID, SessionID: sessionID}, rec.ID, s.cfg.TTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, rec.ExpiresAt, nil
}

// Refresh rotates token into a new access and refresh pair for the same session.
func (s *Service) Refresh(ctx context.Context, token string) (*Pair, error) {
	claims, err := s.codec.Parse(token, jwt.TypeRefresh)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, claims.TokenID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, autherr.ErrInvalidToken
		}
		return nil, fmt.Errorf("get refresh record: %w", err)
	}
	if rec.UserID != claims.UserID() || rec.SessionID != claims.SID {
		return nil, autherr.ErrInvalidToken
	}

	now := s.cfg.Now()
	if rec.Revoked {
		if s.withinGrace(rec, now) {
			return nil, autherr.ErrTokenRevoked
		}
		return nil, s.handleReuse(ctx, rec)
	}

	if rec.ExpiresAt.Before(now) {
		return nil, autherr.ErrTokenExpired
	}

	consumed, err := s.store.Consume(ctx, rec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume refresh record: %w", err)
	}
	if !consumed {
		return nil, autherr.ErrTokenRevoked
	}

	sub, err := s.subjects.ResolveSubject(ctx, rec.UserID, rec.SessionID)
	if err != nil {
		return nil, err
	}
	sub.SessionID = rec.SessionID

	accessToken, accessExp, err := s.access.IssueFor(sub)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, refreshExp, err := s.Issue(ctx, rec.UserID, rec.SessionID)
	if err != nil {
		return nil, err
	}

	return &Pair{
		UserID:           rec.UserID,
		SessionID:        rec.SessionID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) withinGrace(rec *Record, now time.Time) bool {
	if s.cfg.ReuseGrace <= 0 || rec.RevokedAt == nil {
		return false
	}
	return now.Sub(*rec.RevokedAt) < s.cfg.ReuseGrace
}

func (s *Service) handleReuse(ctx context.Context, rec *Record) error {
	reuse := &ReuseError{UserID: rec.UserID, SessionID: rec.SessionID}
	if !s.cfg.RevokeSessionOnReuse {
		return reuse
	}

	if _, err := s.store.Revoke(ctx, Filter{SessionID: rec.SessionID}, s.cfg.Now()); err != nil {
		return fmt.Errorf("revoke session refresh records: %w", err)
	}
	if s.sessions != nil {
		if err := s.sessions.InvalidateSession(ctx, rec.SessionID); err != nil {
			return fmt.Errorf("revoke reused session: %w", err)
		}
	}
	reuse.SessionRevoked = true
	return reuse
}

// RevokeAll revokes every record matching f.
func (s *Service) RevokeAll(ctx context.Context, f Filter) (int64, error) {
	if f.Empty() {
		return 0, errors.New("refresh revoke filter is empty")
	}
	n, err := s.store.Revoke(ctx, f, s.cfg.Now())
	if err != nil {
		return 0, fmt.Errorf("revoke refresh records: %w", err)
	}
	return n, nil
}

// Purge deletes records that expired more than retention ago.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.PurgeExpired(ctx, s.cfg.Now().Add(-retention))
}
