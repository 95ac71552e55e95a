package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
)

// DefaultTTL is the access token lifetime.
const DefaultTTL = 24 * time.Hour

// RevocationStore is a shared set of revoked keys with per-key expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, key string, ttl time.Duration) error
	// IsRevoked reports whether any of keys is in the set.
	IsRevoked(ctx context.Context, keys ...string) (bool, error)
}

// TokenKey is the revocation key of a single token.
func TokenKey(jti string) string { return "jti:" + jti }

// SessionKey is the revocation key that covers every token of a session.
func SessionKey(sessionID string) string { return "sid:" + sessionID }

// Config configures a Service.
type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	codec       *jwt.Codec
	revocations RevocationStore
	cfg         Config
}

// NewService wires a Service.
func NewService(codec *jwt.Codec, revocations RevocationStore, cfg Config) (*Service, error) {
	if codec == nil || revocations == nil {
		return nil, errors.New("access service requires codec and revocation store")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("access ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{codec: codec, revocations: revocations, cfg: cfg}, nil
}

// TTL returns the configured access token lifetime.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Issue signs an access token bound to sessionID.
func (s *Service) Issue(userID, email, role, sessionID string) (string, time.Time, error) {
	return s.IssueFor(jwt.Subject{UserID: userID, Email: email, Role: role, SessionID: sessionID})
}

// IssueFor signs an access token for sub.
func (s *Service) IssueFor(sub jwt.Subject) (string, time.Time, error) {
	if sub.SessionID == "" {
		return "", time.Time{}, errors.New("access token requires a session id")
	}
	token, claims, err := s.codec.Issue(jwt.TypeAccess, sub, s.cfg.TTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAtTime(), nil
}

// Verify parses token and rejects it when its id or session is revoked.
func (s *Service) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.codec.Parse(token, jwt.TypeAccess)
	if err != nil {
		return nil, err
	}
	if claims.SID == "" {
		return nil, autherr.ErrInvalidToken
	}

	revoked, err := s.revocations.IsRevoked(ctx, TokenKey(claims.TokenID()), SessionKey(claims.SID))
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, autherr.ErrTokenRevoked
	}
	return claims, nil
}

// Invalidate revokes token until its expiry. Already expired tokens need no entry.
func (s *Service) Invalidate(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.codec.Parse(token, jwt.TypeAccess)
	if err != nil {
		if errors.Is(err, autherr.ErrTokenExpired) {
			return nil, nil
		}
		return nil, err
	}

	ttl := claims.ExpiresAtTime().Sub(s.cfg.Now())
	if ttl <= 0 {
		return claims, nil
	}
	if err := s.revocations.Revoke(ctx, TokenKey(claims.TokenID()), ttl); err != nil {
		return nil, fmt.Errorf("revoke access token: %w", err)
	}
	return claims, nil
}

// InvalidateSession revokes every access token already issued for sessionID.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, SessionKey(sessionID), s.cfg.TTL); err != nil {
		return fmt.Errorf("revoke session access tokens: %w", err)
	}
	return nil
}
