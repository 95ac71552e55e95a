package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
)

const (
	// DefaultEmailVerificationTTL is the lifetime of an email verification token.
	DefaultEmailVerificationTTL = 24 * time.Hour
	// DefaultPasswordResetTTL is the lifetime of a password reset token.
	DefaultPasswordResetTTL = time.Hour
)

// ConsumedStore records token ids that have been used.
type ConsumedStore interface {
	// MarkConsumed adds jti and reports whether this call was the first.
	MarkConsumed(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	// Release removes jti so the token can be presented again.
	Release(ctx context.Context, jti string) error
}

// Service is safe for concurrent use.
type Service struct {
	codec    *jwt.Codec
	consumed ConsumedStore
}

// NewService wires a Service.
func NewService(codec *jwt.Codec, consumed ConsumedStore) (*Service, error) {
	if codec == nil || consumed == nil {
		return nil, errors.New("verification service requires codec and consumed store")
	}
	return &Service{codec: codec, consumed: consumed}, nil
}

func validType(typ jwt.TokenType) bool {
	return typ == jwt.TypeEmailVerification || typ == jwt.TypePasswordReset
}

// IssueToken signs a verification token of typ for the user.
func (s *Service) IssueToken(typ jwt.TokenType, userID, email string, ttl time.Duration) (string, *jwt.Claims, error) {
	return s.IssueBoundToken(typ, userID, email, "", ttl)
}

// IssueBoundToken is IssueToken with a binding claim, usually a Fingerprint of
// the state the token is allowed to change.
func (s *Service) IssueBoundToken(typ jwt.TokenType, userID, email, binding string, ttl time.Duration) (string, *jwt.Claims, error) {
	if !validType(typ) {
		return "", nil, fmt.Errorf("unsupported verification token type %q", typ)
	}
	return s.codec.Issue(typ, jwt.Subject{UserID: userID, Email: email, Binding: binding}, ttl)
}

// Fingerprint is a short, one-way digest of secret suitable for a binding claim.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:16])
}

// Consume verifies token against expected and marks it used. A second
// consumption of the same token fails with autherr.ErrInvalidToken.
func (s *Service) Consume(ctx context.Context, token string, expected jwt.TokenType) (*jwt.Claims, error) {
	if !validType(expected) {
		return nil, fmt.Errorf("unsupported verification token type %q", expected)
	}
	claims, err := s.codec.Parse(token, expected)
	if err != nil {
		return nil, err
	}

	first, err := s.consumed.MarkConsumed(ctx, claims.TokenID(), claims.ExpiresAtTime())
	if err != nil {
		return nil, fmt.Errorf("mark token consumed: %w", err)
	}
	if !first {
		return nil, fmt.Errorf("%w: token already used", autherr.ErrInvalidToken)
	}
	return claims, nil
}

// Release undoes a consumption whose dependent state change failed.
func (s *Service) Release(ctx context.Context, jti string) error {
	if err := s.consumed.Release(ctx, jti); err != nil {
		return fmt.Errorf("release consumed token: %w", err)
	}
	return nil
}
