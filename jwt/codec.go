package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenType is carried in the "typ" claim.
type TokenType string

const (
	TypeAccess            TokenType = "ACCESS"
	TypeRefresh           TokenType = "REFRESH"
	TypeEmailVerification TokenType = "EMAIL_VERIFICATION"
	TypePasswordReset     TokenType = "PASSWORD_RESET"
)

// Config configures a Codec.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte // HS256 secret or Ed25519 private key (raw or PEM)
	PublicKey     []byte // Ed25519 public key (raw or PEM); derived from PrivateKey when empty
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string

	// Now overrides the clock used for iat/exp and for validation.
	Now func() time.Time
}

// Subject identifies the principal a token is issued for.
type Subject struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	// Binding ties a token to account state; verifiers compare it to a
	// fingerprint they recompute.
	Binding string
}

// Claims is the payload of every goIdentity token. The user id is the standard
// "sub" claim and the token id is "jti".
type Claims struct {
	Type  TokenType `json:"typ"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	SID   string    `json:"sid,omitempty"`
	Bnd   string    `json:"bnd,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the "sub" claim.
func (c *Claims) UserID() string { return c.Subject }

// TokenID returns the "jti" claim.
func (c *Claims) TokenID() string { return c.ID }

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Codec is safe for concurrent use.
type Codec struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// NewCodec validates cfg and resolves signing keys.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256, "":
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.PrivateKey
		c.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.method = jwt.SigningMethodEdDSA
		c.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKey = pub
		} else {
			c.verifyKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return c, nil
}

// Issue signs a token of type typ for sub with a fresh random jti.
func (c *Codec) Issue(typ TokenType, sub Subject, ttl time.Duration) (string, *Claims, error) {
	return c.IssueWithID(typ, sub, uuid.NewString(), ttl)
}

// IssueWithID signs a token whose jti is id. Refresh tokens use the id of their
// persisted row.
func (c *Codec) IssueWithID(typ TokenType, sub Subject, id string, ttl time.Duration) (string, *Claims, error) {
	if typ == "" || sub.UserID == "" || id == "" {
		return "", nil, errors.New("token type, subject and id are required")
	}
	if ttl <= 0 {
		return "", nil, errors.New("token ttl must be positive")
	}

	now := c.config.Now()
	claims := &Claims{
		Type:  typ,
		Email: sub.Email,
		Role:  sub.Role,
		SID:   sub.SessionID,
		Bnd:   sub.Binding,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ID:        id,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	token := jwt.NewWithClaims(c.method, claims)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}
	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies signature, algorithm, expiry, issuer, audience and type.
//
// Expired tokens return autherr.ErrTokenExpired; everything else that fails
// returns autherr.ErrInvalidToken.
func (c *Codec) Parse(tokenStr string, expected TokenType) (*Claims, error) {
	if tokenStr == "" {
		return nil, autherr.ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if c.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != c.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return c.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", autherr.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, autherr.ErrInvalidToken
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("%w: unexpected token type %q", autherr.ErrInvalidToken, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", autherr.ErrInvalidToken)
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	if len(key) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
