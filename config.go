package goIdentity

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/sweeper"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"gopkg.in/yaml.v2"
)

// Environment variables consulted by LoadConfig.
const (
	EnvJWTSecret     = "GOIDENTITY_JWT_SECRET"
	EnvJWTPrivateKey = "GOIDENTITY_JWT_PRIVATE_KEY"
	EnvJWTPublicKey  = "GOIDENTITY_JWT_PUBLIC_KEY"
)

// Config defines every tunable of an Engine.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT               JWTConfig               `yaml:"jwt"`
	Session           SessionConfig           `yaml:"session"`
	Password          PasswordConfig          `yaml:"password"`
	Lockout           LockoutConfig           `yaml:"lockout"`
	RateLimit         RateLimitConfig         `yaml:"rate_limit"`
	PasswordReset     PasswordResetConfig     `yaml:"password_reset"`
	EmailVerification EmailVerificationConfig `yaml:"email_verification"`
	Audit             AuditConfig             `yaml:"audit"`
	Metrics           MetricsConfig           `yaml:"metrics"`
	Security          SecurityConfig          `yaml:"security"`
	Sweep             SweepConfig             `yaml:"sweep"`

	// LoginTimeout bounds one login attempt end to end.
	LoginTimeout time.Duration `yaml:"login_timeout"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing. Key material is never read from YAML
// directly; use the *File fields or the GOIDENTITY_JWT_* environment variables.
type JWTConfig struct {
	AccessTTL      time.Duration `yaml:"access_ttl"`
	RefreshTTL     time.Duration `yaml:"refresh_ttl"`
	SigningMethod  string        `yaml:"signing_method"` // "hs256" (default) or "ed25519"
	PrivateKey     []byte        `yaml:"-"`
	PublicKey      []byte        `yaml:"-"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	Leeway         time.Duration `yaml:"leeway"`
	KeyID          string        `yaml:"key_id"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures server-side sessions.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	Lifetime    time.Duration `yaml:"lifetime"`
	Sliding     bool          `yaml:"sliding"`
	// Retention keeps expired and revoked rows this long before Sweep purges them.
	Retention time.Duration `yaml:"retention"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects and tunes the password hasher.
type PasswordConfig struct {
	Algorithm      string       `yaml:"algorithm"` // "bcrypt" (default) or "argon2"
	BcryptCost     int          `yaml:"bcrypt_cost"`
	Argon2         Argon2Config `yaml:"argon2"`
	MinLength      int          `yaml:"min_length"`
	MaxLength      int          `yaml:"max_length"`
	UpgradeOnLogin bool         `yaml:"upgrade_on_login"`
}

// Argon2Config mirrors password.Argon2Config for YAML.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory_kb"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

/*
====================================
LOCKOUT AND RATE LIMIT CONFIG
====================================
*/

// LockoutConfig configures brute-force lockout.
type LockoutConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Duration    time.Duration `yaml:"duration"`
}

// RateRuleConfig is one fixed-window limit. A zero Limit disables it.
type RateRuleConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	RedisPrefix string         `yaml:"redis_prefix"`
	Login       RateRuleConfig `yaml:"login"`
	// FailOpen admits requests when the limiter backend is unavailable.
	FailOpen bool `yaml:"fail_open"`
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// PasswordResetConfig configures password reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration  `yaml:"token_ttl"`
	Request  RateRuleConfig `yaml:"request"`
}

// EmailVerificationConfig configures email verification tokens.
type EmailVerificationConfig struct {
	TokenTTL        time.Duration  `yaml:"token_ttl"`
	RequireForLogin bool           `yaml:"require_for_login"`
	Request         RateRuleConfig `yaml:"request"`
}

/*
====================================
AUDIT / METRICS / SECURITY CONFIG
====================================
*/

// AuditConfig configures asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// SecurityConfig groups revocation behaviour.
type SecurityConfig struct {
	// RevokeSessionOnRefreshReuse revokes a session when one of its consumed
	// refresh tokens is presented again.
	RevokeSessionOnRefreshReuse bool `yaml:"revoke_session_on_refresh_reuse"`
	// RefreshReuseGrace is how long a just-rotated refresh token is answered
	// with a plain revocation instead of triggering reuse handling.
	RefreshReuseGrace time.Duration `yaml:"refresh_reuse_grace"`
	// ValidateSessionOnAccess checks the session row on every ValidateAccess.
	// Session revocation (logout, password reset, reuse detection) also writes
	// the session id to the access revocation store, but a failed write there
	// is only logged. With this off, the access tokens of such a session then
	// stay valid until they expire (JWT.AccessTTL).
	ValidateSessionOnAccess bool   `yaml:"validate_session_on_access"`
	RedisPrefix             string `yaml:"redis_prefix"`
}

// SweepConfig configures periodic housekeeping.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every default applied. JWT key
// material must still be supplied.
func DefaultConfig() Config {
	argon := password.DefaultArgon2Config()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "goidentity",
		},
		Session: SessionConfig{
			MaxSessions: 5,
			Lifetime:    7 * 24 * time.Hour,
			Retention:   24 * time.Hour,
		},
		Password: PasswordConfig{
			Algorithm:  "bcrypt",
			BcryptCost: password.DefaultBcryptCost,
			Argon2: Argon2Config{
				Memory:      argon.Memory,
				Time:        argon.Time,
				Parallelism: argon.Parallelism,
				SaltLength:  argon.SaltLength,
				KeyLength:   argon.KeyLength,
			},
			MinLength:      8,
			MaxLength:      72,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "goidentity:rl:",
			Login:       RateRuleConfig{Limit: 20, Window: time.Minute},
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
			Request:  RateRuleConfig{Limit: 5, Window: time.Hour},
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:        24 * time.Hour,
			RequireForLogin: true,
			Request:         RateRuleConfig{Limit: 5, Window: time.Hour},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			RevokeSessionOnRefreshReuse: true,
			RefreshReuseGrace:           2 * time.Second,
			ValidateSessionOnAccess:     true,
			RedisPrefix:                 "goidentity:",
		},
		Sweep: SweepConfig{
			Schedule: sweeper.DefaultSchedule,
			Timeout:  time.Minute,
		},
		LoginTimeout: 10 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads a YAML file over DefaultConfig, loads key files and applies
// the GOIDENTITY_JWT_* environment overrides. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.loadKeys(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadKeys() error {
	if c.JWT.PrivateKeyFile != "" {
		b, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read jwt private key: %w", err)
		}
		c.JWT.PrivateKey = b
	}
	if c.JWT.PublicKeyFile != "" {
		b, err := os.ReadFile(c.JWT.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("read jwt public key: %w", err)
		}
		c.JWT.PublicKey = b
	}
	if v := os.Getenv(EnvJWTSecret); v != "" && strings.EqualFold(c.JWT.SigningMethod, string(jwt.MethodHS256)) {
		c.JWT.PrivateKey = []byte(v)
	}
	if v := os.Getenv(EnvJWTPrivateKey); v != "" {
		c.JWT.PrivateKey = []byte(v)
	}
	if v := os.Getenv(EnvJWTPublicKey); v != "" {
		c.JWT.PublicKey = []byte(v)
	}
	return nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	switch jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)) {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Session
	if c.Session.MaxSessions <= 0 {
		return errors.New("Session MaxSessions must be > 0")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}

	// Password
	switch c.Password.Algorithm {
	case "bcrypt", "argon2":
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.Algorithm == "bcrypt" && c.Password.MaxLength > 72 {
		return errors.New("Password MaxLength must be <= 72 for bcrypt")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Rate limits
	for name, rule := range map[string]RateRuleConfig{
		"RateLimit Login":           c.RateLimit.Login,
		"PasswordReset Request":     c.PasswordReset.Request,
		"EmailVerification Request": c.EmailVerification.Request,
	} {
		if rule.Limit < 0 {
			return fmt.Errorf("%s Limit must be >= 0", name)
		}
		if rule.Limit > 0 && rule.Window <= 0 {
			return fmt.Errorf("%s Window must be > 0 when Limit is set", name)
		}
	}

	// Verification
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.RefreshReuseGrace < 0 || c.Security.RefreshReuseGrace > time.Minute {
		return errors.New("Security RefreshReuseGrace must be within [0, 1m]")
	}

	// Sweep
	if c.Sweep.Enabled && c.Sweep.Schedule == "" {
		return errors.New("Sweep Schedule is required when enabled")
	}
	if c.Sweep.Enabled && c.Sweep.Timeout <= 0 {
		return errors.New("Sweep Timeout must be > 0 when enabled")
	}

	if c.LoginTimeout <= 0 {
		return errors.New("LoginTimeout must be > 0")
	}
	return nil
}
