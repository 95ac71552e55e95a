package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/access"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/sweeper"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/verification"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/goIdentity"

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	store  Store
	redis  redis.UniversalClient

	logger         *zap.Logger
	auditSink      AuditSink
	mailer         EmailSender
	limiter        RateLimiter
	hasher         password.Hasher
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend. Without one the engine keeps all
// state in process memory.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithRedis shares the revocation set, consumed token ids and rate limit
// counters through client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger for swallowed failures and warnings.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events are delivered.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithEmailSender sets the mail transport for verification and reset tokens.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.mailer = sender
	return b
}

// WithRateLimiter overrides the limiter derived from WithRedis.
func (b *Builder) WithRateLimiter(l RateLimiter) *Builder {
	b.limiter = l
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock overrides time.Now for every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("goidentity")
	now := b.now
	if now == nil {
		now = time.Now
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	// -------- STORE --------
	store := b.store
	if store == nil {
		logger.Warn("no store configured, using in-memory store; state is lost on restart and not shared between instances")
		store = memory.New(now)
	}

	// -------- TOKENS --------
	codec, err := jwt.NewCodec(jwt.Config{
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt codec: %w", err)
	}

	hasher := b.hasher
	if hasher == nil {
		hasher, err = newHasher(cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("password hasher: %w", err)
		}
	}
	equalizer, err := password.NewEqualizer(hasher)
	if err != nil {
		return nil, fmt.Errorf("password equalizer: %w", err)
	}

	// -------- SHARED STATE --------
	var (
		revocations access.RevocationStore
		consumed    verification.ConsumedStore
		limiter     = b.limiter
	)
	if b.redis != nil {
		revocations = access.NewRedisRevocationStore(b.redis, cfg.Security.RedisPrefix+"revoked:")
		consumed = verification.NewRedisConsumedStore(b.redis, cfg.Security.RedisPrefix+"consumed:", now)
		if limiter == nil {
			limiter = rate.New(b.redis, cfg.RateLimit.RedisPrefix)
		}
	} else {
		logger.Warn("no redis client configured, access token revocation is process local")
		revocations = access.NewMemoryRevocationStore(now)
		consumed = store.ConsumedTokens()
		if limiter == nil {
			limiter = rate.NewMemory(now)
		}
	}

	// -------- SERVICES --------
	sessions, err := session.NewManager(store.Sessions(), session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		Lifetime:    cfg.Session.Lifetime,
		Sliding:     cfg.Session.Sliding,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	accessSvc, err := access.NewService(codec, revocations, access.Config{TTL: cfg.JWT.AccessTTL, Now: now})
	if err != nil {
		return nil, err
	}
	verifier, err := verification.NewService(codec, consumed)
	if err != nil {
		return nil, err
	}
	lockout, err := limiters.NewLockoutManager(store.Users(), limiters.LockoutConfig{
		MaxAttempts:  cfg.Lockout.MaxAttempts,
		LockDuration: cfg.Lockout.Duration,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		tracer:       tp.Tracer(tracerName),
		now:          now,
		store:        store,
		hasher:       hasher,
		equalizer:    equalizer,
		lockout:      lockout,
		limiter:      limiter,
		sessions:     sessions,
		access:       accessSvc,
		verification: verifier,
		mailer:       b.mailer,
		metrics:      NewMetrics(cfg.Metrics),
	}

	engine.refresh, err = refresh.NewService(refresh.Deps{
		Store:    store.RefreshTokens(),
		Codec:    codec,
		Subjects: subjectResolver{engine: engine},
		Access:   accessSvc,
		Sessions: sessions,
	}, refresh.Config{
		TTL:                  cfg.JWT.RefreshTTL,
		RevokeSessionOnReuse: cfg.Security.RevokeSessionOnRefreshReuse,
		ReuseGrace:           cfg.Security.RefreshReuseGrace,
		Now:                  now,
	})
	if err != nil {
		return nil, err
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	if cfg.Sweep.Enabled {
		engine.sweeper, err = sweeper.New(func(ctx context.Context) error {
			_, err := engine.Sweep(ctx)
			return err
		}, sweeper.Config{Schedule: cfg.Sweep.Schedule, Timeout: cfg.Sweep.Timeout, Logger: logger})
		if err != nil {
			engine.audit.Close()
			return nil, err
		}
		engine.sweeper.Start()
	}

	b.built = true
	return engine, nil
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	switch cfg.Algorithm {
	case "argon2":
		return password.NewArgon2(password.Argon2Config{
			Memory:      cfg.Argon2.Memory,
			Time:        cfg.Argon2.Time,
			Parallelism: cfg.Argon2.Parallelism,
			SaltLength:  cfg.Argon2.SaltLength,
			KeyLength:   cfg.Argon2.KeyLength,
		})
	default:
		return password.NewBcrypt(password.BcryptConfig{Cost: cfg.BcryptCost})
	}
}
