package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables read as flag defaults.
const (
	envDatabaseURL = "GOIDENTITY_DATABASE_URL"
	envRedisAddr   = "GOIDENTITY_REDIS_ADDR"
	envAMQPURL     = "GOIDENTITY_AMQP_URL"
	envLogLevel    = "GOIDENTITY_LOG_LEVEL"
	envLogFormat   = "GOIDENTITY_LOG_FORMAT"
)

type options struct {
	configPath  string
	databaseURL string
	redisAddr   string
	logLevel    string
	logFormat   string

	logger *zap.Logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "goidentity",
		Short:         "Maintenance commands for goIdentity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv("GOIDENTITY_CONFIG"), "engine config file (YAML)")
	flags.StringVar(&opts.databaseURL, "database-url", os.Getenv(envDatabaseURL), "postgres connection url")
	flags.StringVar(&opts.redisAddr, "redis-addr", os.Getenv(envRedisAddr), "redis address for shared revocation and rate state")
	flags.StringVar(&opts.logLevel, "log-level", envOr(envLogLevel, "info"), "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", envOr(envLogFormat, "json"), "json or console")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newSweepCmd(opts),
		newUnlockCmd(opts),
		newResetPasswordCmd(opts),
	)
	return wrapErrors(cmd, opts)
}

// wrapErrors logs a failing subcommand once through the configured logger.
func wrapErrors(cmd *cobra.Command, opts *options) *cobra.Command {
	for _, sub := range cmd.Commands() {
		run := sub.RunE
		if run == nil {
			continue
		}
		sub.RunE = func(c *cobra.Command, args []string) error {
			err := run(c, args)
			if err != nil {
				if opts.logger != nil {
					opts.logger.Error("command failed", zap.String("command", c.Name()), zap.Error(err))
				} else {
					fmt.Fprintln(os.Stderr, err)
				}
			}
			return err
		}
	}
	return cmd
}

func newLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or console", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func (o *options) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if o.databaseURL == "" {
		return nil, errors.New("database url is required (--database-url or " + envDatabaseURL + ")")
	}
	return postgres.Connect(ctx, o.databaseURL, 4)
}

// runtime is an engine built over postgres plus whatever it must release.
type runtime struct {
	engine *goIdentity.Engine
	pool   *pgxpool.Pool
	redis  *redis.Client
}

func (r *runtime) Close() {
	r.engine.Close()
	if r.redis != nil {
		_ = r.redis.Close()
	}
	r.pool.Close()
}

// build loads the engine config and wires an Engine. mutate may adjust the
// config and builder before Build.
func (o *options) build(ctx context.Context, mutate func(*goIdentity.Config, *goIdentity.Builder)) (*runtime, error) {
	cfg, err := goIdentity.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	pool, err := o.connect(ctx)
	if err != nil {
		return nil, err
	}
	store, err := postgres.New(pool, nil)
	if err != nil {
		pool.Close()
		return nil, err
	}

	rt := &runtime{pool: pool}
	b := goIdentity.New().WithStore(store).WithLogger(o.logger)
	if o.redisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: o.redisAddr})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			_ = rt.redis.Close()
			pool.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b = b.WithRedis(rt.redis)
	}
	if mutate != nil {
		mutate(&cfg, b)
	}

	rt.engine, err = b.WithConfig(cfg).Build()
	if err != nil {
		if rt.redis != nil {
			_ = rt.redis.Close()
		}
		pool.Close()
		return nil, err
	}
	return rt, nil
}
