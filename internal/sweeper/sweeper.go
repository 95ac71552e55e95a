// Package sweeper runs identity housekeeping on a cron schedule.
//
// Expiry is enforced lazily on every read, so the sweeper only reclaims storage.
// A missed or failed run never affects correctness.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs a sweep every fifteen minutes.
const DefaultSchedule = "@every 15m"

// Func performs one sweep.
type Func func(ctx context.Context) error

// Config configures a Sweeper.
type Config struct {
	Schedule string
	// Timeout bounds a single run. Zero means one minute.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Sweeper schedules a Func. Overlapping runs are skipped.
type Sweeper struct {
	cron    *cron.Cron
	fn      Func
	timeout time.Duration
	logger  *zap.Logger

	running atomic.Bool
	runs    atomic.Uint64
	failed  atomic.Uint64
}

// New validates the schedule and registers fn.
func New(fn Func, cfg Config) (*Sweeper, error) {
	if fn == nil {
		return nil, errors.New("sweep func is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sweeper{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		fn:      fn,
		timeout: cfg.Timeout,
		logger:  logger.Named("sweeper"),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins scheduling in the background.
func (s *Sweeper) Start() {
	if s.running.CompareAndSwap(false, true) {
		s.cron.Start()
		s.logger.Info("sweeper started")
	}
}

// Stop halts scheduling and waits for an in-flight run or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep synchronously.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.runs.Add(1)
	if err := s.fn(ctx); err != nil {
		s.failed.Add(1)
		s.logger.Warn("sweep failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	s.logger.Debug("sweep completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Runs returns the number of sweeps attempted.
func (s *Sweeper) Runs() uint64 { return s.runs.Load() }

// Failures returns the number of failed sweeps.
func (s *Sweeper) Failures() uint64 { return s.failed.Load() }
