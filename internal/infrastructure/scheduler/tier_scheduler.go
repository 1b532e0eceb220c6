package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// TierScheduleConfig holds the in-process schedule
type TierScheduleConfig struct {
	Intervals map[marketsync.Tier]time.Duration
	// RunTimeout bounds one run; 0 means the tier's interval
	RunTimeout time.Duration
}

// DefaultTierScheduleConfig returns the default intervals: high every 5
// minutes, medium every 15, low hourly
func DefaultTierScheduleConfig() TierScheduleConfig {
	return TierScheduleConfig{
		Intervals: map[marketsync.Tier]time.Duration{
			marketsync.TierHigh:   5 * time.Minute,
			marketsync.TierMedium: 15 * time.Minute,
			marketsync.TierLow:    time.Hour,
		},
	}
}

// Validate validates the configuration
func (c *TierScheduleConfig) Validate() error {
	if len(c.Intervals) == 0 || c.RunTimeout < 0 {
		return ErrInvalidConfig
	}
	for tier, every := range c.Intervals {
		if !tier.IsValid() || every <= 0 {
			return ErrInvalidConfig
		}
	}
	return nil
}

// TierRunFunc runs one tier
type TierRunFunc func(ctx context.Context, tier marketsync.Tier, opts RunOptions) (*RunSummary, error)

// TierScheduler runs each tier on its own ticker inside the server process.
// Tiers never wait on each other; a tick that finds its tier still running is
// skipped by the tier lock.
type TierScheduler struct {
	config TierScheduleConfig
	run    TierRunFunc
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewTierScheduler creates a scheduler around run, usually TierRunner.Run
func NewTierScheduler(config TierScheduleConfig, run TierRunFunc, logger *zap.Logger) (*TierScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TierScheduler{config: config, run: run, logger: logger.Named("tier_scheduler")}, nil
}

// Start starts one loop per configured tier
func (s *TierScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, tier := range marketsync.AllTiers() {
		every, ok := s.config.Intervals[tier]
		if !ok {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, tier, every)
		s.logger.Info("Tier loop started", zap.String("tier", string(tier)), zap.Duration("interval", every))
	}
	return nil
}

// Stop cancels the loops and waits for in-flight runs until ctx expires
func (s *TierScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Tier scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Tier scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *TierScheduler) loop(ctx context.Context, tier marketsync.Tier, every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, tier, every)
		}
	}
}

func (s *TierScheduler) runOnce(ctx context.Context, tier marketsync.Tier, every time.Duration) {
	timeout := s.config.RunTimeout
	if timeout == 0 {
		timeout = every
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.run(runCtx, tier, RunOptions{})
	switch {
	case err == nil:
	case errors.Is(err, marketsync.ErrTierAlreadyRunning):
		s.logger.Debug("Tier tick skipped", zap.String("tier", string(tier)))
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
	default:
		s.logger.Error("Tier run failed", zap.String("tier", string(tier)), zap.Error(err))
	}
}
