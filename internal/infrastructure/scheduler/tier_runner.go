// Package scheduler runs the high, medium and low sync tiers. A tier run takes
// the tier lock, discovers local changes, performs the tier's periodic tasks,
// drains the tier's queue items through the worker and releases the lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"github.com/meschain/marketsync/internal/infrastructure/telemetry"
)

// Run statuses stored on the tier lock row
const (
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Queue is the part of the queue service a run drives
type Queue interface {
	Dequeue(ctx context.Context, filter marketsync.DequeueFilter) ([]*marketsync.SyncQueueItem, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// BatchProcessor runs dequeued items to an outcome
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, tier marketsync.Tier, items []*marketsync.SyncQueueItem) *appsync.BatchSummary
}

// Discoverer enqueues local changes
type Discoverer interface {
	Discover(ctx context.Context, tier marketsync.Tier, since, until time.Time, targets []marketsync.Marketplace) (*appsync.DiscoverResult, error)
}

// OrderPuller copies marketplace orders into the inbox
type OrderPuller interface {
	Pull(ctx context.Context, mp *marketsync.Marketplace, since time.Time) (*appsync.PullResult, error)
}

// Reconciler compares listings with the mapping store
type Reconciler interface {
	Reconcile(ctx context.Context, mp *marketsync.Marketplace) (*appsync.ReconcileResult, error)
}

// DailyReporter writes the daily outcome report
type DailyReporter interface {
	Daily(ctx context.Context, day time.Time) (string, error)
}

// TierRunnerDeps are the collaborators of a TierRunner. Orders, Categories,
// Reconciler and Reports are optional; a missing one skips its task.
type TierRunnerDeps struct {
	Locks        marketsync.TierLockRepository
	Marketplaces marketsync.MarketplaceRepository
	Queue        Queue
	Worker       BatchProcessor
	Discoverer   Discoverer
	Events       *appsync.EventLogService
	Metrics      appsync.Metrics

	Orders     OrderPuller
	Categories appsync.CategoryRefresher
	Reconciler Reconciler
	Reports    DailyReporter
}

// TierRunnerConfig holds run policy
type TierRunnerConfig struct {
	BatchSize  int
	MaxBatches int
	// StaleLockAfter is when a held lock or processing item counts as orphaned
	StaleLockAfter time.Duration
	// Retention is how long completed queue items are kept; 0 disables the purge
	Retention time.Duration
	// OrderPullOverlap widens each order pull window backwards
	OrderPullOverlap time.Duration
	// InitialLookback is the discovery and order window of a tier's first run
	InitialLookback time.Duration
	// Owner identifies this process on the lock row; defaults to the host name
	Owner string
}

// DefaultTierRunnerConfig returns default configuration
func DefaultTierRunnerConfig() TierRunnerConfig {
	return TierRunnerConfig{
		BatchSize:        100,
		MaxBatches:       10,
		StaleLockAfter:   30 * time.Minute,
		Retention:        30 * 24 * time.Hour,
		OrderPullOverlap: 5 * time.Minute,
		InitialLookback:  24 * time.Hour,
	}
}

// Validate validates the configuration
func (c *TierRunnerConfig) Validate() error {
	if c.BatchSize <= 0 || c.MaxBatches <= 0 {
		return ErrInvalidConfig
	}
	if c.StaleLockAfter <= 0 || c.InitialLookback <= 0 {
		return ErrInvalidConfig
	}
	if c.Retention < 0 || c.OrderPullOverlap < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// RunOptions narrows a run
type RunOptions struct {
	// Marketplace limits the run to one marketplace code; empty runs all enabled
	Marketplace marketsync.MarketplaceCode
}

// RunSummary describes one tier run
type RunSummary struct {
	Tier       marketsync.Tier
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Skipped    bool

	Discovered     *appsync.DiscoverResult
	Items          *appsync.BatchSummary
	Batches        int
	Recovered      int64
	Orders         map[int64]*appsync.PullResult
	Categories     map[int64]int
	Reconciled     map[int64]*appsync.ReconcileResult
	ReportLocation string
	Purged         int64
	// TaskErrors lists task failures that did not stop the run
	TaskErrors []string
}

func newRunSummary(tier marketsync.Tier, runID string, started time.Time) *RunSummary {
	return &RunSummary{
		Tier:       tier,
		RunID:      runID,
		StartedAt:  started,
		Items:      appsync.NewBatchSummary(),
		Orders:     make(map[int64]*appsync.PullResult),
		Categories: make(map[int64]int),
		Reconciled: make(map[int64]*appsync.ReconcileResult),
	}
}

// ---------------------------------------------------------------------------
// TierRunner
// ---------------------------------------------------------------------------

// TierRunner executes tier runs. One TierRunner serves all tiers; overlap is
// guarded by the lock row, so separate processes may share the database.
type TierRunner struct {
	deps   TierRunnerDeps
	config TierRunnerConfig
	clock  appsync.Clock
	logger *zap.Logger
}

// NewTierRunner creates a new TierRunner
func NewTierRunner(deps TierRunnerDeps, cfg TierRunnerConfig, clock appsync.Clock, log *zap.Logger) (*TierRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Locks == nil || deps.Marketplaces == nil || deps.Queue == nil || deps.Worker == nil || deps.Discoverer == nil || deps.Events == nil {
		return nil, fmt.Errorf("%w: missing tier runner dependency", ErrInvalidConfig)
	}
	if deps.Metrics == nil {
		deps.Metrics = appsync.NopMetrics{}
	}
	if cfg.Owner == "" {
		host, _ := os.Hostname()
		cfg.Owner = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	if clock == nil {
		clock = time.Now
	}
	return &TierRunner{deps: deps, config: cfg, clock: clock, logger: log.Named("tier_runner")}, nil
}

// Run executes one run of tier. When another run of the same tier holds the
// lock the run does nothing and returns a skipped summary together with
// ErrTierAlreadyRunning.
func (r *TierRunner) Run(ctx context.Context, tier marketsync.Tier, opts RunOptions) (*RunSummary, error) {
	if !tier.IsValid() {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := telemetry.StartServiceSpan(ctx, "scheduler", "tier_run",
		telemetry.WithAttribute(telemetry.SpanAttrTier, string(tier)),
	)
	defer span.End()

	started := r.clock().UTC()
	summary := newRunSummary(tier, runID, started)
	log := logger.L(ctx, r.logger).With(zap.String("tier", string(tier)))
	owner := r.config.Owner + "/" + runID

	lock, err := r.deps.Locks.TryAcquire(ctx, tier, owner, started, started.Add(-r.config.StaleLockAfter))
	if err != nil {
		if errors.Is(err, marketsync.ErrTierAlreadyRunning) {
			summary.Skipped = true
			summary.Status = RunStatusSkipped
			summary.FinishedAt = r.clock().UTC()
			r.deps.Metrics.TierRun(ctx, string(tier), RunStatusSkipped)
			log.Info("Tier run skipped, previous run still in progress")
			return summary, err
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("acquire tier lock: %w", err)
	}
	log.Info("Tier run started", zap.String("owner", owner))

	runErr := r.execute(ctx, tier, opts, lock, summary, log)

	summary.FinishedAt = r.clock().UTC()
	switch {
	case runErr != nil:
		summary.Status = RunStatusFailed
		telemetry.RecordError(span, runErr)
	case len(summary.TaskErrors) > 0:
		summary.Status = RunStatusPartial
	default:
		summary.Status = RunStatusCompleted
	}
	if runErr == nil {
		telemetry.SetOK(span)
	}

	// release even when the run's context was cancelled
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.deps.Locks.Release(releaseCtx, tier, owner, started, summary.FinishedAt, summary.Status, runErr == nil); err != nil {
		log.Error("Failed to release tier lock", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("release tier lock: %w", err)
		}
	}

	r.deps.Metrics.TierRun(ctx, string(tier), summary.Status)
	r.recordRun(releaseCtx, summary, runErr)
	total := summary.Items.Total()
	telemetry.SetAttributes(span, "sync.run_status", summary.Status, "sync.processed", total.Processed)
	log.Info("Tier run finished",
		zap.String("status", summary.Status),
		zap.Duration("elapsed", summary.FinishedAt.Sub(started)),
		zap.Int("batches", summary.Batches),
		zap.Int("processed", total.Processed),
		zap.Int("succeeded", total.Succeeded),
		zap.Int("failed", total.Failed),
		zap.Int("retried", total.Retried),
		zap.Int("released", total.Released),
	)
	return summary, runErr
}

func (r *TierRunner) execute(ctx context.Context, tier marketsync.Tier, opts RunOptions, lock *marketsync.TierLock, summary *RunSummary, log *zap.Logger) error {
	targets, err := r.targets(ctx, opts)
	if err != nil {
		return err
	}

	recovered, err := r.deps.Queue.RecoverStale(ctx, r.config.StaleLockAfter)
	if err != nil {
		summary.addTaskError("recover stale items", err)
	} else if recovered > 0 {
		summary.Recovered = recovered
		r.deps.Events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeStaleItemsRecover, marketsync.EventWarning,
			fmt.Sprintf("%d orphaned processing items returned to pending", recovered)))
	}

	since := summary.StartedAt.Add(-r.config.InitialLookback)
	if lock != nil && lock.LastSuccessAt != nil {
		since = lock.LastSuccessAt.UTC()
	}
	// a failed discovery fails the run so the watermark stays put and the
	// next run reads the same window again
	discovered, discoverErr := r.deps.Discoverer.Discover(ctx, tier, since, summary.StartedAt, targets)
	if discoverErr != nil {
		log.Error("Change discovery failed", zap.Error(discoverErr))
	}
	summary.Discovered = discovered

	switch tier {
	case marketsync.TierHigh:
		r.pullOrders(ctx, since, targets, summary, log)
	case marketsync.TierLow:
		r.lowTierTasks(ctx, lock, targets, summary, log)
	}

	if err := r.drain(ctx, tier, opts, targets, summary); err != nil {
		return err
	}
	if discoverErr != nil {
		return fmt.Errorf("discover changes: %w", discoverErr)
	}
	return nil
}

// targets returns the enabled marketplaces the run covers
func (r *TierRunner) targets(ctx context.Context, opts RunOptions) ([]marketsync.Marketplace, error) {
	enabled, err := r.deps.Marketplaces.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list marketplaces: %w", err)
	}
	if opts.Marketplace == "" {
		if len(enabled) == 0 {
			return nil, ErrNoEnabledMarketplaces
		}
		return enabled, nil
	}
	for _, mp := range enabled {
		if mp.Code == opts.Marketplace {
			return []marketsync.Marketplace{mp}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMarketplace, opts.Marketplace)
}

func (r *TierRunner) pullOrders(ctx context.Context, since time.Time, targets []marketsync.Marketplace, summary *RunSummary, log *zap.Logger) {
	if r.deps.Orders == nil {
		return
	}
	from := since.Add(-r.config.OrderPullOverlap)
	for i := range targets {
		mp := &targets[i]
		res, err := r.deps.Orders.Pull(ctx, mp, from)
		if err != nil {
			summary.addTaskError("pull orders from "+mp.Name(), err)
			log.Warn("Order pull failed", zap.String("marketplace", mp.Name()), zap.Error(err))
			continue
		}
		summary.Orders[mp.ID] = res
	}
}

func (r *TierRunner) lowTierTasks(ctx context.Context, lock *marketsync.TierLock, targets []marketsync.Marketplace, summary *RunSummary, log *zap.Logger) {
	for i := range targets {
		mp := &targets[i]
		if r.deps.Categories != nil {
			n, err := r.deps.Categories.Refresh(ctx, mp.ID)
			if err != nil {
				summary.addTaskError("refresh categories of "+mp.Name(), err)
				log.Warn("Category refresh failed", zap.String("marketplace", mp.Name()), zap.Error(err))
			} else {
				summary.Categories[mp.ID] = n
			}
		}
		if r.deps.Reconciler != nil {
			res, err := r.deps.Reconciler.Reconcile(ctx, mp)
			if err != nil {
				summary.addTaskError("reconcile "+mp.Name(), err)
				log.Warn("Reconciliation failed", zap.String("marketplace", mp.Name()), zap.Error(err))
			}
			if res != nil {
				summary.Reconciled[mp.ID] = res
			}
		}
	}

	if r.deps.Reports != nil && reportDue(lock, summary.StartedAt) {
		location, err := r.deps.Reports.Daily(ctx, summary.StartedAt.AddDate(0, 0, -1))
		if err != nil {
			summary.addTaskError("daily report", err)
		} else {
			summary.ReportLocation = location
		}
	}

	if r.config.Retention > 0 {
		purged, err := r.deps.Queue.Purge(ctx, r.config.Retention)
		if err != nil {
			summary.addTaskError("purge queue", err)
		} else {
			summary.Purged = purged
			if purged > 0 {
				r.deps.Events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeRetentionPurge, marketsync.EventInfo,
					fmt.Sprintf("%d completed queue items purged", purged)).
					WithPayload(map[string]any{"retention": r.config.Retention.String()}))
			}
		}
	}
}

// reportDue reports yesterday once per UTC day: on the first successful low
// run after midnight
func reportDue(lock *marketsync.TierLock, now time.Time) bool {
	if lock == nil || lock.LastSuccessAt == nil {
		return true
	}
	last := lock.LastSuccessAt.UTC()
	now = now.UTC()
	return last.Year() != now.Year() || last.YearDay() != now.YearDay()
}

// drain dequeues and processes the tier's items until the queue is empty or
// MaxBatches is reached
func (r *TierRunner) drain(ctx context.Context, tier marketsync.Tier, opts RunOptions, targets []marketsync.Marketplace, summary *RunSummary) error {
	filter := marketsync.DequeueFilter{Limit: r.config.BatchSize, Tier: tier}
	if opts.Marketplace != "" && len(targets) == 1 {
		filter.MarketplaceID = targets[0].ID
	}
	for summary.Batches < r.config.MaxBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := r.deps.Queue.Dequeue(ctx, filter)
		if err != nil {
			return fmt.Errorf("dequeue: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		summary.Batches++
		summary.Items.Merge(r.deps.Worker.ProcessBatch(ctx, tier, items))
		if len(items) < r.config.BatchSize {
			return nil
		}
	}
	return nil
}

func (r *TierRunner) recordRun(ctx context.Context, summary *RunSummary, runErr error) {
	status := marketsync.EventSuccess
	switch summary.Status {
	case RunStatusFailed:
		status = marketsync.EventError
	case RunStatusPartial:
		status = marketsync.EventWarning
	}
	total := summary.Items.Total()
	entry := marketsync.NewEventLogEntry(marketsync.EventTypeTierRun, status,
		fmt.Sprintf("%s tier run %s: %d processed, %d succeeded, %d failed, %d retried, %d released",
			summary.Tier, summary.Status, total.Processed, total.Succeeded, total.Failed, total.Retried, total.Released)).
		WithPayload(map[string]any{
			"run_id":      summary.RunID,
			"batches":     summary.Batches,
			"task_errors": summary.TaskErrors,
			"elapsed_ms":  summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
		})
	if runErr != nil {
		entry = entry.WithError(runErr)
	}
	r.deps.Events.Record(ctx, entry)
}

func (s *RunSummary) addTaskError(task string, err error) {
	s.TaskErrors = append(s.TaskErrors, task+": "+err.Error())
}
