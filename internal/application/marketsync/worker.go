package marketsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"github.com/meschain/marketsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultClientBatchSize caps batch calls when a client reports no size
const DefaultClientBatchSize = 50

// CategoryRefresher reloads the category cache of a marketplace
type CategoryRefresher interface {
	Refresh(ctx context.Context, marketplaceID int64) (int, error)
}

// WorkerConfig holds worker policy
type WorkerConfig struct {
	// MaxInlineWait is the longest rate limit deferral waited out inside a run.
	// Longer deferrals release the marketplace's remaining items.
	MaxInlineWait time.Duration
	// AuthHold keeps the items of a marketplace whose credentials were rejected,
	// or whose client could not be built, out of the queue for this long.
	AuthHold time.Duration
}

// DefaultAuthHold is used when WorkerConfig.AuthHold is unset
const DefaultAuthHold = 30 * time.Minute

// WorkerDeps are the collaborators of the Worker
type WorkerDeps struct {
	Queue        *QueueService
	Mappings     marketsync.EntityMappingRepository
	Marketplaces marketsync.MarketplaceRepository
	Clients      marketsync.ClientResolver
	Statuses     *StatusMapper
	Orders       marketsync.MarketplaceOrderRepository
	Events       *EventLogService
	Gate         *RateGate
	Metrics      Metrics
	// Categories is optional; category items fail as unsupported without it
	Categories CategoryRefresher
}

// Worker executes dequeued items against marketplace clients and records
// the outcome on the queue, the mapping store and the event log
type Worker struct {
	deps   WorkerDeps
	config WorkerConfig
	clock  Clock
	sleep  Sleeper
	logger *zap.Logger
}

// NewWorker creates a new Worker
func NewWorker(deps WorkerDeps, cfg WorkerConfig, clock Clock, log *zap.Logger) *Worker {
	if deps.Gate == nil {
		deps.Gate = NewRateGate()
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if cfg.AuthHold <= 0 {
		cfg.AuthHold = DefaultAuthHold
	}
	return &Worker{
		deps:   deps,
		config: cfg,
		clock:  clock,
		sleep:  sleepContext,
		logger: log.Named("sync_worker"),
	}
}

// SetSleeper replaces the function used to wait out rate limit deferrals
func (w *Worker) SetSleeper(s Sleeper) {
	w.sleep = s
}

// ProcessBatch runs every item of a dequeued batch to an outcome. Failures are
// recorded per item and never stop the batch.
func (w *Worker) ProcessBatch(ctx context.Context, tier marketsync.Tier, items []*marketsync.SyncQueueItem) *BatchSummary {
	summary := NewBatchSummary()
	if len(items) == 0 {
		return summary
	}
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "sync_worker", "process_batch",
		telemetry.WithAttribute(telemetry.SpanAttrTier, string(tier)),
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(items)),
	)
	defer span.End()

	run := &batchRun{
		w:       w,
		tier:    tier,
		summary: summary,
		states:  make(map[int64]*marketplaceState),
		log:     logger.L(ctx, w.logger).With(zap.String("tier", string(tier))),
	}
	for _, u := range run.buildUnits(ctx, items) {
		run.processUnit(ctx, u)
	}

	w.deps.Metrics.BatchFinished(ctx, string(tier), time.Since(start))
	total := summary.Total()
	telemetry.SetAttributes(span, "sync.succeeded", total.Succeeded, "sync.failed", total.Failed,
		"sync.retried", total.Retried, "sync.released", total.Released)
	return summary
}

// ---------------------------------------------------------------------------
// Batch state
// ---------------------------------------------------------------------------

type marketplaceState struct {
	id     int64
	name   string
	code   marketsync.MarketplaceCode
	client marketsync.MarketplaceClient
	// err is set when no client could be resolved
	err error
	// halted marketplaces release their remaining items
	halted    bool
	releaseAt *time.Time
	// categories is set once the category cache was refreshed in this batch
	categories *int
}

type unit struct {
	items []*marketsync.SyncQueueItem
	batch bool
}

type batchRun struct {
	w       *Worker
	tier    marketsync.Tier
	summary *BatchSummary
	states  map[int64]*marketplaceState
	log     *zap.Logger
}

func (r *batchRun) state(ctx context.Context, marketplaceID int64) *marketplaceState {
	if st, ok := r.states[marketplaceID]; ok {
		return st
	}
	st := &marketplaceState{id: marketplaceID, name: fmt.Sprintf("#%d", marketplaceID)}
	if mp, err := r.w.deps.Marketplaces.FindByID(ctx, marketplaceID); err == nil {
		st.name = mp.Name()
		st.code = mp.Code
	}
	client, err := r.w.deps.Clients.ClientFor(ctx, marketplaceID)
	if err != nil {
		st.err = err
	} else {
		st.client = client
		st.code = client.Code()
	}
	r.states[marketplaceID] = st
	return st
}

func (st *marketplaceState) batchSize() int {
	if st.client == nil || st.client.BatchSize() <= 0 {
		return DefaultClientBatchSize
	}
	return st.client.BatchSize()
}

func isBatchable(item *marketsync.SyncQueueItem) bool {
	return item.EntityType.IsBatchable() &&
		(item.Operation == marketsync.OperationUpdate || item.Operation == marketsync.OperationCreate)
}

// buildUnits keeps FIFO order. Batchable items sharing a marketplace and entity
// type join the unit opened by their first member, up to the client batch size.
func (r *batchRun) buildUnits(ctx context.Context, items []*marketsync.SyncQueueItem) []*unit {
	type groupKey struct {
		marketplaceID int64
		entityType    marketsync.EntityType
	}
	units := make([]*unit, 0, len(items))
	open := make(map[groupKey]*unit)
	for _, item := range items {
		if !isBatchable(item) {
			units = append(units, &unit{items: []*marketsync.SyncQueueItem{item}})
			continue
		}
		k := groupKey{item.MarketplaceID, item.EntityType}
		u := open[k]
		if u == nil || len(u.items) >= r.state(ctx, item.MarketplaceID).batchSize() {
			u = &unit{batch: true}
			open[k] = u
			units = append(units, u)
		}
		u.items = append(u.items, item)
	}
	return units
}

func (r *batchRun) processUnit(ctx context.Context, u *unit) {
	st := r.state(ctx, u.items[0].MarketplaceID)

	if ctx.Err() != nil {
		st.halted = true
	}
	if st.halted {
		r.release(ctx, st, u.items)
		return
	}
	if st.err != nil {
		if !errors.Is(st.err, marketsync.ErrClientNotRegistered) {
			r.log.Warn("Marketplace client unavailable, releasing items",
				zap.Int64("marketplace_id", st.id), zap.Error(st.err))
			r.hold(st)
			r.release(ctx, st, u.items)
			return
		}
		for _, item := range u.items {
			r.fail(ctx, st, item, nil, fmt.Errorf("%w: %v", marketsync.ErrUnsupported, st.err))
		}
		return
	}
	if !r.awaitGate(ctx, st) {
		r.release(ctx, st, u.items)
		return
	}

	if u.batch {
		r.processBatchUnit(ctx, st, u.items)
		return
	}
	item := u.items[0]
	if item.Operation.IsInbound() {
		r.processImport(ctx, st, item)
		return
	}
	r.processItem(ctx, st, item)
}

// awaitGate waits out a rate limit deferral of the marketplace. It returns
// false, halting the marketplace, when the deferral exceeds the inline maximum
// or the run is cancelled while waiting.
func (r *batchRun) awaitGate(ctx context.Context, st *marketplaceState) bool {
	now := r.w.clock.now()
	wait := r.w.deps.Gate.Remaining(st.id, now)
	if wait <= 0 {
		return true
	}
	if wait > r.w.config.MaxInlineWait {
		st.halted = true
		st.releaseAt = r.w.deps.Gate.NotBefore(st.id, now)
		r.log.Info("Rate limit deferral exceeds inline wait, releasing marketplace",
			zap.String("marketplace", st.name),
			zap.Duration("wait", wait),
			zap.Duration("max_inline_wait", r.w.config.MaxInlineWait),
		)
		return false
	}
	trace.SpanFromContext(ctx).AddEvent("rate_limit_wait")
	if err := r.w.sleep(ctx, wait); err != nil {
		st.halted = true
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Outcomes
// ---------------------------------------------------------------------------

// complete finishes item and appends event
func (r *batchRun) complete(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, event *marketsync.EventLogEntry) {
	r.w.deps.Events.Record(ctx, event)
	if _, err := r.w.deps.Queue.MarkCompleted(ctx, item.ID); err != nil {
		r.log.Error("Failed to complete queue item",
			zap.Stringer("queue_item_id", item.ID), zap.Error(err))
		r.count(ctx, st, item, OutcomeFailed, marketsync.ErrorKindUnknown)
		return
	}
	r.count(ctx, st, item, OutcomeSucceeded, marketsync.ErrorKindNone)
}

// fail records a failed attempt. existing is the item's own mapping, if any.
func (r *batchRun) fail(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, existing *marketsync.EntityMapping, cause error) {
	now := r.w.clock.now()
	failure := marketsync.FailureFromError(cause)

	var rl *marketsync.RateLimitedError
	if errors.As(cause, &rl) && rl.RetryAfter > 0 {
		r.w.deps.Gate.Defer(st.id, now.Add(rl.RetryAfter))
	}
	if errors.Is(cause, marketsync.ErrAuth) && !st.halted {
		r.hold(st)
		r.w.deps.Events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeAuthFailed, marketsync.EventError,
			fmt.Sprintf("%s rejected the configured credentials", st.name)).
			ForMarketplace(st.id).WithError(cause))
		r.log.Error("Marketplace authentication failed, releasing remaining items",
			zap.String("marketplace", st.name), zap.Error(cause))
	}

	eventType := marketsync.EventTypePush
	if item.Operation.IsInbound() {
		eventType = marketsync.EventTypeImport
	}
	status := marketsync.EventError
	if errors.Is(cause, marketsync.ErrStatusNotConfigured) {
		eventType, status = marketsync.EventTypeStatusUnmapped, marketsync.EventWarning
	}

	updated, err := r.w.deps.Queue.MarkFailed(ctx, item.ID, failure)
	outcome := OutcomeFailed
	retryCount := item.RetryCount
	if err != nil {
		r.log.Error("Failed to record queue item failure",
			zap.Stringer("queue_item_id", item.ID), zap.Error(err))
	} else {
		retryCount = updated.RetryCount
		if updated.Status == marketsync.QueueStatusPending {
			outcome = OutcomeRetried
		}
	}

	r.w.deps.Events.Record(ctx, marketsync.NewEventLogEntry(eventType, status, failure.Message).
		ForItem(item).
		WithError(cause).
		WithPayload(map[string]any{
			"operation":   item.Operation,
			"retry_count": retryCount,
			"retryable":   failure.Retryable,
			"outcome":     outcome,
		}))

	if existing != nil && failure.Kind != marketsync.ErrorKindStatusNotConfigured {
		if err := r.w.deps.Mappings.UpdateStatus(ctx, existing.Key(), marketsync.MappingError, failure.Kind, failure.Message, now); err != nil {
			r.log.Error("Failed to flag mapping", zap.String("mapping", existing.Key().String()), zap.Error(err))
		}
	}

	r.log.Warn("Queue item failed",
		zap.Stringer("queue_item_id", item.ID),
		zap.String("key", item.Key().String()),
		zap.String("error_kind", string(failure.Kind)),
		zap.String("outcome", outcome),
		zap.Int("retry_count", retryCount),
		zap.Error(cause),
	)
	r.count(ctx, st, item, outcome, failure.Kind)
}

// hold halts the marketplace and closes its gate for AuthHold, so neither the
// released items nor later batches of the process call it before then
func (r *batchRun) hold(st *marketplaceState) {
	until := r.w.clock.now().Add(r.w.config.AuthHold)
	st.halted = true
	st.releaseAt = &until
	r.w.deps.Gate.Defer(st.id, until)
}

// release hands items back to pending without spending a retry
func (r *batchRun) release(ctx context.Context, st *marketplaceState, items []*marketsync.SyncQueueItem) {
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	n, err := r.w.deps.Queue.Release(context.WithoutCancel(ctx), ids, st.releaseAt)
	if err != nil {
		r.log.Error("Failed to release queue items", zap.String("marketplace", st.name), zap.Error(err))
	}
	for i, item := range items {
		if i < n {
			r.count(ctx, st, item, OutcomeReleased, marketsync.ErrorKindNone)
		}
	}
}

func (r *batchRun) count(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, outcome string, kind marketsync.ErrorKind) {
	r.summary.Add(st.id, st.name, outcome)
	r.w.deps.Metrics.ItemFinished(ctx, string(st.code), string(item.EntityType), outcome, string(kind))
}

// call wraps one marketplace call with a client span and latency metric
func (r *batchRun) call(ctx context.Context, st *marketplaceState, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "marketplace_client", name,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, string(st.code)),
		telemetry.WithAttribute(telemetry.SpanAttrMarketplaceID, st.id),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	r.w.deps.Metrics.ClientCall(ctx, string(st.code), name, time.Since(start), string(marketsync.KindOf(err)))
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorKind, string(marketsync.KindOf(err)))
	}
	return err
}
