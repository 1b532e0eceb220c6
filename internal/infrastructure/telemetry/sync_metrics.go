package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics records worker and scheduler measurements on an OTel meter
type SyncMetrics struct {
	processed      *Counter
	failed         *Counter
	batchDuration  *Histogram
	clientDuration *Histogram
	tierRuns       *Counter
}

// NewSyncMetrics registers the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	processed, err := NewCounter(meter, "sync.items.processed", "Queue items finished by the sync worker", "{item}")
	if err != nil {
		return nil, err
	}
	failed, err := NewCounter(meter, "sync.items.failed", "Queue items whose attempt failed", "{item}")
	if err != nil {
		return nil, err
	}
	batchDuration, err := NewHistogram(meter, "sync.batch.duration", "Time spent processing one worker batch", RunDurationBuckets)
	if err != nil {
		return nil, err
	}
	clientDuration, err := NewHistogram(meter, "sync.client.duration", "Marketplace API call latency", ClientDurationBuckets)
	if err != nil {
		return nil, err
	}
	tierRuns, err := NewCounter(meter, "sync.tier.runs", "Tier runs by outcome", "{run}")
	if err != nil {
		return nil, err
	}
	return &SyncMetrics{
		processed:      processed,
		failed:         failed,
		batchDuration:  batchDuration,
		clientDuration: clientDuration,
		tierRuns:       tierRuns,
	}, nil
}

// ItemFinished counts one processed item. errorKind is empty on success.
func (m *SyncMetrics) ItemFinished(ctx context.Context, marketplace, entityType, outcome, errorKind string) {
	attrs := []attribute.KeyValue{
		AttrMarketplace.String(marketplace),
		AttrEntityType.String(entityType),
		AttrOutcome.String(outcome),
	}
	m.processed.Add(ctx, 1, attrs...)
	if errorKind != "" {
		m.failed.Add(ctx, 1, append(attrs, AttrErrorKind.String(errorKind))...)
	}
}

// ClientCall records the latency of one marketplace call
func (m *SyncMetrics) ClientCall(ctx context.Context, marketplace, call string, elapsed time.Duration, errorKind string) {
	attrs := []attribute.KeyValue{AttrMarketplace.String(marketplace), AttrOperation.String(call)}
	if errorKind != "" {
		attrs = append(attrs, AttrErrorKind.String(errorKind))
	}
	m.clientDuration.RecordDuration(ctx, elapsed, attrs...)
}

// BatchFinished records the duration of one worker batch
func (m *SyncMetrics) BatchFinished(ctx context.Context, tier string, elapsed time.Duration) {
	m.batchDuration.RecordDuration(ctx, elapsed, AttrTier.String(tier))
}

// TierRun counts a tier run by outcome (completed, failed, skipped)
func (m *SyncMetrics) TierRun(ctx context.Context, tier, outcome string) {
	m.tierRuns.Add(ctx, 1, AttrTier.String(tier), AttrOutcome.String(outcome))
}
