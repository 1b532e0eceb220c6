package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestDisabledProvidersAreNoops(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	tp, err := NewTracerProvider(ctx, Config{}, log)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	tp.EnableSpanProfiles()
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, MetricsConfig{}, log)
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, LogsConfig{}, log)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.False(t, lp.Core(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, lp.Shutdown(ctx))

	p, err := NewProfiler(ProfilerConfig{}, log)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_RequiresAddress(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true}, zap.NewNop())
	require.Error(t, err)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartServiceSpan_RecordsAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartServiceSpan(context.Background(), "sync_worker", "process_unit",
		WithAttribute(SpanAttrMarketplace, "trendyol"))
	SetAttributes(span, SpanAttrBatchSize, 3, 42, "ignored", SpanAttrRetryCount, int64(1))
	AddEvent(span, "rate_limited", "wait", 30*time.Second)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	got := ended[0]
	assert.Equal(t, "sync_worker.process_unit", got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)

	attrs := map[string]any{}
	for _, kv := range got.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "trendyol", attrs[SpanAttrMarketplace])
	assert.Equal(t, int64(3), attrs[SpanAttrBatchSize])
	assert.Equal(t, int64(1), attrs[SpanAttrRetryCount])
	require.Len(t, got.Events(), 2)
	assert.Equal(t, "rate_limited", got.Events()[0].Name)
}

func TestTraceID_OutsideSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestSyncMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.ItemFinished(ctx, "trendyol", "stock", "succeeded", "")
	m.ItemFinished(ctx, "trendyol", "stock", "failed", "validation")
	m.ClientCall(ctx, "trendyol", "update_stock", 120*time.Millisecond, "")
	m.BatchFinished(ctx, "medium", time.Second)
	m.TierRun(ctx, "medium", "completed")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		byName[md.Name] = md
	}
	processed, ok := byName["sync.items.processed"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range processed.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	failed, ok := byName["sync.items.failed"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, failed.DataPoints, 1)
	assert.Equal(t, int64(1), failed.DataPoints[0].Value)

	assert.Contains(t, byName, "sync.batch.duration")
	assert.Contains(t, byName, "sync.client.duration")
	assert.Contains(t, byName, "sync.tier.runs")
}

func TestSanitizeLabels(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"Tier":            "high",
		"marketplace":     "trendyol",
		"local_entity_id": "SKU-1",
		"empty":           "",
	})
	assert.Equal(t, []string{"marketplace", "trendyol", "tier", "high"}, pairs)

	assert.Equal(t, "entity_type", sanitizeLabelKey(" Entity-Type "))
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, truncateLabel(string(long)), maxLabelValueLength)
}

func TestSyncLabels(t *testing.T) {
	assert.Equal(t, map[string]string{LabelTier: "low"}, SyncLabels("low", "", ""))

	var seen bool
	WithProfilingLabels(context.Background(), SyncLabels("high", "n11", "order"), func(context.Context) {
		seen = true
	})
	assert.True(t, seen)
}
