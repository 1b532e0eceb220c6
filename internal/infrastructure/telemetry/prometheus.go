package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// Prometheus metric names
const (
	MetricHTTPRequestsTotal     = "marketsync_http_requests_total"
	MetricHTTPRequestDuration   = "marketsync_http_request_duration_seconds"
	MetricSyncItemsTotal        = "marketsync_sync_items_total"
	MetricClientCallDuration    = "marketsync_client_call_duration_seconds"
	MetricBatchDuration         = "marketsync_batch_duration_seconds"
	MetricTierRunsTotal         = "marketsync_tier_runs_total"
	MetricQueueItems            = "marketsync_queue_items"
	MetricQueueStatsScrapeError = "marketsync_queue_stats_scrape_errors_total"
)

// PromMetrics holds the Prometheus collectors served at /metrics. It records
// the same sync measurements as SyncMetrics so a deployment without an OTLP
// collector still gets them.
type PromMetrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	items        *prometheus.CounterVec
	clientCalls  *prometheus.HistogramVec
	batches      *prometheus.HistogramVec
	tierRuns     *prometheus.CounterVec
}

// NewPromMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors
func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSyncItemsTotal,
			Help: "Queue items finished by the sync worker.",
		}, []string{"marketplace", "entity_type", "outcome", "error_kind"}),
		clientCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricClientCallDuration,
			Help:    "Marketplace client call latency.",
			Buckets: ClientDurationBuckets,
		}, []string{"marketplace", "call", "error_kind"}),
		batches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBatchDuration,
			Help:    "Duration of one worker batch.",
			Buckets: RunDurationBuckets,
		}, []string{"tier"}),
		tierRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTierRunsTotal,
			Help: "Tier runs by outcome.",
		}, []string{"tier", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.items, m.clientCalls, m.batches, m.tierRuns,
	)
	return m
}

// Registry returns the registry, mostly for tests and extra collectors
func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path.
func (m *PromMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, StatusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *PromMetrics) ItemFinished(_ context.Context, marketplace, entityType, outcome, errorKind string) {
	m.items.WithLabelValues(marketplace, entityType, outcome, errorKind).Inc()
}

func (m *PromMetrics) ClientCall(_ context.Context, marketplace, call string, elapsed time.Duration, errorKind string) {
	m.clientCalls.WithLabelValues(marketplace, call, errorKind).Observe(elapsed.Seconds())
}

func (m *PromMetrics) BatchFinished(_ context.Context, tier string, elapsed time.Duration) {
	m.batches.WithLabelValues(tier).Observe(elapsed.Seconds())
}

func (m *PromMetrics) TierRun(_ context.Context, tier, outcome string) {
	m.tierRuns.WithLabelValues(tier, outcome).Inc()
}

// StatusClass groups a status code as 2xx, 3xx, 4xx or 5xx
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Queue depth
// ---------------------------------------------------------------------------

// QueueStatsFunc returns the current queue counts
type QueueStatsFunc func(ctx context.Context) ([]marketsync.QueueStat, error)

// QueueDepthCollector reads queue counts on every scrape, so the gauge never
// drifts from the table
type QueueDepthCollector struct {
	stats   QueueStatsFunc
	timeout time.Duration
	logger  *zap.Logger

	depth        *prometheus.Desc
	scrapeErrors prometheus.Counter
}

// NewQueueDepthCollector creates a collector around stats. A zero timeout
// means 5 seconds.
func NewQueueDepthCollector(stats QueueStatsFunc, timeout time.Duration, logger *zap.Logger) *QueueDepthCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &QueueDepthCollector{
		stats:   stats,
		timeout: timeout,
		logger:  logger,
		depth: prometheus.NewDesc(MetricQueueItems,
			"Sync queue items by tier, marketplace and status.",
			[]string{"tier", "marketplace_id", "status"}, nil),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricQueueStatsScrapeError,
			Help: "Failed queue count reads during scrapes.",
		}),
	}
}

// Describe implements prometheus.Collector
func (c *QueueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	c.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *QueueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	rows, err := c.stats(ctx)
	if err != nil {
		c.scrapeErrors.Inc()
		c.logger.Warn("Queue stats unavailable for scrape", zap.Error(err))
	}
	for _, row := range rows {
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(row.Count),
			string(row.Tier), strconv.FormatInt(row.MarketplaceID, 10), string(row.Status))
	}
	c.scrapeErrors.Collect(ch)
}
