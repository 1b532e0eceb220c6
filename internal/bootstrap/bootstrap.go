// Package bootstrap assembles the sync engine from configuration. The HTTP
// server and the tier CLIs share it so that both drive the same services.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"github.com/meschain/marketsync/internal/infrastructure/marketplace"
	"github.com/meschain/marketsync/internal/infrastructure/persistence"
	"github.com/meschain/marketsync/internal/infrastructure/scheduler"
	"github.com/meschain/marketsync/internal/infrastructure/secrets"
	"github.com/meschain/marketsync/internal/infrastructure/storage"
	"github.com/meschain/marketsync/internal/infrastructure/telemetry"
)

// Options tune what Open builds
type Options struct {
	// Metrics receives sync measurements next to the OTel instruments
	Metrics appsync.Metrics
	// Dedupe backs webhook deduplication; nil disables it
	Dedupe appsync.DedupeStore
}

// Engine holds the repositories and services of one process
type Engine struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *persistence.Database

	Marketplaces *persistence.GormMarketplaceRepository
	Mappings     *persistence.GormEntityMappingRepository
	EventRepo    *persistence.GormEventLogRepository

	Queue    *appsync.QueueService
	Events   *appsync.EventLogService
	Statuses *appsync.StatusMapper
	Webhooks *appsync.WebhookService
	Clients  *marketplace.Registry
	Runner   *scheduler.TierRunner
	Metrics  appsync.Metrics
}

// Open connects to the database and wires the services on top of it. The
// caller closes the engine.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*Engine, error) {
	gormLog := logger.NewGormLogger(log.Named("gorm"), logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	e := &Engine{Config: cfg, Logger: log, DB: db}
	if err := e.wire(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) wire(ctx context.Context, opts Options) error {
	cfg, log := e.Config, e.Logger

	if !e.DB.IsPostgres() {
		if err := e.DB.AutoMigrate(); err != nil {
			return err
		}
	}
	if err := telemetry.RegisterDBTracing(e.DB.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        e.DB.DB.Dialector.Name(),
	}, log); err != nil {
		return fmt.Errorf("register db tracing: %w", err)
	}

	key, err := cfg.Security.Key()
	if err != nil {
		return err
	}
	sealer, err := secrets.NewSealer(key)
	if err != nil {
		return err
	}
	reports, err := storage.NewReportStore(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return fmt.Errorf("report store: %w", err)
	}
	if s3Store, ok := reports.(*storage.S3ReportStore); ok {
		// the report upload retries the next day, so a missing bucket is not fatal
		if err := s3Store.EnsureBucket(ctx); err != nil {
			log.Warn("Report bucket is not ready", zap.String("bucket", s3Store.Bucket()), zap.Error(err))
		}
	}

	otelMetrics, err := telemetry.NewSyncMetrics(otel.Meter("marketsync"))
	if err != nil {
		return fmt.Errorf("sync metrics: %w", err)
	}
	e.Metrics = appsync.CombineMetrics(otelMetrics, opts.Metrics)

	gdb := e.DB.DB
	e.Marketplaces = persistence.NewGormMarketplaceRepository(gdb)
	e.Mappings = persistence.NewGormEntityMappingRepository(gdb)
	e.EventRepo = persistence.NewGormEventLogRepository(gdb)
	orders := persistence.NewGormMarketplaceOrderRepository(gdb)
	feed := persistence.NewGormLocalChangeFeed(gdb)
	clock := appsync.Clock(nil)

	e.Clients = marketplace.NewRegistry(e.Marketplaces, sealer, marketplace.Options{
		Timeout: cfg.Sync.ClientTimeout,
		Logger:  log,
	})
	e.Events = appsync.NewEventLogService(e.EventRepo, log)
	e.Queue = appsync.NewQueueService(persistence.NewGormSyncQueueRepository(gdb), appsync.QueueConfig{
		MaxRetries:    cfg.Sync.MaxRetries,
		RetryDelay:    cfg.Sync.RetryDelay,
		CriticalStock: cfg.Sync.CriticalStock,
	}, clock, log)
	e.Statuses = appsync.NewStatusMapper(persistence.NewGormStatusMappingRepository(gdb))
	categories := appsync.NewCategoryService(e.Clients, persistence.NewGormCategoryRepository(gdb), e.Events, clock, log)

	e.Webhooks = appsync.NewWebhookService(e.Marketplaces, marketplace.Parsers{}, sealer, e.Queue, opts.Dedupe, e.Events,
		appsync.WebhookConfig{
			DedupeTTL:        cfg.Webhook.DedupeTTL,
			RequireSignature: cfg.Webhook.RequireSignature,
		}, log)

	worker := appsync.NewWorker(appsync.WorkerDeps{
		Queue:        e.Queue,
		Mappings:     e.Mappings,
		Marketplaces: e.Marketplaces,
		Clients:      e.Clients,
		Statuses:     e.Statuses,
		Orders:       orders,
		Events:       e.Events,
		Gate:         appsync.NewRateGate(),
		Metrics:      e.Metrics,
		Categories:   categories,
	}, appsync.WorkerConfig{
		MaxInlineWait: cfg.Sync.MaxInlineWait,
		AuthHold:      cfg.Sync.AuthHold,
	}, clock, log)

	runnerCfg := scheduler.DefaultTierRunnerConfig()
	if cfg.Sync.BatchSize > 0 {
		runnerCfg.BatchSize = cfg.Sync.BatchSize
	}
	if cfg.Sync.MaxBatches > 0 {
		runnerCfg.MaxBatches = cfg.Sync.MaxBatches
	}
	if cfg.Sync.StaleLockAfter > 0 {
		runnerCfg.StaleLockAfter = cfg.Sync.StaleLockAfter
	}
	runnerCfg.Retention = cfg.Sync.Retention
	runnerCfg.OrderPullOverlap = cfg.Sync.OrderPullOverlap

	e.Runner, err = scheduler.NewTierRunner(scheduler.TierRunnerDeps{
		Locks:        persistence.NewGormTierLockRepository(gdb),
		Marketplaces: e.Marketplaces,
		Queue:        e.Queue,
		Worker:       worker,
		Discoverer: appsync.NewChangeDiscoverer(feed, e.Queue, e.Events, appsync.DiscoverConfig{
			LowStockAlert: cfg.Sync.LowStockAlert,
		}, log),
		Events:     e.Events,
		Metrics:    e.Metrics,
		Orders:     appsync.NewOrderPuller(e.Clients, e.Statuses, orders, e.Events, clock, log),
		Categories: categories,
		Reconciler: appsync.NewReconciler(e.Clients, e.Mappings, feed, e.Queue, e.Events, appsync.ReconcileConfig{
			MaxPages: cfg.Sync.ReconcilePages,
		}, log),
		Reports: appsync.NewReportService(e.EventRepo, e.Marketplaces, reports, e.Events, cfg.Sync.ReportPrefix, log),
	}, runnerCfg, clock, log)
	if err != nil {
		return fmt.Errorf("tier runner: %w", err)
	}

	log.Debug("Sync engine wired", zap.String("db", gdb.Dialector.Name()))
	return ctx.Err()
}

// Close releases the database
func (e *Engine) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// Telemetry owns the exporters of one process
type Telemetry struct {
	Tracer   *telemetry.TracerProvider
	Meter    *telemetry.MeterProvider
	Logs     *telemetry.LoggerProvider
	Profiler *telemetry.Profiler
}

// StartTelemetry builds the process logger and starts the configured
// exporters. service names the binary, e.g. "marketsync-server". tags are
// attached to profiles.
func StartTelemetry(ctx context.Context, cfg *config.Config, service string, tags map[string]string) (*Telemetry, *zap.Logger, error) {
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	}
	base, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = service
	}
	t := &Telemetry{}
	t.Logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, base)
	if err != nil {
		return nil, nil, err
	}
	log := base
	if t.Logs.IsEnabled() {
		if log, err = logger.New(logCfg, t.Logs.Core(logger.ParseLevel(cfg.Log.Level))); err != nil {
			return nil, nil, fmt.Errorf("init logger: %w", err)
		}
	}
	log = log.With(zap.String("service", service))

	t.Tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	t.Meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	appName := cfg.Profiling.ApplicationName
	if appName == "" {
		appName = service
	}
	t.Profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiling.Enabled,
		ServerAddress:   cfg.Profiling.ServerAddress,
		ApplicationName: appName,
		AuthToken:       cfg.Profiling.AuthToken,
		Tags:            tags,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Profiling.Enabled {
		t.Tracer.EnableSpanProfiles()
	}
	return t, log, nil
}

// Shutdown flushes and stops every exporter
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.Profiler != nil {
		errs = append(errs, t.Profiler.Stop())
	}
	if t.Tracer != nil {
		errs = append(errs, t.Tracer.Shutdown(ctx))
	}
	if t.Meter != nil {
		errs = append(errs, t.Meter.Shutdown(ctx))
	}
	if t.Logs != nil {
		errs = append(errs, t.Logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
