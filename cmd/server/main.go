package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/meschain/marketsync/docs"
	"github.com/meschain/marketsync/internal/bootstrap"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/auth"
	"github.com/meschain/marketsync/internal/infrastructure/cache"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"github.com/meschain/marketsync/internal/infrastructure/scheduler"
	"github.com/meschain/marketsync/internal/infrastructure/telemetry"
	"github.com/meschain/marketsync/internal/interfaces/http/handler"
	"github.com/meschain/marketsync/internal/interfaces/http/middleware"
	"github.com/meschain/marketsync/internal/interfaces/http/router"
)

//go:generate swag init -g cmd/server/main.go -d ../../ -o ../../docs

//	@title			Marketsync API
//	@version		1.0
//	@description	Marketplace sync engine: webhook intake and queue administration

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator token. Format: "Bearer {token}"

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	issueFor := flag.String("issue-token", "", "print an operator token for this subject and exit")
	scopes := flag.String("scopes", "", "comma separated scopes of the issued token (default all)")
	ttl := flag.Duration("ttl", 0, "lifetime of the issued token (default jwt.access_token_expiration)")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		if err := issueToken(cfg, *issueFor, *scopes, *ttl); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to issue token:", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func issueToken(cfg *config.Config, subject, scopeList string, ttl time.Duration) error {
	jwtService, err := auth.NewJWTService(cfg.JWT)
	if err != nil {
		return err
	}
	var granted []auth.Scope
	for _, s := range strings.Split(scopeList, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		scope, err := auth.ParseScope(s)
		if err != nil {
			return err
		}
		granted = append(granted, scope)
	}
	token, err := jwtService.Issue(subject, granted, ttl)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(token)
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, log, err := bootstrap.StartTelemetry(ctx, cfg, "marketsync-server", nil)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
		_ = log.Sync()
	}()

	log.Info("Starting marketsync server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	stores, err := cache.NewDedupeStoreFactory(cfg.Redis, cache.WithLogger(log)).Open(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	prom := telemetry.NewPromMetrics()
	engine, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{Metrics: prom, Dedupe: stores.Dedupe})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := prom.Registry().Register(telemetry.NewQueueDepthCollector(engine.Queue.Stats, 0, log)); err != nil {
		return fmt.Errorf("register queue collector: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.JWT)
	if err != nil {
		return err
	}
	var revocations auth.RevocationList = auth.NewMemoryRevocationList()
	if stores.Redis != nil {
		revocations = auth.NewRedisRevocationList(stores.Redis)
	}

	if cfg.Scheduler.Enabled {
		tiers, err := scheduler.NewTierScheduler(scheduler.TierScheduleConfig{
			Intervals: map[marketsync.Tier]time.Duration{
				marketsync.TierHigh:   cfg.Scheduler.HighInterval,
				marketsync.TierMedium: cfg.Scheduler.MediumInterval,
				marketsync.TierLow:    cfg.Scheduler.LowInterval,
			},
			RunTimeout: cfg.Scheduler.RunTimeout,
		}, engine.Runner.Run, log)
		if err != nil {
			return fmt.Errorf("tier scheduler: %w", err)
		}
		if err := tiers.Start(ctx); err != nil {
			return fmt.Errorf("start tier scheduler: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := tiers.Stop(stopCtx); err != nil {
				log.Error("Error stopping tier scheduler", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        newHTTPHandler(cfg, log, engine, stores, prom, jwtService, revocations),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited gracefully")
	return nil
}

func newHTTPHandler(
	cfg *config.Config,
	log *zap.Logger,
	engine *bootstrap.Engine,
	stores *cache.Stores,
	prom *telemetry.PromMetrics,
	jwtService *auth.JWTService,
	revocations auth.RevocationList,
) http.Handler {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	g := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := g.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	g.Use(middleware.RequestID())
	g.Use(logger.Recovery(log))
	g.Use(logger.GinMiddleware(log))
	g.Use(middleware.Secure())
	g.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	g.Use(middleware.SpanEnricher(), middleware.SpanErrorMarker())
	g.Use(middleware.HTTPMetrics(prom))
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.Profiling.Enabled
	g.Use(middleware.Profiling(profiling))

	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return engine.DB.Ping() },
	}
	if stores.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return stores.Redis.Ping(ctx).Err() }
	}

	var limiter *middleware.RateLimiter
	if cfg.Webhook.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Webhook.RateLimit, cfg.Webhook.RateBurst)
	}

	router.RegisterAPI(g, router.Handlers{
		Webhook:  handler.NewWebhookHandler(engine.Webhooks, cfg.Webhook.MaxBodySize),
		Queue:    handler.NewQueueHandler(engine.Queue),
		Events:   handler.NewEventHandler(engine.Events),
		Mappings: handler.NewMappingHandler(engine.Mappings, engine.Statuses),
		Auth:     handler.NewAuthHandler(revocations),
		Health:   handler.NewHealthHandler(telemetry.ServiceVersion, checks),
	}, router.APIConfig{
		Authenticate: middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			JWTService:  jwtService,
			Revocations: revocations,
			Logger:      log,
		}),
		WebhookBodyLimit: cfg.Webhook.MaxBodySize,
		WebhookLimiter:   limiter,
		Metrics:          prom.Handler(),
		Swagger: middleware.SwaggerConfig{
			Enabled:     cfg.Swagger.Enabled,
			RequireAuth: cfg.Swagger.RequireAuth,
			AllowedIPs:  cfg.Swagger.AllowedIPs,
		},
		Docs: ginSwagger.WrapHandler(swaggerFiles.Handler),
	})
	return g
}
