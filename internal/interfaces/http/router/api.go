package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meschain/marketsync/internal/infrastructure/auth"
	"github.com/meschain/marketsync/internal/interfaces/http/handler"
	"github.com/meschain/marketsync/internal/interfaces/http/middleware"
)

// Handlers are the endpoints served by the sync engine
type Handlers struct {
	Webhook  *handler.WebhookHandler
	Queue    *handler.QueueHandler
	Events   *handler.EventHandler
	Mappings *handler.MappingHandler
	Auth     *handler.AuthHandler
	Health   *handler.HealthHandler
}

// APIConfig holds the route-level policy of the API
type APIConfig struct {
	// Authenticate guards the admin routes, usually middleware.JWTAuth
	Authenticate gin.HandlerFunc
	// WebhookBodyLimit caps webhook bodies, 0 leaves them unlimited
	WebhookBodyLimit int64
	// WebhookLimiter throttles webhook deliveries per client IP, nil disables
	WebhookLimiter *middleware.RateLimiter
	// Metrics serves /metrics when set
	Metrics http.Handler
	// Swagger guards /swagger; Docs serves it when set
	Swagger middleware.SwaggerConfig
	Docs    gin.HandlerFunc
}

// RegisterAPI mounts the webhook intake, the admin API and the operational
// endpoints on engine
func RegisterAPI(engine *gin.Engine, h Handlers, cfg APIConfig) {
	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}
	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	if cfg.Docs != nil {
		engine.GET("/swagger/*any", middleware.SwaggerProtection(cfg.Swagger, cfg.Authenticate), cfg.Docs)
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Register(webhookRoutes(h, cfg))
	r.Register(adminRoutes(h, cfg)...)
	r.Setup()
}

func webhookRoutes(h Handlers, cfg APIConfig) *DomainGroup {
	g := NewDomainGroup("webhooks", "/webhooks")
	if cfg.WebhookBodyLimit > 0 {
		g.Use(middleware.BodyLimit(cfg.WebhookBodyLimit))
	}
	if cfg.WebhookLimiter != nil {
		g.Use(middleware.RateLimit(cfg.WebhookLimiter))
	}
	g.POST("/:marketplace", h.Webhook.Receive)
	return g
}

func adminRoutes(h Handlers, cfg APIConfig) []RouteRegistrar {
	authenticate := cfg.Authenticate
	if authenticate == nil {
		authenticate = denyAll
	}
	need := middleware.RequireScope

	queue := NewDomainGroup("queue", "/queue").Use(authenticate)
	queue.POST("", need(auth.ScopeQueueWrite), h.Queue.Enqueue)
	queue.GET("", need(auth.ScopeQueueRead), h.Queue.List)
	queue.GET("/stats", need(auth.ScopeQueueRead), h.Queue.Stats)
	queue.GET("/:id", need(auth.ScopeQueueRead), h.Queue.Get)
	queue.POST("/:id/requeue", need(auth.ScopeQueueWrite), h.Queue.Requeue)

	events := NewDomainGroup("events", "/events").Use(authenticate)
	events.GET("", need(auth.ScopeEventsRead), h.Events.List)

	mappings := NewDomainGroup("mappings", "").Use(authenticate)
	mappings.GET("/mappings", need(auth.ScopeMappingsRead), h.Mappings.ListMappings)
	mappings.GET("/status-mappings", need(auth.ScopeMappingsRead), h.Mappings.ListStatusMappings)
	mappings.PUT("/status-mappings", need(auth.ScopeMappingsWrite), h.Mappings.PutStatusMappings)

	session := NewDomainGroup("auth", "/auth").Use(authenticate)
	session.POST("/revoke", h.Auth.Revoke)

	return []RouteRegistrar{queue, events, mappings, session}
}

// denyAll keeps the admin API closed when no authenticator is configured
func denyAll(c *gin.Context) {
	c.AbortWithStatus(http.StatusUnauthorized)
}
