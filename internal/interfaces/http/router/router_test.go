package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/auth"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/interfaces/http/handler"
	"github.com/meschain/marketsync/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("queue", "/queue")
		assert.Equal(t, "queue", g.Name())
		assert.Equal(t, "/queue", g.Prefix())
	})

	t.Run("middleware applies to subgroups", func(t *testing.T) {
		engine := gin.New()
		var seen []string
		g := NewDomainGroup("outer", "/outer").Use(func(c *gin.Context) {
			seen = append(seen, c.FullPath())
			c.Next()
		})
		g.PUT("/a", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		g.Group("inner", "/inner").POST("/b", func(c *gin.Context) { c.Status(http.StatusCreated) })
		g.RegisterRoutes(engine.Group("/api"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/outer/a", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/outer/inner/b", nil))
		assert.Equal(t, http.StatusCreated, w.Code)

		assert.Equal(t, []string{"/api/outer/a", "/api/outer/inner/b"}, seen)
	})
}

type stubQueue struct{}

func (stubQueue) Enqueue(context.Context, appsync.EnqueueRequest) (*appsync.EnqueueResult, error) {
	return &appsync.EnqueueResult{ID: uuid.New(), Created: true}, nil
}

func (stubQueue) Requeue(context.Context, uuid.UUID) (*marketsync.SyncQueueItem, error) {
	return nil, marketsync.ErrQueueItemNotFound
}

func (stubQueue) Get(context.Context, uuid.UUID) (*marketsync.SyncQueueItem, error) {
	return nil, marketsync.ErrQueueItemNotFound
}

func (stubQueue) List(context.Context, marketsync.QueueListFilter) ([]marketsync.SyncQueueItem, int64, error) {
	return nil, 0, nil
}

func (stubQueue) Stats(context.Context) ([]marketsync.QueueStat, error) {
	return []marketsync.QueueStat{{Tier: marketsync.TierHigh, MarketplaceID: 1, Status: marketsync.QueueStatusPending, Count: 2}}, nil
}

type stubWebhooks struct{ calls int }

func (s *stubWebhooks) Receive(_ context.Context, code string, body []byte, _ string) (*appsync.WebhookResult, error) {
	s.calls++
	return &appsync.WebhookResult{Marketplace: code, Received: 1, Enqueued: 1}, nil
}

type stubEvents struct{}

func (stubEvents) List(context.Context, marketsync.EventLogFilter) ([]marketsync.EventLogEntry, int64, error) {
	return nil, 0, nil
}

type stubMappings struct{}

func (stubMappings) List(context.Context, marketsync.MappingFilter) ([]marketsync.EntityMapping, int64, error) {
	return nil, 0, nil
}

type stubStatuses struct{}

func (stubStatuses) List(context.Context, int64) ([]marketsync.StatusMapping, error) {
	return nil, nil
}

func (stubStatuses) SavePair(context.Context, int64, string, string) error {
	return nil
}

type apiFixture struct {
	engine   *gin.Engine
	jwt      *auth.JWTService
	webhooks *stubWebhooks
}

func newAPI(t *testing.T, mutate func(*APIConfig)) *apiFixture {
	t.Helper()
	jwtService, err := auth.NewJWTService(config.JWTConfig{
		Secret:                "router-test-secret",
		Issuer:                "marketsync-test",
		AccessTokenExpiration: time.Hour,
	})
	require.NoError(t, err)

	revocations := auth.NewMemoryRevocationList()
	webhooks := &stubWebhooks{}
	h := Handlers{
		Webhook:  handler.NewWebhookHandler(webhooks, 0),
		Queue:    handler.NewQueueHandler(stubQueue{}),
		Events:   handler.NewEventHandler(stubEvents{}),
		Mappings: handler.NewMappingHandler(stubMappings{}, stubStatuses{}),
		Auth:     handler.NewAuthHandler(revocations),
		Health:   handler.NewHealthHandler("test", nil),
	}
	cfg := APIConfig{
		Authenticate:     middleware.JWTAuth(middleware.JWTMiddlewareConfig{JWTService: jwtService, Revocations: revocations}),
		WebhookBodyLimit: 64,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("marketsync_up 1\n"))
		}),
		Docs: func(c *gin.Context) { c.String(http.StatusOK, "docs") },
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine := gin.New()
	RegisterAPI(engine, h, cfg)
	return &apiFixture{engine: engine, jwt: jwtService, webhooks: webhooks}
}

func (f *apiFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) token(t *testing.T, scopes ...auth.Scope) string {
	t.Helper()
	issued, err := f.jwt.Issue("ops", scopes, 0)
	require.NoError(t, err)
	return issued.Token
}

func TestRegisterAPI_AdminScopes(t *testing.T) {
	api := newAPI(t, nil)

	w := api.do(t, http.MethodGet, "/api/v1/queue/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	eventsOnly := api.token(t, auth.ScopeEventsRead)
	w = api.do(t, http.MethodGet, "/api/v1/queue/stats", "", eventsOnly)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/events", "", eventsOnly)
	assert.Equal(t, http.StatusOK, w.Code)

	reader := api.token(t, auth.ScopeQueueRead)
	w = api.do(t, http.MethodGet, "/api/v1/queue/stats", "", reader)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	enqueue := `{"entity_type":"stock","local_entity_id":"SKU-1","marketplace_id":1,"operation":"update"}`
	w = api.do(t, http.MethodPost, "/api/v1/queue", enqueue, reader)
	assert.Equal(t, http.StatusForbidden, w.Code, "queue:read cannot enqueue")
	w = api.do(t, http.MethodPost, "/api/v1/queue", enqueue, api.token(t, auth.ScopeQueueWrite))
	assert.Equal(t, http.StatusCreated, w.Code)

	mappingReader := api.token(t, auth.ScopeMappingsRead)
	w = api.do(t, http.MethodGet, "/api/v1/mappings", "", mappingReader)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodPut, "/api/v1/status-mappings", `{"pairs":[]}`, mappingReader)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegisterAPI_RevokedTokenIsRejected(t *testing.T) {
	api := newAPI(t, nil)
	token := api.token(t)

	w := api.do(t, http.MethodPost, "/api/v1/auth/revoke", "", token)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/events", "", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_TOKEN_REVOKED")
}

func TestRegisterAPI_Webhooks(t *testing.T) {
	api := newAPI(t, nil)

	w := api.do(t, http.MethodPost, "/api/v1/webhooks/trendyol", `{"id":"e1"}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code, "webhooks need no operator token")
	assert.Equal(t, 1, api.webhooks.calls)

	w = api.do(t, http.MethodPost, "/api/v1/webhooks/trendyol", strings.Repeat("x", 65), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 1, api.webhooks.calls)
}

func TestRegisterAPI_WebhookRateLimit(t *testing.T) {
	api := newAPI(t, func(cfg *APIConfig) {
		cfg.WebhookLimiter = middleware.NewRateLimiter(0.001, 1)
	})

	w := api.do(t, http.MethodPost, "/api/v1/webhooks/n11", `{}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = api.do(t, http.MethodPost, "/api/v1/webhooks/n11", `{}`, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 1, api.webhooks.calls)
}

func TestRegisterAPI_OperationalEndpoints(t *testing.T) {
	api := newAPI(t, nil)

	w := api.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "marketsync_up 1")

	w = api.do(t, http.MethodGet, "/swagger/index.html", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "docs are off unless enabled")

	enabled := newAPI(t, func(cfg *APIConfig) {
		cfg.Swagger = middleware.SwaggerConfig{Enabled: true}
	})
	w = enabled.do(t, http.MethodGet, "/swagger/index.html", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "docs", w.Body.String())
}

func TestRegisterAPI_NoAuthenticatorClosesAdminAPI(t *testing.T) {
	api := newAPI(t, func(cfg *APIConfig) {
		cfg.Authenticate = nil
	})

	w := api.do(t, http.MethodGet, "/api/v1/queue", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/webhooks/ebay", `{}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}
