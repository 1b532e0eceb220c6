package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meschain/marketsync/internal/infrastructure/auth"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/interfaces/http/dto"
)

func newTestJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "marketsync-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Duration) error { return nil }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func newAuthRouter(t *testing.T, svc *auth.JWTService, revocations auth.RevocationList, scope auth.Scope) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), JWTAuth(JWTMiddlewareConfig{
		JWTService:  svc,
		Revocations: revocations,
		Logger:      zaptest.NewLogger(t),
	}), RequireScope(scope))
	router.GET("/queue", func(c *gin.Context) {
		c.String(http.StatusOK, GetJWTSubject(c))
	})
	return router
}

func serveWithToken(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	if header != "" {
		req.Header.Set(AuthHeaderKey, header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_ValidToken(t *testing.T) {
	svc := newTestJWTService(t)
	token, err := svc.Issue("ops", nil, 0)
	require.NoError(t, err)

	w := serveWithToken(newAuthRouter(t, svc, nil, auth.ScopeQueueRead), BearerPrefix+token.Token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
	svc := newTestJWTService(t)
	other, err := auth.NewJWTService(config.JWTConfig{Secret: "another-secret-key-at-least-32-ch", Issuer: "marketsync-test", AccessTokenExpiration: time.Minute})
	require.NoError(t, err)
	foreign, err := other.Issue("ops", nil, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeUnauthorized},
		{"wrong scheme", "Basic abc", dto.ErrCodeUnauthorized},
		{"empty bearer", BearerPrefix, dto.ErrCodeUnauthorized},
		{"garbage token", BearerPrefix + "not-a-jwt", dto.ErrCodeTokenInvalid},
		{"foreign signature", BearerPrefix + foreign.Token, dto.ErrCodeTokenInvalid},
	}
	router := newAuthRouter(t, svc, nil, auth.ScopeQueueRead)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithToken(router, tt.header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			info := decodeError(t, w)
			assert.Equal(t, tt.code, info.Code)
			assert.NotEmpty(t, info.RequestID)
		})
	}
}

func TestJWTAuth_Revocation(t *testing.T) {
	svc := newTestJWTService(t)
	token, err := svc.Issue("ops", nil, 0)
	require.NoError(t, err)
	revocations := auth.NewMemoryRevocationList()

	router := newAuthRouter(t, svc, revocations, auth.ScopeQueueRead)
	assert.Equal(t, http.StatusOK, serveWithToken(router, BearerPrefix+token.Token).Code)

	require.NoError(t, revocations.Revoke(context.Background(), token.ID, time.Minute))
	w := serveWithToken(router, BearerPrefix+token.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenRevoked, decodeError(t, w).Code)
}

func TestJWTAuth_RevocationStoreDownFailsOpen(t *testing.T) {
	svc := newTestJWTService(t)
	token, err := svc.Issue("ops", nil, 0)
	require.NoError(t, err)

	w := serveWithToken(newAuthRouter(t, svc, failingRevocations{}, auth.ScopeQueueRead), BearerPrefix+token.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService(t)
	token, err := svc.Issue("viewer", []auth.Scope{auth.ScopeEventsRead}, 0)
	require.NoError(t, err)

	w := serveWithToken(newAuthRouter(t, svc, nil, auth.ScopeQueueWrite), BearerPrefix+token.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, w).Code)

	w = serveWithToken(newAuthRouter(t, svc, nil, auth.ScopeEventsRead), BearerPrefix+token.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireScope_WithoutAuth(t *testing.T) {
	router := gin.New()
	router.GET("/queue", RequireScope(auth.ScopeQueueRead), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queue", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
