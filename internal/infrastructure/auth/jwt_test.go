package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/marketsync/internal/infrastructure/config"
)

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "marketsync-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(config.JWTConfig{Issuer: "x"})
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newTestJWTService(t)

	issued, err := svc.Issue("ops", []Scope{ScopeQueueRead}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.NotEmpty(t, issued.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), issued.ExpiresAt, 5*time.Second)

	claims, err := svc.Validate(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, issued.ID, claims.ID)
	assert.True(t, claims.HasScope(ScopeQueueRead))
	assert.False(t, claims.HasScope(ScopeQueueWrite))
}

func TestJWTService_DefaultScopesAndTTL(t *testing.T) {
	svc := newTestJWTService(t)

	issued, err := svc.Issue("ops", nil, 48*time.Hour)
	require.NoError(t, err)
	claims, err := svc.Validate(issued.Token)
	require.NoError(t, err)
	assert.ElementsMatch(t, AllScopes(), claims.Scopes)
	assert.Greater(t, claims.RemainingTTL(time.Now()), 47*time.Hour)

	_, err = svc.Issue("", nil, 0)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestJWTService_Expired(t *testing.T) {
	svc := newTestJWTService(t)
	past := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return past }
	issued, err := svc.Issue("ops", nil, time.Minute)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(issued.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := newTestJWTService(t)
	issued, err := svc.Issue("ops", nil, 0)
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, err := NewJWTService(config.JWTConfig{Secret: "another-secret-key-of-32-characters", Issuer: "marketsync-test"})
		require.NoError(t, err)
		_, err = other.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := NewJWTService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else"})
		require.NoError(t, err)
		_, err = other.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", Issuer: "marketsync-test"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Validate(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("events:read")
	require.NoError(t, err)
	assert.Equal(t, ScopeEventsRead, s)

	_, err = ParseScope("admin")
	assert.Error(t, err)
}
