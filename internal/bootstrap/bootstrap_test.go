package bootstrap

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/infrastructure/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Log:      config.LogConfig{Level: "warn", Format: "console", Output: "stdout"},
		Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"},
		Security: config.SecurityConfig{CredentialsKey: base64.StdEncoding.EncodeToString(make([]byte, 32))},
		Storage:  config.StorageConfig{Type: "local", LocalDir: t.TempDir()},
		Sync:     config.SyncConfig{MaxRetries: 3, BatchSize: 10, MaxBatches: 2},
		Webhook:  config.WebhookConfig{DedupeTTL: time.Hour},
	}
}

func TestOpen_WiresServicesOnSQLite(t *testing.T) {
	ctx := context.Background()
	engine, err := Open(ctx, testConfig(t), zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	defer engine.Close()

	res, err := engine.Queue.Enqueue(ctx, appsync.EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P-1",
		MarketplaceID: 1,
		Operation:     marketsync.OperationUpdate,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)

	stats, err := engine.Queue.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Count)
	assert.Equal(t, marketsync.QueueStatusPending, stats[0].Status)
}

func TestOpen_TierRunWithoutMarketplaces(t *testing.T) {
	ctx := context.Background()
	engine, err := Open(ctx, testConfig(t), zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	defer engine.Close()

	summary, err := engine.Runner.Run(ctx, marketsync.TierMedium, scheduler.RunOptions{})
	assert.ErrorIs(t, err, scheduler.ErrNoEnabledMarketplaces)
	require.NotNil(t, summary)
	assert.Equal(t, scheduler.RunStatusFailed, summary.Status)

	// the failed run released the lock
	summary, err = engine.Runner.Run(ctx, marketsync.TierMedium, scheduler.RunOptions{})
	assert.ErrorIs(t, err, scheduler.ErrNoEnabledMarketplaces)
	assert.False(t, summary.Skipped)
}

func TestOpen_RejectsMissingCredentialsKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.CredentialsKey = ""
	_, err := Open(context.Background(), cfg, zaptest.NewLogger(t), Options{})
	assert.ErrorContains(t, err, "credentials_key")
}

func TestStartTelemetry_Disabled(t *testing.T) {
	cfg := testConfig(t)
	tel, log, err := StartTelemetry(context.Background(), cfg, "marketsync-test", map[string]string{"tier": "low"})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.False(t, tel.Tracer.IsEnabled())
	assert.False(t, tel.Logs.IsEnabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
}
