package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/scheduler"
)

type MockTierRunner struct {
	mock.Mock
}

func (m *MockTierRunner) Run(ctx context.Context, tier marketsync.Tier, opts scheduler.RunOptions) (*scheduler.RunSummary, error) {
	args := m.Called(ctx, tier, opts)
	summary, _ := args.Get(0).(*scheduler.RunSummary)
	return summary, args.Error(1)
}

func TestParseFlags(t *testing.T) {
	opts, err := ParseFlags("sync-high", []string{"-marketplace", " Trendyol ", "-config", "/etc/marketsync/config.toml"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, marketsync.MarketplaceTrendyol, opts.Marketplace)
	assert.Equal(t, "/etc/marketsync/config.toml", opts.ConfigPath)

	opts, err = ParseFlags("sync-high", nil, io.Discard)
	require.NoError(t, err)
	assert.Empty(t, opts.Marketplace, "no flag runs every enabled marketplace")

	_, err = ParseFlags("sync-high", []string{"-marketplace", "etsy"}, io.Discard)
	assert.ErrorContains(t, err, "unknown marketplace")

	_, err = ParseFlags("sync-high", []string{"extra"}, io.Discard)
	assert.ErrorContains(t, err, "unexpected arguments")
}

func TestRun_UsageErrors(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(marketsync.TierLow, []string{"-marketplace", "etsy"}, io.Discard, &stderr)
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr.String(), "sync-low: unknown marketplace")

	assert.Equal(t, ExitOK, Run(marketsync.TierLow, []string{"-h"}, io.Discard, io.Discard))
}

func finishedSummary(tier marketsync.Tier) *scheduler.RunSummary {
	items := appsync.NewBatchSummary()
	items.Add(1, "Trendyol", appsync.OutcomeSucceeded)
	items.Add(1, "Trendyol", appsync.OutcomeRetried)
	items.Add(2, "", appsync.OutcomeFailed)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &scheduler.RunSummary{
		Tier:       tier,
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Status:     scheduler.RunStatusPartial,
		Items:      items,
		Discovered: &appsync.DiscoverResult{Changes: 4, Enqueued: 3, Coalesced: 1},
		TaskErrors: []string{"purge: database is locked"},
	}
}

func TestExecute_PrintsSummary(t *testing.T) {
	runner := new(MockTierRunner)
	runner.On("Run", mock.Anything, marketsync.TierMedium, scheduler.RunOptions{Marketplace: marketsync.MarketplaceTrendyol}).
		Return(finishedSummary(marketsync.TierMedium), nil)

	var out bytes.Buffer
	code := Execute(context.Background(), runner, marketsync.TierMedium,
		&Options{Marketplace: marketsync.MarketplaceTrendyol}, &out, zaptest.NewLogger(t))

	assert.Equal(t, ExitOK, code)
	text := out.String()
	assert.Contains(t, text, "tier medium run run-1: partial in 1.5s")
	assert.Contains(t, text, "Trendyol")
	assert.Contains(t, text, "#2")
	assert.Contains(t, text, "Released")
	assert.Contains(t, text, "discovered 4 changes, enqueued 3, coalesced 1")
	assert.Contains(t, text, "task error: purge: database is locked")
	runner.AssertExpectations(t)
}

func TestExecute_SkippedOverlapSucceeds(t *testing.T) {
	runner := new(MockTierRunner)
	runner.On("Run", mock.Anything, marketsync.TierHigh, scheduler.RunOptions{}).
		Return(&scheduler.RunSummary{Tier: marketsync.TierHigh, Skipped: true, Status: scheduler.RunStatusSkipped},
			marketsync.ErrTierAlreadyRunning)

	var out bytes.Buffer
	code := Execute(context.Background(), runner, marketsync.TierHigh, &Options{}, &out, zaptest.NewLogger(t))
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "high tier is already running")
}

func TestExecute_FailedRun(t *testing.T) {
	runner := new(MockTierRunner)
	runner.On("Run", mock.Anything, marketsync.TierLow, scheduler.RunOptions{}).
		Return(nil, errors.New("list marketplaces: connection refused"))

	var out bytes.Buffer
	code := Execute(context.Background(), runner, marketsync.TierLow, &Options{}, &out, zaptest.NewLogger(t))
	assert.Equal(t, ExitError, code)
	assert.Empty(t, out.String())
}
