package persistence

import (
	"context"
	"testing"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMarketplace(t *testing.T, repo *GormMarketplaceRepository, code marketsync.MarketplaceCode, enabled bool) *marketsync.Marketplace {
	t.Helper()
	mp := &marketsync.Marketplace{
		Code:        code,
		DisplayName: code.DisplayName(),
		Credentials: []byte("sealed"),
		Enabled:     enabled,
	}
	require.NoError(t, repo.Save(context.Background(), mp))
	return mp
}

func TestMarketplaceRepository_SaveUpsertsByCode(t *testing.T) {
	repo := NewGormMarketplaceRepository(newSQLiteTestDB(t))
	ctx := context.Background()

	mp := seedMarketplace(t, repo, marketsync.MarketplaceTrendyol, true)
	require.NotZero(t, mp.ID)

	again := &marketsync.Marketplace{
		Code:               marketsync.MarketplaceTrendyol,
		DisplayName:        "Trendyol TR",
		Enabled:            false,
		RateLimitPerMinute: 100,
	}
	require.NoError(t, repo.Save(ctx, again))
	assert.Equal(t, mp.ID, again.ID, "code is the natural key")

	stored, err := repo.FindByCode(ctx, marketsync.MarketplaceTrendyol)
	require.NoError(t, err)
	assert.Equal(t, "Trendyol TR", stored.DisplayName)
	assert.False(t, stored.Enabled)
	assert.Equal(t, 100, stored.EffectiveRateLimit())

	require.Error(t, repo.Save(ctx, &marketsync.Marketplace{Code: "etsy"}))
}

func TestMarketplaceRepository_Lookups(t *testing.T) {
	repo := NewGormMarketplaceRepository(newSQLiteTestDB(t))
	ctx := context.Background()

	ty := seedMarketplace(t, repo, marketsync.MarketplaceTrendyol, true)
	seedMarketplace(t, repo, marketsync.MarketplaceN11, false)
	seedMarketplace(t, repo, marketsync.MarketplaceAmazon, true)

	byID, err := repo.FindByID(ctx, ty.ID)
	require.NoError(t, err)
	assert.Equal(t, marketsync.MarketplaceTrendyol, byID.Code)
	assert.Equal(t, []byte("sealed"), byID.Credentials)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, marketsync.ErrMarketplaceNotFound)
	_, err = repo.FindByCode(ctx, marketsync.MarketplaceEbay)
	assert.ErrorIs(t, err, marketsync.ErrMarketplaceNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, marketsync.MarketplaceTrendyol, enabled[0].Code)
	assert.Equal(t, marketsync.MarketplaceAmazon, enabled[1].Code)
}
