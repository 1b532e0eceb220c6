package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalChangeFeed_Window(t *testing.T) {
	feed := NewGormLocalChangeFeed(newSQLiteTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	record := func(entity marketsync.EntityType, id string, at time.Time) {
		require.NoError(t, feed.Record(ctx, &marketsync.LocalChange{
			EntityType:    entity,
			LocalEntityID: id,
			Payload:       json.RawMessage(`{"quantity":1}`),
			ChangedAt:     at,
		}))
	}
	record(marketsync.EntityStock, "S1", base)
	record(marketsync.EntityStock, "S2", base.Add(time.Minute))
	record(marketsync.EntityPrice, "P1", base.Add(2*time.Minute))
	record(marketsync.EntityCategory, "C1", base.Add(3*time.Minute))
	record(marketsync.EntityStock, "S1", base.Add(4*time.Minute))

	changes, err := feed.ChangesSince(ctx, marketsync.ChangeQuery{
		EntityTypes: []marketsync.EntityType{marketsync.EntityStock, marketsync.EntityPrice},
		Since:       base,
		Until:       base.Add(4 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, changes, 3, "since is exclusive, until inclusive")
	assert.Equal(t, "S2", changes[0].LocalEntityID)
	assert.Equal(t, "P1", changes[1].LocalEntityID)
	assert.Equal(t, "S1", changes[2].LocalEntityID)
	assert.Equal(t, marketsync.OperationUpdate, changes[0].Operation)

	paged, err := feed.ChangesSince(ctx, marketsync.ChangeQuery{Since: base.Add(-time.Second), Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, "S2", paged[0].LocalEntityID)

	latest, err := feed.Latest(ctx, marketsync.EntityStock, "S1")
	require.NoError(t, err)
	assert.True(t, latest.ChangedAt.Equal(base.Add(4*time.Minute)))

	_, err = feed.Latest(ctx, marketsync.EntityStock, "nope")
	assert.ErrorIs(t, err, marketsync.ErrChangeNotFound)

	assert.Error(t, feed.Record(ctx, &marketsync.LocalChange{EntityType: "widget", LocalEntityID: "x"}))
}

func TestMarketplaceOrderRepository_UpsertPreservesLocalOrder(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewGormMarketplaceOrderRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &marketsync.MarketplaceOrder{
		MarketplaceID: 1,
		RemoteOrderID: "TY-9",
		RemoteStatus:  "Created",
		LocalStatus:   "pending",
		TotalAmount:   decimal.RequireFromString("149.90"),
		Currency:      "TRY",
	}))

	// The host store links its own order.
	require.NoError(t, db.Exec("UPDATE marketplace_orders SET local_order_id = ? WHERE remote_order_id = ?", "L-1", "TY-9").Error)

	require.NoError(t, repo.Upsert(ctx, &marketsync.MarketplaceOrder{
		MarketplaceID: 1,
		RemoteOrderID: "TY-9",
		RemoteStatus:  "Shipped",
		LocalStatus:   "shipped",
		PaymentStatus: "paid",
		TotalAmount:   decimal.RequireFromString("149.90"),
		Currency:      "TRY",
	}))

	stored, err := repo.FindByRemoteID(ctx, 1, "TY-9")
	require.NoError(t, err)
	assert.Equal(t, "L-1", stored.LocalOrderID)
	assert.Equal(t, "Shipped", stored.RemoteStatus)
	assert.Equal(t, "paid", stored.PaymentStatus)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("149.9")))

	_, err = repo.FindByRemoteID(ctx, 1, "missing")
	assert.ErrorIs(t, err, marketsync.ErrOrderNotFound)
}

func TestCategoryRepository_RefreshReplacesTree(t *testing.T) {
	repo := NewGormCategoryRepository(newSQLiteTestDB(t))
	ctx := context.Background()
	first := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Refresh(ctx, 1, []marketsync.CategoryRecord{
		{RemoteCategoryID: "1", Name: "Giyim"},
		{RemoteCategoryID: "2", ParentRemoteID: "1", Name: "Elbise", Leaf: true},
		{RemoteCategoryID: "3", ParentRemoteID: "1", Name: "Etek", Leaf: true},
	}, first))
	require.NoError(t, repo.Refresh(ctx, 2, []marketsync.CategoryRecord{{RemoteCategoryID: "1", Name: "Books"}}, first))

	n, err := repo.Count(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, repo.Refresh(ctx, 1, []marketsync.CategoryRecord{
		{RemoteCategoryID: "1", Name: "Giyim"},
		{RemoteCategoryID: "2", ParentRemoteID: "1", Name: "Elbise", Leaf: true},
	}, first.Add(24*time.Hour)))

	n, err = repo.Count(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "categories missing from the refresh are dropped")

	n, err = repo.Count(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "other marketplaces are untouched")
}
