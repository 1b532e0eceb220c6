package marketsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func (h *harness) worker(maxInlineWait time.Duration) (*Worker, *[]time.Duration) {
	w := NewWorker(WorkerDeps{
		Queue:        h.queue,
		Mappings:     h.mappings,
		Marketplaces: h.marketplaces,
		Clients:      h.resolver,
		Statuses:     h.statuses,
		Orders:       h.orders,
		Events:       h.events,
		Categories:   NewCategoryService(h.resolver, h.categories, h.events, h.clock, zaptest.NewLogger(h.t)),
	}, WorkerConfig{MaxInlineWait: maxInlineWait}, h.clock, zaptest.NewLogger(h.t))

	slept := &[]time.Duration{}
	w.SetSleeper(func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	})
	return w, slept
}

func stockRequest(h *harness, mp *marketsync.Marketplace, localID string, qty int64) EnqueueRequest {
	return EnqueueRequest{
		EntityType:    marketsync.EntityStock,
		LocalEntityID: localID,
		MarketplaceID: mp.ID,
		Operation:     marketsync.OperationUpdate,
		Payload:       h.payload(marketsync.StockPayload{Quantity: qty}),
	}
}

func TestWorker_PartialBatchFailure(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	for _, id := range []string{"P1", "P2", "P3"} {
		h.mapping(marketsync.EntityProduct, id, ty.ID, "TY-"+id)
	}

	r1 := h.enqueue(stockRequest(h, ty, "P1", 10))
	r2 := h.enqueue(stockRequest(h, ty, "P2", 11))
	r3 := h.enqueue(stockRequest(h, ty, "P3", 12))

	client.On("UpdateStock", mock.Anything, mock.Anything).Return(func(updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
		require.Len(t, updates, 3)
		assert.Equal(t, "TY-P1", updates[0].RemoteID)
		assert.Equal(t, int64(12), updates[2].Quantity)
		return &marketsync.BatchResult{
			BatchID: "batch-1",
			Outcomes: []marketsync.ItemOutcome{
				{Ref: updates[0].Ref},
				{Ref: updates[1].Ref, Err: &marketsync.ValidationError{Marketplace: marketsync.MarketplaceTrendyol, Message: "quantity locked"}},
				{Ref: updates[2].Ref},
			},
		}, nil
	}, nil).Once()

	w, _ := h.worker(time.Minute)
	summary := w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	counts := summary.For(ty.ID)
	assert.Equal(t, 3, counts.Processed)
	assert.Equal(t, 2, counts.Succeeded)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, "Trendyol", counts.Marketplace)

	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(r1).Status)
	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(r3).Status)
	failed := h.item(r2)
	assert.Equal(t, marketsync.QueueStatusError, failed.Status)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Equal(t, marketsync.ErrorKindValidation, failed.ErrorKind)

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityStock, LocalEntityID: "P1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, marketsync.MappingSynced, m.SyncStatus)
	assert.Equal(t, "TY-P1", m.RemoteEntityID)

	pushes := h.eventsOf(marketsync.EventTypePush)
	assert.Len(t, pushes, 3)
	client.AssertExpectations(t)
}

func TestWorker_StatusChangeWithoutMapping(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	require.NoError(t, h.statuses.SavePair(h.ctx, ty.ID, "shipped", "Shipped"))

	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityOrder,
		LocalEntityID: "ORD-1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationStatusChange,
		Payload:       h.payload(marketsync.OrderStatusPayload{Status: "shipped"}),
	})

	w, _ := h.worker(time.Minute)
	summary := w.ProcessBatch(h.ctx, marketsync.TierHigh, h.dequeue(marketsync.TierHigh))

	item := h.item(res)
	assert.Equal(t, marketsync.QueueStatusError, item.Status)
	assert.Equal(t, 0, item.RetryCount)
	assert.Equal(t, marketsync.ErrorKindMappingNotFound, item.ErrorKind)
	assert.Equal(t, 1, summary.For(ty.ID).Failed)

	events := h.eventsOf(marketsync.EventTypePush)
	require.Len(t, events, 1)
	assert.Equal(t, marketsync.EventError, events[0].Status)
	assert.Equal(t, "ORD-1", events[0].RelatedEntityID)
	client.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything)
}

func TestWorker_RateLimitReleasesRemainingItems(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	n11 := h.marketplace(marketsync.MarketplaceN11)
	tyClient := h.client(ty)
	n11Client := h.client(n11)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")
	h.mapping(marketsync.EntityProduct, "P2", ty.ID, "TY-P2")
	h.mapping(marketsync.EntityProduct, "P1", n11.ID, "N11-P1")

	stock := h.enqueue(stockRequest(h, ty, "P1", 40))
	product := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P2",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationUpdate,
		Payload:       h.payload(marketsync.ProductPayload{Title: "Mug", SalePrice: decimal.NewFromInt(10)}),
	})
	other := h.enqueue(stockRequest(h, n11, "P1", 40))

	tyClient.On("UpdateStock", mock.Anything, mock.Anything).
		Return(nil, &marketsync.RateLimitedError{Marketplace: marketsync.MarketplaceTrendyol, RetryAfter: 30 * time.Second}).Once()
	n11Client.On("UpdateStock", mock.Anything, mock.Anything).
		Return(func(updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
			return marketsync.AllAccepted("", []string{updates[0].Ref}, nil), nil
		}, nil).Once()

	w, slept := h.worker(5 * time.Second)
	items := h.dequeue(marketsync.TierMedium)
	processedAt := h.now
	summary := w.ProcessBatch(h.ctx, marketsync.TierMedium, items)

	limited := h.item(stock)
	assert.Equal(t, marketsync.QueueStatusPending, limited.Status)
	assert.Equal(t, 1, limited.RetryCount)
	require.NotNil(t, limited.AvailableAt)
	assert.False(t, limited.AvailableAt.Before(processedAt.Add(30*time.Second)))

	released := h.item(product)
	assert.Equal(t, marketsync.QueueStatusPending, released.Status)
	assert.Equal(t, 0, released.RetryCount)
	require.NotNil(t, released.AvailableAt)
	assert.True(t, released.AvailableAt.Equal(processedAt.Add(30*time.Second)))

	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(other).Status, "other marketplaces keep going")
	assert.Empty(t, *slept)

	counts := summary.For(ty.ID)
	assert.Equal(t, 1, counts.Retried)
	assert.Equal(t, 1, counts.Released)
	tyClient.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything)
}

func TestWorker_ShortRateLimitIsWaitedInline(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")
	h.mapping(marketsync.EntityProduct, "P2", ty.ID, "TY-P2")

	h.enqueue(stockRequest(h, ty, "P1", 40))
	product := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P2",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationUpdate,
		Payload:       h.payload(marketsync.ProductPayload{Title: "Mug"}),
	})

	client.On("UpdateStock", mock.Anything, mock.Anything).
		Return(nil, &marketsync.RateLimitedError{RetryAfter: 30 * time.Second}).Once()
	client.On("SaveProduct", mock.Anything, mock.MatchedBy(func(l marketsync.ProductListing) bool {
		return l.RemoteID == "TY-P2" && l.LocalID == "P2"
	})).Return("TY-P2", nil).Once()

	w, slept := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	assert.Equal(t, []time.Duration{30 * time.Second}, *slept)
	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(product).Status)
	client.AssertExpectations(t)
}

func TestWorker_AuthFailureHaltsMarketplace(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")
	h.mapping(marketsync.EntityProduct, "P2", ty.ID, "TY-P2")

	productReq := func(id string) EnqueueRequest {
		return EnqueueRequest{
			EntityType:    marketsync.EntityProduct,
			LocalEntityID: id,
			MarketplaceID: ty.ID,
			Operation:     marketsync.OperationUpdate,
			Payload:       h.payload(marketsync.ProductPayload{Title: id}),
		}
	}
	first := h.enqueue(productReq("P1"))
	second := h.enqueue(productReq("P2"))

	client.On("SaveProduct", mock.Anything, mock.Anything).
		Return("", &marketsync.AuthError{Marketplace: marketsync.MarketplaceTrendyol, Message: "invalid api key"}).Once()

	w, _ := h.worker(time.Minute)
	summary := w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	failed := h.item(first)
	assert.Equal(t, marketsync.QueueStatusError, failed.Status)
	assert.Equal(t, marketsync.ErrorKindAuth, failed.ErrorKind)
	held := h.item(second)
	assert.Equal(t, marketsync.QueueStatusPending, held.Status)
	require.NotNil(t, held.AvailableAt)
	assert.False(t, held.AvailableAt.Before(h.now.Add(DefaultAuthHold)))
	assert.Equal(t, 1, summary.For(ty.ID).Released)
	assert.Empty(t, h.dequeue(marketsync.TierMedium), "held items are not dequeued again")

	alerts := h.eventsOf(marketsync.EventTypeAuthFailed)
	require.Len(t, alerts, 1)
	assert.Equal(t, marketsync.ErrorKindAuth, alerts[0].ErrorKind)

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityProduct, LocalEntityID: "P1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, marketsync.MappingError, m.SyncStatus)
	client.AssertNumberOfCalls(t, "SaveProduct", 1)
}

func TestWorker_AuthHoldSpansBatches(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	for _, id := range []string{"P1", "P2", "P3"} {
		h.mapping(marketsync.EntityProduct, id, ty.ID, "TY-"+id)
		h.enqueue(EnqueueRequest{
			EntityType:    marketsync.EntityProduct,
			LocalEntityID: id,
			MarketplaceID: ty.ID,
			Operation:     marketsync.OperationUpdate,
			Payload:       h.payload(marketsync.ProductPayload{Title: id}),
		})
	}
	client.On("SaveProduct", mock.Anything, mock.Anything).
		Return("", &marketsync.AuthError{Marketplace: marketsync.MarketplaceTrendyol, Message: "invalid api key"})

	w, _ := h.worker(time.Minute)
	released := 0
	for batch := 0; batch < 5; batch++ {
		h.tick()
		items, err := h.queue.Dequeue(h.ctx, marketsync.DequeueFilter{Limit: 1, Tier: marketsync.TierMedium})
		require.NoError(t, err)
		if len(items) == 0 {
			break
		}
		released += w.ProcessBatch(h.ctx, marketsync.TierMedium, items).For(ty.ID).Released
	}

	client.AssertNumberOfCalls(t, "SaveProduct", 1)
	assert.Len(t, h.eventsOf(marketsync.EventTypeAuthFailed), 1)
	assert.Equal(t, 2, released)
}

func TestWorker_StatusNotConfigured(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	h.mapping(marketsync.EntityOrder, "ORD-1", ty.ID, "TY-ORD-1")

	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityOrder,
		LocalEntityID: "ORD-1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationStatusChange,
		Payload:       h.payload(marketsync.OrderStatusPayload{Status: "on_hold"}),
	})

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierHigh, h.dequeue(marketsync.TierHigh))

	item := h.item(res)
	assert.Equal(t, marketsync.QueueStatusError, item.Status)
	assert.Equal(t, marketsync.ErrorKindStatusNotConfigured, item.ErrorKind)

	warnings := h.eventsOf(marketsync.EventTypeStatusUnmapped)
	require.Len(t, warnings, 1)
	assert.Equal(t, marketsync.EventWarning, warnings[0].Status)

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityOrder, LocalEntityID: "ORD-1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, marketsync.MappingSynced, m.SyncStatus, "mapping is left untouched")
	client.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything)
}

func TestWorker_OrderStatusIsTranslated(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	h.mapping(marketsync.EntityOrder, "ORD-1", ty.ID, "TY-ORD-1")
	require.NoError(t, h.statuses.SavePair(h.ctx, ty.ID, "shipped", "Shipped"))

	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityOrder,
		LocalEntityID: "ORD-1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationStatusChange,
		Payload:       h.payload(marketsync.OrderStatusPayload{Status: "SHIPPED", TrackingNumber: "TRK1", Carrier: "Yurtici"}),
	})
	client.On("UpdateOrderStatus", mock.Anything, marketsync.OrderStatusUpdate{
		RemoteOrderID:  "TY-ORD-1",
		Status:         "Shipped",
		TrackingNumber: "TRK1",
		Carrier:        "Yurtici",
	}).Return(nil).Once()

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierHigh, h.dequeue(marketsync.TierHigh))

	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(res).Status)
	client.AssertExpectations(t)
}

func TestWorker_CreateRecordsRemoteID(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)

	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P9",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationCreate,
		Payload:       h.payload(marketsync.ProductPayload{SKU: "SKU-9", Title: "Kettle"}),
	})
	client.On("SaveProduct", mock.Anything, mock.MatchedBy(func(l marketsync.ProductListing) bool {
		return l.RemoteID == "" && l.SKU == "SKU-9"
	})).Return("TY-900", nil).Once()

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(res).Status)
	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityProduct, LocalEntityID: "P9", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, "TY-900", m.RemoteEntityID)
	assert.Equal(t, marketsync.MappingSynced, m.SyncStatus)
	require.NotNil(t, m.LastSyncAt)
}

func TestWorker_DeleteInvalidatesMapping(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")

	h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationDelete,
	})
	client.On("DeactivateProduct", mock.Anything, "TY-P1").Return(nil).Once()

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityProduct, LocalEntityID: "P1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.NotNil(t, m.InvalidatedAt)
	assert.False(t, m.IsActive())
	client.AssertExpectations(t)
}

func TestWorker_TransportErrorIsRetried(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")

	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationUpdate,
		Payload:       h.payload(marketsync.ProductPayload{Title: "Mug"}),
	})
	client.On("SaveProduct", mock.Anything, mock.Anything).
		Return("", &marketsync.TransportError{Marketplace: marketsync.MarketplaceTrendyol, Err: context.DeadlineExceeded})

	w, _ := h.worker(time.Minute)
	for attempt := 1; attempt <= 3; attempt++ {
		summary := w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))
		assert.Equal(t, 1, summary.Total().Processed, "attempt %d", attempt)
	}

	item := h.item(res)
	assert.Equal(t, marketsync.QueueStatusError, item.Status)
	assert.Equal(t, 3, item.RetryCount)
	assert.Equal(t, marketsync.ErrorKindTransport, item.ErrorKind)
	assert.Empty(t, h.dequeue(marketsync.TierMedium))

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityProduct, LocalEntityID: "P1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, marketsync.MappingError, m.SyncStatus)
	assert.Contains(t, m.LastErrorMessage, "transport error")
}

func TestWorker_UnregisteredClientFailsItems(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationCreate,
	})

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	item := h.item(res)
	assert.Equal(t, marketsync.QueueStatusError, item.Status)
	assert.Equal(t, marketsync.ErrorKindUnsupported, item.ErrorKind)
}

func TestWorker_ResolverOutageReleasesItems(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	h.resolver.errs[ty.ID] = errors.New("credentials store unavailable")
	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationCreate,
	})

	w, _ := h.worker(time.Minute)
	summary := w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	item := h.item(res)
	assert.Equal(t, marketsync.QueueStatusPending, item.Status)
	assert.Equal(t, 0, item.RetryCount)
	require.NotNil(t, item.AvailableAt)
	assert.True(t, item.AvailableAt.After(h.now))
	assert.Equal(t, 1, summary.For(ty.ID).Released)
}

func TestWorker_CancelledRunReleasesItems(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	h.client(ty)
	res := h.enqueue(EnqueueRequest{
		EntityType:    marketsync.EntityProduct,
		LocalEntityID: "P1",
		MarketplaceID: ty.ID,
		Operation:     marketsync.OperationCreate,
	})
	items := h.dequeue(marketsync.TierMedium)

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	w, _ := h.worker(time.Minute)
	w.ProcessBatch(ctx, marketsync.TierMedium, items)

	assert.Equal(t, marketsync.QueueStatusPending, h.item(res).Status)
}

func TestWorker_BatchesAreChunkedByClientSize(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	client.batch = 2
	for _, id := range []string{"P1", "P2", "P3"} {
		h.mapping(marketsync.EntityProduct, id, ty.ID, "TY-"+id)
		h.enqueue(stockRequest(h, ty, id, 50))
	}

	var sizes []int
	client.On("UpdateStock", mock.Anything, mock.Anything).Return(func(updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
		sizes = append(sizes, len(updates))
		refs := make([]string, len(updates))
		for i, u := range updates {
			refs[i] = u.Ref
		}
		return marketsync.AllAccepted("", refs, nil), nil
	}, nil)

	w, _ := h.worker(time.Minute)
	summary := w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, 3, summary.For(ty.ID).Succeeded)
}

func TestWorker_ImportOrder(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	client := h.client(ty)
	require.NoError(t, h.statuses.SavePair(h.ctx, ty.ID, "new", "Created"))

	res := h.enqueue(EnqueueRequest{
		EntityType:     marketsync.EntityOrder,
		RemoteEntityID: "TY-ORD-7",
		MarketplaceID:  ty.ID,
		Operation:      marketsync.OperationImport,
		Payload:        h.payload(marketsync.ImportPayload{EventID: "evt-1", Kind: marketsync.NotificationOrderCreated}),
	})
	client.On("FetchOrder", mock.Anything, "TY-ORD-7").Return(&marketsync.RemoteOrder{
		RemoteID:    "TY-ORD-7",
		OrderNumber: "100007",
		Status:      "Created",
		TotalAmount: decimal.RequireFromString("249.90"),
		Currency:    "TRY",
	}, nil).Once()

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierHigh, h.dequeue(marketsync.TierHigh))

	assert.Equal(t, marketsync.QueueStatusCompleted, h.item(res).Status)
	row, err := h.orders.FindByRemoteID(h.ctx, ty.ID, "TY-ORD-7")
	require.NoError(t, err)
	assert.Equal(t, "new", row.LocalStatus)
	assert.True(t, row.TotalAmount.Equal(decimal.RequireFromString("249.90")))
}

func TestWorker_ImportProductRejection(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	h.client(ty)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")

	h.enqueue(EnqueueRequest{
		EntityType:     marketsync.EntityProduct,
		RemoteEntityID: "TY-P1",
		MarketplaceID:  ty.ID,
		Operation:      marketsync.OperationImport,
		Payload: h.payload(marketsync.ImportPayload{
			EventID: "evt-2",
			Kind:    marketsync.NotificationProductRejected,
			Reason:  "missing brand",
		}),
	})

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(marketsync.TierMedium))

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityProduct, LocalEntityID: "P1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, marketsync.MappingError, m.SyncStatus)
	assert.Equal(t, "missing brand", m.LastErrorMessage)
	assert.Len(t, h.eventsOf(marketsync.EventTypeProductReview), 1)
}

func TestWorker_ImportStockDriftFlagsMapping(t *testing.T) {
	h := newHarness(t)
	ty := h.marketplace(marketsync.MarketplaceTrendyol)
	h.client(ty)
	h.mapping(marketsync.EntityProduct, "P1", ty.ID, "TY-P1")
	qty := int64(3)

	h.enqueue(EnqueueRequest{
		EntityType:     marketsync.EntityStock,
		RemoteEntityID: "TY-P1",
		MarketplaceID:  ty.ID,
		Operation:      marketsync.OperationImport,
		Payload:        h.payload(marketsync.ImportPayload{EventID: "evt-3", Kind: marketsync.NotificationStockChanged, Quantity: &qty}),
	})

	w, _ := h.worker(time.Minute)
	w.ProcessBatch(h.ctx, marketsync.TierMedium, h.dequeue(""))

	m, err := h.mappings.Find(h.ctx, marketsync.MappingKey{EntityType: marketsync.EntityProduct, LocalEntityID: "P1", MarketplaceID: ty.ID})
	require.NoError(t, err)
	assert.Equal(t, marketsync.MappingPending, m.SyncStatus)

	drift := h.eventsOf(marketsync.EventTypeStockDrift)
	require.Len(t, drift, 1)
	assert.Equal(t, marketsync.EventInfo, drift[0].Status)
}
