package marketsync

import (
	"context"
	"testing"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/infrastructure/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockMarketplaceClient is a mock implementation of MarketplaceClient
type MockMarketplaceClient struct {
	mock.Mock
	code  marketsync.MarketplaceCode
	batch int
}

var _ marketsync.MarketplaceClient = (*MockMarketplaceClient)(nil)

func newMockClient(code marketsync.MarketplaceCode) *MockMarketplaceClient {
	return &MockMarketplaceClient{code: code, batch: 50}
}

func (m *MockMarketplaceClient) Code() marketsync.MarketplaceCode { return m.code }
func (m *MockMarketplaceClient) BatchSize() int                   { return m.batch }

func (m *MockMarketplaceClient) FetchProducts(ctx context.Context, page marketsync.Pagination) (*marketsync.ProductPage, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketsync.ProductPage), args.Error(1)
}

func (m *MockMarketplaceClient) UpdateStock(ctx context.Context, updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
	args := m.Called(ctx, updates)
	if rf, ok := args.Get(0).(func([]marketsync.StockUpdate) (*marketsync.BatchResult, error)); ok {
		return rf(updates)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketsync.BatchResult), args.Error(1)
}

func (m *MockMarketplaceClient) UpdatePrice(ctx context.Context, updates []marketsync.PriceUpdate) (*marketsync.BatchResult, error) {
	args := m.Called(ctx, updates)
	if rf, ok := args.Get(0).(func([]marketsync.PriceUpdate) (*marketsync.BatchResult, error)); ok {
		return rf(updates)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketsync.BatchResult), args.Error(1)
}

func (m *MockMarketplaceClient) FetchOrders(ctx context.Context, q marketsync.OrderQuery) ([]marketsync.RemoteOrder, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]marketsync.RemoteOrder), args.Error(1)
}

func (m *MockMarketplaceClient) UpdateOrderStatus(ctx context.Context, update marketsync.OrderStatusUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *MockMarketplaceClient) FetchCategories(ctx context.Context) ([]marketsync.RemoteCategory, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]marketsync.RemoteCategory), args.Error(1)
}

func (m *MockMarketplaceClient) SaveProduct(ctx context.Context, listing marketsync.ProductListing) (string, error) {
	args := m.Called(ctx, listing)
	return args.String(0), args.Error(1)
}

func (m *MockMarketplaceClient) DeactivateProduct(ctx context.Context, remoteID string) error {
	args := m.Called(ctx, remoteID)
	return args.Error(0)
}

func (m *MockMarketplaceClient) FetchOrder(ctx context.Context, remoteID string) (*marketsync.RemoteOrder, error) {
	args := m.Called(ctx, remoteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketsync.RemoteOrder), args.Error(1)
}

// stubResolver resolves clients from a map
type stubResolver struct {
	clients map[int64]marketsync.MarketplaceClient
	errs    map[int64]error
}

func (r *stubResolver) ClientFor(_ context.Context, marketplaceID int64) (marketsync.MarketplaceClient, error) {
	if err, ok := r.errs[marketplaceID]; ok {
		return nil, err
	}
	if c, ok := r.clients[marketplaceID]; ok {
		return c, nil
	}
	return nil, marketsync.ErrClientNotRegistered
}

// ---------------------------------------------------------------------------
// SQLite-backed harness
// ---------------------------------------------------------------------------

type harness struct {
	t   *testing.T
	ctx context.Context
	now time.Time

	marketplaces *persistence.GormMarketplaceRepository
	mappings     *persistence.GormEntityMappingRepository
	queueRepo    *persistence.GormSyncQueueRepository
	eventRepo    *persistence.GormEventLogRepository
	statusRepo   *persistence.GormStatusMappingRepository
	orders       *persistence.GormMarketplaceOrderRepository
	categories   *persistence.GormCategoryRepository
	feed         *persistence.GormLocalChangeFeed
	locks        *persistence.GormTierLockRepository

	queue    *QueueService
	events   *EventLogService
	statuses *StatusMapper
	resolver *stubResolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		t:            t,
		ctx:          context.Background(),
		now:          time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		marketplaces: persistence.NewGormMarketplaceRepository(db.DB),
		mappings:     persistence.NewGormEntityMappingRepository(db.DB),
		queueRepo:    persistence.NewGormSyncQueueRepository(db.DB),
		eventRepo:    persistence.NewGormEventLogRepository(db.DB),
		statusRepo:   persistence.NewGormStatusMappingRepository(db.DB),
		orders:       persistence.NewGormMarketplaceOrderRepository(db.DB),
		categories:   persistence.NewGormCategoryRepository(db.DB),
		feed:         persistence.NewGormLocalChangeFeed(db.DB),
		locks:        persistence.NewGormTierLockRepository(db.DB),
		resolver: &stubResolver{
			clients: make(map[int64]marketsync.MarketplaceClient),
			errs:    make(map[int64]error),
		},
	}
	log := zaptest.NewLogger(t)
	h.events = NewEventLogService(h.eventRepo, log)
	h.statuses = NewStatusMapper(h.statusRepo)
	h.queue = NewQueueService(h.queueRepo, QueueConfig{MaxRetries: 3, CriticalStock: 2}, h.clock, log)
	return h
}

func (h *harness) clock() time.Time { return h.now }

// tick advances the clock so enqueue order is strict
func (h *harness) tick() { h.now = h.now.Add(time.Second) }

func (h *harness) marketplace(code marketsync.MarketplaceCode) *marketsync.Marketplace {
	h.t.Helper()
	mp := &marketsync.Marketplace{Code: code, DisplayName: code.DisplayName(), Enabled: true}
	require.NoError(h.t, h.marketplaces.Save(h.ctx, mp))
	return mp
}

func (h *harness) client(mp *marketsync.Marketplace) *MockMarketplaceClient {
	c := newMockClient(mp.Code)
	h.resolver.clients[mp.ID] = c
	return c
}

func (h *harness) mapping(entityType marketsync.EntityType, localID string, marketplaceID int64, remoteID string) {
	h.t.Helper()
	m, err := marketsync.NewEntityMapping(marketsync.MappingKey{
		EntityType:    entityType,
		LocalEntityID: localID,
		MarketplaceID: marketplaceID,
	}, remoteID)
	require.NoError(h.t, err)
	m.RecordSuccess(remoteID, h.now)
	require.NoError(h.t, h.mappings.Upsert(h.ctx, m))
}

func (h *harness) enqueue(req EnqueueRequest) *EnqueueResult {
	h.t.Helper()
	h.tick()
	res, err := h.queue.Enqueue(h.ctx, req)
	require.NoError(h.t, err)
	return res
}

func (h *harness) payload(v any) []byte {
	h.t.Helper()
	raw, err := marketsync.EncodePayload(v)
	require.NoError(h.t, err)
	return raw
}

func (h *harness) dequeue(tier marketsync.Tier) []*marketsync.SyncQueueItem {
	h.t.Helper()
	h.tick()
	items, err := h.queue.Dequeue(h.ctx, marketsync.DequeueFilter{Limit: 100, Tier: tier})
	require.NoError(h.t, err)
	return items
}

func (h *harness) item(res *EnqueueResult) *marketsync.SyncQueueItem {
	h.t.Helper()
	item, err := h.queue.Get(h.ctx, res.ID)
	require.NoError(h.t, err)
	return item
}

func (h *harness) eventsOf(eventType marketsync.EventType) []marketsync.EventLogEntry {
	h.t.Helper()
	entries, _, err := h.events.List(h.ctx, marketsync.EventLogFilter{EventType: eventType, PageSize: 100})
	require.NoError(h.t, err)
	return entries
}
