package marketsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// PullResult counts the orders of one pull
type PullResult struct {
	Fetched  int
	Stored   int
	Unmapped int
	Failed   int
}

// OrderPuller copies recently updated marketplace orders into the order inbox
type OrderPuller struct {
	clients  marketsync.ClientResolver
	statuses *StatusMapper
	orders   marketsync.MarketplaceOrderRepository
	events   *EventLogService
	clock    Clock
	logger   *zap.Logger

	// onOrderStored is optional
	onOrderStored func(ctx context.Context, order *marketsync.MarketplaceOrder)
}

// NewOrderPuller creates a new OrderPuller
func NewOrderPuller(
	clients marketsync.ClientResolver,
	statuses *StatusMapper,
	orders marketsync.MarketplaceOrderRepository,
	events *EventLogService,
	clock Clock,
	log *zap.Logger,
) *OrderPuller {
	return &OrderPuller{
		clients:  clients,
		statuses: statuses,
		orders:   orders,
		events:   events,
		clock:    clock,
		logger:   log.Named("order_puller"),
	}
}

// SetOnOrderStoredCallback sets the callback invoked after an inbox upsert
func (p *OrderPuller) SetOnOrderStoredCallback(cb func(ctx context.Context, order *marketsync.MarketplaceOrder)) {
	p.onOrderStored = cb
}

// Pull fetches orders of mp updated since since. Orders whose status has no
// translation are skipped with a warning event and picked up again by a later
// pull once the mapping exists.
func (p *OrderPuller) Pull(ctx context.Context, mp *marketsync.Marketplace, since time.Time) (*PullResult, error) {
	client, err := p.clients.ClientFor(ctx, mp.ID)
	if err != nil {
		return nil, err
	}
	log := logger.L(ctx, p.logger).With(zap.String("marketplace", mp.Name()))

	orders, err := client.FetchOrders(ctx, marketsync.OrderQuery{Since: since})
	if err != nil {
		if errors.Is(err, marketsync.ErrAuth) {
			p.events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeAuthFailed, marketsync.EventError,
				fmt.Sprintf("%s rejected the configured credentials", mp.Name())).
				ForMarketplace(mp.ID).WithError(err))
		}
		return nil, fmt.Errorf("fetch orders from %s: %w", mp.Code, err)
	}

	res := &PullResult{Fetched: len(orders)}
	now := p.clock.now()
	for i := range orders {
		order := &orders[i]
		row, err := inboxRow(ctx, p.statuses, now, mp.ID, order)
		if errors.Is(err, marketsync.ErrStatusNotConfigured) {
			res.Unmapped++
			p.events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeStatusUnmapped, marketsync.EventWarning,
				fmt.Sprintf("%s order status %q has no local mapping", mp.Name(), order.Status)).
				ForMarketplace(mp.ID).
				WithError(err).
				WithPayload(map[string]any{"remote_order_id": order.RemoteID, "remote_status": order.Status}))
			continue
		}
		if err == nil {
			err = p.orders.Upsert(ctx, row)
		}
		if err != nil {
			res.Failed++
			log.Error("Failed to store pulled order", zap.String("remote_order_id", order.RemoteID), zap.Error(err))
			continue
		}
		res.Stored++
		if p.onOrderStored != nil {
			p.onOrderStored(ctx, row)
		}
	}

	status := marketsync.EventSuccess
	if res.Failed > 0 || res.Unmapped > 0 {
		status = marketsync.EventWarning
	}
	p.events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeOrderPull, status,
		fmt.Sprintf("%d orders pulled from %s", res.Fetched, mp.Name())).
		ForMarketplace(mp.ID).
		WithPayload(map[string]any{
			"since":    since,
			"fetched":  res.Fetched,
			"stored":   res.Stored,
			"unmapped": res.Unmapped,
			"failed":   res.Failed,
		}))
	log.Info("Orders pulled",
		zap.Time("since", since),
		zap.Int("fetched", res.Fetched),
		zap.Int("stored", res.Stored),
		zap.Int("unmapped", res.Unmapped),
	)
	return res, nil
}

// inboxRow translates a remote order into an inbox row
func inboxRow(ctx context.Context, statuses *StatusMapper, now time.Time, marketplaceID int64, order *marketsync.RemoteOrder) (*marketsync.MarketplaceOrder, error) {
	local, err := statuses.ToLocal(ctx, marketplaceID, order.Status)
	if err != nil {
		return nil, err
	}
	payload := order.Raw
	if len(payload) == 0 {
		if payload, err = marketsync.EncodePayload(order); err != nil {
			return nil, err
		}
	}
	return &marketsync.MarketplaceOrder{
		ID:            uuid.New(),
		MarketplaceID: marketplaceID,
		RemoteOrderID: order.RemoteID,
		RemoteStatus:  order.Status,
		LocalStatus:   local,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		Payload:       payload,
		FetchedAt:     now,
	}, nil
}
