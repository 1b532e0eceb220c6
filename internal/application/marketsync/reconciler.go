package marketsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ReconcileConfig holds reconciliation policy
type ReconcileConfig struct {
	// MaxPages bounds the listing pages read per marketplace and run
	MaxPages int
	PageSize int
	// RequeueLimit bounds the pending/error mappings re-enqueued per run
	RequeueLimit int
}

// ReconcileResult counts one reconciliation pass
type ReconcileResult struct {
	RemoteProducts int
	Unmapped       int
	Requeued       int
	NoSnapshot     int
}

// Reconciler compares a marketplace's listings with the mapping store and
// re-enqueues mappings left pending or in error
type Reconciler struct {
	clients  marketsync.ClientResolver
	mappings marketsync.EntityMappingRepository
	feed     marketsync.LocalChangeFeed
	queue    *QueueService
	events   *EventLogService
	config   ReconcileConfig
	logger   *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(
	clients marketsync.ClientResolver,
	mappings marketsync.EntityMappingRepository,
	feed marketsync.LocalChangeFeed,
	queue *QueueService,
	events *EventLogService,
	cfg ReconcileConfig,
	log *zap.Logger,
) *Reconciler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.RequeueLimit <= 0 {
		cfg.RequeueLimit = 500
	}
	return &Reconciler{
		clients:  clients,
		mappings: mappings,
		feed:     feed,
		queue:    queue,
		events:   events,
		config:   cfg,
		logger:   log.Named("reconciler"),
	}
}

// Reconcile runs both passes for one marketplace
func (r *Reconciler) Reconcile(ctx context.Context, mp *marketsync.Marketplace) (*ReconcileResult, error) {
	res := &ReconcileResult{}
	if err := r.scanListings(ctx, mp, res); err != nil {
		return res, err
	}
	if err := r.requeueUnsynced(ctx, mp, res); err != nil {
		return res, err
	}
	logger.L(ctx, r.logger).Info("Marketplace reconciled",
		zap.String("marketplace", mp.Name()),
		zap.Int("remote_products", res.RemoteProducts),
		zap.Int("unmapped", res.Unmapped),
		zap.Int("requeued", res.Requeued),
	)
	return res, nil
}

// scanListings reports remote listings no mapping points at
func (r *Reconciler) scanListings(ctx context.Context, mp *marketsync.Marketplace, res *ReconcileResult) error {
	client, err := r.clients.ClientFor(ctx, mp.ID)
	if err != nil {
		return err
	}
	known, err := r.mappings.RemoteIDSet(ctx, mp.ID, marketsync.EntityProduct)
	if err != nil {
		return fmt.Errorf("load product mappings: %w", err)
	}

	var unmapped []*marketsync.EventLogEntry
	page := marketsync.Pagination{Page: 1, PageSize: r.config.PageSize}
	for n := 0; n < r.config.MaxPages; n++ {
		p, err := client.FetchProducts(ctx, page)
		if err != nil {
			return fmt.Errorf("fetch products from %s: %w", mp.Code, err)
		}
		for _, rp := range p.Items {
			res.RemoteProducts++
			if _, ok := known[rp.RemoteID]; ok {
				continue
			}
			res.Unmapped++
			e := marketsync.NewEventLogEntry(marketsync.EventTypeUnmappedRemote, marketsync.EventWarning,
				fmt.Sprintf("%s listing %s (%s) has no local mapping", mp.Name(), rp.RemoteID, rp.Title)).
				ForMarketplace(mp.ID).
				WithPayload(map[string]any{"remote_id": rp.RemoteID, "sku": rp.SKU, "barcode": rp.Barcode})
			e.EntityType = marketsync.EntityProduct
			e.RelatedEntityID = rp.RemoteID
			unmapped = append(unmapped, e)
		}
		if !p.HasMore() {
			break
		}
		page.Page++
	}
	r.events.RecordAll(ctx, unmapped)
	return nil
}

// requeueUnsynced enqueues the latest snapshot of every drifted mapping and of
// every errored mapping whose last failure was retryable
func (r *Reconciler) requeueUnsynced(ctx context.Context, mp *marketsync.Marketplace, res *ReconcileResult) error {
	mappings, err := r.mappings.ListRequeueable(ctx, mp.ID, r.config.RequeueLimit)
	if err != nil {
		return fmt.Errorf("list unsynced mappings: %w", err)
	}

	var requeued []*marketsync.EventLogEntry
	for i := range mappings {
		m := &mappings[i]
		change, err := r.feed.Latest(ctx, m.EntityType, m.LocalEntityID)
		if errors.Is(err, marketsync.ErrChangeNotFound) {
			res.NoSnapshot++
			continue
		}
		if err != nil {
			return fmt.Errorf("latest change of %s: %w", m.Key(), err)
		}
		op := change.Operation
		if op == marketsync.OperationCreate {
			op = marketsync.OperationUpdate
		}
		if _, err := r.queue.Enqueue(ctx, EnqueueRequest{
			EntityType:    m.EntityType,
			LocalEntityID: m.LocalEntityID,
			MarketplaceID: mp.ID,
			Operation:     op,
			Payload:       change.Payload,
		}); err != nil {
			return err
		}
		res.Requeued++
		e := marketsync.NewEventLogEntry(marketsync.EventTypeReconcileRequeue, marketsync.EventInfo,
			fmt.Sprintf("%s %s re-enqueued from %s state", m.EntityType, m.LocalEntityID, m.SyncStatus)).
			ForMarketplace(mp.ID)
		e.EntityType = m.EntityType
		e.RelatedEntityID = m.LocalEntityID
		requeued = append(requeued, e)
	}
	r.events.RecordAll(ctx, requeued)
	return nil
}
