package marketsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Mapping resolution
// ---------------------------------------------------------------------------

// target is the resolved marketplace-side identity of an outbound item
type target struct {
	// own is the item's own mapping row, nil when none exists yet
	own      *marketsync.EntityMapping
	remoteID string
}

func mappingKeyOf(item *marketsync.SyncQueueItem) marketsync.MappingKey {
	return marketsync.MappingKey{
		EntityType:    item.EntityType,
		LocalEntityID: item.LocalEntityID,
		MarketplaceID: item.MarketplaceID,
	}
}

// resolveTarget finds the remote id an outbound item acts on. Stock and price
// lines address the listing, so they fall back to the product mapping of the
// same local id and finally to the barcode or SKU of the snapshot.
func (r *batchRun) resolveTarget(ctx context.Context, item *marketsync.SyncQueueItem) (target, error) {
	var t target
	own, err := r.w.deps.Mappings.Find(ctx, mappingKeyOf(item))
	switch {
	case err == nil:
		t.own = own
		if own.IsActive() {
			t.remoteID = own.RemoteEntityID
		}
	case errors.Is(err, marketsync.ErrMappingNotFound):
	default:
		return t, err
	}

	if t.remoteID == "" && item.EntityType.IsBatchable() {
		product := mappingKeyOf(item)
		product.EntityType = marketsync.EntityProduct
		pm, err := r.w.deps.Mappings.Find(ctx, product)
		switch {
		case err == nil && pm.IsActive():
			t.remoteID = pm.RemoteEntityID
		case err != nil && !errors.Is(err, marketsync.ErrMappingNotFound):
			return t, err
		}
	}
	if t.remoteID == "" && item.EntityType.IsBatchable() {
		t.remoteID = snapshotIdentifier(item)
	}

	needsRemote := item.Operation.RequiresMapping() || item.EntityType.IsBatchable()
	if needsRemote && t.remoteID == "" {
		return t, &marketsync.MappingNotFoundError{
			EntityType:    item.EntityType,
			LocalEntityID: item.LocalEntityID,
			MarketplaceID: item.MarketplaceID,
		}
	}
	return t, nil
}

func snapshotIdentifier(item *marketsync.SyncQueueItem) string {
	var barcode, sku string
	switch item.EntityType {
	case marketsync.EntityStock:
		p, err := marketsync.DecodePayload[marketsync.StockPayload](item.Payload)
		if err != nil {
			return ""
		}
		barcode, sku = p.Barcode, p.SKU
	case marketsync.EntityPrice:
		p, err := marketsync.DecodePayload[marketsync.PricePayload](item.Payload)
		if err != nil {
			return ""
		}
		barcode, sku = p.Barcode, p.SKU
	}
	if barcode != "" {
		return barcode
	}
	return sku
}

// ---------------------------------------------------------------------------
// Single items
// ---------------------------------------------------------------------------

func (r *batchRun) processItem(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem) {
	if item.EntityType == marketsync.EntityCategory {
		r.refreshCategories(ctx, st, item)
		return
	}

	t, err := r.resolveTarget(ctx, item)
	if err != nil {
		r.fail(ctx, st, item, t.own, err)
		return
	}

	remoteID, err := r.execute(ctx, st, item, t.remoteID)
	if err != nil {
		r.fail(ctx, st, item, t.own, err)
		return
	}
	r.succeed(ctx, st, item, t.own, remoteID, "")
}

// execute performs the marketplace call of a single outbound item and returns
// the remote id to record
func (r *batchRun) execute(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, remoteID string) (string, error) {
	client := st.client
	switch item.EntityType {
	case marketsync.EntityProduct:
		switch item.Operation {
		case marketsync.OperationCreate, marketsync.OperationUpdate:
			p, err := marketsync.DecodePayload[marketsync.ProductPayload](item.Payload)
			if err != nil {
				return "", err
			}
			listing := productListing(item, p, remoteID)
			var saved string
			err = r.call(ctx, st, "save_product", func(ctx context.Context) error {
				var err error
				saved, err = client.SaveProduct(ctx, listing)
				return err
			})
			if err != nil {
				return "", err
			}
			if saved == "" {
				saved = remoteID
			}
			return saved, nil
		case marketsync.OperationDelete:
			err := r.call(ctx, st, "deactivate_product", func(ctx context.Context) error {
				return client.DeactivateProduct(ctx, remoteID)
			})
			return remoteID, err
		}

	case marketsync.EntityOrder:
		switch item.Operation {
		case marketsync.OperationStatusChange, marketsync.OperationUpdate:
			p, err := marketsync.DecodePayload[marketsync.OrderStatusPayload](item.Payload)
			if err != nil {
				return "", err
			}
			remoteStatus, err := r.w.deps.Statuses.ToRemote(ctx, item.MarketplaceID, p.Status)
			if err != nil {
				return "", err
			}
			update := marketsync.OrderStatusUpdate{
				RemoteOrderID:  remoteID,
				Status:         remoteStatus,
				TrackingNumber: p.TrackingNumber,
				Carrier:        p.Carrier,
			}
			err = r.call(ctx, st, "update_order_status", func(ctx context.Context) error {
				return client.UpdateOrderStatus(ctx, update)
			})
			return remoteID, err
		}
	}
	return "", fmt.Errorf("%w: %s %s", marketsync.ErrUnsupported, item.Operation, item.EntityType)
}

func productListing(item *marketsync.SyncQueueItem, p marketsync.ProductPayload, remoteID string) marketsync.ProductListing {
	return marketsync.ProductListing{
		LocalID:     item.LocalEntityID,
		RemoteID:    remoteID,
		SKU:         p.SKU,
		Barcode:     p.Barcode,
		Title:       p.Title,
		Description: p.Description,
		Brand:       p.Brand,
		CategoryID:  p.CategoryID,
		Quantity:    p.Quantity,
		ListPrice:   p.ListPrice,
		SalePrice:   p.SalePrice,
		Currency:    p.Currency,
		Attributes:  p.Attributes,
		Images:      p.Images,
	}
}

func (r *batchRun) refreshCategories(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem) {
	if r.w.deps.Categories == nil {
		r.fail(ctx, st, item, nil, fmt.Errorf("%w: category refresh not configured", marketsync.ErrUnsupported))
		return
	}
	count := 0
	if st.categories != nil {
		count = *st.categories
	} else {
		n, err := r.w.deps.Categories.Refresh(ctx, st.id)
		if err != nil {
			r.fail(ctx, st, item, nil, err)
			return
		}
		count = n
		st.categories = &count
	}
	r.complete(ctx, st, item, marketsync.NewEventLogEntry(marketsync.EventTypeCategoryRefresh, marketsync.EventSuccess,
		fmt.Sprintf("%d categories refreshed from %s", count, st.name)).
		ForItem(item).
		WithPayload(map[string]any{"categories": count}))
}

// succeed records the mapping and completes the item. Mapping write failures
// are logged; the remote side already accepted the change.
func (r *batchRun) succeed(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, own *marketsync.EntityMapping, remoteID, batchID string) {
	now := r.w.clock.now()
	m := own
	if m == nil {
		created, err := marketsync.NewEntityMapping(mappingKeyOf(item), remoteID)
		if err != nil {
			r.log.Error("Failed to build mapping", zap.String("key", item.Key().String()), zap.Error(err))
		}
		m = created
	}
	if m != nil {
		if item.Operation == marketsync.OperationDelete {
			m.Invalidate(now)
		} else {
			m.RecordSuccess(remoteID, now)
		}
		if err := r.w.deps.Mappings.Upsert(ctx, m); err != nil {
			r.log.Error("Failed to store mapping",
				zap.String("mapping", m.Key().String()),
				zap.String("remote_id", remoteID),
				zap.Error(err),
			)
		}
	}

	payload := map[string]any{"operation": item.Operation, "remote_id": remoteID}
	if batchID != "" {
		payload["batch_id"] = batchID
	}
	r.complete(ctx, st, item, marketsync.NewEventLogEntry(marketsync.EventTypePush, marketsync.EventSuccess,
		fmt.Sprintf("%s %s pushed to %s", item.EntityType, item.Operation, st.name)).
		ForItem(item).
		WithPayload(payload))
}

// ---------------------------------------------------------------------------
// Batched stock and price lines
// ---------------------------------------------------------------------------

type batchLine struct {
	item   *marketsync.SyncQueueItem
	target target
	ref    string
}

func (r *batchRun) processBatchUnit(ctx context.Context, st *marketplaceState, items []*marketsync.SyncQueueItem) {
	lines := make([]batchLine, 0, len(items))
	for _, item := range items {
		t, err := r.resolveTarget(ctx, item)
		if err != nil {
			r.fail(ctx, st, item, t.own, err)
			continue
		}
		lines = append(lines, batchLine{item: item, target: t, ref: item.ID.String()})
	}
	if len(lines) == 0 {
		return
	}

	entityType := lines[0].item.EntityType
	var (
		result *marketsync.BatchResult
		err    error
	)
	switch entityType {
	case marketsync.EntityStock:
		result, lines, err = r.pushStock(ctx, st, lines)
	case marketsync.EntityPrice:
		result, lines, err = r.pushPrice(ctx, st, lines)
	}
	if err != nil {
		for _, l := range lines {
			r.fail(ctx, st, l.item, l.target.own, err)
		}
		return
	}

	batchID := ""
	if result != nil {
		batchID = result.BatchID
	}
	for _, l := range lines {
		remoteID := l.target.remoteID
		if result != nil {
			if outcome, ok := result.OutcomeFor(l.ref); ok {
				if outcome.Err != nil {
					r.fail(ctx, st, l.item, l.target.own, outcome.Err)
					continue
				}
				if outcome.RemoteID != "" {
					remoteID = outcome.RemoteID
				}
			}
		}
		r.succeed(ctx, st, l.item, l.target.own, remoteID, batchID)
	}
}

// pushStock decodes the snapshots and sends one UpdateStock call. Lines whose
// snapshot does not decode are failed and dropped from the returned slice.
func (r *batchRun) pushStock(ctx context.Context, st *marketplaceState, lines []batchLine) (*marketsync.BatchResult, []batchLine, error) {
	kept := lines[:0]
	updates := make([]marketsync.StockUpdate, 0, len(lines))
	for _, l := range lines {
		p, err := marketsync.DecodePayload[marketsync.StockPayload](l.item.Payload)
		if err != nil {
			r.fail(ctx, st, l.item, l.target.own, err)
			continue
		}
		kept = append(kept, l)
		updates = append(updates, marketsync.StockUpdate{Ref: l.ref, RemoteID: l.target.remoteID, Quantity: p.Quantity})
	}
	if len(updates) == 0 {
		return nil, nil, nil
	}
	var result *marketsync.BatchResult
	err := r.call(ctx, st, "update_stock", func(ctx context.Context) error {
		var err error
		result, err = st.client.UpdateStock(ctx, updates)
		return err
	})
	return result, kept, err
}

func (r *batchRun) pushPrice(ctx context.Context, st *marketplaceState, lines []batchLine) (*marketsync.BatchResult, []batchLine, error) {
	kept := lines[:0]
	updates := make([]marketsync.PriceUpdate, 0, len(lines))
	for _, l := range lines {
		p, err := marketsync.DecodePayload[marketsync.PricePayload](l.item.Payload)
		if err != nil {
			r.fail(ctx, st, l.item, l.target.own, err)
			continue
		}
		kept = append(kept, l)
		updates = append(updates, marketsync.PriceUpdate{
			Ref:       l.ref,
			RemoteID:  l.target.remoteID,
			ListPrice: p.ListPrice,
			SalePrice: p.SalePrice,
			Currency:  p.Currency,
		})
	}
	if len(updates) == 0 {
		return nil, nil, nil
	}
	var result *marketsync.BatchResult
	err := r.call(ctx, st, "update_price", func(ctx context.Context) error {
		var err error
		result, err = st.client.UpdatePrice(ctx, updates)
		return err
	})
	return result, kept, err
}
