package marketsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"go.uber.org/zap"
)

// processImport handles inbound work queued by the webhook receiver
func (r *batchRun) processImport(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem) {
	p, err := marketsync.DecodePayload[marketsync.ImportPayload](item.Payload)
	if err != nil {
		r.fail(ctx, st, item, nil, err)
		return
	}

	switch item.EntityType {
	case marketsync.EntityOrder:
		err = r.importOrder(ctx, st, item, p)
	case marketsync.EntityProduct:
		err = r.importProductReview(ctx, st, item, p)
	case marketsync.EntityStock, marketsync.EntityPrice:
		err = r.importDrift(ctx, st, item, p)
	default:
		err = fmt.Errorf("%w: import of %s", marketsync.ErrUnsupported, item.EntityType)
	}
	if err != nil {
		r.fail(ctx, st, item, nil, err)
	}
}

// importOrder fetches the order, translates its status and stores it in the
// inbox. An unmapped status fails the item so the order is not stored with a
// guessed status.
func (r *batchRun) importOrder(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, p marketsync.ImportPayload) error {
	var order *marketsync.RemoteOrder
	err := r.call(ctx, st, "fetch_order", func(ctx context.Context) error {
		var err error
		order, err = st.client.FetchOrder(ctx, item.RemoteEntityID)
		return err
	})
	if err != nil {
		return err
	}

	row, err := inboxRow(ctx, r.w.deps.Statuses, r.w.clock.now(), st.id, order)
	if err != nil {
		return err
	}
	if err := r.w.deps.Orders.Upsert(ctx, row); err != nil {
		return err
	}

	r.complete(ctx, st, item, marketsync.NewEventLogEntry(marketsync.EventTypeImport, marketsync.EventSuccess,
		fmt.Sprintf("order %s imported from %s", order.OrderNumber, st.name)).
		ForItem(item).
		WithPayload(map[string]any{
			"event_id":      p.EventID,
			"kind":          p.Kind,
			"remote_status": order.Status,
			"local_status":  row.LocalStatus,
		}))
	return nil
}

// importProductReview records the marketplace's approval decision on the mapping
func (r *batchRun) importProductReview(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, p marketsync.ImportPayload) error {
	m, err := r.w.deps.Mappings.FindByRemoteID(ctx, st.id, marketsync.EntityProduct, item.RemoteEntityID)
	if errors.Is(err, marketsync.ErrMappingNotFound) {
		r.complete(ctx, st, item, marketsync.NewEventLogEntry(marketsync.EventTypeUnmappedRemote, marketsync.EventWarning,
			fmt.Sprintf("%s reported product %s which has no local mapping", st.name, item.RemoteEntityID)).
			ForItem(item).
			WithPayload(map[string]any{"event_id": p.EventID, "kind": p.Kind}))
		return nil
	}
	if err != nil {
		return err
	}

	now := r.w.clock.now()
	status, kind, message := marketsync.MappingSynced, marketsync.ErrorKindNone, ""
	eventStatus := marketsync.EventSuccess
	if p.Kind == marketsync.NotificationProductRejected {
		status, kind, message = marketsync.MappingError, marketsync.ErrorKindValidation, p.Reason
		if message == "" {
			message = "rejected by marketplace"
		}
		eventStatus = marketsync.EventWarning
	}
	if err := r.w.deps.Mappings.UpdateStatus(ctx, m.Key(), status, kind, message, now); err != nil {
		return err
	}

	r.complete(ctx, st, item, marketsync.NewEventLogEntry(marketsync.EventTypeProductReview, eventStatus,
		fmt.Sprintf("product %s %s by %s", m.LocalEntityID, reviewVerb(p.Kind), st.name)).
		ForItem(item).
		WithPayload(map[string]any{
			"event_id":        p.EventID,
			"local_entity_id": m.LocalEntityID,
			"reason":          p.Reason,
		}))
	return nil
}

func reviewVerb(kind marketsync.NotificationKind) string {
	if kind == marketsync.NotificationProductRejected {
		return "rejected"
	}
	return "approved"
}

// importDrift flags the mapping of a listing whose stock or price was changed
// on the marketplace side. The next reconcile pass pushes the local value back.
func (r *batchRun) importDrift(ctx context.Context, st *marketplaceState, item *marketsync.SyncQueueItem, p marketsync.ImportPayload) error {
	m, err := r.w.deps.Mappings.FindByRemoteID(ctx, st.id, item.EntityType, item.RemoteEntityID)
	if errors.Is(err, marketsync.ErrMappingNotFound) {
		m, err = r.w.deps.Mappings.FindByRemoteID(ctx, st.id, marketsync.EntityProduct, item.RemoteEntityID)
	}
	eventType := marketsync.EventTypeStockDrift
	if item.EntityType == marketsync.EntityPrice {
		eventType = marketsync.EventTypePriceDrift
	}
	payload := map[string]any{"event_id": p.EventID}
	if p.Quantity != nil {
		payload["remote_quantity"] = *p.Quantity
	}
	if p.Price != nil {
		payload["remote_price"] = p.Price.String()
	}

	if errors.Is(err, marketsync.ErrMappingNotFound) {
		r.complete(ctx, st, item, marketsync.NewEventLogEntry(marketsync.EventTypeUnmappedRemote, marketsync.EventWarning,
			fmt.Sprintf("%s reported %s change for unmapped listing %s", st.name, item.EntityType, item.RemoteEntityID)).
			ForItem(item).
			WithPayload(payload))
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.w.deps.Mappings.UpdateStatus(ctx, m.Key(), marketsync.MappingPending, marketsync.ErrorKindNone, "", r.w.clock.now()); err != nil {
		return err
	}
	payload["local_entity_id"] = m.LocalEntityID
	r.log.Info("Remote drift flagged",
		zap.String("marketplace", st.name),
		zap.String("entity_type", string(item.EntityType)),
		zap.String("local_entity_id", m.LocalEntityID),
	)
	r.complete(ctx, st, item, marketsync.NewEventLogEntry(eventType, marketsync.EventInfo,
		fmt.Sprintf("%s %s changed on %s", item.EntityType, m.LocalEntityID, st.name)).
		ForItem(item).
		WithPayload(payload))
	return nil
}
