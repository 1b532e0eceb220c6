package marketsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the outcome recorded on an event log row
type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventError   EventStatus = "error"
	EventWarning EventStatus = "warning"
	EventInfo    EventStatus = "info"
	EventSkipped EventStatus = "skipped"
)

// EventType names what happened
type EventType string

const (
	EventTypePush              EventType = "sync.push"
	EventTypeImport            EventType = "sync.import"
	EventTypeOrderPull         EventType = "order.pull"
	EventTypeStatusUnmapped    EventType = "status.not_configured"
	EventTypeAuthFailed        EventType = "marketplace.auth_failed"
	EventTypeLowStock          EventType = "stock.low"
	EventTypeStockDrift        EventType = "stock.drift"
	EventTypePriceDrift        EventType = "price.drift"
	EventTypeProductReview     EventType = "product.review"
	EventTypeUnmappedRemote    EventType = "reconcile.unmapped_remote"
	EventTypeReconcileRequeue  EventType = "reconcile.requeue"
	EventTypeCategoryRefresh   EventType = "category.refresh"
	EventTypeReportGenerated   EventType = "report.generated"
	EventTypeTierRun           EventType = "tier.run"
	EventTypeWebhookReceived   EventType = "webhook.received"
	EventTypeQueueRequeued     EventType = "queue.requeued"
	EventTypeRetentionPurge    EventType = "retention.purge"
	EventTypeStaleItemsRecover EventType = "queue.stale_recovered"
)

// EventLogEntry is an immutable audit row
type EventLogEntry struct {
	ID              uuid.UUID
	EventType       EventType
	RelatedEntityID string
	EntityType      EntityType
	MarketplaceID   *int64
	QueueItemID     *uuid.UUID
	Status          EventStatus
	Message         string
	ErrorKind       ErrorKind
	Payload         json.RawMessage
	CreatedAt       time.Time
}

// NewEventLogEntry creates an entry stamped with a fresh id and the current time
func NewEventLogEntry(eventType EventType, status EventStatus, message string) *EventLogEntry {
	return &EventLogEntry{
		ID:        uuid.New(),
		EventType: eventType,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// ForItem copies the entity references of a queue item onto the entry
func (e *EventLogEntry) ForItem(item *SyncQueueItem) *EventLogEntry {
	e.RelatedEntityID = item.Key().EntityRef()
	e.EntityType = item.EntityType
	mp := item.MarketplaceID
	e.MarketplaceID = &mp
	id := item.ID
	e.QueueItemID = &id
	return e
}

// ForMarketplace sets the marketplace reference
func (e *EventLogEntry) ForMarketplace(marketplaceID int64) *EventLogEntry {
	e.MarketplaceID = &marketplaceID
	return e
}

// WithPayload attaches a JSON document. Marshal failures leave the payload empty.
func (e *EventLogEntry) WithPayload(v any) *EventLogEntry {
	if raw, err := json.Marshal(v); err == nil {
		e.Payload = raw
	}
	return e
}

// WithError records the failure message and kind
func (e *EventLogEntry) WithError(err error) *EventLogEntry {
	if err == nil {
		return e
	}
	if e.Message == "" {
		e.Message = err.Error()
	}
	e.ErrorKind = KindOf(err)
	return e
}

// EventLogFilter is used by the admin listing
type EventLogFilter struct {
	RelatedEntityID string
	MarketplaceID   int64
	QueueItemID     *uuid.UUID
	Status          EventStatus
	EventType       EventType
	Since           *time.Time
	Page            int
	PageSize        int
}

// EventOutcomeCount aggregates events per marketplace and status
type EventOutcomeCount struct {
	MarketplaceID int64
	EventType     EventType
	Status        EventStatus
	Count         int64
}

// EventLogRepository appends and reads audit rows. There is no update operation.
type EventLogRepository interface {
	Append(ctx context.Context, entry *EventLogEntry) error
	AppendBatch(ctx context.Context, entries []*EventLogEntry) error
	List(ctx context.Context, filter EventLogFilter) ([]EventLogEntry, int64, error)
	// CountByOutcome aggregates rows created in [from, to)
	CountByOutcome(ctx context.Context, from, to time.Time) ([]EventOutcomeCount, error)
}
