package marketsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the retry bound applied when an enqueue does not specify one
const DefaultMaxRetries = 3

// EntityType is the kind of entity a queue item or mapping refers to
type EntityType string

const (
	EntityProduct  EntityType = "product"
	EntityStock    EntityType = "stock"
	EntityPrice    EntityType = "price"
	EntityOrder    EntityType = "order"
	EntityCategory EntityType = "category"
)

// IsValid returns true if the entity type is supported
func (t EntityType) IsValid() bool {
	switch t {
	case EntityProduct, EntityStock, EntityPrice, EntityOrder, EntityCategory:
		return true
	}
	return false
}

// String returns the string representation
func (t EntityType) String() string {
	return string(t)
}

// IsBatchable returns true for entity types pushed through the marketplace batch endpoints
func (t EntityType) IsBatchable() bool {
	return t == EntityStock || t == EntityPrice
}

// Operation is the action a queue item performs
type Operation string

const (
	OperationCreate       Operation = "create"
	OperationUpdate       Operation = "update"
	OperationDelete       Operation = "delete"
	OperationStatusChange Operation = "status_change"
	// OperationImport is inbound work originating from a marketplace webhook
	OperationImport Operation = "import"
)

// IsValid returns true if the operation is supported
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationStatusChange, OperationImport:
		return true
	}
	return false
}

// String returns the string representation
func (o Operation) String() string {
	return string(o)
}

// IsInbound returns true for operations that pull marketplace state into the local store
func (o Operation) IsInbound() bool {
	return o == OperationImport
}

// RequiresMapping returns true if the operation needs an existing remote id
func (o Operation) RequiresMapping() bool {
	return o == OperationUpdate || o == OperationDelete || o == OperationStatusChange
}

// QueueStatus is the lifecycle state of a queue item
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusError      QueueStatus = "error"
)

// IsValid returns true if the status is a known state
func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusError:
		return true
	}
	return false
}

// IsTerminal returns true for states that never transition again automatically
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusError
}

// QueueKey identifies the unit of work an item represents.
// At most one non-terminal item exists per key.
type QueueKey struct {
	EntityType     EntityType
	LocalEntityID  string
	RemoteEntityID string
	MarketplaceID  int64
	Operation      Operation
}

// Validate checks the key shape. Outbound keys carry a local id only,
// inbound import keys a remote id only.
func (k QueueKey) Validate() error {
	if !k.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidQueueKey, k.EntityType)
	}
	if !k.Operation.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidQueueKey, k.Operation)
	}
	if k.MarketplaceID <= 0 {
		return fmt.Errorf("%w: marketplace id is required", ErrInvalidQueueKey)
	}
	if k.Operation.IsInbound() {
		if k.RemoteEntityID == "" || k.LocalEntityID != "" {
			return fmt.Errorf("%w: import items carry a remote entity id only", ErrInvalidQueueKey)
		}
		return nil
	}
	if k.LocalEntityID == "" || k.RemoteEntityID != "" {
		return fmt.Errorf("%w: outbound items carry a local entity id only", ErrInvalidQueueKey)
	}
	return nil
}

// EntityRef returns the id that identifies the entity in events and summaries
func (k QueueKey) EntityRef() string {
	if k.Operation.IsInbound() {
		return k.RemoteEntityID
	}
	return k.LocalEntityID
}

func (k QueueKey) String() string {
	return fmt.Sprintf("%s/%s/%s@%d", k.EntityType, k.Operation, k.EntityRef(), k.MarketplaceID)
}

// Failure describes a failed processing attempt
type Failure struct {
	Message    string
	Kind       ErrorKind
	Retryable  bool
	RetryAfter time.Duration
}

// FailureFromError classifies err into a Failure
func FailureFromError(err error) Failure {
	return Failure{
		Message:    err.Error(),
		Kind:       KindOf(err),
		Retryable:  IsRetryable(err),
		RetryAfter: RetryAfterOf(err),
	}
}

// SyncQueueItem is one outstanding unit of sync work.
//
// Lifecycle:
//
//	pending ──dequeue──► processing ──success──► completed
//	   ▲                    │  │
//	   └──retryable, under──┘  └──non-retryable / bound reached──► error
//	      bound (or resubmit)
type SyncQueueItem struct {
	ID             uuid.UUID
	EntityType     EntityType
	LocalEntityID  string
	RemoteEntityID string
	MarketplaceID  int64
	Operation      Operation
	Tier           Tier
	// Payload is the entity snapshot taken at enqueue time
	Payload    json.RawMessage
	Status     QueueStatus
	RetryCount int
	MaxRetries int
	LastError  string
	ErrorKind  ErrorKind
	// AvailableAt is the earliest instant the item may be dequeued again (nil = now)
	AvailableAt *time.Time
	// Resubmit is set when a newer snapshot arrives while the item is processing
	Resubmit    bool
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSyncQueueItem creates a pending item for key
func NewSyncQueueItem(key QueueKey, tier Tier, payload json.RawMessage, maxRetries int) (*SyncQueueItem, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !tier.IsValid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidQueueKey, tier)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	now := time.Now()
	return &SyncQueueItem{
		ID:             uuid.New(),
		EntityType:     key.EntityType,
		LocalEntityID:  key.LocalEntityID,
		RemoteEntityID: key.RemoteEntityID,
		MarketplaceID:  key.MarketplaceID,
		Operation:      key.Operation,
		Tier:           tier,
		Payload:        payload,
		Status:         QueueStatusPending,
		MaxRetries:     maxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Key returns the identity tuple of the item
func (i *SyncQueueItem) Key() QueueKey {
	return QueueKey{
		EntityType:     i.EntityType,
		LocalEntityID:  i.LocalEntityID,
		RemoteEntityID: i.RemoteEntityID,
		MarketplaceID:  i.MarketplaceID,
		Operation:      i.Operation,
	}
}

// IsTerminal returns true if the item reached completed or error
func (i *SyncQueueItem) IsTerminal() bool {
	return i.Status.IsTerminal()
}

// IsAvailable returns true if a pending item may be dequeued at now
func (i *SyncQueueItem) IsAvailable(now time.Time) bool {
	return i.Status == QueueStatusPending && (i.AvailableAt == nil || !i.AvailableAt.After(now))
}

// Supersede replaces the snapshot of a non-terminal item with a newer one.
// An item that is being processed keeps running with its old copy and is flagged
// for resubmission.
func (i *SyncQueueItem) Supersede(payload json.RawMessage, tier Tier, now time.Time) error {
	if i.IsTerminal() {
		return fmt.Errorf("%w: cannot supersede %s item", ErrInvalidTransition, i.Status)
	}
	if len(payload) > 0 {
		i.Payload = payload
	}
	if tier.IsValid() {
		i.Tier = tier
	}
	if i.Status == QueueStatusProcessing {
		i.Resubmit = true
	}
	i.UpdatedAt = now
	return nil
}

// MarkProcessing claims a pending item
func (i *SyncQueueItem) MarkProcessing(now time.Time) error {
	if i.Status != QueueStatusPending {
		return fmt.Errorf("%w: %s -> processing", ErrInvalidTransition, i.Status)
	}
	i.Status = QueueStatusProcessing
	i.StartedAt = &now
	i.UpdatedAt = now
	return nil
}

// MarkCompleted finishes a processing item. A resubmitted item goes back to
// pending so the newer snapshot is pushed on the next pass.
func (i *SyncQueueItem) MarkCompleted(now time.Time) error {
	if i.Status != QueueStatusProcessing {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, i.Status)
	}
	i.LastError = ""
	i.ErrorKind = ErrorKindNone
	i.UpdatedAt = now
	if i.Resubmit {
		i.reset()
		return nil
	}
	i.Status = QueueStatusCompleted
	i.CompletedAt = &now
	return nil
}

// MarkFailed records a failed attempt.
//
// Retryable failures increment retry_count and return the item to pending with
// available_at pushed by RetryAfter (or retryDelay); the item becomes error once
// retry_count reaches max_retries. Non-retryable failures go straight to error.
// A resubmitted item always gets another attempt with its newer snapshot and
// a fresh retry budget.
func (i *SyncQueueItem) MarkFailed(f Failure, retryDelay time.Duration, now time.Time) error {
	if i.Status != QueueStatusProcessing {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, i.Status)
	}
	i.LastError = f.Message
	i.ErrorKind = f.Kind
	i.UpdatedAt = now

	if i.Resubmit {
		i.RetryCount = 0
		i.reset()
		return nil
	}
	if f.Retryable {
		i.RetryCount++
	}
	if !f.Retryable || i.RetryCount >= i.MaxRetries {
		i.Status = QueueStatusError
		i.CompletedAt = &now
		return nil
	}

	i.Status = QueueStatusPending
	i.StartedAt = nil
	delay := f.RetryAfter
	if delay <= 0 {
		delay = retryDelay
	}
	if delay > 0 {
		at := now.Add(delay)
		i.AvailableAt = &at
	} else {
		i.AvailableAt = nil
	}
	return nil
}

// Release returns a processing item to pending without counting a retry.
// notBefore may be nil.
func (i *SyncQueueItem) Release(notBefore *time.Time, now time.Time) error {
	if i.Status != QueueStatusProcessing {
		return fmt.Errorf("%w: %s -> pending", ErrInvalidTransition, i.Status)
	}
	i.Status = QueueStatusPending
	i.StartedAt = nil
	i.AvailableAt = notBefore
	i.UpdatedAt = now
	return nil
}

// Requeue manually revives an item in error with a fresh retry budget
func (i *SyncQueueItem) Requeue(now time.Time) error {
	if i.Status != QueueStatusError {
		return fmt.Errorf("%w: only error items can be requeued, got %s", ErrInvalidTransition, i.Status)
	}
	i.RetryCount = 0
	i.LastError = ""
	i.ErrorKind = ErrorKindNone
	i.CompletedAt = nil
	i.Status = QueueStatusPending
	i.AvailableAt = nil
	i.UpdatedAt = now
	return nil
}

func (i *SyncQueueItem) reset() {
	i.Status = QueueStatusPending
	i.Resubmit = false
	i.StartedAt = nil
	i.AvailableAt = nil
}

// DequeueFilter narrows a dequeue to a slice of the queue
type DequeueFilter struct {
	Limit         int
	EntityType    EntityType
	Tier          Tier
	MarketplaceID int64
}

// QueueListFilter is used by the admin listing
type QueueListFilter struct {
	Status        QueueStatus
	EntityType    EntityType
	Tier          Tier
	MarketplaceID int64
	LocalEntityID string
	SortBy        string
	SortOrder     string
	Page          int
	PageSize      int
}

// QueueStat is one row of queue counts
type QueueStat struct {
	Tier          Tier        `json:"tier"`
	MarketplaceID int64       `json:"marketplace_id"`
	Status        QueueStatus `json:"status"`
	Count         int64       `json:"count"`
}

// SyncQueueRepository persists queue items
type SyncQueueRepository interface {
	// Enqueue stores item, or coalesces it into the active item with the same key.
	// Returns the stored item and whether a new row was created.
	Enqueue(ctx context.Context, item *SyncQueueItem) (*SyncQueueItem, bool, error)
	// Dequeue atomically claims up to filter.Limit available pending items, oldest first
	Dequeue(ctx context.Context, filter DequeueFilter, now time.Time) ([]*SyncQueueItem, error)
	// Transition loads the item under lock, applies fn and persists the result
	Transition(ctx context.Context, id uuid.UUID, fn func(*SyncQueueItem) error) (*SyncQueueItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*SyncQueueItem, error)
	FindActiveByKey(ctx context.Context, key QueueKey) (*SyncQueueItem, error)
	// RecoverStale returns processing items started before cutoff to pending
	RecoverStale(ctx context.Context, cutoff time.Time) (int64, error)
	// Purge deletes completed items finished before cutoff
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, filter QueueListFilter) ([]SyncQueueItem, int64, error)
	Stats(ctx context.Context) ([]QueueStat, error)
}
