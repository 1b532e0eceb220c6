package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// utcPtr normalizes optional timestamps so SQLite's text comparison and
// PostgreSQL's timestamptz agree on ordering.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func jsonOrEmpty(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

// ---------------------------------------------------------------------------
// Marketplace
// ---------------------------------------------------------------------------

// MarketplaceModel is the persistence model of a configured marketplace
type MarketplaceModel struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	Code               string `gorm:"type:varchar(20);not null;uniqueIndex:idx_marketplaces_code"`
	DisplayName        string `gorm:"type:varchar(100);not null"`
	Credentials        []byte
	WebhookSecret      []byte
	Enabled            bool   `gorm:"not null"`
	BaseURL            string `gorm:"type:varchar(255)"`
	RateLimitPerMinute int    `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName returns the table name for GORM
func (MarketplaceModel) TableName() string {
	return "marketplaces"
}

// ToDomain converts the persistence model to a domain Marketplace
func (m *MarketplaceModel) ToDomain() *marketsync.Marketplace {
	return &marketsync.Marketplace{
		ID:                 m.ID,
		Code:               marketsync.MarketplaceCode(m.Code),
		DisplayName:        m.DisplayName,
		Credentials:        m.Credentials,
		WebhookSecret:      m.WebhookSecret,
		Enabled:            m.Enabled,
		BaseURL:            m.BaseURL,
		RateLimitPerMinute: m.RateLimitPerMinute,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// MarketplaceModelFromDomain creates a persistence model from a domain Marketplace
func MarketplaceModelFromDomain(mp *marketsync.Marketplace) *MarketplaceModel {
	return &MarketplaceModel{
		ID:                 mp.ID,
		Code:               string(mp.Code),
		DisplayName:        mp.DisplayName,
		Credentials:        mp.Credentials,
		WebhookSecret:      mp.WebhookSecret,
		Enabled:            mp.Enabled,
		BaseURL:            mp.BaseURL,
		RateLimitPerMinute: mp.RateLimitPerMinute,
		CreatedAt:          mp.CreatedAt.UTC(),
		UpdatedAt:          mp.UpdatedAt.UTC(),
	}
}

// ---------------------------------------------------------------------------
// Entity mapping
// ---------------------------------------------------------------------------

// EntityMappingModel binds a local entity to its marketplace id
type EntityMappingModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	LocalEntityType  string    `gorm:"column:local_entity_type;type:varchar(20);not null;uniqueIndex:idx_entity_mappings_key,priority:1"`
	LocalEntityID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_entity_mappings_key,priority:2"`
	MarketplaceID    int64     `gorm:"not null;uniqueIndex:idx_entity_mappings_key,priority:3;index:idx_entity_mappings_remote,priority:1"`
	RemoteEntityID   string    `gorm:"column:marketplace_entity_id;type:varchar(128);not null;index:idx_entity_mappings_remote,priority:2"`
	SyncStatus       string    `gorm:"type:varchar(20);not null;index"`
	LastSyncAt       *time.Time
	LastErrorMessage string `gorm:"type:text"`
	LastErrorKind    string `gorm:"type:varchar(32);not null;default:''"`
	InvalidatedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (EntityMappingModel) TableName() string {
	return "entity_mappings"
}

// BeforeCreate assigns an id to rows created without one
func (m *EntityMappingModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain EntityMapping
func (m *EntityMappingModel) ToDomain() *marketsync.EntityMapping {
	return &marketsync.EntityMapping{
		ID:               m.ID,
		EntityType:       marketsync.EntityType(m.LocalEntityType),
		LocalEntityID:    m.LocalEntityID,
		MarketplaceID:    m.MarketplaceID,
		RemoteEntityID:   m.RemoteEntityID,
		SyncStatus:       marketsync.MappingSyncStatus(m.SyncStatus),
		LastSyncAt:       m.LastSyncAt,
		LastErrorMessage: m.LastErrorMessage,
		LastErrorKind:    marketsync.ErrorKind(m.LastErrorKind),
		InvalidatedAt:    m.InvalidatedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// EntityMappingModelFromDomain creates a persistence model from a domain EntityMapping
func EntityMappingModelFromDomain(e *marketsync.EntityMapping) *EntityMappingModel {
	return &EntityMappingModel{
		ID:               e.ID,
		LocalEntityType:  string(e.EntityType),
		LocalEntityID:    e.LocalEntityID,
		MarketplaceID:    e.MarketplaceID,
		RemoteEntityID:   e.RemoteEntityID,
		SyncStatus:       string(e.SyncStatus),
		LastSyncAt:       utcPtr(e.LastSyncAt),
		LastErrorMessage: e.LastErrorMessage,
		LastErrorKind:    string(e.LastErrorKind),
		InvalidatedAt:    utcPtr(e.InvalidatedAt),
		CreatedAt:        e.CreatedAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
}

// ---------------------------------------------------------------------------
// Sync queue
// ---------------------------------------------------------------------------

// SyncQueueItemModel is a durable unit of sync work.
// idx_sync_queue_active_key is partial: only pending and processing rows are unique per key.
type SyncQueueItemModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	EntityType     string         `gorm:"type:varchar(20);not null;uniqueIndex:idx_sync_queue_active_key,priority:1,where:status <> 'completed' AND status <> 'error'"`
	LocalEntityID  string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_sync_queue_active_key,priority:2"`
	RemoteEntityID string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_sync_queue_active_key,priority:3"`
	MarketplaceID  int64          `gorm:"not null;uniqueIndex:idx_sync_queue_active_key,priority:4"`
	Operation      string         `gorm:"type:varchar(20);not null;uniqueIndex:idx_sync_queue_active_key,priority:5"`
	Tier           string         `gorm:"type:varchar(10);not null;index:idx_sync_queue_dequeue,priority:2"`
	Payload        datatypes.JSON `gorm:"not null"`
	Status         string         `gorm:"type:varchar(20);not null;index:idx_sync_queue_dequeue,priority:1"`
	RetryCount     int            `gorm:"not null"`
	MaxRetries     int            `gorm:"not null"`
	LastError      string         `gorm:"type:text"`
	ErrorKind      string         `gorm:"type:varchar(40)"`
	AvailableAt    *time.Time
	Resubmit       bool `gorm:"not null"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"index:idx_sync_queue_dequeue,priority:3"`
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM
func (SyncQueueItemModel) TableName() string {
	return "sync_queue"
}

// BeforeCreate assigns an id to rows created without one
func (m *SyncQueueItemModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain SyncQueueItem
func (m *SyncQueueItemModel) ToDomain() *marketsync.SyncQueueItem {
	return &marketsync.SyncQueueItem{
		ID:             m.ID,
		EntityType:     marketsync.EntityType(m.EntityType),
		LocalEntityID:  m.LocalEntityID,
		RemoteEntityID: m.RemoteEntityID,
		MarketplaceID:  m.MarketplaceID,
		Operation:      marketsync.Operation(m.Operation),
		Tier:           marketsync.Tier(m.Tier),
		Payload:        json.RawMessage(m.Payload),
		Status:         marketsync.QueueStatus(m.Status),
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		LastError:      m.LastError,
		ErrorKind:      marketsync.ErrorKind(m.ErrorKind),
		AvailableAt:    m.AvailableAt,
		Resubmit:       m.Resubmit,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// SyncQueueItemModelFromDomain creates a persistence model from a domain SyncQueueItem
func SyncQueueItemModelFromDomain(i *marketsync.SyncQueueItem) *SyncQueueItemModel {
	return &SyncQueueItemModel{
		ID:             i.ID,
		EntityType:     string(i.EntityType),
		LocalEntityID:  i.LocalEntityID,
		RemoteEntityID: i.RemoteEntityID,
		MarketplaceID:  i.MarketplaceID,
		Operation:      string(i.Operation),
		Tier:           string(i.Tier),
		Payload:        jsonOrEmpty(i.Payload),
		Status:         string(i.Status),
		RetryCount:     i.RetryCount,
		MaxRetries:     i.MaxRetries,
		LastError:      i.LastError,
		ErrorKind:      string(i.ErrorKind),
		AvailableAt:    utcPtr(i.AvailableAt),
		Resubmit:       i.Resubmit,
		StartedAt:      utcPtr(i.StartedAt),
		CompletedAt:    utcPtr(i.CompletedAt),
		CreatedAt:      i.CreatedAt.UTC(),
		UpdatedAt:      i.UpdatedAt.UTC(),
	}
}

// StateColumns returns the mutable columns written by queue transitions
func (m *SyncQueueItemModel) StateColumns() map[string]any {
	return map[string]any{
		"tier":         m.Tier,
		"payload":      m.Payload,
		"status":       m.Status,
		"retry_count":  m.RetryCount,
		"last_error":   m.LastError,
		"error_kind":   m.ErrorKind,
		"available_at": m.AvailableAt,
		"resubmit":     m.Resubmit,
		"started_at":   m.StartedAt,
		"completed_at": m.CompletedAt,
		"updated_at":   m.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Event log
// ---------------------------------------------------------------------------

// EventLogModel is an append-only audit row
type EventLogModel struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	EventType       string         `gorm:"type:varchar(50);not null;index"`
	RelatedEntityID string         `gorm:"type:varchar(128);index"`
	EntityType      string         `gorm:"type:varchar(20)"`
	MarketplaceID   *int64         `gorm:"index:idx_sync_event_log_marketplace,priority:1"`
	QueueItemID     *uuid.UUID     `gorm:"type:uuid;index"`
	Status          string         `gorm:"type:varchar(20);not null"`
	Message         string         `gorm:"type:text"`
	ErrorKind       string         `gorm:"type:varchar(40)"`
	Payload         datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"index:idx_sync_event_log_marketplace,priority:2"`
}

// TableName returns the table name for GORM
func (EventLogModel) TableName() string {
	return "sync_event_log"
}

// ToDomain converts the persistence model to a domain EventLogEntry
func (m *EventLogModel) ToDomain() *marketsync.EventLogEntry {
	return &marketsync.EventLogEntry{
		ID:              m.ID,
		EventType:       marketsync.EventType(m.EventType),
		RelatedEntityID: m.RelatedEntityID,
		EntityType:      marketsync.EntityType(m.EntityType),
		MarketplaceID:   m.MarketplaceID,
		QueueItemID:     m.QueueItemID,
		Status:          marketsync.EventStatus(m.Status),
		Message:         m.Message,
		ErrorKind:       marketsync.ErrorKind(m.ErrorKind),
		Payload:         json.RawMessage(m.Payload),
		CreatedAt:       m.CreatedAt,
	}
}

// EventLogModelFromDomain creates a persistence model from a domain EventLogEntry
func EventLogModelFromDomain(e *marketsync.EventLogEntry) *EventLogModel {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &EventLogModel{
		ID:              id,
		EventType:       string(e.EventType),
		RelatedEntityID: e.RelatedEntityID,
		EntityType:      string(e.EntityType),
		MarketplaceID:   e.MarketplaceID,
		QueueItemID:     e.QueueItemID,
		Status:          string(e.Status),
		Message:         e.Message,
		ErrorKind:       string(e.ErrorKind),
		Payload:         jsonOrEmpty(e.Payload),
		CreatedAt:       created.UTC(),
	}
}

// ---------------------------------------------------------------------------
// Status mapping
// ---------------------------------------------------------------------------

// StatusMappingModel is one status translation row
type StatusMappingModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	MarketplaceID int64     `gorm:"not null;uniqueIndex:idx_status_mappings_key,priority:1"`
	Direction     string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_status_mappings_key,priority:2"`
	SourceKey     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_status_mappings_key,priority:3"`
	SourceStatus  string    `gorm:"type:varchar(64);not null"`
	TargetStatus  string    `gorm:"type:varchar(64);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (StatusMappingModel) TableName() string {
	return "status_mappings"
}

// BeforeCreate assigns an id to rows created without one
func (m *StatusMappingModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain StatusMapping
func (m *StatusMappingModel) ToDomain() *marketsync.StatusMapping {
	return &marketsync.StatusMapping{
		ID:            m.ID,
		MarketplaceID: m.MarketplaceID,
		Direction:     marketsync.StatusDirection(m.Direction),
		SourceStatus:  m.SourceStatus,
		TargetStatus:  m.TargetStatus,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Tier lock
// ---------------------------------------------------------------------------

// TierLockModel is the overlap guard row of a tier
type TierLockModel struct {
	Tier           string  `gorm:"type:varchar(10);primaryKey"`
	LockedBy       *string `gorm:"type:varchar(100)"`
	LockedAt       *time.Time
	LastStartedAt  *time.Time
	LastFinishedAt *time.Time
	LastSuccessAt  *time.Time
	LastStatus     string `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (TierLockModel) TableName() string {
	return "tier_locks"
}

// ToDomain converts the persistence model to a domain TierLock
func (m *TierLockModel) ToDomain() *marketsync.TierLock {
	l := &marketsync.TierLock{
		Tier:           marketsync.Tier(m.Tier),
		LockedAt:       m.LockedAt,
		LastStartedAt:  m.LastStartedAt,
		LastFinishedAt: m.LastFinishedAt,
		LastSuccessAt:  m.LastSuccessAt,
		LastStatus:     m.LastStatus,
	}
	if m.LockedBy != nil {
		l.LockedBy = *m.LockedBy
	}
	return l
}

// ---------------------------------------------------------------------------
// Change feed, order inbox, category cache
// ---------------------------------------------------------------------------

// LocalChangeModel is a change feed row appended by the host store
type LocalChangeModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityType    string    `gorm:"type:varchar(20);not null;index:idx_local_entity_changes_feed,priority:1;index:idx_local_entity_changes_entity,priority:1"`
	LocalEntityID string    `gorm:"type:varchar(64);not null;index:idx_local_entity_changes_entity,priority:2"`
	MarketplaceID *int64
	Operation     string         `gorm:"type:varchar(20);not null"`
	Payload       datatypes.JSON `gorm:"not null"`
	ChangedAt     time.Time      `gorm:"not null;index:idx_local_entity_changes_feed,priority:2"`
}

// TableName returns the table name for GORM
func (LocalChangeModel) TableName() string {
	return "local_entity_changes"
}

// BeforeCreate assigns an id to rows created without one
func (m *LocalChangeModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain LocalChange
func (m *LocalChangeModel) ToDomain() *marketsync.LocalChange {
	return &marketsync.LocalChange{
		ID:            m.ID,
		EntityType:    marketsync.EntityType(m.EntityType),
		LocalEntityID: m.LocalEntityID,
		MarketplaceID: m.MarketplaceID,
		Operation:     marketsync.Operation(m.Operation),
		Payload:       json.RawMessage(m.Payload),
		ChangedAt:     m.ChangedAt,
	}
}

// LocalChangeModelFromDomain creates a persistence model from a domain LocalChange
func LocalChangeModelFromDomain(c *marketsync.LocalChange) *LocalChangeModel {
	return &LocalChangeModel{
		ID:            c.ID,
		EntityType:    string(c.EntityType),
		LocalEntityID: c.LocalEntityID,
		MarketplaceID: c.MarketplaceID,
		Operation:     string(c.Operation),
		Payload:       jsonOrEmpty(c.Payload),
		ChangedAt:     c.ChangedAt.UTC(),
	}
}

// MarketplaceOrderModel is an order inbox row
type MarketplaceOrderModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MarketplaceID int64           `gorm:"not null;uniqueIndex:idx_marketplace_orders_remote,priority:1"`
	RemoteOrderID string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_marketplace_orders_remote,priority:2"`
	LocalOrderID  string          `gorm:"type:varchar(64)"`
	RemoteStatus  string          `gorm:"type:varchar(64);not null"`
	LocalStatus   string          `gorm:"type:varchar(64)"`
	PaymentStatus string          `gorm:"type:varchar(64)"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency      string          `gorm:"type:varchar(3)"`
	Payload       datatypes.JSON  `gorm:"not null"`
	FetchedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// BeforeCreate assigns an id to rows created without one
func (m *MarketplaceOrderModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain MarketplaceOrder
func (m *MarketplaceOrderModel) ToDomain() *marketsync.MarketplaceOrder {
	return &marketsync.MarketplaceOrder{
		ID:            m.ID,
		MarketplaceID: m.MarketplaceID,
		RemoteOrderID: m.RemoteOrderID,
		LocalOrderID:  m.LocalOrderID,
		RemoteStatus:  m.RemoteStatus,
		LocalStatus:   m.LocalStatus,
		PaymentStatus: m.PaymentStatus,
		TotalAmount:   m.TotalAmount,
		Currency:      m.Currency,
		Payload:       json.RawMessage(m.Payload),
		FetchedAt:     m.FetchedAt,
	}
}

// MarketplaceOrderModelFromDomain creates a persistence model from a domain MarketplaceOrder
func MarketplaceOrderModelFromDomain(o *marketsync.MarketplaceOrder) *MarketplaceOrderModel {
	return &MarketplaceOrderModel{
		ID:            o.ID,
		MarketplaceID: o.MarketplaceID,
		RemoteOrderID: o.RemoteOrderID,
		LocalOrderID:  o.LocalOrderID,
		RemoteStatus:  o.RemoteStatus,
		LocalStatus:   o.LocalStatus,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		Payload:       jsonOrEmpty(o.Payload),
		FetchedAt:     o.FetchedAt.UTC(),
	}
}

// MarketplaceCategoryModel is a cached marketplace category
type MarketplaceCategoryModel struct {
	MarketplaceID    int64     `gorm:"primaryKey;autoIncrement:false"`
	RemoteCategoryID string    `gorm:"type:varchar(64);primaryKey"`
	ParentRemoteID   string    `gorm:"type:varchar(64)"`
	Name             string    `gorm:"type:varchar(255);not null"`
	Leaf             bool      `gorm:"not null"`
	RefreshedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceCategoryModel) TableName() string {
	return "marketplace_categories"
}

// AllModels lists every model for AutoMigrate in tests and single-node SQLite setups
func AllModels() []any {
	return []any{
		&MarketplaceModel{},
		&EntityMappingModel{},
		&SyncQueueItemModel{},
		&EventLogModel{},
		&StatusMappingModel{},
		&TierLockModel{},
		&LocalChangeModel{},
		&MarketplaceOrderModel{},
		&MarketplaceCategoryModel{},
	}
}
