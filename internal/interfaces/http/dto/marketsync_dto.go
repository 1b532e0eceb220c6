package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// QueueItemResponse is the admin view of a sync queue item
type QueueItemResponse struct {
	ID             uuid.UUID       `json:"id"`
	EntityType     string          `json:"entity_type"`
	LocalEntityID  string          `json:"local_entity_id,omitempty"`
	RemoteEntityID string          `json:"remote_entity_id,omitempty"`
	MarketplaceID  int64           `json:"marketplace_id"`
	Operation      string          `json:"operation"`
	Tier           string          `json:"tier"`
	Status         string          `json:"status"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	LastError      string          `json:"last_error,omitempty"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
	AvailableAt    *time.Time      `json:"available_at,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewQueueItemResponse converts a queue item
func NewQueueItemResponse(item *marketsync.SyncQueueItem) QueueItemResponse {
	return QueueItemResponse{
		ID:             item.ID,
		EntityType:     string(item.EntityType),
		LocalEntityID:  item.LocalEntityID,
		RemoteEntityID: item.RemoteEntityID,
		MarketplaceID:  item.MarketplaceID,
		Operation:      string(item.Operation),
		Tier:           string(item.Tier),
		Status:         string(item.Status),
		RetryCount:     item.RetryCount,
		MaxRetries:     item.MaxRetries,
		LastError:      item.LastError,
		ErrorKind:      string(item.ErrorKind),
		Payload:        item.Payload,
		AvailableAt:    item.AvailableAt,
		StartedAt:      item.StartedAt,
		CompletedAt:    item.CompletedAt,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

// QueueListQuery filters the queue listing
type QueueListQuery struct {
	PageRequest
	Status        string `form:"status" binding:"omitempty,oneof=pending processing completed error"`
	EntityType    string `form:"entity_type" binding:"omitempty,oneof=product stock price order category"`
	Tier          string `form:"tier" binding:"omitempty,oneof=high medium low"`
	MarketplaceID int64  `form:"marketplace_id" binding:"omitempty,gt=0"`
	LocalEntityID string `form:"local_entity_id" binding:"omitempty,max=128"`
}

// Filter converts the query to a repository filter
func (q QueueListQuery) Filter() marketsync.QueueListFilter {
	q.Normalize()
	return marketsync.QueueListFilter{
		Status:        marketsync.QueueStatus(q.Status),
		EntityType:    marketsync.EntityType(q.EntityType),
		Tier:          marketsync.Tier(q.Tier),
		MarketplaceID: q.MarketplaceID,
		LocalEntityID: q.LocalEntityID,
		SortBy:        q.SortBy,
		SortOrder:     q.SortOrder,
		Page:          q.Page,
		PageSize:      q.PageSize,
	}
}

// EventResponse is the admin view of an event log entry
type EventResponse struct {
	ID              uuid.UUID       `json:"id"`
	EventType       string          `json:"event_type"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	RelatedEntityID string          `json:"related_entity_id,omitempty"`
	EntityType      string          `json:"entity_type,omitempty"`
	MarketplaceID   *int64          `json:"marketplace_id,omitempty"`
	QueueItemID     *uuid.UUID      `json:"queue_item_id,omitempty"`
	ErrorKind       string          `json:"error_kind,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewEventResponse converts an event log entry
func NewEventResponse(e *marketsync.EventLogEntry) EventResponse {
	return EventResponse{
		ID:              e.ID,
		EventType:       string(e.EventType),
		Status:          string(e.Status),
		Message:         e.Message,
		RelatedEntityID: e.RelatedEntityID,
		EntityType:      string(e.EntityType),
		MarketplaceID:   e.MarketplaceID,
		QueueItemID:     e.QueueItemID,
		ErrorKind:       string(e.ErrorKind),
		Payload:         e.Payload,
		CreatedAt:       e.CreatedAt,
	}
}

// EventListQuery filters the event listing
type EventListQuery struct {
	Page            int        `form:"page" binding:"omitempty,min=1"`
	PageSize        int        `form:"page_size" binding:"omitempty,min=1,max=200"`
	EventType       string     `form:"event_type" binding:"omitempty,max=64"`
	Status          string     `form:"status" binding:"omitempty,oneof=success error warning info skipped"`
	MarketplaceID   int64      `form:"marketplace_id" binding:"omitempty,gt=0"`
	RelatedEntityID string     `form:"related_entity_id" binding:"omitempty,max=128"`
	QueueItemID     string     `form:"queue_item_id" binding:"omitempty,uuid"`
	Since           *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Filter converts the query to a repository filter
func (q EventListQuery) Filter() marketsync.EventLogFilter {
	f := marketsync.EventLogFilter{
		RelatedEntityID: q.RelatedEntityID,
		MarketplaceID:   q.MarketplaceID,
		Status:          marketsync.EventStatus(q.Status),
		EventType:       marketsync.EventType(q.EventType),
		Since:           q.Since,
		Page:            q.Page,
		PageSize:        q.PageSize,
	}
	if id, err := uuid.Parse(q.QueueItemID); err == nil {
		f.QueueItemID = &id
	}
	return f
}

// MappingResponse is the admin view of an entity mapping
type MappingResponse struct {
	ID               uuid.UUID  `json:"id"`
	EntityType       string     `json:"entity_type"`
	LocalEntityID    string     `json:"local_entity_id"`
	MarketplaceID    int64      `json:"marketplace_id"`
	RemoteEntityID   string     `json:"remote_entity_id,omitempty"`
	SyncStatus       string     `json:"sync_status"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	LastErrorKind    string     `json:"last_error_kind,omitempty"`
	InvalidatedAt    *time.Time `json:"invalidated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewMappingResponse converts an entity mapping
func NewMappingResponse(m *marketsync.EntityMapping) MappingResponse {
	return MappingResponse{
		ID:               m.ID,
		EntityType:       string(m.EntityType),
		LocalEntityID:    m.LocalEntityID,
		MarketplaceID:    m.MarketplaceID,
		RemoteEntityID:   m.RemoteEntityID,
		SyncStatus:       string(m.SyncStatus),
		LastSyncAt:       m.LastSyncAt,
		LastErrorMessage: m.LastErrorMessage,
		LastErrorKind:    string(m.LastErrorKind),
		InvalidatedAt:    m.InvalidatedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// MappingListQuery filters the mapping listing
type MappingListQuery struct {
	PageRequest
	EntityType    string `form:"entity_type" binding:"omitempty,oneof=product stock price order category"`
	MarketplaceID int64  `form:"marketplace_id" binding:"omitempty,gt=0"`
	SyncStatus    string `form:"sync_status" binding:"omitempty,oneof=unsynced pending synced error"`
	LocalEntityID string `form:"local_entity_id" binding:"omitempty,max=128"`
}

// Filter converts the query to a repository filter
func (q MappingListQuery) Filter() marketsync.MappingFilter {
	q.Normalize()
	return marketsync.MappingFilter{
		EntityType:    marketsync.EntityType(q.EntityType),
		MarketplaceID: q.MarketplaceID,
		SyncStatus:    marketsync.MappingSyncStatus(q.SyncStatus),
		LocalEntityID: q.LocalEntityID,
		SortBy:        q.SortBy,
		SortOrder:     q.SortOrder,
		Page:          q.Page,
		PageSize:      q.PageSize,
	}
}

// StatusMappingResponse is one translation row
type StatusMappingResponse struct {
	ID            uuid.UUID `json:"id"`
	MarketplaceID int64     `json:"marketplace_id"`
	Direction     string    `json:"direction"`
	SourceStatus  string    `json:"source_status"`
	TargetStatus  string    `json:"target_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewStatusMappingResponse converts a status mapping row
func NewStatusMappingResponse(m *marketsync.StatusMapping) StatusMappingResponse {
	return StatusMappingResponse{
		ID:            m.ID,
		MarketplaceID: m.MarketplaceID,
		Direction:     string(m.Direction),
		SourceStatus:  m.SourceStatus,
		TargetStatus:  m.TargetStatus,
		UpdatedAt:     m.UpdatedAt,
	}
}

// StatusMappingQuery selects the marketplace whose translations are listed
type StatusMappingQuery struct {
	MarketplaceID int64 `form:"marketplace_id" binding:"required,gt=0"`
}

// StatusMappingPairRequest stores both directions of one translation
type StatusMappingPairRequest struct {
	MarketplaceID int64  `json:"marketplace_id" binding:"required,gt=0"`
	LocalStatus   string `json:"local_status" binding:"required,max=64"`
	RemoteStatus  string `json:"remote_status" binding:"required,max=64"`
}

// StatusMappingBatchRequest stores several pairs at once
type StatusMappingBatchRequest struct {
	Pairs []StatusMappingPairRequest `json:"pairs" binding:"required,min=1,max=100,dive"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Checks   map[string]string `json:"checks"`
	Duration string            `json:"duration"`
}
