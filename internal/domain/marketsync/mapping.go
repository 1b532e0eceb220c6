package marketsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MappingSyncStatus is the sync state recorded on an entity mapping
type MappingSyncStatus string

const (
	MappingUnsynced MappingSyncStatus = "unsynced"
	MappingPending  MappingSyncStatus = "pending"
	MappingSynced   MappingSyncStatus = "synced"
	MappingError    MappingSyncStatus = "error"
)

// IsValid returns true if the status is known
func (s MappingSyncStatus) IsValid() bool {
	switch s {
	case MappingUnsynced, MappingPending, MappingSynced, MappingError:
		return true
	}
	return false
}

// MappingKey identifies a mapping row
type MappingKey struct {
	EntityType    EntityType
	LocalEntityID string
	MarketplaceID int64
}

func (k MappingKey) String() string {
	return fmt.Sprintf("%s/%s@%d", k.EntityType, k.LocalEntityID, k.MarketplaceID)
}

// EntityMapping binds a local entity to its marketplace-side id
type EntityMapping struct {
	ID               uuid.UUID
	EntityType       EntityType
	LocalEntityID    string
	MarketplaceID    int64
	RemoteEntityID   string
	SyncStatus       MappingSyncStatus
	LastSyncAt       *time.Time
	LastErrorMessage string
	// LastErrorKind classifies the failure behind an error status
	LastErrorKind ErrorKind
	// InvalidatedAt is set when the local entity was removed from the marketplace
	InvalidatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewEntityMapping creates an unsynced mapping
func NewEntityMapping(key MappingKey, remoteID string) (*EntityMapping, error) {
	if !key.EntityType.IsValid() {
		return nil, fmt.Errorf("marketsync: invalid mapping entity type %q", key.EntityType)
	}
	if key.LocalEntityID == "" || key.MarketplaceID <= 0 {
		return nil, fmt.Errorf("marketsync: mapping requires local entity id and marketplace id")
	}
	now := time.Now()
	return &EntityMapping{
		ID:             uuid.New(),
		EntityType:     key.EntityType,
		LocalEntityID:  key.LocalEntityID,
		MarketplaceID:  key.MarketplaceID,
		RemoteEntityID: remoteID,
		SyncStatus:     MappingUnsynced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Key returns the identity of the mapping
func (m *EntityMapping) Key() MappingKey {
	return MappingKey{EntityType: m.EntityType, LocalEntityID: m.LocalEntityID, MarketplaceID: m.MarketplaceID}
}

// IsActive returns true if the mapping has a remote id and was not invalidated
func (m *EntityMapping) IsActive() bool {
	return m.RemoteEntityID != "" && m.InvalidatedAt == nil
}

// RecordSuccess marks the mapping synced. An empty remoteID keeps the current one.
func (m *EntityMapping) RecordSuccess(remoteID string, now time.Time) {
	if remoteID != "" {
		m.RemoteEntityID = remoteID
	}
	m.SyncStatus = MappingSynced
	m.LastSyncAt = &now
	m.LastErrorMessage = ""
	m.LastErrorKind = ErrorKindNone
	m.InvalidatedAt = nil
	m.UpdatedAt = now
}

// RecordFailure marks the mapping errored with the failure message
func (m *EntityMapping) RecordFailure(kind ErrorKind, message string, now time.Time) {
	m.SyncStatus = MappingError
	m.LastErrorMessage = message
	m.LastErrorKind = kind
	m.UpdatedAt = now
}

// Invalidate soft-deletes the mapping after the remote entity was removed
func (m *EntityMapping) Invalidate(now time.Time) {
	m.SyncStatus = MappingSynced
	m.LastSyncAt = &now
	m.LastErrorMessage = ""
	m.LastErrorKind = ErrorKindNone
	m.InvalidatedAt = &now
	m.UpdatedAt = now
}

// MappingFilter is used by the admin listing
type MappingFilter struct {
	EntityType    EntityType
	MarketplaceID int64
	SyncStatus    MappingSyncStatus
	LocalEntityID string
	SortBy        string
	SortOrder     string
	Page          int
	PageSize      int
}

// EntityMappingRepository persists entity mappings
type EntityMappingRepository interface {
	// Find returns ErrMappingNotFound when no row exists
	Find(ctx context.Context, key MappingKey) (*EntityMapping, error)
	// FindByRemoteID returns ErrMappingNotFound when no row exists
	FindByRemoteID(ctx context.Context, marketplaceID int64, entityType EntityType, remoteID string) (*EntityMapping, error)
	// Upsert inserts or updates the row keyed by (entity type, local id, marketplace)
	Upsert(ctx context.Context, m *EntityMapping) error
	// UpdateStatus changes status and error kind and message of an existing row.
	// Missing rows are ignored.
	UpdateStatus(ctx context.Context, key MappingKey, status MappingSyncStatus, kind ErrorKind, message string, at time.Time) error
	// ListByStatus returns active mappings of a marketplace in one of statuses
	ListByStatus(ctx context.Context, marketplaceID int64, statuses []MappingSyncStatus, limit int) ([]EntityMapping, error)
	// ListRequeueable returns active pending mappings and error mappings whose
	// last failure was retryable, least recently touched first
	ListRequeueable(ctx context.Context, marketplaceID int64, limit int) ([]EntityMapping, error)
	// RemoteIDSet returns the remote ids of all active mappings of entityType on a marketplace
	RemoteIDSet(ctx context.Context, marketplaceID int64, entityType EntityType) (map[string]struct{}, error)
	List(ctx context.Context, filter MappingFilter) ([]EntityMapping, int64, error)
}
