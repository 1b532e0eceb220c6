package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEntityMappingRepository implements EntityMappingRepository using GORM
type GormEntityMappingRepository struct {
	db *gorm.DB
}

// NewGormEntityMappingRepository creates a new GormEntityMappingRepository
func NewGormEntityMappingRepository(db *gorm.DB) *GormEntityMappingRepository {
	return &GormEntityMappingRepository{db: db}
}

func whereMappingKey(tx *gorm.DB, key marketsync.MappingKey) *gorm.DB {
	return tx.Where("local_entity_type = ? AND local_entity_id = ? AND marketplace_id = ?",
		string(key.EntityType), key.LocalEntityID, key.MarketplaceID)
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Find finds the mapping of a local entity on a marketplace
func (r *GormEntityMappingRepository) Find(ctx context.Context, key marketsync.MappingKey) (*marketsync.EntityMapping, error) {
	var model models.EntityMappingModel
	if err := whereMappingKey(r.db.WithContext(ctx), key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &marketsync.MappingNotFoundError{
				EntityType:    key.EntityType,
				LocalEntityID: key.LocalEntityID,
				MarketplaceID: key.MarketplaceID,
			}
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByRemoteID finds the mapping that points at a marketplace id
func (r *GormEntityMappingRepository) FindByRemoteID(ctx context.Context, marketplaceID int64, entityType marketsync.EntityType, remoteID string) (*marketsync.EntityMapping, error) {
	var model models.EntityMappingModel
	if err := r.db.WithContext(ctx).
		Where("marketplace_id = ? AND marketplace_entity_id = ? AND local_entity_type = ?",
			marketplaceID, remoteID, string(entityType)).
		Order("updated_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketsync.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByStatus returns active mappings of a marketplace in one of statuses,
// least recently touched first
func (r *GormEntityMappingRepository) ListByStatus(ctx context.Context, marketplaceID int64, statuses []marketsync.MappingSyncStatus, limit int) ([]marketsync.EntityMapping, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := r.db.WithContext(ctx).
		Where("marketplace_id = ? AND invalidated_at IS NULL", marketplaceID).
		Where("sync_status IN ?", values).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.EntityMappingModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return mappingsToDomain(rows), nil
}

// ListRequeueable returns pending mappings and error mappings with a retryable
// last failure. Terminal failures wait for a new local change or an operator.
func (r *GormEntityMappingRepository) ListRequeueable(ctx context.Context, marketplaceID int64, limit int) ([]marketsync.EntityMapping, error) {
	kinds := marketsync.RetryableErrorKinds()
	retryable := make([]string, len(kinds))
	for i, k := range kinds {
		retryable[i] = string(k)
	}

	query := r.db.WithContext(ctx).
		Where("marketplace_id = ? AND invalidated_at IS NULL", marketplaceID).
		Where("(sync_status = ? OR (sync_status = ? AND last_error_kind IN ?))",
			string(marketsync.MappingPending), string(marketsync.MappingError), retryable).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.EntityMappingModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return mappingsToDomain(rows), nil
}

// RemoteIDSet returns the remote ids of all active mappings of entityType on a marketplace
func (r *GormEntityMappingRepository) RemoteIDSet(ctx context.Context, marketplaceID int64, entityType marketsync.EntityType) (map[string]struct{}, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.EntityMappingModel{}).
		Where("marketplace_id = ? AND local_entity_type = ? AND invalidated_at IS NULL AND marketplace_entity_id <> ''",
			marketplaceID, string(entityType)).
		Pluck("marketplace_entity_id", &ids).Error; err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// List returns a page of mappings
func (r *GormEntityMappingRepository) List(ctx context.Context, filter marketsync.MappingFilter) ([]marketsync.EntityMapping, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EntityMappingModel{})
	if filter.EntityType != "" {
		query = query.Where("local_entity_type = ?", string(filter.EntityType))
	}
	if filter.MarketplaceID > 0 {
		query = query.Where("marketplace_id = ?", filter.MarketplaceID)
	}
	if filter.SyncStatus != "" {
		query = query.Where("sync_status = ?", string(filter.SyncStatus))
	}
	if filter.LocalEntityID != "" {
		query = query.Where("local_entity_id = ?", filter.LocalEntityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.EntityMappingModel
	if err := query.Scopes(paginate(filter.Page, filter.PageSize)).
		Order(orderClause(filter.SortBy, filter.SortOrder, EntityMappingSortFields, "updated_at")).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return mappingsToDomain(rows), total, nil
}

func mappingsToDomain(rows []models.EntityMappingModel) []marketsync.EntityMapping {
	out := make([]marketsync.EntityMapping, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Upsert inserts or updates the row keyed by (entity type, local id, marketplace)
func (r *GormEntityMappingRepository) Upsert(ctx context.Context, m *marketsync.EntityMapping) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	model := models.EntityMappingModelFromDomain(m)

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "local_entity_type"},
			{Name: "local_entity_id"},
			{Name: "marketplace_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"marketplace_entity_id", "sync_status", "last_sync_at",
			"last_error_message", "invalidated_at", "updated_at",
		}),
	}).Create(model).Error; err != nil {
		return err
	}

	// On conflict the existing row keeps its id.
	stored, err := r.Find(ctx, m.Key())
	if err != nil {
		return err
	}
	m.ID = stored.ID
	m.CreatedAt = stored.CreatedAt
	return nil
}

// UpdateStatus changes status and error kind and message of an existing row
func (r *GormEntityMappingRepository) UpdateStatus(ctx context.Context, key marketsync.MappingKey, status marketsync.MappingSyncStatus, kind marketsync.ErrorKind, message string, at time.Time) error {
	updates := map[string]any{
		"sync_status":        string(status),
		"last_error_kind":    string(kind),
		"last_error_message": message,
		"updated_at":         at.UTC(),
	}
	if status == marketsync.MappingSynced {
		updates["last_sync_at"] = at.UTC()
	}
	return whereMappingKey(r.db.WithContext(ctx).Model(&models.EntityMappingModel{}), key).
		Updates(updates).Error
}
