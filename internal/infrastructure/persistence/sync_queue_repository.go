package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultDequeueLimit = 50

var activeQueueStatuses = []string{
	string(marketsync.QueueStatusPending),
	string(marketsync.QueueStatusProcessing),
}

// GormSyncQueueRepository implements SyncQueueRepository using GORM
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GormSyncQueueRepository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// lockForUpdate adds FOR UPDATE on PostgreSQL. SQLite serializes writers on
// its single connection and has no row locks.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if isPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func whereQueueKey(tx *gorm.DB, key marketsync.QueueKey) *gorm.DB {
	return tx.Where(
		"entity_type = ? AND local_entity_id = ? AND remote_entity_id = ? AND marketplace_id = ? AND operation = ?",
		string(key.EntityType), key.LocalEntityID, key.RemoteEntityID, key.MarketplaceID, string(key.Operation),
	)
}

// ---------------------------------------------------------------------------
// Enqueue / Dequeue
// ---------------------------------------------------------------------------

// Enqueue stores item or coalesces it into the active item with the same key.
// Two writers racing on a new key meet at idx_sync_queue_active_key; the loser
// retries and lands on the coalescing path.
func (r *GormSyncQueueRepository) Enqueue(ctx context.Context, item *marketsync.SyncQueueItem) (*marketsync.SyncQueueItem, bool, error) {
	if err := item.Key().Validate(); err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		stored, created, err := r.enqueueOnce(ctx, item)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return stored, created, err
	}
	return nil, false, fmt.Errorf("enqueue %s: concurrent insert conflict", item.Key())
}

func (r *GormSyncQueueRepository) enqueueOnce(ctx context.Context, item *marketsync.SyncQueueItem) (*marketsync.SyncQueueItem, bool, error) {
	var (
		stored  *marketsync.SyncQueueItem
		created bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SyncQueueItemModel
		err := whereQueueKey(lockForUpdate(tx), item.Key()).
			Where("status IN ?", activeQueueStatuses).
			First(&existing).Error

		switch {
		case err == nil:
			current := existing.ToDomain()
			if err := current.Supersede(item.Payload, item.Tier, time.Now()); err != nil {
				return err
			}
			updated := models.SyncQueueItemModelFromDomain(current)
			if err := tx.Model(&models.SyncQueueItemModel{}).
				Where("id = ?", updated.ID).
				Updates(updated.StateColumns()).Error; err != nil {
				return err
			}
			stored = current
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			model := models.SyncQueueItemModelFromDomain(item)
			if err := tx.Create(model).Error; err != nil {
				return err
			}
			stored = model.ToDomain()
			created = true
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Dequeue claims up to filter.Limit available pending items, oldest first.
// Every claim is a conditional update on status so an item is handed to
// exactly one caller. PostgreSQL additionally skips rows locked by
// concurrent dequeuers.
func (r *GormSyncQueueRepository) Dequeue(ctx context.Context, filter marketsync.DequeueFilter, now time.Time) ([]*marketsync.SyncQueueItem, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultDequeueLimit
	}
	now = now.UTC()

	if !isPostgres(r.db) {
		return r.claim(r.db.WithContext(ctx), filter, now)
	}

	var claimed []*marketsync.SyncQueueItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = r.claim(tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}), filter, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *GormSyncQueueRepository) claim(tx *gorm.DB, filter marketsync.DequeueFilter, now time.Time) ([]*marketsync.SyncQueueItem, error) {
	query := tx.Model(&models.SyncQueueItemModel{}).
		Where("status = ?", string(marketsync.QueueStatusPending)).
		Where("available_at IS NULL OR available_at <= ?", now)
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", string(filter.EntityType))
	}
	if filter.Tier != "" {
		query = query.Where("tier = ?", string(filter.Tier))
	}
	if filter.MarketplaceID > 0 {
		query = query.Where("marketplace_id = ?", filter.MarketplaceID)
	}

	var candidates []models.SyncQueueItemModel
	if err := query.Order("created_at ASC, id ASC").Limit(filter.Limit).Find(&candidates).Error; err != nil {
		return nil, err
	}

	// A fresh session drops the locking clause for the updates below.
	writer := tx.Session(&gorm.Session{NewDB: true})
	claimed := make([]*marketsync.SyncQueueItem, 0, len(candidates))
	for i := range candidates {
		item := candidates[i].ToDomain()
		if err := item.MarkProcessing(now); err != nil {
			continue
		}
		res := writer.Model(&models.SyncQueueItemModel{}).
			Where("id = ? AND status = ?", item.ID, string(marketsync.QueueStatusPending)).
			Updates(map[string]any{
				"status":     string(marketsync.QueueStatusProcessing),
				"started_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			claimed = append(claimed, item)
		}
	}
	return claimed, nil
}

// ---------------------------------------------------------------------------
// State transitions
// ---------------------------------------------------------------------------

// Transition loads the item under lock, applies fn and persists the state columns
func (r *GormSyncQueueRepository) Transition(ctx context.Context, id uuid.UUID, fn func(*marketsync.SyncQueueItem) error) (*marketsync.SyncQueueItem, error) {
	var result *marketsync.SyncQueueItem

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.SyncQueueItemModel
		if err := lockForUpdate(tx).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return marketsync.ErrQueueItemNotFound
			}
			return err
		}

		item := model.ToDomain()
		if err := fn(item); err != nil {
			return err
		}

		updated := models.SyncQueueItemModelFromDomain(item)
		if err := tx.Model(&models.SyncQueueItemModel{}).
			Where("id = ?", id).
			Updates(updated.StateColumns()).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: another item with key %s is active", marketsync.ErrInvalidTransition, item.Key())
			}
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecoverStale returns processing items started before cutoff to pending.
// A worker that crashed mid-item leaves its claims behind; those are retried
// without counting an attempt.
func (r *GormSyncQueueRepository) RecoverStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).
		Where("status = ? AND started_at < ?", string(marketsync.QueueStatusProcessing), cutoff.UTC()).
		Updates(map[string]any{
			"status":     string(marketsync.QueueStatusPending),
			"started_at": nil,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// Purge deletes completed items finished before cutoff. Error items stay for
// operators to inspect and requeue.
func (r *GormSyncQueueRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", string(marketsync.QueueStatusCompleted), cutoff.UTC()).
		Delete(&models.SyncQueueItemModel{})
	return res.RowsAffected, res.Error
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// FindByID finds a queue item by its ID
func (r *GormSyncQueueRepository) FindByID(ctx context.Context, id uuid.UUID) (*marketsync.SyncQueueItem, error) {
	var model models.SyncQueueItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketsync.ErrQueueItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByKey finds the pending or processing item of a key
func (r *GormSyncQueueRepository) FindActiveByKey(ctx context.Context, key marketsync.QueueKey) (*marketsync.SyncQueueItem, error) {
	var model models.SyncQueueItemModel
	if err := whereQueueKey(r.db.WithContext(ctx), key).
		Where("status IN ?", activeQueueStatuses).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketsync.ErrQueueItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of queue items, newest first
func (r *GormSyncQueueRepository) List(ctx context.Context, filter marketsync.QueueListFilter) ([]marketsync.SyncQueueItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", string(filter.EntityType))
	}
	if filter.Tier != "" {
		query = query.Where("tier = ?", string(filter.Tier))
	}
	if filter.MarketplaceID > 0 {
		query = query.Where("marketplace_id = ?", filter.MarketplaceID)
	}
	if filter.LocalEntityID != "" {
		query = query.Where("local_entity_id = ?", filter.LocalEntityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncQueueItemModel
	if err := query.Scopes(paginate(filter.Page, filter.PageSize)).
		Order(orderClause(filter.SortBy, filter.SortOrder, SyncQueueSortFields, "created_at")).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]marketsync.SyncQueueItem, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items, total, nil
}

// Stats counts items per tier, marketplace and status
func (r *GormSyncQueueRepository) Stats(ctx context.Context) ([]marketsync.QueueStat, error) {
	var rows []struct {
		Tier          string
		MarketplaceID int64
		Status        string
		Count         int64
	}
	if err := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).
		Select("tier, marketplace_id, status, COUNT(*) AS count").
		Group("tier, marketplace_id, status").
		Order("tier, marketplace_id, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := make([]marketsync.QueueStat, len(rows))
	for i, row := range rows {
		stats[i] = marketsync.QueueStat{
			Tier:          marketsync.Tier(row.Tier),
			MarketplaceID: row.MarketplaceID,
			Status:        marketsync.QueueStatus(row.Status),
			Count:         row.Count,
		}
	}
	return stats, nil
}
