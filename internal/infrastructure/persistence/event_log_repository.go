package persistence

import (
	"context"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const eventLogBatchSize = 200

// GormEventLogRepository implements EventLogRepository using GORM.
// Rows are only ever inserted.
type GormEventLogRepository struct {
	db *gorm.DB
}

// NewGormEventLogRepository creates a new GormEventLogRepository
func NewGormEventLogRepository(db *gorm.DB) *GormEventLogRepository {
	return &GormEventLogRepository{db: db}
}

// Append inserts one entry and writes the generated id and timestamp back
func (r *GormEventLogRepository) Append(ctx context.Context, entry *marketsync.EventLogEntry) error {
	model := models.EventLogModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

// AppendBatch inserts entries in chunks
func (r *GormEventLogRepository) AppendBatch(ctx context.Context, entries []*marketsync.EventLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.EventLogModel, len(entries))
	for i, e := range entries {
		rows[i] = models.EventLogModelFromDomain(e)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, eventLogBatchSize).Error; err != nil {
		return err
	}
	for i, e := range entries {
		e.ID = rows[i].ID
		e.CreatedAt = rows[i].CreatedAt
	}
	return nil
}

// List returns a page of entries, newest first
func (r *GormEventLogRepository) List(ctx context.Context, filter marketsync.EventLogFilter) ([]marketsync.EventLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EventLogModel{})
	if filter.RelatedEntityID != "" {
		query = query.Where("related_entity_id = ?", filter.RelatedEntityID)
	}
	if filter.MarketplaceID > 0 {
		query = query.Where("marketplace_id = ?", filter.MarketplaceID)
	}
	if filter.QueueItemID != nil {
		query = query.Where("queue_item_id = ?", *filter.QueueItemID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", string(filter.EventType))
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.EventLogModel
	if err := query.Scopes(paginate(filter.Page, filter.PageSize)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]marketsync.EventLogEntry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries, total, nil
}

// CountByOutcome aggregates entries created in [from, to). Rows without a
// marketplace are reported under marketplace 0.
func (r *GormEventLogRepository) CountByOutcome(ctx context.Context, from, to time.Time) ([]marketsync.EventOutcomeCount, error) {
	var rows []struct {
		MarketplaceID int64
		EventType     string
		Status        string
		Count         int64
	}
	if err := r.db.WithContext(ctx).Model(&models.EventLogModel{}).
		Select("COALESCE(marketplace_id, 0) AS marketplace_id, event_type, status, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Group("COALESCE(marketplace_id, 0), event_type, status").
		Order("marketplace_id, event_type, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make([]marketsync.EventOutcomeCount, len(rows))
	for i, row := range rows {
		counts[i] = marketsync.EventOutcomeCount{
			MarketplaceID: row.MarketplaceID,
			EventType:     marketsync.EventType(row.EventType),
			Status:        marketsync.EventStatus(row.Status),
			Count:         row.Count,
		}
	}
	return counts, nil
}
