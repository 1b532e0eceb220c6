package persistence

import (
	"context"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const categoryBatchSize = 500

// GormCategoryRepository implements CategoryRepository on the marketplace
// category cache
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewGormCategoryRepository creates a new GormCategoryRepository
func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

// Refresh replaces the cached tree of a marketplace. Rows are upserted with
// refreshedAt and anything older is dropped, all in one transaction.
func (r *GormCategoryRepository) Refresh(ctx context.Context, marketplaceID int64, records []marketsync.CategoryRecord, refreshedAt time.Time) error {
	refreshedAt = refreshedAt.UTC()
	rows := make([]models.MarketplaceCategoryModel, len(records))
	for i, rec := range records {
		rows[i] = models.MarketplaceCategoryModel{
			MarketplaceID:    marketplaceID,
			RemoteCategoryID: rec.RemoteCategoryID,
			ParentRemoteID:   rec.ParentRemoteID,
			Name:             rec.Name,
			Leaf:             rec.Leaf,
			RefreshedAt:      refreshedAt,
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "marketplace_id"}, {Name: "remote_category_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"parent_remote_id", "name", "leaf", "refreshed_at"}),
			}).CreateInBatches(rows, categoryBatchSize).Error; err != nil {
				return err
			}
		}
		return tx.Where("marketplace_id = ? AND refreshed_at < ?", marketplaceID, refreshedAt).
			Delete(&models.MarketplaceCategoryModel{}).Error
	})
}

// Count returns the number of cached categories of a marketplace
func (r *GormCategoryRepository) Count(ctx context.Context, marketplaceID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.MarketplaceCategoryModel{}).
		Where("marketplace_id = ?", marketplaceID).
		Count(&n).Error
	return n, err
}
