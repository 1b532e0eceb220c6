package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTierLockRepository implements TierLockRepository on the tier_locks table.
// Each tier has one row; ownership changes through conditional updates so the
// lock works across processes and hosts sharing the database.
type GormTierLockRepository struct {
	db *gorm.DB
}

// NewGormTierLockRepository creates a new GormTierLockRepository
func NewGormTierLockRepository(db *gorm.DB) *GormTierLockRepository {
	return &GormTierLockRepository{db: db}
}

// TryAcquire takes the lock of tier for owner
func (r *GormTierLockRepository) TryAcquire(ctx context.Context, tier marketsync.Tier, owner string, now, staleBefore time.Time) (*marketsync.TierLock, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.TierLockModel{Tier: string(tier)}).Error; err != nil {
		return nil, fmt.Errorf("seed tier lock: %w", err)
	}

	now = now.UTC()
	res := db.Model(&models.TierLockModel{}).
		Where("tier = ? AND (locked_by IS NULL OR locked_at < ?)", string(tier), staleBefore.UTC()).
		Updates(map[string]any{
			"locked_by":       owner,
			"locked_at":       now,
			"last_started_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: tier %s", marketsync.ErrTierAlreadyRunning, tier)
	}
	return r.Get(ctx, tier)
}

// Release frees the lock if owner still holds it and records the run outcome
func (r *GormTierLockRepository) Release(ctx context.Context, tier marketsync.Tier, owner string, startedAt, now time.Time, status string, succeeded bool) error {
	updates := map[string]any{
		"locked_by":        nil,
		"locked_at":        nil,
		"last_finished_at": now.UTC(),
		"last_status":      status,
	}
	if succeeded {
		updates["last_success_at"] = startedAt.UTC()
	}

	res := r.db.WithContext(ctx).Model(&models.TierLockModel{}).
		Where("tier = ? AND locked_by = ?", string(tier), owner).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tier %s lock is no longer held by %s", tier, owner)
	}
	return nil
}

// Get returns the lock row of a tier. A tier that never ran has an empty row.
func (r *GormTierLockRepository) Get(ctx context.Context, tier marketsync.Tier) (*marketsync.TierLock, error) {
	var model models.TierLockModel
	if err := r.db.WithContext(ctx).First(&model, "tier = ?", string(tier)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &marketsync.TierLock{Tier: tier}, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
