package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStatusMappingRepository implements StatusMappingRepository using GORM
type GormStatusMappingRepository struct {
	db *gorm.DB
}

// NewGormStatusMappingRepository creates a new GormStatusMappingRepository
func NewGormStatusMappingRepository(db *gorm.DB) *GormStatusMappingRepository {
	return &GormStatusMappingRepository{db: db}
}

// Find looks up the target status of source in one direction
func (r *GormStatusMappingRepository) Find(ctx context.Context, marketplaceID int64, direction marketsync.StatusDirection, source string) (*marketsync.StatusMapping, error) {
	var model models.StatusMappingModel
	if err := r.db.WithContext(ctx).
		Where("marketplace_id = ? AND direction = ? AND source_key = ?",
			marketplaceID, string(direction), marketsync.NormalizeStatusKey(source)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: marketplace %d has no %s mapping for %q",
				marketsync.ErrStatusNotConfigured, marketplaceID, direction, source)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// SavePair stores the local→remote and remote→local rows in one transaction
func (r *GormStatusMappingRepository) SavePair(ctx context.Context, marketplaceID int64, local, remote string) error {
	local, remote = strings.TrimSpace(local), strings.TrimSpace(remote)
	if local == "" || remote == "" {
		return errors.New("status mapping needs both a local and a remote status")
	}

	now := time.Now().UTC()
	rows := []*models.StatusMappingModel{
		{
			MarketplaceID: marketplaceID,
			Direction:     string(marketsync.StatusOutbound),
			SourceKey:     marketsync.NormalizeStatusKey(local),
			SourceStatus:  local,
			TargetStatus:  remote,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			MarketplaceID: marketplaceID,
			Direction:     string(marketsync.StatusInbound),
			SourceKey:     marketsync.NormalizeStatusKey(remote),
			SourceStatus:  remote,
			TargetStatus:  local,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "marketplace_id"},
					{Name: "direction"},
					{Name: "source_key"},
				},
				DoUpdates: clause.AssignmentColumns([]string{"source_status", "target_status", "updated_at"}),
			}).Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByMarketplace returns all rows of a marketplace
func (r *GormStatusMappingRepository) ListByMarketplace(ctx context.Context, marketplaceID int64) ([]marketsync.StatusMapping, error) {
	var rows []models.StatusMappingModel
	if err := r.db.WithContext(ctx).
		Where("marketplace_id = ?", marketplaceID).
		Order("direction ASC, source_key ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]marketsync.StatusMapping, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}
