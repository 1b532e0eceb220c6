package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMarketplaceRepository implements MarketplaceRepository using GORM
type GormMarketplaceRepository struct {
	db *gorm.DB
}

// NewGormMarketplaceRepository creates a new GormMarketplaceRepository
func NewGormMarketplaceRepository(db *gorm.DB) *GormMarketplaceRepository {
	return &GormMarketplaceRepository{db: db}
}

// FindByID finds a marketplace by its ID
func (r *GormMarketplaceRepository) FindByID(ctx context.Context, id int64) (*marketsync.Marketplace, error) {
	var model models.MarketplaceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketsync.ErrMarketplaceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds a marketplace by its code
func (r *GormMarketplaceRepository) FindByCode(ctx context.Context, code marketsync.MarketplaceCode) (*marketsync.Marketplace, error) {
	var model models.MarketplaceModel
	if err := r.db.WithContext(ctx).First(&model, "code = ?", string(code)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketsync.ErrMarketplaceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns all marketplaces
func (r *GormMarketplaceRepository) List(ctx context.Context) ([]marketsync.Marketplace, error) {
	return r.find(r.db.WithContext(ctx))
}

// ListEnabled returns the marketplaces the scheduler syncs
func (r *GormMarketplaceRepository) ListEnabled(ctx context.Context) ([]marketsync.Marketplace, error) {
	return r.find(r.db.WithContext(ctx).Where("enabled = ?", true))
}

func (r *GormMarketplaceRepository) find(query *gorm.DB) ([]marketsync.Marketplace, error) {
	var rows []models.MarketplaceModel
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]marketsync.Marketplace, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Save inserts or updates a marketplace keyed by code and loads its id back into m
func (r *GormMarketplaceRepository) Save(ctx context.Context, m *marketsync.Marketplace) error {
	if !m.Code.IsValid() {
		return fmt.Errorf("unknown marketplace code %q", m.Code)
	}
	model := models.MarketplaceModelFromDomain(m)
	model.ID = 0

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "credentials", "webhook_secret", "enabled",
				"base_url", "rate_limit_per_minute", "updated_at",
			}),
		}).Create(model).Error; err != nil {
			return err
		}

		var stored models.MarketplaceModel
		if err := tx.First(&stored, "code = ?", model.Code).Error; err != nil {
			return err
		}
		*m = *stored.ToDomain()
		return nil
	})
	return err
}
