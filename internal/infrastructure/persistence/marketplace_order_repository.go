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

// GormMarketplaceOrderRepository implements MarketplaceOrderRepository using GORM
type GormMarketplaceOrderRepository struct {
	db *gorm.DB
}

// NewGormMarketplaceOrderRepository creates a new GormMarketplaceOrderRepository
func NewGormMarketplaceOrderRepository(db *gorm.DB) *GormMarketplaceOrderRepository {
	return &GormMarketplaceOrderRepository{db: db}
}

// Upsert inserts or refreshes the inbox row of an order. local_order_id is
// owned by the host store and never overwritten here.
func (r *GormMarketplaceOrderRepository) Upsert(ctx context.Context, order *marketsync.MarketplaceOrder) error {
	if order.FetchedAt.IsZero() {
		order.FetchedAt = time.Now()
	}
	model := models.MarketplaceOrderModelFromDomain(order)

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "marketplace_id"}, {Name: "remote_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"remote_status", "local_status", "payment_status",
			"total_amount", "currency", "payload", "fetched_at",
		}),
	}).Create(model).Error
}

// FindByRemoteID finds the inbox row of a marketplace order
func (r *GormMarketplaceOrderRepository) FindByRemoteID(ctx context.Context, marketplaceID int64, remoteOrderID string) (*marketsync.MarketplaceOrder, error) {
	var model models.MarketplaceOrderModel
	if err := r.db.WithContext(ctx).
		First(&model, "marketplace_id = ? AND remote_order_id = ?", marketplaceID, remoteOrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketsync.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
