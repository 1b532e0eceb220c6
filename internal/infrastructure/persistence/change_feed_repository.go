package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const defaultChangeFeedLimit = 500

// GormLocalChangeFeed implements LocalChangeFeed on local_entity_changes.
// The host store appends rows; the scheduler reads them by time window.
type GormLocalChangeFeed struct {
	db *gorm.DB
}

// NewGormLocalChangeFeed creates a new GormLocalChangeFeed
func NewGormLocalChangeFeed(db *gorm.DB) *GormLocalChangeFeed {
	return &GormLocalChangeFeed{db: db}
}

// ChangesSince returns rows changed in (Since, Until], oldest first
func (f *GormLocalChangeFeed) ChangesSince(ctx context.Context, q marketsync.ChangeQuery) ([]marketsync.LocalChange, error) {
	if q.Limit <= 0 {
		q.Limit = defaultChangeFeedLimit
	}

	query := f.db.WithContext(ctx).Where("changed_at > ?", q.Since.UTC())
	if !q.Until.IsZero() {
		query = query.Where("changed_at <= ?", q.Until.UTC())
	}
	if len(q.EntityTypes) > 0 {
		types := make([]string, len(q.EntityTypes))
		for i, t := range q.EntityTypes {
			types[i] = string(t)
		}
		query = query.Where("entity_type IN ?", types)
	}

	var rows []models.LocalChangeModel
	if err := query.Order("changed_at ASC, id ASC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	changes := make([]marketsync.LocalChange, len(rows))
	for i := range rows {
		changes[i] = *rows[i].ToDomain()
	}
	return changes, nil
}

// Latest returns the most recent change of an entity
func (f *GormLocalChangeFeed) Latest(ctx context.Context, entityType marketsync.EntityType, localID string) (*marketsync.LocalChange, error) {
	var model models.LocalChangeModel
	if err := f.db.WithContext(ctx).
		Where("entity_type = ? AND local_entity_id = ?", string(entityType), localID).
		Order("changed_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", marketsync.ErrChangeNotFound, entityType, localID)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Record appends a change row
func (f *GormLocalChangeFeed) Record(ctx context.Context, change *marketsync.LocalChange) error {
	if !change.EntityType.IsValid() || change.LocalEntityID == "" {
		return fmt.Errorf("invalid change feed row %s/%q", change.EntityType, change.LocalEntityID)
	}
	if change.Operation == "" {
		change.Operation = marketsync.OperationUpdate
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now()
	}

	model := models.LocalChangeModelFromDomain(change)
	if err := f.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	change.ID = model.ID
	return nil
}
