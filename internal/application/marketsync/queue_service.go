package marketsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// EnqueueRequest describes work to add to the sync queue
type EnqueueRequest struct {
	EntityType     marketsync.EntityType `json:"entity_type" binding:"required,oneof=product stock price order category"`
	LocalEntityID  string                `json:"local_entity_id" binding:"max=128"`
	RemoteEntityID string                `json:"remote_entity_id" binding:"max=128"`
	MarketplaceID  int64                 `json:"marketplace_id" binding:"required,gt=0"`
	Operation      marketsync.Operation  `json:"operation" binding:"required,oneof=create update delete status_change import"`
	Payload        json.RawMessage       `json:"payload" swaggertype:"object"`
	// Tier overrides the derived tier when set
	Tier marketsync.Tier `json:"tier,omitempty" binding:"omitempty,oneof=high medium low"`
}

func (r EnqueueRequest) key() marketsync.QueueKey {
	return marketsync.QueueKey{
		EntityType:     r.EntityType,
		LocalEntityID:  r.LocalEntityID,
		RemoteEntityID: r.RemoteEntityID,
		MarketplaceID:  r.MarketplaceID,
		Operation:      r.Operation,
	}
}

// EnqueueResult reports the stored item
type EnqueueResult struct {
	ID      uuid.UUID              `json:"id"`
	Created bool                   `json:"created"`
	Tier    marketsync.Tier        `json:"tier"`
	Status  marketsync.QueueStatus `json:"status"`
}

// QueueConfig holds queue policy
type QueueConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	CriticalStock int64
}

// QueueService owns the queue lifecycle on top of SyncQueueRepository
type QueueService struct {
	repo   marketsync.SyncQueueRepository
	config QueueConfig
	clock  Clock
	logger *zap.Logger
}

// NewQueueService creates a new QueueService
func NewQueueService(repo marketsync.SyncQueueRepository, cfg QueueConfig, clock Clock, log *zap.Logger) *QueueService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = marketsync.DefaultMaxRetries
	}
	return &QueueService{repo: repo, config: cfg, clock: clock, logger: log.Named("sync_queue")}
}

// ---------------------------------------------------------------------------
// Producer side
// ---------------------------------------------------------------------------

// Enqueue adds work, or refreshes the snapshot of the outstanding item with the
// same key. An item being processed keeps its in-flight copy and is picked up
// again with the new snapshot after the attempt ends.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	tier := req.Tier
	if tier == "" {
		tier = s.TierFor(req.EntityType, req.Payload)
	}
	item, err := marketsync.NewSyncQueueItem(req.key(), tier, req.Payload, s.config.MaxRetries)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	item.CreatedAt, item.UpdatedAt = now, now

	stored, created, err := s.repo.Enqueue(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", item.Key(), err)
	}

	logger.L(ctx, s.logger).Debug("Queue item stored",
		zap.Stringer("queue_item_id", stored.ID),
		zap.String("key", stored.Key().String()),
		zap.String("tier", string(stored.Tier)),
		zap.Bool("created", created),
		zap.Bool("resubmit", stored.Resubmit),
	)
	return &EnqueueResult{ID: stored.ID, Created: created, Tier: stored.Tier, Status: stored.Status}, nil
}

// TierFor derives the tier of an item from its entity type and, for stock,
// the snapshot quantity
func (s *QueueService) TierFor(entityType marketsync.EntityType, payload json.RawMessage) marketsync.Tier {
	var qty *int64
	if entityType == marketsync.EntityStock {
		qty = marketsync.StockQuantityOf(payload)
	}
	return marketsync.TierFor(entityType, qty, s.config.CriticalStock)
}

// ---------------------------------------------------------------------------
// Consumer side
// ---------------------------------------------------------------------------

// Dequeue claims up to filter.Limit available items, oldest first
func (s *QueueService) Dequeue(ctx context.Context, filter marketsync.DequeueFilter) ([]*marketsync.SyncQueueItem, error) {
	if filter.Limit <= 0 {
		return nil, nil
	}
	return s.repo.Dequeue(ctx, filter, s.clock.now())
}

// MarkCompleted finishes a processing item
func (s *QueueService) MarkCompleted(ctx context.Context, id uuid.UUID) (*marketsync.SyncQueueItem, error) {
	now := s.clock.now()
	return s.repo.Transition(ctx, id, func(item *marketsync.SyncQueueItem) error {
		return item.MarkCompleted(now)
	})
}

// MarkFailed records a failed attempt and applies the retry policy
func (s *QueueService) MarkFailed(ctx context.Context, id uuid.UUID, failure marketsync.Failure) (*marketsync.SyncQueueItem, error) {
	now := s.clock.now()
	return s.repo.Transition(ctx, id, func(item *marketsync.SyncQueueItem) error {
		return item.MarkFailed(failure, s.config.RetryDelay, now)
	})
}

// Release returns processing items to pending without spending a retry.
// notBefore may be nil. Items that already moved on are skipped.
func (s *QueueService) Release(ctx context.Context, ids []uuid.UUID, notBefore *time.Time) (int, error) {
	now := s.clock.now()
	released := 0
	for _, id := range ids {
		_, err := s.repo.Transition(ctx, id, func(item *marketsync.SyncQueueItem) error {
			return item.Release(notBefore, now)
		})
		switch {
		case err == nil:
			released++
		case isInvalidTransition(err):
			continue
		default:
			return released, err
		}
	}
	return released, nil
}

// Requeue revives an item in error with a fresh retry budget
func (s *QueueService) Requeue(ctx context.Context, id uuid.UUID) (*marketsync.SyncQueueItem, error) {
	now := s.clock.now()
	return s.repo.Transition(ctx, id, func(item *marketsync.SyncQueueItem) error {
		return item.Requeue(now)
	})
}

// ---------------------------------------------------------------------------
// Maintenance and inspection
// ---------------------------------------------------------------------------

// RecoverStale returns items stuck in processing for longer than olderThan
func (s *QueueService) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.RecoverStale(ctx, s.clock.now().Add(-olderThan))
}

// Purge deletes completed items finished more than olderThan ago
func (s *QueueService) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.Purge(ctx, s.clock.now().Add(-olderThan))
}

// Get returns one item
func (s *QueueService) Get(ctx context.Context, id uuid.UUID) (*marketsync.SyncQueueItem, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns a filtered page of items
func (s *QueueService) List(ctx context.Context, filter marketsync.QueueListFilter) ([]marketsync.SyncQueueItem, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	return s.repo.List(ctx, filter)
}

// Stats returns item counts by tier, marketplace and status
func (s *QueueService) Stats(ctx context.Context) ([]marketsync.QueueStat, error) {
	return s.repo.Stats(ctx)
}

func isInvalidTransition(err error) bool {
	return errors.Is(err, marketsync.ErrInvalidTransition) || errors.Is(err, marketsync.ErrQueueItemNotFound)
}
