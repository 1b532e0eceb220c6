package marketsync

import (
	"context"
	"fmt"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// CategoryService refreshes the cached category tree of a marketplace
type CategoryService struct {
	clients marketsync.ClientResolver
	repo    marketsync.CategoryRepository
	events  *EventLogService
	clock   Clock
	logger  *zap.Logger
}

// NewCategoryService creates a new CategoryService
func NewCategoryService(clients marketsync.ClientResolver, repo marketsync.CategoryRepository, events *EventLogService, clock Clock, log *zap.Logger) *CategoryService {
	return &CategoryService{clients: clients, repo: repo, events: events, clock: clock, logger: log.Named("categories")}
}

// Refresh replaces the cached tree with the marketplace's current one and
// returns the number of categories stored
func (s *CategoryService) Refresh(ctx context.Context, marketplaceID int64) (int, error) {
	client, err := s.clients.ClientFor(ctx, marketplaceID)
	if err != nil {
		return 0, err
	}
	remote, err := client.FetchCategories(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.now()
	records := make([]marketsync.CategoryRecord, 0, len(remote))
	for _, c := range remote {
		records = append(records, marketsync.CategoryRecord{
			MarketplaceID:    marketplaceID,
			RemoteCategoryID: c.RemoteID,
			ParentRemoteID:   c.ParentID,
			Name:             c.Name,
			Leaf:             c.Leaf,
			RefreshedAt:      now,
		})
	}
	if err := s.repo.Refresh(ctx, marketplaceID, records, now); err != nil {
		return 0, fmt.Errorf("store categories: %w", err)
	}

	s.events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeCategoryRefresh, marketsync.EventSuccess,
		fmt.Sprintf("%d categories refreshed from %s", len(records), client.Code().DisplayName())).
		ForMarketplace(marketplaceID).
		WithPayload(map[string]any{"categories": len(records)}))
	logger.L(ctx, s.logger).Info("Categories refreshed",
		zap.Int64("marketplace_id", marketplaceID),
		zap.Int("count", len(records)),
	)
	return len(records), nil
}
