package marketsync

import (
	"context"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// EventLogService appends audit rows. A failed append is logged and never
// fails the sync step that produced it.
type EventLogService struct {
	repo   marketsync.EventLogRepository
	logger *zap.Logger
}

// NewEventLogService creates a new EventLogService
func NewEventLogService(repo marketsync.EventLogRepository, log *zap.Logger) *EventLogService {
	return &EventLogService{repo: repo, logger: log.Named("event_log")}
}

// Record appends entry
func (s *EventLogService) Record(ctx context.Context, entry *marketsync.EventLogEntry) {
	if err := s.repo.Append(ctx, entry); err != nil {
		logger.L(ctx, s.logger).Error("Failed to append event",
			zap.String("event_type", string(entry.EventType)),
			zap.String("status", string(entry.Status)),
			zap.String("related_entity_id", entry.RelatedEntityID),
			zap.String("message", entry.Message),
			zap.Error(err),
		)
	}
}

// RecordAll appends entries in one statement
func (s *EventLogService) RecordAll(ctx context.Context, entries []*marketsync.EventLogEntry) {
	if len(entries) == 0 {
		return
	}
	if err := s.repo.AppendBatch(ctx, entries); err != nil {
		logger.L(ctx, s.logger).Error("Failed to append events", zap.Int("count", len(entries)), zap.Error(err))
	}
}

// List returns a page of events, newest first
func (s *EventLogService) List(ctx context.Context, filter marketsync.EventLogFilter) ([]marketsync.EventLogEntry, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	return s.repo.List(ctx, filter)
}
