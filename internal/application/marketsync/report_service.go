package marketsync

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ReportService writes the daily outcome report
type ReportService struct {
	events       marketsync.EventLogRepository
	marketplaces marketsync.MarketplaceRepository
	store        ReportStore
	log          *EventLogService
	prefix       string
	logger       *zap.Logger
}

// NewReportService creates a new ReportService. prefix is prepended to report keys.
func NewReportService(
	events marketsync.EventLogRepository,
	marketplaces marketsync.MarketplaceRepository,
	store ReportStore,
	eventLog *EventLogService,
	prefix string,
	log *zap.Logger,
) *ReportService {
	if prefix == "" {
		prefix = "reports"
	}
	return &ReportService{
		events:       events,
		marketplaces: marketplaces,
		store:        store,
		log:          eventLog,
		prefix:       prefix,
		logger:       log.Named("reports"),
	}
}

// Daily reports the event outcomes of the UTC day containing day and returns
// the stored location
func (s *ReportService) Daily(ctx context.Context, day time.Time) (string, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	counts, err := s.events.CountByOutcome(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("count events: %w", err)
	}
	names := s.marketplaceNames(ctx)
	body, err := renderOutcomeCSV(counts, names)
	if err != nil {
		return "", err
	}

	key := path.Join(s.prefix, from.Format("2006/01/02"), "sync-outcomes.csv")
	location, err := s.store.Put(ctx, key, "text/csv", bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}

	s.log.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeReportGenerated, marketsync.EventSuccess,
		"daily sync report stored at "+location).
		WithPayload(map[string]any{"day": from.Format(time.DateOnly), "rows": len(counts), "location": location}))
	logger.L(ctx, s.logger).Info("Daily report stored", zap.String("location", location), zap.Int("rows", len(counts)))
	return location, nil
}

func (s *ReportService) marketplaceNames(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	list, err := s.marketplaces.List(ctx)
	if err != nil {
		logger.L(ctx, s.logger).Warn("Failed to load marketplace names", zap.Error(err))
		return names
	}
	for i := range list {
		names[list[i].ID] = list[i].Name()
	}
	return names
}

func renderOutcomeCSV(counts []marketsync.EventOutcomeCount, names map[int64]string) ([]byte, error) {
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.MarketplaceID != b.MarketplaceID {
			return a.MarketplaceID < b.MarketplaceID
		}
		if a.EventType != b.EventType {
			return a.EventType < b.EventType
		}
		return a.Status < b.Status
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"marketplace_id", "marketplace", "event_type", "status", "count"})
	for _, c := range counts {
		_ = w.Write([]string{
			strconv.FormatInt(c.MarketplaceID, 10),
			names[c.MarketplaceID],
			string(c.EventType),
			string(c.Status),
			strconv.FormatInt(c.Count, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
