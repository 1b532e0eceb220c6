package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogRepository_AppendAndList(t *testing.T) {
	repo := NewGormEventLogRepository(newSQLiteTestDB(t))
	ctx := context.Background()

	item, err := marketsync.NewSyncQueueItem(stockKey("P1"), marketsync.TierHigh, nil, 0)
	require.NoError(t, err)

	ok := marketsync.NewEventLogEntry(marketsync.EventTypePush, marketsync.EventSuccess, "stock pushed").
		ForItem(item).
		WithPayload(map[string]any{"quantity": 3})
	require.NoError(t, repo.Append(ctx, ok))

	failed := marketsync.NewEventLogEntry(marketsync.EventTypePush, marketsync.EventError, "").
		ForItem(item).
		WithError(&marketsync.AuthError{Marketplace: "trendyol", Message: "bad key"})
	require.NoError(t, repo.Append(ctx, failed))

	entries, total, err := repo.List(ctx, marketsync.EventLogFilter{RelatedEntityID: "P1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, failed.ID, entries[0].ID, "newest first")
	assert.Equal(t, marketsync.ErrorKindAuth, entries[0].ErrorKind)
	assert.NotEmpty(t, entries[0].Message)
	assert.JSONEq(t, `{"quantity":3}`, string(entries[1].Payload))
	require.NotNil(t, entries[1].QueueItemID)
	assert.Equal(t, item.ID, *entries[1].QueueItemID)

	errorsOnly, _, err := repo.List(ctx, marketsync.EventLogFilter{QueueItemID: &item.ID, Status: marketsync.EventError})
	require.NoError(t, err)
	assert.Len(t, errorsOnly, 1)

	other := uuid.New()
	none, _, err := repo.List(ctx, marketsync.EventLogFilter{QueueItemID: &other})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventLogRepository_CountByOutcome(t *testing.T) {
	repo := NewGormEventLogRepository(newSQLiteTestDB(t))
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var batch []*marketsync.EventLogEntry
	add := func(mp int64, status marketsync.EventStatus, at time.Time) {
		e := marketsync.NewEventLogEntry(marketsync.EventTypePush, status, "x")
		if mp > 0 {
			e.ForMarketplace(mp)
		}
		e.CreatedAt = at
		batch = append(batch, e)
	}
	add(1, marketsync.EventSuccess, day.Add(time.Hour))
	add(1, marketsync.EventSuccess, day.Add(2*time.Hour))
	add(1, marketsync.EventError, day.Add(3*time.Hour))
	add(2, marketsync.EventSuccess, day.Add(4*time.Hour))
	add(0, marketsync.EventSuccess, day.Add(5*time.Hour))
	add(1, marketsync.EventSuccess, day.Add(25*time.Hour))
	require.NoError(t, repo.AppendBatch(ctx, batch))
	require.NoError(t, repo.AppendBatch(ctx, nil))

	counts, err := repo.CountByOutcome(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)

	got := map[int64]map[marketsync.EventStatus]int64{}
	for _, c := range counts {
		if got[c.MarketplaceID] == nil {
			got[c.MarketplaceID] = map[marketsync.EventStatus]int64{}
		}
		got[c.MarketplaceID][c.Status] += c.Count
	}
	assert.Equal(t, int64(2), got[1][marketsync.EventSuccess])
	assert.Equal(t, int64(1), got[1][marketsync.EventError])
	assert.Equal(t, int64(1), got[2][marketsync.EventSuccess])
	assert.Equal(t, int64(1), got[0][marketsync.EventSuccess])
}

func TestEventLogRepository_AppendPropagatesErrors(t *testing.T) {
	db, mock, _ := newPostgresMockDB(t)
	repo := NewGormEventLogRepository(db)

	mock.ExpectExec(`INSERT INTO "sync_event_log"`).WillReturnError(errors.New("disk full"))

	err := repo.Append(context.Background(), marketsync.NewEventLogEntry(marketsync.EventTypeTierRun, marketsync.EventInfo, "run"))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
