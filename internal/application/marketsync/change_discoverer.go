package marketsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const defaultDiscoverPageSize = 500

// DiscoverConfig holds discovery policy
type DiscoverConfig struct {
	// LowStockAlert emits a warning event for stock changes at or below it; < 0 disables
	LowStockAlert int64
	PageSize      int
}

// DiscoverResult counts one discovery pass
type DiscoverResult struct {
	Changes   int
	Enqueued  int
	Coalesced int
	// Skipped counts changes that belong to another tier
	Skipped int
	// Superseded counts changes replaced by a newer change of the same entity
	Superseded int
	Rejected   int
	Alerts     int
}

// ChangeDiscoverer turns change feed rows into queue items for a tier
type ChangeDiscoverer struct {
	feed   marketsync.LocalChangeFeed
	queue  *QueueService
	events *EventLogService
	config DiscoverConfig
	logger *zap.Logger
}

// NewChangeDiscoverer creates a new ChangeDiscoverer
func NewChangeDiscoverer(feed marketsync.LocalChangeFeed, queue *QueueService, events *EventLogService, cfg DiscoverConfig, log *zap.Logger) *ChangeDiscoverer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultDiscoverPageSize
	}
	return &ChangeDiscoverer{feed: feed, queue: queue, events: events, config: cfg, logger: log.Named("change_discoverer")}
}

// changeKey identifies one entity operation towards one marketplace
type changeKey struct {
	entityType    marketsync.EntityType
	localEntityID string
	operation     marketsync.Operation
	marketplaceID int64
}

// Discover enqueues the latest change in (since, until] of every entity and
// target marketplace. A change without a marketplace fans out to every
// marketplace in targets. Only changes whose derived tier is tier are taken,
// so a change read by two tiers is enqueued once, and a change followed by a
// newer one is never enqueued whatever tier the newer one has.
//
// A queue error other than a rejected key fails the pass, so the caller keeps
// its watermark and the window is read again.
func (d *ChangeDiscoverer) Discover(ctx context.Context, tier marketsync.Tier, since, until time.Time, targets []marketsync.Marketplace) (*DiscoverResult, error) {
	res := &DiscoverResult{}
	types := tier.DiscoveredEntityTypes()
	if len(types) == 0 || len(targets) == 0 {
		return res, nil
	}
	log := logger.L(ctx, d.logger).With(zap.String("tier", string(tier)))

	changes, err := d.readWindow(ctx, types, since, until)
	if err != nil {
		return res, err
	}
	res.Changes = len(changes)

	// feed rows come oldest first, so the last index per key wins
	latest := make(map[changeKey]int, len(changes))
	for i := range changes {
		for _, mp := range targetsOf(&changes[i], targets) {
			latest[keyOf(&changes[i], mp.ID)] = i
		}
	}

	var alerts []*marketsync.EventLogEntry
	for i := range changes {
		c := &changes[i]
		var live []marketsync.Marketplace
		for _, mp := range targetsOf(c, targets) {
			if latest[keyOf(c, mp.ID)] == i {
				live = append(live, mp)
			}
		}
		if len(live) == 0 {
			res.Superseded++
			continue
		}
		if d.queue.TierFor(c.EntityType, c.Payload) != tier {
			res.Skipped++
			continue
		}
		for _, mp := range live {
			r, err := d.queue.Enqueue(ctx, EnqueueRequest{
				EntityType:    c.EntityType,
				LocalEntityID: c.LocalEntityID,
				MarketplaceID: mp.ID,
				Operation:     c.Operation,
				Payload:       c.Payload,
				Tier:          tier,
			})
			if errors.Is(err, marketsync.ErrInvalidQueueKey) {
				res.Rejected++
				log.Error("Change rejected by the queue",
					zap.String("entity_type", string(c.EntityType)),
					zap.String("local_entity_id", c.LocalEntityID),
					zap.Int64("marketplace_id", mp.ID),
					zap.Error(err),
				)
				continue
			}
			if err != nil {
				return res, fmt.Errorf("enqueue %s %s for marketplace %d: %w", c.EntityType, c.LocalEntityID, mp.ID, err)
			}
			if r.Created {
				res.Enqueued++
			} else {
				res.Coalesced++
			}
		}
		if alert := d.lowStockAlert(c); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	res.Alerts = len(alerts)
	d.events.RecordAll(ctx, alerts)
	log.Info("Local changes discovered",
		zap.Time("since", since),
		zap.Int("changes", res.Changes),
		zap.Int("enqueued", res.Enqueued),
		zap.Int("coalesced", res.Coalesced),
		zap.Int("superseded", res.Superseded),
		zap.Int("alerts", res.Alerts),
	)
	return res, nil
}

func (d *ChangeDiscoverer) readWindow(ctx context.Context, types []marketsync.EntityType, since, until time.Time) ([]marketsync.LocalChange, error) {
	var all []marketsync.LocalChange
	for offset := 0; ; offset += d.config.PageSize {
		changes, err := d.feed.ChangesSince(ctx, marketsync.ChangeQuery{
			EntityTypes: types,
			Since:       since,
			Until:       until,
			Offset:      offset,
			Limit:       d.config.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("read change feed: %w", err)
		}
		all = append(all, changes...)
		if len(changes) < d.config.PageSize {
			return all, nil
		}
	}
}

func keyOf(c *marketsync.LocalChange, marketplaceID int64) changeKey {
	return changeKey{
		entityType:    c.EntityType,
		localEntityID: c.LocalEntityID,
		operation:     c.Operation,
		marketplaceID: marketplaceID,
	}
}

func (d *ChangeDiscoverer) lowStockAlert(c *marketsync.LocalChange) *marketsync.EventLogEntry {
	if c.EntityType != marketsync.EntityStock || d.config.LowStockAlert < 0 {
		return nil
	}
	qty := marketsync.StockQuantityOf(c.Payload)
	if qty == nil || *qty > d.config.LowStockAlert {
		return nil
	}
	status := marketsync.EventWarning
	msg := fmt.Sprintf("stock of %s is low (%d)", c.LocalEntityID, *qty)
	if *qty <= 0 {
		msg = fmt.Sprintf("%s is out of stock", c.LocalEntityID)
	}
	e := marketsync.NewEventLogEntry(marketsync.EventTypeLowStock, status, msg).
		WithPayload(map[string]any{"quantity": *qty, "threshold": d.config.LowStockAlert})
	e.EntityType = marketsync.EntityStock
	e.RelatedEntityID = c.LocalEntityID
	if c.MarketplaceID != nil {
		e.ForMarketplace(*c.MarketplaceID)
	}
	return e
}

func targetsOf(c *marketsync.LocalChange, targets []marketsync.Marketplace) []marketsync.Marketplace {
	if c.MarketplaceID == nil {
		return targets
	}
	i := slices.IndexFunc(targets, func(m marketsync.Marketplace) bool { return m.ID == *c.MarketplaceID })
	if i < 0 {
		return nil
	}
	return targets[i : i+1]
}
