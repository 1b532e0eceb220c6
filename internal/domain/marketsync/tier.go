package marketsync

import (
	"context"
	"time"
)

// Tier is a scheduling priority class
type Tier string

const (
	// TierHigh covers new orders, order status changes and critical stock
	TierHigh Tier = "high"
	// TierMedium covers product, stock and price propagation
	TierMedium Tier = "medium"
	// TierLow covers categories, reconciliation, reports and retention
	TierLow Tier = "low"
)

// AllTiers returns the tiers ordered by priority
func AllTiers() []Tier {
	return []Tier{TierHigh, TierMedium, TierLow}
}

// IsValid returns true if the tier is known
func (t Tier) IsValid() bool {
	switch t {
	case TierHigh, TierMedium, TierLow:
		return true
	}
	return false
}

// String returns the string representation
func (t Tier) String() string {
	return string(t)
}

// DiscoveredEntityTypes returns the entity types whose local changes a tier enqueues
func (t Tier) DiscoveredEntityTypes() []EntityType {
	switch t {
	case TierHigh:
		return []EntityType{EntityOrder, EntityStock}
	case TierMedium:
		return []EntityType{EntityProduct, EntityStock, EntityPrice}
	case TierLow:
		return []EntityType{EntityCategory}
	default:
		return nil
	}
}

// TierFor derives the tier of a queue item. Stock at or below criticalStock is
// promoted to the high tier; criticalStock < 0 disables the promotion.
func TierFor(entityType EntityType, stockQuantity *int64, criticalStock int64) Tier {
	switch entityType {
	case EntityOrder:
		return TierHigh
	case EntityStock:
		if stockQuantity != nil && criticalStock >= 0 && *stockQuantity <= criticalStock {
			return TierHigh
		}
		return TierMedium
	case EntityCategory:
		return TierLow
	default:
		return TierMedium
	}
}

// TierLock is the overlap guard and watermark row of a tier
type TierLock struct {
	Tier           Tier
	LockedBy       string
	LockedAt       *time.Time
	LastStartedAt  *time.Time
	LastFinishedAt *time.Time
	// LastSuccessAt is the start time of the last successful run; discovery resumes from it
	LastSuccessAt *time.Time
	LastStatus    string
}

// IsHeld returns true if a run currently holds the lock
func (l *TierLock) IsHeld() bool {
	return l.LockedBy != ""
}

// TierLockRepository guards same-tier overlap
type TierLockRepository interface {
	// TryAcquire takes the lock for owner. A lock held since before staleBefore is
	// taken over. Returns ErrTierAlreadyRunning when another owner holds it.
	TryAcquire(ctx context.Context, tier Tier, owner string, now, staleBefore time.Time) (*TierLock, error)
	// Release frees the lock held by owner. On success last_success_at is set to startedAt.
	Release(ctx context.Context, tier Tier, owner string, startedAt, now time.Time, status string, succeeded bool) error
	Get(ctx context.Context, tier Tier) (*TierLock, error)
}
