package marketsync

import (
	"context"
	"sync"
	"time"
)

// RateGate holds the earliest instant each marketplace may be called again.
// A RateLimited answer defers the marketplace; every later call waits it out.
type RateGate struct {
	mu        sync.Mutex
	notBefore map[int64]time.Time
}

// NewRateGate creates an open gate
func NewRateGate() *RateGate {
	return &RateGate{notBefore: make(map[int64]time.Time)}
}

// Defer pushes the marketplace's next allowed call to until. An earlier
// instant never shortens an existing deferral.
func (g *RateGate) Defer(marketplaceID int64, until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.notBefore[marketplaceID]; ok && current.After(until) {
		return
	}
	g.notBefore[marketplaceID] = until
}

// Remaining returns how long a call at now must wait (zero when open)
func (g *RateGate) Remaining(marketplaceID int64, now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.notBefore[marketplaceID]
	if !ok || !until.After(now) {
		return 0
	}
	return until.Sub(now)
}

// NotBefore returns the deferral instant, if one lies after now
func (g *RateGate) NotBefore(marketplaceID int64, now time.Time) *time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.notBefore[marketplaceID]
	if !ok || !until.After(now) {
		return nil
	}
	return &until
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
