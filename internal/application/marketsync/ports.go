// Package marketsync holds the sync engine's use cases: the queue service,
// status mapper, worker, webhook intake and the periodic tier tasks. It talks to
// storage and marketplaces only through the ports declared by the domain package
// and in this file.
package marketsync

import (
	"context"
	"io"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// Item outcomes reported to Metrics and counted in summaries
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
	OutcomeReleased  = "released"
)

// Metrics receives sync measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ItemFinished(ctx context.Context, marketplace, entityType, outcome, errorKind string)
	ClientCall(ctx context.Context, marketplace, call string, elapsed time.Duration, errorKind string)
	BatchFinished(ctx context.Context, tier string, elapsed time.Duration)
	TierRun(ctx context.Context, tier, outcome string)
}

// NopMetrics discards every measurement
type NopMetrics struct{}

func (NopMetrics) ItemFinished(context.Context, string, string, string, string)      {}
func (NopMetrics) ClientCall(context.Context, string, string, time.Duration, string) {}
func (NopMetrics) BatchFinished(context.Context, string, time.Duration)              {}
func (NopMetrics) TierRun(context.Context, string, string)                           {}

type multiMetrics []Metrics

// CombineMetrics fans measurements out to every non-nil sink
func CombineMetrics(sinks ...Metrics) Metrics {
	out := make(multiMetrics, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return NopMetrics{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiMetrics) ItemFinished(ctx context.Context, marketplace, entityType, outcome, errorKind string) {
	for _, s := range m {
		s.ItemFinished(ctx, marketplace, entityType, outcome, errorKind)
	}
}

func (m multiMetrics) ClientCall(ctx context.Context, marketplace, call string, elapsed time.Duration, errorKind string) {
	for _, s := range m {
		s.ClientCall(ctx, marketplace, call, elapsed, errorKind)
	}
}

func (m multiMetrics) BatchFinished(ctx context.Context, tier string, elapsed time.Duration) {
	for _, s := range m {
		s.BatchFinished(ctx, tier, elapsed)
	}
}

func (m multiMetrics) TierRun(ctx context.Context, tier, outcome string) {
	for _, s := range m {
		s.TierRun(ctx, tier, outcome)
	}
}

// DedupeStore remembers webhook event ids for a while
type DedupeStore interface {
	// Claim records key and returns true if it was not seen within ttl
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets a claim so a redelivery of the event is accepted
	Release(ctx context.Context, key string) error
}

// ReportStore persists generated report files
type ReportStore interface {
	// Put stores body under key and returns its location
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// SecretOpener decrypts sealed marketplace secrets
type SecretOpener interface {
	Open(sealed []byte) ([]byte, error)
}

// ParserResolver returns the webhook parser of a marketplace code
type ParserResolver interface {
	ParserFor(code marketsync.MarketplaceCode) (marketsync.WebhookParser, error)
}

// Clock returns the current time. Tests substitute a fixed one.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
