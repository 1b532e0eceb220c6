package marketsync

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// StatusDirection tells which vocabulary the source status belongs to
type StatusDirection string

const (
	// StatusOutbound maps a local status to the marketplace vocabulary
	StatusOutbound StatusDirection = "outbound"
	// StatusInbound maps a marketplace status to the local vocabulary
	StatusInbound StatusDirection = "inbound"
)

// StatusMapping is one explicit translation row
type StatusMapping struct {
	ID            uuid.UUID
	MarketplaceID int64
	Direction     StatusDirection
	SourceStatus  string
	TargetStatus  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceKey returns the normalized lookup key of the source status
func (m *StatusMapping) SourceKey() string {
	return NormalizeStatusKey(m.SourceStatus)
}

// NormalizeStatusKey applies Unicode case folding and trims whitespace so "Shipped",
// "SHIPPED" and " shipped " resolve to the same row.
func NormalizeStatusKey(status string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(status))
}

// StatusMappingRepository persists status translation rows
type StatusMappingRepository interface {
	// Find returns ErrStatusNotConfigured when no row matches the normalized key
	Find(ctx context.Context, marketplaceID int64, direction StatusDirection, source string) (*StatusMapping, error)
	// SavePair stores local→remote and remote→local rows atomically
	SavePair(ctx context.Context, marketplaceID int64, local, remote string) error
	ListByMarketplace(ctx context.Context, marketplaceID int64) ([]StatusMapping, error)
}
