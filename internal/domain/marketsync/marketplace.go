package marketsync

import (
	"context"
	"time"
)

// MarketplaceCode identifies a supported marketplace
type MarketplaceCode string

const (
	MarketplaceTrendyol    MarketplaceCode = "trendyol"
	MarketplaceHepsiburada MarketplaceCode = "hepsiburada"
	MarketplaceN11         MarketplaceCode = "n11"
	MarketplaceAmazon      MarketplaceCode = "amazon"
	MarketplaceEbay        MarketplaceCode = "ebay"
)

// AllMarketplaceCodes returns every supported marketplace code
func AllMarketplaceCodes() []MarketplaceCode {
	return []MarketplaceCode{
		MarketplaceTrendyol,
		MarketplaceHepsiburada,
		MarketplaceN11,
		MarketplaceAmazon,
		MarketplaceEbay,
	}
}

// IsValid returns true if the code is a supported marketplace
func (c MarketplaceCode) IsValid() bool {
	switch c {
	case MarketplaceTrendyol, MarketplaceHepsiburada, MarketplaceN11, MarketplaceAmazon, MarketplaceEbay:
		return true
	}
	return false
}

// String returns the string representation
func (c MarketplaceCode) String() string {
	return string(c)
}

// DisplayName returns the human-readable marketplace name
func (c MarketplaceCode) DisplayName() string {
	switch c {
	case MarketplaceTrendyol:
		return "Trendyol"
	case MarketplaceHepsiburada:
		return "Hepsiburada"
	case MarketplaceN11:
		return "N11"
	case MarketplaceAmazon:
		return "Amazon"
	case MarketplaceEbay:
		return "eBay"
	default:
		return string(c)
	}
}

// DefaultRateLimitPerMinute returns the request budget used when a marketplace row
// does not configure one.
func (c MarketplaceCode) DefaultRateLimitPerMinute() int {
	switch c {
	case MarketplaceTrendyol:
		return 600
	case MarketplaceHepsiburada:
		return 300
	case MarketplaceN11:
		return 120
	case MarketplaceAmazon:
		return 60
	case MarketplaceEbay:
		return 300
	default:
		return 60
	}
}

// Marketplace is a configured external sales channel.
// Rows are created at configuration time and only mutated through settings updates.
type Marketplace struct {
	// ID is the stable numeric identifier referenced by mappings and queue items
	ID int64
	// Code selects the adapter implementation
	Code MarketplaceCode
	// DisplayName is shown in run summaries
	DisplayName string
	// Credentials is the sealed credential blob; opaque to the engine
	Credentials []byte
	// WebhookSecret is the sealed secret used to verify webhook signatures
	WebhookSecret []byte
	// Enabled marks the marketplace as active for scheduling and webhooks
	Enabled bool
	// BaseURL overrides the adapter's default API endpoint
	BaseURL string
	// RateLimitPerMinute is the request budget for this marketplace (0 = code default)
	RateLimitPerMinute int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectiveRateLimit returns the configured request budget or the marketplace default
func (m *Marketplace) EffectiveRateLimit() int {
	if m.RateLimitPerMinute > 0 {
		return m.RateLimitPerMinute
	}
	return m.Code.DefaultRateLimitPerMinute()
}

// Name returns the display name, falling back to the code's default name
func (m *Marketplace) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Code.DisplayName()
}

// MarketplaceRepository persists marketplace configuration rows
type MarketplaceRepository interface {
	// FindByID returns ErrMarketplaceNotFound when no row exists
	FindByID(ctx context.Context, id int64) (*Marketplace, error)
	// FindByCode returns ErrMarketplaceNotFound when no row exists
	FindByCode(ctx context.Context, code MarketplaceCode) (*Marketplace, error)
	// List returns all marketplaces ordered by id
	List(ctx context.Context) ([]Marketplace, error)
	// ListEnabled returns enabled marketplaces ordered by id
	ListEnabled(ctx context.Context) ([]Marketplace, error)
	// Save inserts or updates a marketplace keyed by code
	Save(ctx context.Context, m *Marketplace) error
}
