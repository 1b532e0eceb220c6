package marketsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LocalChange is a row of the change feed the host store appends to
type LocalChange struct {
	ID            uuid.UUID
	EntityType    EntityType
	LocalEntityID string
	// MarketplaceID restricts the change to one marketplace; nil means all enabled ones
	MarketplaceID *int64
	Operation     Operation
	Payload       json.RawMessage
	ChangedAt     time.Time
}

// ChangeQuery selects feed rows in (Since, Until]
type ChangeQuery struct {
	EntityTypes []EntityType
	Since       time.Time
	Until       time.Time
	Offset      int
	Limit       int
}

// LocalChangeFeed reads and appends change feed rows
type LocalChangeFeed interface {
	ChangesSince(ctx context.Context, q ChangeQuery) ([]LocalChange, error)
	// Latest returns ErrChangeNotFound if the entity has no recorded change
	Latest(ctx context.Context, entityType EntityType, localID string) (*LocalChange, error)
	Record(ctx context.Context, change *LocalChange) error
}

// MarketplaceOrder is an inbox row for an order pulled from a marketplace
type MarketplaceOrder struct {
	ID            uuid.UUID
	MarketplaceID int64
	RemoteOrderID string
	LocalOrderID  string
	RemoteStatus  string
	LocalStatus   string
	PaymentStatus string
	TotalAmount   decimal.Decimal
	Currency      string
	Payload       json.RawMessage
	FetchedAt     time.Time
}

// MarketplaceOrderRepository persists the order inbox
type MarketplaceOrderRepository interface {
	// Upsert inserts or refreshes the row keyed by (marketplace, remote order id).
	// A local order id already linked by the host store is preserved.
	Upsert(ctx context.Context, order *MarketplaceOrder) error
	// FindByRemoteID returns ErrOrderNotFound when no row exists
	FindByRemoteID(ctx context.Context, marketplaceID int64, remoteOrderID string) (*MarketplaceOrder, error)
}

// CategoryRecord is a cached marketplace category
type CategoryRecord struct {
	MarketplaceID    int64
	RemoteCategoryID string
	ParentRemoteID   string
	Name             string
	Leaf             bool
	RefreshedAt      time.Time
}

// CategoryRepository persists the category cache
type CategoryRepository interface {
	// Refresh upserts records and drops rows of the marketplace not refreshed at refreshedAt
	Refresh(ctx context.Context, marketplaceID int64, records []CategoryRecord, refreshedAt time.Time) error
	Count(ctx context.Context, marketplaceID int64) (int64, error)
}
