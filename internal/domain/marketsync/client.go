package marketsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination selects a page of a remote listing (1-based)
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize applies defaults and caps the page size at max
func (p Pagination) Normalize(defaultSize, max int) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultSize
	}
	if max > 0 && p.PageSize > max {
		p.PageSize = max
	}
	return p
}

// RemoteProductStatus is the normalized approval state of a listing
type RemoteProductStatus string

const (
	RemoteProductApproved RemoteProductStatus = "approved"
	RemoteProductPending  RemoteProductStatus = "pending"
	RemoteProductRejected RemoteProductStatus = "rejected"
)

// RemoteProduct is a listing as reported by a marketplace
type RemoteProduct struct {
	RemoteID  string
	SKU       string
	Barcode   string
	Title     string
	Quantity  int64
	SalePrice decimal.Decimal
	Currency  string
	Status    RemoteProductStatus
	Active    bool
}

// ProductPage is one page of FetchProducts
type ProductPage struct {
	Items      []RemoteProduct
	Page       int
	TotalPages int
}

// HasMore returns true if another page follows
func (p *ProductPage) HasMore() bool {
	return p.Page < p.TotalPages
}

// ProductListing is the marketplace-neutral product document pushed by SaveProduct
type ProductListing struct {
	LocalID     string
	RemoteID    string
	SKU         string
	Barcode     string
	Title       string
	Description string
	Brand       string
	CategoryID  string
	Quantity    int64
	ListPrice   decimal.Decimal
	SalePrice   decimal.Decimal
	Currency    string
	Attributes  map[string]string
	Images      []string
}

// StockUpdate is one line of a batch stock call. Ref correlates the outcome.
type StockUpdate struct {
	Ref      string
	RemoteID string
	Quantity int64
}

// PriceUpdate is one line of a batch price call
type PriceUpdate struct {
	Ref       string
	RemoteID  string
	ListPrice decimal.Decimal
	SalePrice decimal.Decimal
	Currency  string
}

// ItemOutcome is the per-line result of a batch call. Err nil means accepted.
type ItemOutcome struct {
	Ref      string
	RemoteID string
	Err      error
}

// BatchResult carries per-item outcomes of a batch call
type BatchResult struct {
	// BatchID is the marketplace tracking id, when one is returned
	BatchID  string
	Outcomes []ItemOutcome
}

// OutcomeFor returns the outcome of ref
func (r *BatchResult) OutcomeFor(ref string) (ItemOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Ref == ref {
			return o, true
		}
	}
	return ItemOutcome{}, false
}

// AllAccepted builds a result where every ref succeeded
func AllAccepted(batchID string, refs []string, remoteIDs []string) *BatchResult {
	res := &BatchResult{BatchID: batchID, Outcomes: make([]ItemOutcome, len(refs))}
	for i, ref := range refs {
		res.Outcomes[i] = ItemOutcome{Ref: ref}
		if i < len(remoteIDs) {
			res.Outcomes[i].RemoteID = remoteIDs[i]
		}
	}
	return res
}

// OrderQuery selects remote orders updated since Since, optionally in one status
type OrderQuery struct {
	Since  time.Time
	Status string
}

// RemoteOrderLine is one order line
type RemoteOrderLine struct {
	RemoteProductID string
	SKU             string
	Barcode         string
	Quantity        int64
	UnitPrice       decimal.Decimal
}

// RemoteOrder is an order as reported by a marketplace
type RemoteOrder struct {
	RemoteID      string
	OrderNumber   string
	Status        string
	PaymentStatus string
	TotalAmount   decimal.Decimal
	Currency      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []RemoteOrderLine
	Raw           json.RawMessage
}

// OrderStatusUpdate pushes a status already translated to the marketplace vocabulary
type OrderStatusUpdate struct {
	RemoteOrderID  string
	Status         string
	TrackingNumber string
	Carrier        string
}

// RemoteCategory is a node of the marketplace category tree
type RemoteCategory struct {
	RemoteID string
	ParentID string
	Name     string
	Leaf     bool
}

// NotificationKind is the normalized kind of a webhook notification
type NotificationKind string

const (
	NotificationOrderCreated       NotificationKind = "order_created"
	NotificationOrderStatusChanged NotificationKind = "order_status_changed"
	NotificationOrderCancelled     NotificationKind = "order_cancelled"
	NotificationProductApproved    NotificationKind = "product_approved"
	NotificationProductRejected    NotificationKind = "product_rejected"
	NotificationStockChanged       NotificationKind = "stock_changed"
	NotificationPriceChanged       NotificationKind = "price_changed"
)

// EntityType returns the entity type import items of this kind carry
func (k NotificationKind) EntityType() EntityType {
	switch k {
	case NotificationProductApproved, NotificationProductRejected:
		return EntityProduct
	case NotificationStockChanged:
		return EntityStock
	case NotificationPriceChanged:
		return EntityPrice
	default:
		return EntityOrder
	}
}

// Notification is a webhook event normalized by an adapter
type Notification struct {
	EventID        string           `validate:"required,max=128"`
	Kind           NotificationKind `validate:"required,oneof=order_created order_status_changed order_cancelled product_approved product_rejected stock_changed price_changed"`
	RemoteEntityID string           `validate:"required,max=128"`
	Reason         string           `validate:"max=1024"`
	Quantity       *int64           `validate:"omitempty,min=0"`
	Price          *decimal.Decimal
	OccurredAt     time.Time
}

// MarketplaceClient is the uniform capability set every marketplace adapter provides.
// All methods return the typed errors of this package.
type MarketplaceClient interface {
	Code() MarketplaceCode
	// BatchSize is the maximum number of lines per UpdateStock/UpdatePrice call
	BatchSize() int

	FetchProducts(ctx context.Context, page Pagination) (*ProductPage, error)
	UpdateStock(ctx context.Context, updates []StockUpdate) (*BatchResult, error)
	UpdatePrice(ctx context.Context, updates []PriceUpdate) (*BatchResult, error)
	FetchOrders(ctx context.Context, q OrderQuery) ([]RemoteOrder, error)
	UpdateOrderStatus(ctx context.Context, update OrderStatusUpdate) error
	FetchCategories(ctx context.Context) ([]RemoteCategory, error)

	// SaveProduct creates (empty RemoteID) or updates a listing and returns its remote id
	SaveProduct(ctx context.Context, listing ProductListing) (string, error)
	// DeactivateProduct takes a listing off sale
	DeactivateProduct(ctx context.Context, remoteID string) error
	FetchOrder(ctx context.Context, remoteID string) (*RemoteOrder, error)
}

// WebhookParser turns a raw webhook body into notifications
type WebhookParser interface {
	ParseWebhook(body []byte) ([]Notification, error)
}

// ClientResolver returns the client of a marketplace.
// Returns ErrClientNotRegistered for unknown or disabled marketplaces.
type ClientResolver interface {
	ClientFor(ctx context.Context, marketplaceID int64) (MarketplaceClient, error)
}
