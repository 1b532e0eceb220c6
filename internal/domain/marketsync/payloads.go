package marketsync

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductPayload is the snapshot of a product queue item
type ProductPayload struct {
	SKU         string            `json:"sku"`
	Barcode     string            `json:"barcode"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	CategoryID  string            `json:"category_id,omitempty"`
	Quantity    int64             `json:"quantity"`
	ListPrice   decimal.Decimal   `json:"list_price"`
	SalePrice   decimal.Decimal   `json:"sale_price"`
	Currency    string            `json:"currency,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Images      []string          `json:"images,omitempty"`
}

// StockPayload is the snapshot of a stock queue item
type StockPayload struct {
	SKU      string `json:"sku,omitempty"`
	Barcode  string `json:"barcode,omitempty"`
	Quantity int64  `json:"quantity"`
}

// PricePayload is the snapshot of a price queue item
type PricePayload struct {
	SKU       string          `json:"sku,omitempty"`
	Barcode   string          `json:"barcode,omitempty"`
	ListPrice decimal.Decimal `json:"list_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Currency  string          `json:"currency,omitempty"`
}

// OrderStatusPayload carries a local order status to push
type OrderStatusPayload struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

// ImportPayload is the snapshot of an inbound webhook notification
type ImportPayload struct {
	EventID  string           `json:"event_id"`
	Kind     NotificationKind `json:"kind"`
	Reason   string           `json:"reason,omitempty"`
	Quantity *int64           `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// DecodePayload unmarshals a queue snapshot. Malformed snapshots are validation errors.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &ValidationError{Message: fmt.Sprintf("decode payload: %v", err)}
	}
	return v, nil
}

// EncodePayload marshals a snapshot for enqueueing
func EncodePayload(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marketsync: encode payload: %w", err)
	}
	return raw, nil
}

// StockQuantityOf extracts the quantity of a stock snapshot, or nil if absent/malformed
func StockQuantityOf(raw json.RawMessage) *int64 {
	var probe struct {
		Quantity *int64 `json:"quantity"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &probe) != nil {
		return nil
	}
	return probe.Quantity
}
