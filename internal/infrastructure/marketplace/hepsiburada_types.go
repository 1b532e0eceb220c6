package marketplace

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// hepsiburadaTimeLayout is the date format of the order API
const hepsiburadaTimeLayout = "2006-01-02 15:04"

type hepsiburadaListingPage struct {
	TotalCount int                  `json:"totalCount"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
	Listings   []hepsiburadaListing `json:"listings"`
}

type hepsiburadaListing struct {
	HepsiburadaSKU string          `json:"hepsiburadaSku"`
	MerchantSKU    string          `json:"merchantSku"`
	AvailableStock int64           `json:"availableStock"`
	Price          decimal.Decimal `json:"price"`
	IsSalable      bool            `json:"isSalable"`
	IsSuspended    bool            `json:"isSuspended"`
	IsLocked       bool            `json:"isLocked"`
}

type hepsiburadaStockLine struct {
	MerchantSKU    string `json:"merchantSku"`
	AvailableStock int64  `json:"availableStock"`
}

type hepsiburadaPriceLine struct {
	MerchantSKU string          `json:"merchantSku"`
	Price       decimal.Decimal `json:"price"`
}

type hepsiburadaUploadAccepted struct {
	ID string `json:"id"`
}

// hepsiburadaUploadStatus is the answer of an inventory upload status read
type hepsiburadaUploadStatus struct {
	ID     string                   `json:"id"`
	Status string                   `json:"status"`
	Errors []hepsiburadaUploadError `json:"errors"`
}

type hepsiburadaUploadError struct {
	MerchantSKU    string   `json:"merchantSku"`
	HepsiburadaSKU string   `json:"hepsiburadaSku"`
	Message        string   `json:"message"`
	Errors         []string `json:"errors"`
}

type hepsiburadaOrderPage struct {
	TotalCount int               `json:"totalCount"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
	Items      []json.RawMessage `json:"items"`
}

type hepsiburadaMoney struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type hepsiburadaOrder struct {
	ID                   string                 `json:"id"`
	OrderNumber          string                 `json:"orderNumber"`
	Status               string                 `json:"status"`
	PaymentStatus        string                 `json:"paymentStatus"`
	TotalPrice           hepsiburadaMoney       `json:"totalPrice"`
	OrderDate            time.Time              `json:"orderDate"`
	LastStatusUpdateDate time.Time              `json:"lastStatusUpdateDate"`
	Items                []hepsiburadaOrderLine `json:"items"`
}

type hepsiburadaOrderLine struct {
	HepsiburadaSKU string           `json:"hepsiburadaSku"`
	MerchantSKU    string           `json:"merchantSku"`
	Quantity       int64            `json:"quantity"`
	Price          hepsiburadaMoney `json:"price"`
}

type hepsiburadaStatusUpdate struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	CargoCompany   string `json:"cargoCompany,omitempty"`
}

type hepsiburadaCategoryPage struct {
	Success    bool                  `json:"success"`
	TotalPages int                   `json:"totalPages"`
	Number     int                   `json:"number"`
	Data       []hepsiburadaCategory `json:"data"`
}

type hepsiburadaCategory struct {
	CategoryID       int64  `json:"categoryId"`
	Name             string `json:"name"`
	ParentCategoryID int64  `json:"parentCategoryId"`
	Leaf             bool   `json:"leaf"`
}

// hepsiburadaImportItem is one product of a catalog import
type hepsiburadaImportItem struct {
	CategoryID int64             `json:"categoryId"`
	Merchant   string            `json:"merchant"`
	Attributes map[string]string `json:"attributes"`
}

type hepsiburadaImportAccepted struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		TrackingID string `json:"trackingId"`
	} `json:"data"`
}

// hepsiburadaEvent is one webhook event
type hepsiburadaEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OrderNumber string    `json:"orderNumber"`
	MerchantSKU string    `json:"merchantSku"`
	Reason      string    `json:"reason"`
	CreatedDate time.Time `json:"createdDate"`
}
