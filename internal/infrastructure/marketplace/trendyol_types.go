package marketplace

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// trendyolProductPage is the answer of the product filter endpoint
type trendyolProductPage struct {
	TotalElements int               `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Page          int               `json:"page"`
	Size          int               `json:"size"`
	Content       []trendyolProduct `json:"content"`
}

type trendyolProduct struct {
	ID            string          `json:"id"`
	Barcode       string          `json:"barcode"`
	StockCode     string          `json:"stockCode"`
	ProductMainID string          `json:"productMainId"`
	Title         string          `json:"title"`
	Quantity      int64           `json:"quantity"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	ListPrice     decimal.Decimal `json:"listPrice"`
	Approved      bool            `json:"approved"`
	Rejected      bool            `json:"rejected"`
	Archived      bool            `json:"archived"`
	OnSale        bool            `json:"onSale"`
}

type trendyolProductItem struct {
	Barcode       string                  `json:"barcode"`
	Title         string                  `json:"title"`
	ProductMainID string                  `json:"productMainId"`
	BrandID       int64                   `json:"brandId,omitempty"`
	Brand         string                  `json:"brand,omitempty"`
	CategoryID    int64                   `json:"categoryId,omitempty"`
	Quantity      int64                   `json:"quantity"`
	StockCode     string                  `json:"stockCode"`
	Description   string                  `json:"description"`
	CurrencyType  string                  `json:"currencyType"`
	ListPrice     decimal.Decimal         `json:"listPrice"`
	SalePrice     decimal.Decimal         `json:"salePrice"`
	VatRate       int                     `json:"vatRate"`
	Images        []trendyolImage         `json:"images,omitempty"`
	Attributes    []trendyolAttributeItem `json:"attributes,omitempty"`
}

type trendyolImage struct {
	URL string `json:"url"`
}

type trendyolAttributeItem struct {
	AttributeID          string `json:"attributeId"`
	CustomAttributeValue string `json:"customAttributeValue"`
}

type trendyolItems[T any] struct {
	Items []T `json:"items"`
}

type trendyolArchiveItem struct {
	Barcode  string `json:"barcode"`
	Archived bool   `json:"archived"`
}

// ---------------------------------------------------------------------------
// Inventory batches
// ---------------------------------------------------------------------------

type trendyolInventoryItem struct {
	Barcode   string           `json:"barcode"`
	Quantity  *int64           `json:"quantity,omitempty"`
	SalePrice *decimal.Decimal `json:"salePrice,omitempty"`
	ListPrice *decimal.Decimal `json:"listPrice,omitempty"`
}

type trendyolBatchAccepted struct {
	BatchRequestID string `json:"batchRequestId"`
}

// trendyolBatchStatus is the answer of the batch request result endpoint
type trendyolBatchStatus struct {
	BatchRequestID string                    `json:"batchRequestId"`
	Status         string                    `json:"status"`
	Items          []trendyolBatchItemResult `json:"items"`
}

type trendyolBatchItemResult struct {
	RequestItem    trendyolRequestItem `json:"requestItem"`
	Status         string              `json:"status"`
	FailureReasons []string            `json:"failureReasons"`
}

type trendyolRequestItem struct {
	Barcode string `json:"barcode"`
	Product *struct {
		Barcode string `json:"barcode"`
	} `json:"product,omitempty"`
}

func (r trendyolRequestItem) barcode() string {
	if r.Barcode == "" && r.Product != nil {
		return r.Product.Barcode
	}
	return r.Barcode
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

type trendyolOrderPage struct {
	TotalElements int               `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Page          int               `json:"page"`
	Content       []json.RawMessage `json:"content"`
}

// trendyolPackage is a shipment package, Trendyol's unit of order handling
type trendyolPackage struct {
	ID               int64                 `json:"id"`
	OrderNumber      string                `json:"orderNumber"`
	Status           string                `json:"status"`
	TotalPrice       decimal.Decimal       `json:"totalPrice"`
	CurrencyCode     string                `json:"currencyCode"`
	OrderDate        int64                 `json:"orderDate"`
	LastModifiedDate int64                 `json:"lastModifiedDate"`
	Lines            []trendyolPackageLine `json:"lines"`
}

type trendyolPackageLine struct {
	ProductCode int64           `json:"productCode"`
	MerchantSKU string          `json:"merchantSku"`
	Barcode     string          `json:"barcode"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type trendyolStatusUpdate struct {
	Status string            `json:"status"`
	Lines  []any             `json:"lines"`
	Params map[string]string `json:"params"`
}

type trendyolTrackingUpdate struct {
	TrackingNumber string `json:"trackingNumber"`
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

type trendyolCategoryTree struct {
	Categories []trendyolCategory `json:"categories"`
}

type trendyolCategory struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	ParentID      int64              `json:"parentId"`
	SubCategories []trendyolCategory `json:"subCategories"`
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// trendyolWebhookPackage is the package document Trendyol posts on order changes
type trendyolWebhookPackage struct {
	ID                int64  `json:"id"`
	ShipmentPackageID int64  `json:"shipmentPackageId"`
	OrderNumber       string `json:"orderNumber"`
	Status            string `json:"status"`
	LastModifiedDate  int64  `json:"lastModifiedDate"`
}

func (p trendyolWebhookPackage) packageID() string {
	id := p.ShipmentPackageID
	if id == 0 {
		id = p.ID
	}
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
