package marketplace

import (
	"encoding/json"
	"time"
)

type ebayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ebayInventoryPage struct {
	Total          int                 `json:"total"`
	Size           int                 `json:"size"`
	Limit          int                 `json:"limit"`
	InventoryItems []ebayInventoryItem `json:"inventoryItems"`
}

type ebayInventoryItem struct {
	SKU          string           `json:"sku,omitempty"`
	Condition    string           `json:"condition,omitempty"`
	Product      ebayProduct      `json:"product"`
	Availability ebayAvailability `json:"availability"`
}

type ebayProduct struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Brand       string              `json:"brand,omitempty"`
	EAN         []string            `json:"ean,omitempty"`
	ImageURLs   []string            `json:"imageUrls,omitempty"`
	Aspects     map[string][]string `json:"aspects,omitempty"`
}

type ebayAvailability struct {
	ShipToLocationAvailability ebayQuantity `json:"shipToLocationAvailability"`
}

type ebayQuantity struct {
	Quantity int64 `json:"quantity"`
}

// ebayBulkRequest is a bulk_update_price_quantity document
type ebayBulkRequest struct {
	Requests []ebayBulkLine `json:"requests"`
}

type ebayBulkLine struct {
	SKU                        string           `json:"sku,omitempty"`
	ShipToLocationAvailability *ebayQuantity    `json:"shipToLocationAvailability,omitempty"`
	Offers                     []ebayOfferPrice `json:"offers,omitempty"`
}

type ebayOfferPrice struct {
	OfferID string     `json:"offerId"`
	Price   ebayAmount `json:"price"`
}

type ebayBulkResponse struct {
	Responses []ebayBulkLineResult `json:"responses"`
}

type ebayBulkLineResult struct {
	SKU        string      `json:"sku"`
	OfferID    string      `json:"offerId"`
	StatusCode int         `json:"statusCode"`
	Errors     []ebayError `json:"errors"`
}

type ebayError struct {
	ErrorID     int    `json:"errorId"`
	Message     string `json:"message"`
	LongMessage string `json:"longMessage"`
}

type ebayOfferPage struct {
	Total  int         `json:"total"`
	Offers []ebayOffer `json:"offers"`
}

type ebayOffer struct {
	OfferID             string             `json:"offerId,omitempty"`
	SKU                 string             `json:"sku"`
	MarketplaceID       string             `json:"marketplaceId"`
	Format              string             `json:"format"`
	AvailableQuantity   int64              `json:"availableQuantity"`
	CategoryID          string             `json:"categoryId,omitempty"`
	ListingDescription  string             `json:"listingDescription,omitempty"`
	PricingSummary      ebayPricingSummary `json:"pricingSummary"`
	Status              string             `json:"status,omitempty"`
	MerchantLocationKey string             `json:"merchantLocationKey,omitempty"`
}

type ebayPricingSummary struct {
	Price ebayAmount `json:"price"`
}

type ebayOfferCreated struct {
	OfferID string `json:"offerId"`
}

type ebayOrderPage struct {
	Total  int               `json:"total"`
	Next   string            `json:"next"`
	Orders []json.RawMessage `json:"orders"`
}

type ebayOrder struct {
	OrderID                string    `json:"orderId"`
	OrderFulfillmentStatus string    `json:"orderFulfillmentStatus"`
	OrderPaymentStatus     string    `json:"orderPaymentStatus"`
	CreationDate           time.Time `json:"creationDate"`
	LastModifiedDate       time.Time `json:"lastModifiedDate"`
	PricingSummary         struct {
		Total ebayAmount `json:"total"`
	} `json:"pricingSummary"`
	LineItems []ebayLineItem `json:"lineItems"`
}

type ebayLineItem struct {
	LineItemID   string     `json:"lineItemId"`
	LegacyItemID string     `json:"legacyItemId"`
	SKU          string     `json:"sku"`
	Quantity     int64      `json:"quantity"`
	LineItemCost ebayAmount `json:"lineItemCost"`
}

type ebayShippingFulfillment struct {
	LineItems           []ebayFulfilledLine `json:"lineItems"`
	ShippedDate         time.Time           `json:"shippedDate"`
	ShippingCarrierCode string              `json:"shippingCarrierCode,omitempty"`
	TrackingNumber      string              `json:"trackingNumber,omitempty"`
}

type ebayFulfilledLine struct {
	LineItemID string `json:"lineItemId"`
	Quantity   int64  `json:"quantity"`
}

type ebayCategoryTree struct {
	CategoryTreeID   string           `json:"categoryTreeId"`
	RootCategoryNode ebayCategoryNode `json:"rootCategoryNode"`
}

type ebayCategoryNode struct {
	Category struct {
		CategoryID   string `json:"categoryId"`
		CategoryName string `json:"categoryName"`
	} `json:"category"`
	LeafCategoryTreeNode   bool               `json:"leafCategoryTreeNode"`
	ChildCategoryTreeNodes []ebayCategoryNode `json:"childCategoryTreeNodes"`
}

// ebayNotification is a platform notification as delivered to the webhook
type ebayNotification struct {
	Metadata struct {
		Topic string `json:"topic"`
	} `json:"metadata"`
	Notification struct {
		NotificationID string    `json:"notificationId"`
		EventDate      time.Time `json:"eventDate"`
		Data           struct {
			OrderID string `json:"orderId"`
			SKU     string `json:"sku"`
			Status  string `json:"status"`
			Reason  string `json:"reason"`
		} `json:"data"`
	} `json:"notification"`
}
