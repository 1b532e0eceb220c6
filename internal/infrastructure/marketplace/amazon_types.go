package marketplace

import (
	"encoding/json"
	"time"
)

type amazonListingsSearch struct {
	NumberOfResults int                  `json:"numberOfResults"`
	Pagination      *amazonPagination    `json:"pagination,omitempty"`
	Items           []amazonListingsItem `json:"items"`
}

type amazonPagination struct {
	NextToken     string `json:"nextToken"`
	PreviousToken string `json:"previousToken"`
}

type amazonListingsItem struct {
	SKU       string                `json:"sku"`
	Summaries []amazonItemSummary   `json:"summaries"`
	Offers    []amazonItemOffer     `json:"offers"`
	Fulfill   []amazonFulfillAvail  `json:"fulfillmentAvailability"`
	Issues    []amazonListingsIssue `json:"issues"`
}

type amazonItemSummary struct {
	MarketplaceID string   `json:"marketplaceId"`
	ASIN          string   `json:"asin"`
	ProductType   string   `json:"productType"`
	ItemName      string   `json:"itemName"`
	Status        []string `json:"status"`
}

type amazonItemOffer struct {
	MarketplaceID string      `json:"marketplaceId"`
	OfferType     string      `json:"offerType"`
	Price         amazonMoney `json:"price"`
}

type amazonMoney struct {
	CurrencyCode string `json:"currencyCode"`
	Amount       string `json:"amount"`
}

type amazonFulfillAvail struct {
	FulfillmentChannelCode string `json:"fulfillmentChannelCode"`
	Quantity               int64  `json:"quantity"`
}

type amazonListingsIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// amazonPatchBody is a listings PATCH document
type amazonPatchBody struct {
	ProductType string             `json:"productType"`
	Patches     []amazonPatchEntry `json:"patches"`
}

type amazonPatchEntry struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// amazonPutBody is a full listings PUT document
type amazonPutBody struct {
	ProductType  string         `json:"productType"`
	Requirements string         `json:"requirements,omitempty"`
	Attributes   map[string]any `json:"attributes"`
}

// amazonSubmission is the answer of listings PUT/PATCH/DELETE
type amazonSubmission struct {
	SKU          string                `json:"sku"`
	Status       string                `json:"status"`
	SubmissionID string                `json:"submissionId"`
	Issues       []amazonListingsIssue `json:"issues"`
}

type amazonOrdersEnvelope struct {
	Payload struct {
		Orders    []json.RawMessage `json:"Orders"`
		NextToken string            `json:"NextToken"`
	} `json:"payload"`
}

type amazonOrderEnvelope struct {
	Payload json.RawMessage `json:"payload"`
}

type amazonOrder struct {
	AmazonOrderID string      `json:"AmazonOrderId"`
	OrderStatus   string      `json:"OrderStatus"`
	PurchaseDate  time.Time   `json:"PurchaseDate"`
	LastUpdate    time.Time   `json:"LastUpdateDate"`
	OrderTotal    amazonTotal `json:"OrderTotal"`
	PaymentMethod string      `json:"PaymentMethod"`
}

type amazonTotal struct {
	CurrencyCode string `json:"CurrencyCode"`
	Amount       string `json:"Amount"`
}

type amazonOrderItemsEnvelope struct {
	Payload struct {
		OrderItems []amazonOrderItem `json:"OrderItems"`
		NextToken  string            `json:"NextToken"`
	} `json:"payload"`
}

type amazonOrderItem struct {
	ASIN            string      `json:"ASIN"`
	SellerSKU       string      `json:"SellerSKU"`
	OrderItemID     string      `json:"OrderItemId"`
	QuantityOrdered int64       `json:"QuantityOrdered"`
	ItemPrice       amazonTotal `json:"ItemPrice"`
}

type amazonShipmentConfirmation struct {
	MarketplaceID string              `json:"marketplaceId"`
	PackageDetail amazonPackageDetail `json:"packageDetail"`
}

type amazonPackageDetail struct {
	PackageReferenceID string                `json:"packageReferenceId"`
	CarrierCode        string                `json:"carrierCode"`
	TrackingNumber     string                `json:"trackingNumber"`
	ShipDate           time.Time             `json:"shipDate"`
	OrderItems         []amazonConfirmedItem `json:"orderItems"`
}

type amazonConfirmedItem struct {
	OrderItemID string `json:"orderItemId"`
	Quantity    int64  `json:"quantity"`
}

type amazonProductTypes struct {
	ProductTypes []struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"productTypes"`
}

// amazonNotification is an SP-API notification as delivered to the webhook
type amazonNotification struct {
	NotificationType string    `json:"NotificationType"`
	EventTime        time.Time `json:"EventTime"`
	Metadata         struct {
		NotificationID string `json:"NotificationId"`
	} `json:"NotificationMetadata"`
	Payload struct {
		OrderChange *struct {
			AmazonOrderID string `json:"AmazonOrderId"`
			OrderStatus   string `json:"OrderStatus"`
		} `json:"OrderChangeNotification"`
		SellerID string   `json:"SellerId"`
		SKU      string   `json:"Sku"`
		Status   []string `json:"Status"`
	} `json:"Payload"`
}
