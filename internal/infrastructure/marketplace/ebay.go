package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/shopspring/decimal"
)

const (
	ebayBatchSize      = 25
	ebayItemPageSize   = 100
	ebayMaxPageSize    = 200
	ebayOrderPageLimit = 200
	ebayOrderLookback  = 30 * 24 * time.Hour
)

// eBay order statuses the seller can set
const (
	EbayStatusFulfilled = "FULFILLED"
)

// EbayClient implements MarketplaceClient over the eBay Sell APIs. Inventory
// items are addressed by SKU; prices live on the offer of a SKU.
type EbayClient struct {
	config *EbayConfig
	t      *httpTransport
	tokens *tokenSource
}

// NewEbayClient creates a new eBay client. With a refresh token the user
// token grant is used, otherwise an application token.
func NewEbayClient(config *EbayConfig, opts Options) (*EbayClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &EbayClient{config: config, t: newTransport(marketsync.MarketplaceEbay, opts)}
	c.tokens = newTokenSource(func(ctx context.Context) (*tokenResponse, error) {
		form := url.Values{"scope": {config.Scope}}
		if config.RefreshToken != "" {
			form.Set("grant_type", "refresh_token")
			form.Set("refresh_token", config.RefreshToken)
		} else {
			form.Set("grant_type", "client_credentials")
		}
		return exchangeToken(ctx, c.t, strings.TrimRight(config.BaseURL, "/")+EbayTokenPath, form, config.ClientID, config.ClientSecret)
	})
	c.t.authorize = bearerAuthorizer(c.tokens, "Authorization", "Bearer")
	c.t.onAuthFailure = c.tokens.Invalidate
	c.t.defaultHdr.Set("X-EBAY-C-MARKETPLACE-ID", config.MarketplaceID)
	c.t.defaultHdr.Set("Content-Language", ebayContentLanguage(config.MarketplaceID))
	return c, nil
}

func ebayContentLanguage(marketplaceID string) string {
	switch marketplaceID {
	case "EBAY_US":
		return "en-US"
	case "EBAY_GB":
		return "en-GB"
	case "EBAY_FR":
		return "fr-FR"
	case "EBAY_IT":
		return "it-IT"
	case "EBAY_ES":
		return "es-ES"
	default:
		return "de-DE"
	}
}

func (c *EbayClient) Code() marketsync.MarketplaceCode { return marketsync.MarketplaceEbay }

func (c *EbayClient) BatchSize() int { return ebayBatchSize }

func (c *EbayClient) inventoryURL(segments ...string) string {
	return joinURL(c.config.BaseURL, append([]string{"sell", "inventory", "v1"}, segments...)...)
}

func (c *EbayClient) fulfillmentURL(segments ...string) string {
	return joinURL(c.config.BaseURL, append([]string{"sell", "fulfillment", "v1"}, segments...)...)
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// FetchProducts reads one page of inventory items
func (c *EbayClient) FetchProducts(ctx context.Context, page marketsync.Pagination) (*marketsync.ProductPage, error) {
	page = page.Normalize(ebayItemPageSize, ebayMaxPageSize)
	var res ebayInventoryPage
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    c.inventoryURL("inventory_item"),
		query: url.Values{
			"limit":  {strconv.Itoa(page.PageSize)},
			"offset": {strconv.Itoa((page.Page - 1) * page.PageSize)},
		},
	}, &res)
	if err != nil {
		return nil, err
	}

	out := &marketsync.ProductPage{Page: page.Page, TotalPages: (res.Total + page.PageSize - 1) / page.PageSize, Items: make([]marketsync.RemoteProduct, 0, len(res.InventoryItems))}
	for _, it := range res.InventoryItems {
		rp := marketsync.RemoteProduct{
			RemoteID: it.SKU,
			SKU:      it.SKU,
			Title:    it.Product.Title,
			Quantity: it.Availability.ShipToLocationAvailability.Quantity,
			Currency: c.config.Currency,
			Status:   marketsync.RemoteProductApproved,
		}
		rp.Active = rp.Quantity > 0
		if len(it.Product.EAN) > 0 {
			rp.Barcode = it.Product.EAN[0]
		}
		out.Items = append(out.Items, rp)
	}
	return out, nil
}

// UpdateStock sets quantities in one bulk call with per-SKU results
func (c *EbayClient) UpdateStock(ctx context.Context, updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	lines := make([]ebayBulkLine, 0, len(updates))
	for _, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		lines = append(lines, ebayBulkLine{SKU: u.RemoteID, ShipToLocationAvailability: &ebayQuantity{Quantity: u.Quantity}})
	}
	if err := c.bulkUpdate(ctx, idx, lines); err != nil {
		return nil, err
	}
	return idx.result(""), nil
}

// UpdatePrice resolves the offer of each SKU and reprices the offers in one
// bulk call. A SKU without an offer fails alone.
func (c *EbayClient) UpdatePrice(ctx context.Context, updates []marketsync.PriceUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	lines := make([]ebayBulkLine, 0, len(updates))
	for _, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		offer, err := c.offerFor(ctx, u.RemoteID)
		if err != nil {
			if marketsync.KindOf(err) != marketsync.ErrorKindValidation {
				return nil, err
			}
			idx.fail(u.Ref, err)
			continue
		}
		if offer == nil {
			idx.fail(u.Ref, lineError(c.Code(), u.Ref, "no offer for sku "+u.RemoteID))
			continue
		}
		lines = append(lines, ebayBulkLine{
			SKU:    u.RemoteID,
			Offers: []ebayOfferPrice{{OfferID: offer.OfferID, Price: ebayAmount{Value: u.SalePrice.StringFixed(2), Currency: firstNonEmpty(u.Currency, c.config.Currency)}}},
		})
	}
	if len(lines) > 0 {
		if err := c.bulkUpdate(ctx, idx, lines); err != nil {
			return nil, err
		}
	}
	return idx.result(""), nil
}

func (c *EbayClient) bulkUpdate(ctx context.Context, idx *outcomeIndex, lines []ebayBulkLine) error {
	r, err := jsonRequest(http.MethodPost, c.inventoryURL("bulk_update_price_quantity"), ebayBulkRequest{Requests: lines})
	if err != nil {
		return &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
	}
	var res ebayBulkResponse
	if err := c.t.doJSON(ctx, r, &res); err != nil {
		return err
	}
	for _, line := range res.Responses {
		if line.StatusCode >= 200 && line.StatusCode < 300 && len(line.Errors) == 0 {
			continue
		}
		msgs := make([]string, 0, len(line.Errors))
		for _, e := range line.Errors {
			msgs = append(msgs, firstNonEmpty(e.LongMessage, e.Message))
		}
		idx.failRemote(line.SKU, lineError(c.Code(), line.SKU, msgs...))
	}
	return nil
}

// offerFor returns the offer of sku on the configured marketplace, nil when none exists
func (c *EbayClient) offerFor(ctx context.Context, sku string) (*ebayOffer, error) {
	var res ebayOfferPage
	err := c.t.doJSON(ctx, &request{
		method:    http.MethodGet,
		url:       c.inventoryURL("offer"),
		query:     url.Values{"sku": {sku}, "marketplace_id": {c.config.MarketplaceID}},
		missingOK: true,
	}, &res)
	if errors.Is(err, errRemoteMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range res.Offers {
		if res.Offers[i].MarketplaceID == c.config.MarketplaceID || res.Offers[i].MarketplaceID == "" {
			return &res.Offers[i], nil
		}
	}
	return nil, nil
}

// SaveProduct puts the inventory item, then creates and publishes its offer
// or updates the existing one
func (c *EbayClient) SaveProduct(ctx context.Context, listing marketsync.ProductListing) (string, error) {
	sku := firstNonEmpty(listing.RemoteID, listing.SKU)
	if sku == "" {
		return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: "listing has no sku", Fields: []marketsync.FieldError{{Field: "sku", Message: "required"}}}
	}

	item := ebayInventoryItem{
		Condition: "NEW",
		Product: ebayProduct{
			Title:       listing.Title,
			Description: listing.Description,
			Brand:       listing.Brand,
			ImageURLs:   listing.Images,
		},
		Availability: ebayAvailability{ShipToLocationAvailability: ebayQuantity{Quantity: listing.Quantity}},
	}
	if listing.Barcode != "" {
		item.Product.EAN = []string{listing.Barcode}
	}
	if len(listing.Attributes) > 0 {
		item.Product.Aspects = make(map[string][]string, len(listing.Attributes))
		names := make([]string, 0, len(listing.Attributes))
		for k := range listing.Attributes {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			item.Product.Aspects[k] = []string{listing.Attributes[k]}
		}
	}
	r, err := jsonRequest(http.MethodPut, c.inventoryURL("inventory_item", sku), item)
	if err != nil {
		return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
	}
	if _, err := c.t.do(ctx, r); err != nil {
		return "", err
	}

	offer := ebayOffer{
		SKU:                sku,
		MarketplaceID:      c.config.MarketplaceID,
		Format:             "FIXED_PRICE",
		AvailableQuantity:  listing.Quantity,
		CategoryID:         listing.CategoryID,
		ListingDescription: listing.Description,
		PricingSummary:     ebayPricingSummary{Price: ebayAmount{Value: listing.SalePrice.StringFixed(2), Currency: firstNonEmpty(listing.Currency, c.config.Currency)}},
	}
	existing, err := c.offerFor(ctx, sku)
	if err != nil {
		return "", err
	}
	if existing != nil {
		r, err := jsonRequest(http.MethodPut, c.inventoryURL("offer", existing.OfferID), offer)
		if err != nil {
			return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
		}
		if _, err := c.t.do(ctx, r); err != nil {
			return "", err
		}
		return sku, nil
	}

	r, err = jsonRequest(http.MethodPost, c.inventoryURL("offer"), offer)
	if err != nil {
		return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
	}
	var created ebayOfferCreated
	if err := c.t.doJSON(ctx, r, &created); err != nil {
		return "", err
	}
	if _, err := c.t.do(ctx, &request{method: http.MethodPost, url: c.inventoryURL("offer", created.OfferID, "publish")}); err != nil {
		return "", err
	}
	return sku, nil
}

// DeactivateProduct deletes the inventory item, which ends its listings
func (c *EbayClient) DeactivateProduct(ctx context.Context, remoteID string) error {
	_, err := c.t.do(ctx, &request{method: http.MethodDelete, url: c.inventoryURL("inventory_item", remoteID)})
	return err
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages through orders modified since q.Since (the last 30 days
// when unset). The fulfillment API filters by fulfillment status only.
func (c *EbayClient) FetchOrders(ctx context.Context, q marketsync.OrderQuery) ([]marketsync.RemoteOrder, error) {
	since := q.Since
	if since.IsZero() {
		since = time.Now().Add(-ebayOrderLookback)
	}
	filter := fmt.Sprintf("lastmodifieddate:[%s..]", since.UTC().Format("2006-01-02T15:04:05.000Z"))
	if q.Status != "" {
		filter += fmt.Sprintf(",orderfulfillmentstatus:{%s}", q.Status)
	}

	var orders []marketsync.RemoteOrder
	for offset := 0; ; offset += ebayOrderPageLimit {
		var page ebayOrderPage
		err := c.t.doJSON(ctx, &request{
			method: http.MethodGet,
			url:    c.fulfillmentURL("order"),
			query: url.Values{
				"filter": {filter},
				"limit":  {strconv.Itoa(ebayOrderPageLimit)},
				"offset": {strconv.Itoa(offset)},
			},
		}, &page)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Orders {
			o, err := c.toRemoteOrder(raw)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *o)
		}
		if page.Next == "" || len(page.Orders) == 0 {
			break
		}
	}
	return orders, nil
}

// FetchOrder reads one order
func (c *EbayClient) FetchOrder(ctx context.Context, remoteID string) (*marketsync.RemoteOrder, error) {
	raw, err := c.t.do(ctx, &request{method: http.MethodGet, url: c.fulfillmentURL("order", remoteID)})
	if err != nil {
		return nil, err
	}
	return c.toRemoteOrder(raw)
}

func (c *EbayClient) order(ctx context.Context, remoteID string) (*ebayOrder, error) {
	var o ebayOrder
	if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: c.fulfillmentURL("order", remoteID)}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *EbayClient) toRemoteOrder(raw json.RawMessage) (*marketsync.RemoteOrder, error) {
	var o ebayOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, c.t.invalidResponse(err)
	}
	total, _ := decimal.NewFromString(o.PricingSummary.Total.Value)
	order := &marketsync.RemoteOrder{
		RemoteID:      o.OrderID,
		OrderNumber:   o.OrderID,
		Status:        o.OrderFulfillmentStatus,
		PaymentStatus: o.OrderPaymentStatus,
		TotalAmount:   total,
		Currency:      o.PricingSummary.Total.Currency,
		CreatedAt:     o.CreationDate,
		UpdatedAt:     o.LastModifiedDate,
		Raw:           raw,
	}
	for _, li := range o.LineItems {
		line := marketsync.RemoteOrderLine{RemoteProductID: li.LegacyItemID, SKU: li.SKU, Quantity: li.Quantity}
		if cost, err := decimal.NewFromString(li.LineItemCost.Value); err == nil && li.Quantity > 0 {
			line.UnitPrice = cost.Div(decimal.NewFromInt(li.Quantity))
		}
		order.Lines = append(order.Lines, line)
	}
	return order, nil
}

// UpdateOrderStatus records a shipping fulfillment for every line item. Other
// statuses follow from buyer and eBay actions.
func (c *EbayClient) UpdateOrderStatus(ctx context.Context, update marketsync.OrderStatusUpdate) error {
	if !strings.EqualFold(update.Status, EbayStatusFulfilled) {
		return &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     fmt.Sprintf("status %q cannot be set by the seller", update.Status),
			Fields:      []marketsync.FieldError{{Field: "status", Message: update.Status}},
		}
	}
	o, err := c.order(ctx, update.RemoteOrderID)
	if err != nil {
		return err
	}
	body := ebayShippingFulfillment{
		ShippedDate:         time.Now().UTC(),
		ShippingCarrierCode: update.Carrier,
		TrackingNumber:      update.TrackingNumber,
	}
	for _, li := range o.LineItems {
		body.LineItems = append(body.LineItems, ebayFulfilledLine{LineItemID: li.LineItemID, Quantity: li.Quantity})
	}
	r, err := jsonRequest(http.MethodPost, c.fulfillmentURL("order", update.RemoteOrderID, "shipping_fulfillment"), body)
	if err != nil {
		return &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
	}
	_, err = c.t.do(ctx, r)
	return err
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// FetchCategories flattens the default category tree of the marketplace
func (c *EbayClient) FetchCategories(ctx context.Context) ([]marketsync.RemoteCategory, error) {
	var id struct {
		CategoryTreeID string `json:"categoryTreeId"`
	}
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    joinURL(c.config.BaseURL, "commerce", "taxonomy", "v1", "get_default_category_tree_id"),
		query:  url.Values{"marketplace_id": {c.config.MarketplaceID}},
	}, &id)
	if err != nil {
		return nil, err
	}
	var tree ebayCategoryTree
	if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: joinURL(c.config.BaseURL, "commerce", "taxonomy", "v1", "category_tree", id.CategoryTreeID)}, &tree); err != nil {
		return nil, err
	}

	var out []marketsync.RemoteCategory
	var walk func(nodes []ebayCategoryNode, parent string)
	walk = func(nodes []ebayCategoryNode, parent string) {
		for _, n := range nodes {
			out = append(out, marketsync.RemoteCategory{
				RemoteID: n.Category.CategoryID,
				ParentID: parent,
				Name:     n.Category.CategoryName,
				Leaf:     n.LeafCategoryTreeNode || len(n.ChildCategoryTreeNodes) == 0,
			})
			walk(n.ChildCategoryTreeNodes, n.Category.CategoryID)
		}
	}
	// the root node is a synthetic "Root" entry
	walk(tree.RootCategoryNode.ChildCategoryTreeNodes, "")
	return out, nil
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// EbayWebhookParser reads order and listing platform notifications
type EbayWebhookParser struct{}

// ParseWebhook implements WebhookParser
func (EbayWebhookParser) ParseWebhook(body []byte) ([]marketsync.Notification, error) {
	var n ebayNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, webhookDecodeError(marketsync.MarketplaceEbay, err)
	}
	data := n.Notification.Data
	note := marketsync.Notification{
		EventID:        n.Notification.NotificationID,
		RemoteEntityID: data.OrderID,
		Reason:         data.Reason,
		OccurredAt:     n.Notification.EventDate,
	}
	switch strings.ToUpper(n.Metadata.Topic) {
	case "ITEM_SOLD", "ORDER_CREATED":
		note.Kind = marketsync.NotificationOrderCreated
	case "ORDER_CANCELLED", "BUYER_CANCEL_REQUESTED":
		note.Kind = marketsync.NotificationOrderCancelled
	case "ORDER_STATUS_CHANGED", "FULFILLMENT_STATUS_CHANGED":
		note.Kind = marketsync.NotificationOrderStatusChanged
	case "LISTING_APPROVED":
		note.Kind = marketsync.NotificationProductApproved
		note.RemoteEntityID = data.SKU
	case "LISTING_REJECTED", "LISTING_ENDED":
		note.Kind = marketsync.NotificationProductRejected
		note.RemoteEntityID = data.SKU
	default:
		return nil, &marketsync.ValidationError{Marketplace: marketsync.MarketplaceEbay, Message: "unsupported notification topic " + n.Metadata.Topic}
	}
	return []marketsync.Notification{note}, nil
}

var (
	_ marketsync.MarketplaceClient = (*EbayClient)(nil)
	_ marketsync.WebhookParser     = EbayWebhookParser{}
)
