package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/shopspring/decimal"
)

const (
	amazonBatchSize       = 20
	amazonListingPageSize = 20
	amazonMaxPageSize     = 20
	amazonListingsVersion = "2021-08-01"
	amazonDefaultChannel  = "DEFAULT"
	amazonPatchType       = "PRODUCT"
	amazonOrderLookback   = 30 * 24 * time.Hour
)

// Amazon order statuses the seller can set
const (
	AmazonStatusShipped = "Shipped"
)

// AmazonClient implements MarketplaceClient over the Selling Partner API.
// Listings are addressed by seller SKU.
type AmazonClient struct {
	config *AmazonConfig
	t      *httpTransport
	tokens *tokenSource

	mu         sync.Mutex
	pageTokens map[int]string
}

// NewAmazonClient creates a new Amazon client. Access tokens are exchanged
// from the refresh token on first use and cached until shortly before expiry.
func NewAmazonClient(config *AmazonConfig, opts Options) (*AmazonClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &AmazonClient{
		config:     config,
		t:          newTransport(marketsync.MarketplaceAmazon, opts),
		pageTokens: make(map[int]string),
	}
	c.tokens = newTokenSource(func(ctx context.Context) (*tokenResponse, error) {
		return exchangeToken(ctx, c.t, config.TokenURL, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {config.RefreshToken},
			"client_id":     {config.ClientID},
			"client_secret": {config.ClientSecret},
		}, "", "")
	})
	c.t.authorize = bearerAuthorizer(c.tokens, "x-amz-access-token", "")
	c.t.onAuthFailure = c.tokens.Invalidate
	return c, nil
}

func (c *AmazonClient) Code() marketsync.MarketplaceCode { return marketsync.MarketplaceAmazon }

func (c *AmazonClient) BatchSize() int { return amazonBatchSize }

func (c *AmazonClient) listingURL(sku string) string {
	return joinURL(c.config.BaseURL, "listings", amazonListingsVersion, "items", c.config.SellerID, sku)
}

func (c *AmazonClient) marketplaceQuery() url.Values {
	return url.Values{"marketplaceIds": {c.config.MarketplaceID}}
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// FetchProducts reads one page of listings. The API pages by token, so page
// tokens are remembered and earlier pages are walked when one is missing.
func (c *AmazonClient) FetchProducts(ctx context.Context, page marketsync.Pagination) (*marketsync.ProductPage, error) {
	page = page.Normalize(amazonListingPageSize, amazonMaxPageSize)
	token, err := c.pageToken(ctx, page.Page, page.PageSize)
	if err != nil {
		return nil, err
	}
	res, err := c.searchListings(ctx, token, page.PageSize)
	if err != nil {
		return nil, err
	}

	out := &marketsync.ProductPage{Page: page.Page, TotalPages: page.Page, Items: make([]marketsync.RemoteProduct, 0, len(res.Items))}
	if res.Pagination != nil && res.Pagination.NextToken != "" {
		c.rememberToken(page.Page+1, res.Pagination.NextToken)
		out.TotalPages = page.Page + 1
	}
	for _, it := range res.Items {
		out.Items = append(out.Items, c.toRemoteProduct(it))
	}
	return out, nil
}

func (c *AmazonClient) searchListings(ctx context.Context, token string, size int) (*amazonListingsSearch, error) {
	q := c.marketplaceQuery()
	q.Set("includedData", "summaries,offers,fulfillmentAvailability,issues")
	q.Set("pageSize", strconv.Itoa(size))
	if token != "" {
		q.Set("pageToken", token)
	}
	var res amazonListingsSearch
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    joinURL(c.config.BaseURL, "listings", amazonListingsVersion, "items", c.config.SellerID),
		query:  q,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// pageToken returns the token of page, walking forward from the last known page
func (c *AmazonClient) pageToken(ctx context.Context, page, size int) (string, error) {
	if page <= 1 {
		return "", nil
	}
	c.mu.Lock()
	token, ok := c.pageTokens[page]
	known := 1
	for p := range c.pageTokens {
		if p < page && p > known {
			known = p
		}
	}
	from := c.pageTokens[known]
	c.mu.Unlock()
	if ok {
		return token, nil
	}

	for p := known; p < page; p++ {
		res, err := c.searchListings(ctx, from, size)
		if err != nil {
			return "", err
		}
		if res.Pagination == nil || res.Pagination.NextToken == "" {
			return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: fmt.Sprintf("listing page %d is past the end", page)}
		}
		from = res.Pagination.NextToken
		c.rememberToken(p+1, from)
	}
	return from, nil
}

func (c *AmazonClient) rememberToken(page int, token string) {
	c.mu.Lock()
	c.pageTokens[page] = token
	c.mu.Unlock()
}

func (c *AmazonClient) toRemoteProduct(it amazonListingsItem) marketsync.RemoteProduct {
	rp := marketsync.RemoteProduct{RemoteID: it.SKU, SKU: it.SKU, Status: marketsync.RemoteProductPending}
	for _, s := range it.Summaries {
		if s.MarketplaceID != "" && s.MarketplaceID != c.config.MarketplaceID {
			continue
		}
		rp.Title = s.ItemName
		for _, st := range s.Status {
			if st == "BUYABLE" {
				rp.Status = marketsync.RemoteProductApproved
				rp.Active = true
			}
		}
	}
	for _, is := range it.Issues {
		if is.Severity == "ERROR" && !rp.Active {
			rp.Status = marketsync.RemoteProductRejected
		}
	}
	for _, o := range it.Offers {
		if o.MarketplaceID == c.config.MarketplaceID || o.MarketplaceID == "" {
			if d, err := decimal.NewFromString(o.Price.Amount); err == nil {
				rp.SalePrice = d
				rp.Currency = o.Price.CurrencyCode
			}
		}
	}
	for _, f := range it.Fulfill {
		rp.Quantity += f.Quantity
	}
	return rp
}

// UpdateStock patches the fulfillment availability of each SKU
func (c *AmazonClient) UpdateStock(ctx context.Context, updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	for _, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		patch := amazonPatchEntry{
			Op:   "replace",
			Path: "/attributes/fulfillment_availability",
			Value: []map[string]any{{
				"fulfillment_channel_code": amazonDefaultChannel,
				"quantity":                 u.Quantity,
			}},
		}
		if err := c.patchLine(ctx, idx, u.Ref, u.RemoteID, patch); err != nil {
			return nil, err
		}
	}
	return idx.result(""), nil
}

// UpdatePrice patches the purchasable offer of each SKU
func (c *AmazonClient) UpdatePrice(ctx context.Context, updates []marketsync.PriceUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	for _, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		if err := c.patchLine(ctx, idx, u.Ref, u.RemoteID, c.offerPatch(u.SalePrice, u.Currency)); err != nil {
			return nil, err
		}
	}
	return idx.result(""), nil
}

func (c *AmazonClient) offerPatch(price decimal.Decimal, currency string) amazonPatchEntry {
	return amazonPatchEntry{
		Op:    "replace",
		Path:  "/attributes/purchasable_offer",
		Value: []map[string]any{c.offer(price, currency)},
	}
}

func (c *AmazonClient) offer(price decimal.Decimal, currency string) map[string]any {
	return map[string]any{
		"marketplace_id": c.config.MarketplaceID,
		"currency":       firstNonEmpty(currency, "EUR"),
		"our_price": []map[string]any{{
			"schedule": []map[string]any{{"value_with_tax": price.InexactFloat64()}},
		}},
	}
}

// patchLine sends one PATCH. A rejected line is recorded on idx; any other
// failure is returned and aborts the batch.
func (c *AmazonClient) patchLine(ctx context.Context, idx *outcomeIndex, ref, sku string, patch amazonPatchEntry) error {
	r, err := jsonRequest(http.MethodPatch, c.listingURL(sku), amazonPatchBody{ProductType: amazonPatchType, Patches: []amazonPatchEntry{patch}})
	if err != nil {
		idx.fail(ref, lineError(c.Code(), ref, err.Error()))
		return nil
	}
	r.query = c.marketplaceQuery()

	var sub amazonSubmission
	if err := c.t.doJSON(ctx, r, &sub); err != nil {
		if marketsync.KindOf(err) == marketsync.ErrorKindValidation {
			idx.fail(ref, err)
			return nil
		}
		return err
	}
	if err := c.submissionError(ref, &sub); err != nil {
		idx.fail(ref, err)
	}
	return nil
}

func (c *AmazonClient) submissionError(ref string, sub *amazonSubmission) error {
	if !strings.EqualFold(sub.Status, "INVALID") {
		return nil
	}
	msgs := make([]string, 0, len(sub.Issues))
	for _, is := range sub.Issues {
		if is.Severity == "ERROR" || is.Severity == "" {
			msgs = append(msgs, is.Message)
		}
	}
	return lineError(c.Code(), ref, msgs...)
}

// SaveProduct puts a full listing. CategoryID carries the Amazon product type.
func (c *AmazonClient) SaveProduct(ctx context.Context, listing marketsync.ProductListing) (string, error) {
	sku := firstNonEmpty(listing.RemoteID, listing.SKU)
	switch {
	case sku == "":
		return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: "listing has no sku", Fields: []marketsync.FieldError{{Field: "sku", Message: "required"}}}
	case listing.CategoryID == "":
		return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: "listing has no product type", Fields: []marketsync.FieldError{{Field: "productType", Message: "required"}}}
	}

	mp := c.config.MarketplaceID
	attrs := map[string]any{
		"condition_type": []map[string]any{{"value": "new_new", "marketplace_id": mp}},
		"item_name":      []map[string]any{{"value": listing.Title, "marketplace_id": mp}},
		"fulfillment_availability": []map[string]any{{
			"fulfillment_channel_code": amazonDefaultChannel,
			"quantity":                 listing.Quantity,
		}},
		"purchasable_offer": []map[string]any{c.offer(listing.SalePrice, listing.Currency)},
	}
	if listing.Brand != "" {
		attrs["brand"] = []map[string]any{{"value": listing.Brand, "marketplace_id": mp}}
	}
	if listing.Description != "" {
		attrs["product_description"] = []map[string]any{{"value": listing.Description, "marketplace_id": mp}}
	}
	if listing.Barcode != "" {
		attrs["externally_assigned_product_identifier"] = []map[string]any{{"type": "ean", "value": listing.Barcode, "marketplace_id": mp}}
	}
	for i, img := range listing.Images {
		key := "main_product_image_locator"
		if i > 0 {
			key = fmt.Sprintf("other_product_image_locator_%d", i)
		}
		attrs[key] = []map[string]any{{"media_location": img, "marketplace_id": mp}}
	}
	names := make([]string, 0, len(listing.Attributes))
	for k := range listing.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if _, taken := attrs[k]; !taken {
			attrs[k] = []map[string]any{{"value": listing.Attributes[k], "marketplace_id": mp}}
		}
	}

	r, err := jsonRequest(http.MethodPut, c.listingURL(sku), amazonPutBody{ProductType: listing.CategoryID, Requirements: "LISTING", Attributes: attrs})
	if err != nil {
		return "", &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
	}
	r.query = c.marketplaceQuery()
	var sub amazonSubmission
	if err := c.t.doJSON(ctx, r, &sub); err != nil {
		return "", err
	}
	if err := c.submissionError(sku, &sub); err != nil {
		return "", err
	}
	return sku, nil
}

// DeactivateProduct deletes the listing of sku
func (c *AmazonClient) DeactivateProduct(ctx context.Context, remoteID string) error {
	_, err := c.t.do(ctx, &request{method: http.MethodDelete, url: c.listingURL(remoteID), query: c.marketplaceQuery()})
	return err
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders lists orders updated since q.Since (the last 30 days when
// unset) and reads the items of each
func (c *AmazonClient) FetchOrders(ctx context.Context, q marketsync.OrderQuery) ([]marketsync.RemoteOrder, error) {
	since := q.Since
	if since.IsZero() {
		since = time.Now().Add(-amazonOrderLookback)
	}
	query := url.Values{
		"MarketplaceIds":   {c.config.MarketplaceID},
		"LastUpdatedAfter": {since.UTC().Format(time.RFC3339)},
	}
	if q.Status != "" {
		query.Set("OrderStatuses", q.Status)
	}

	var orders []marketsync.RemoteOrder
	for {
		var env amazonOrdersEnvelope
		if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: joinURL(c.config.BaseURL, "orders", "v0", "orders"), query: query}, &env); err != nil {
			return nil, err
		}
		for _, raw := range env.Payload.Orders {
			o, err := c.toRemoteOrder(ctx, raw)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *o)
		}
		if env.Payload.NextToken == "" {
			break
		}
		query = url.Values{"MarketplaceIds": {c.config.MarketplaceID}, "NextToken": {env.Payload.NextToken}}
	}
	return orders, nil
}

// FetchOrder reads one order and its items
func (c *AmazonClient) FetchOrder(ctx context.Context, remoteID string) (*marketsync.RemoteOrder, error) {
	var env amazonOrderEnvelope
	if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: joinURL(c.config.BaseURL, "orders", "v0", "orders", remoteID)}, &env); err != nil {
		return nil, err
	}
	return c.toRemoteOrder(ctx, env.Payload)
}

func (c *AmazonClient) toRemoteOrder(ctx context.Context, raw json.RawMessage) (*marketsync.RemoteOrder, error) {
	var o amazonOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, c.t.invalidResponse(err)
	}
	items, err := c.orderItems(ctx, o.AmazonOrderID)
	if err != nil {
		return nil, err
	}
	total, _ := decimal.NewFromString(o.OrderTotal.Amount)
	order := &marketsync.RemoteOrder{
		RemoteID:      o.AmazonOrderID,
		OrderNumber:   o.AmazonOrderID,
		Status:        o.OrderStatus,
		PaymentStatus: o.PaymentMethod,
		TotalAmount:   total,
		Currency:      o.OrderTotal.CurrencyCode,
		CreatedAt:     o.PurchaseDate,
		UpdatedAt:     o.LastUpdate,
		Raw:           raw,
	}
	for _, it := range items {
		line := marketsync.RemoteOrderLine{RemoteProductID: it.ASIN, SKU: it.SellerSKU, Quantity: it.QuantityOrdered}
		if price, err := decimal.NewFromString(it.ItemPrice.Amount); err == nil && it.QuantityOrdered > 0 {
			// ItemPrice is the line total
			line.UnitPrice = price.Div(decimal.NewFromInt(it.QuantityOrdered))
		}
		order.Lines = append(order.Lines, line)
	}
	return order, nil
}

func (c *AmazonClient) orderItems(ctx context.Context, orderID string) ([]amazonOrderItem, error) {
	var items []amazonOrderItem
	query := url.Values{}
	for {
		var env amazonOrderItemsEnvelope
		err := c.t.doJSON(ctx, &request{
			method: http.MethodGet,
			url:    joinURL(c.config.BaseURL, "orders", "v0", "orders", orderID, "orderItems"),
			query:  query,
		}, &env)
		if err != nil {
			return nil, err
		}
		items = append(items, env.Payload.OrderItems...)
		if env.Payload.NextToken == "" {
			return items, nil
		}
		query = url.Values{"NextToken": {env.Payload.NextToken}}
	}
}

// UpdateOrderStatus confirms shipment of every item. Other statuses are
// driven by Amazon.
func (c *AmazonClient) UpdateOrderStatus(ctx context.Context, update marketsync.OrderStatusUpdate) error {
	if !strings.EqualFold(update.Status, AmazonStatusShipped) {
		return &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     fmt.Sprintf("status %q cannot be set by the seller", update.Status),
			Fields:      []marketsync.FieldError{{Field: "status", Message: update.Status}},
		}
	}
	items, err := c.orderItems(ctx, update.RemoteOrderID)
	if err != nil {
		return err
	}
	detail := amazonPackageDetail{
		PackageReferenceID: "1",
		CarrierCode:        firstNonEmpty(update.Carrier, "Other"),
		TrackingNumber:     update.TrackingNumber,
		ShipDate:           time.Now().UTC(),
	}
	for _, it := range items {
		detail.OrderItems = append(detail.OrderItems, amazonConfirmedItem{OrderItemID: it.OrderItemID, Quantity: it.QuantityOrdered})
	}
	r, err := jsonRequest(http.MethodPost,
		joinURL(c.config.BaseURL, "orders", "v0", "orders", update.RemoteOrderID, "shipmentConfirmation"),
		amazonShipmentConfirmation{MarketplaceID: c.config.MarketplaceID, PackageDetail: detail})
	if err != nil {
		return &marketsync.ValidationError{Marketplace: c.Code(), Message: err.Error()}
	}
	_, err = c.t.do(ctx, r)
	return err
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// FetchCategories lists the product types of the marketplace. Amazon has no
// browsable tree for sellers, so every product type is a leaf.
func (c *AmazonClient) FetchCategories(ctx context.Context) ([]marketsync.RemoteCategory, error) {
	var res amazonProductTypes
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    joinURL(c.config.BaseURL, "definitions", "2020-09-01", "productTypes"),
		query:  c.marketplaceQuery(),
	}, &res)
	if err != nil {
		return nil, err
	}
	out := make([]marketsync.RemoteCategory, 0, len(res.ProductTypes))
	for _, pt := range res.ProductTypes {
		out = append(out, marketsync.RemoteCategory{RemoteID: pt.Name, Name: firstNonEmpty(pt.DisplayName, pt.Name), Leaf: true})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// AmazonWebhookParser reads ORDER_CHANGE and LISTINGS_ITEM_STATUS_CHANGE
// notifications
type AmazonWebhookParser struct{}

// ParseWebhook implements WebhookParser
func (AmazonWebhookParser) ParseWebhook(body []byte) ([]marketsync.Notification, error) {
	var n amazonNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, webhookDecodeError(marketsync.MarketplaceAmazon, err)
	}

	note := marketsync.Notification{EventID: n.Metadata.NotificationID, OccurredAt: n.EventTime}
	switch n.NotificationType {
	case "ORDER_CHANGE":
		if n.Payload.OrderChange == nil {
			return nil, &marketsync.ValidationError{Marketplace: marketsync.MarketplaceAmazon, Message: "order change without payload"}
		}
		note.RemoteEntityID = n.Payload.OrderChange.AmazonOrderID
		note.Kind = marketsync.NotificationOrderStatusChanged
		switch n.Payload.OrderChange.OrderStatus {
		case "Pending", "Unshipped":
			note.Kind = marketsync.NotificationOrderCreated
		case "Canceled":
			note.Kind = marketsync.NotificationOrderCancelled
		}
	case "LISTINGS_ITEM_STATUS_CHANGE":
		note.RemoteEntityID = n.Payload.SKU
		note.Kind = marketsync.NotificationProductRejected
		note.Reason = strings.Join(n.Payload.Status, ",")
		for _, s := range n.Payload.Status {
			if s == "BUYABLE" {
				note.Kind = marketsync.NotificationProductApproved
				note.Reason = ""
			}
		}
	default:
		return nil, &marketsync.ValidationError{
			Marketplace: marketsync.MarketplaceAmazon,
			Message:     "unsupported notification type " + n.NotificationType,
		}
	}
	if note.EventID == "" {
		note.EventID = fmt.Sprintf("%s-%s-%d", n.NotificationType, note.RemoteEntityID, n.EventTime.Unix())
	}
	return []marketsync.Notification{note}, nil
}

var (
	_ marketsync.MarketplaceClient = (*AmazonClient)(nil)
	_ marketsync.WebhookParser     = AmazonWebhookParser{}
)
