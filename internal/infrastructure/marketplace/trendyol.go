package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

const (
	trendyolBatchSize     = 100
	trendyolOrderPageSize = 200
	trendyolDefaultVAT    = 20

	trendyolProductPageSize = 50
	trendyolMaxPageSize     = 200
)

// TrendyolClient implements MarketplaceClient for Trendyol's seller API.
// Listings are addressed by barcode, orders by shipment package id.
type TrendyolClient struct {
	config *TrendyolConfig
	t      *httpTransport
}

// NewTrendyolClient creates a new Trendyol client
func NewTrendyolClient(config *TrendyolConfig, opts Options) (*TrendyolClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := newTransport(marketsync.MarketplaceTrendyol, opts)
	t.userAgent = config.SupplierID + " - SelfIntegration"
	auth := "Basic " + basicAuth(config.APIKey, config.APISecret)
	t.authorize = func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", auth)
		return nil
	}
	return &TrendyolClient{config: config, t: t}, nil
}

func (c *TrendyolClient) Code() marketsync.MarketplaceCode { return marketsync.MarketplaceTrendyol }
func (c *TrendyolClient) BatchSize() int                   { return trendyolBatchSize }

func (c *TrendyolClient) sellerURL(area string, segments ...string) string {
	return joinURL(c.config.BaseURL, append([]string{area, "sellers", c.config.SupplierID}, segments...)...)
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// FetchProducts lists the seller's products. Trendyol pages are 0-based.
func (c *TrendyolClient) FetchProducts(ctx context.Context, page marketsync.Pagination) (*marketsync.ProductPage, error) {
	page = page.Normalize(trendyolProductPageSize, trendyolMaxPageSize)
	var resp trendyolProductPage
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    c.sellerURL("product", "products"),
		query: url.Values{
			"page": {strconv.Itoa(page.Page - 1)},
			"size": {strconv.Itoa(page.PageSize)},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := &marketsync.ProductPage{Page: page.Page, TotalPages: resp.TotalPages, Items: make([]marketsync.RemoteProduct, 0, len(resp.Content))}
	for _, p := range resp.Content {
		status := marketsync.RemoteProductPending
		switch {
		case p.Rejected:
			status = marketsync.RemoteProductRejected
		case p.Approved:
			status = marketsync.RemoteProductApproved
		}
		out.Items = append(out.Items, marketsync.RemoteProduct{
			RemoteID:  p.Barcode,
			SKU:       p.StockCode,
			Barcode:   p.Barcode,
			Title:     p.Title,
			Quantity:  p.Quantity,
			SalePrice: p.SalePrice,
			Currency:  "TRY",
			Status:    status,
			Active:    p.OnSale && !p.Archived,
		})
	}
	return out, nil
}

// SaveProduct creates or updates a listing. The barcode is the remote id.
func (c *TrendyolClient) SaveProduct(ctx context.Context, listing marketsync.ProductListing) (string, error) {
	item, err := c.productItem(listing)
	if err != nil {
		return "", err
	}
	method := http.MethodPost
	if listing.RemoteID != "" {
		method = http.MethodPut
	}
	r, err := jsonRequest(method, c.sellerURL("product", "products"), trendyolItems[trendyolProductItem]{Items: []trendyolProductItem{item}})
	if err != nil {
		return "", err
	}
	var accepted trendyolBatchAccepted
	if err := c.t.doJSON(ctx, r, &accepted); err != nil {
		return "", err
	}
	if accepted.BatchRequestID != "" {
		result := c.batchOutcome(ctx, accepted.BatchRequestID, []string{listing.LocalID}, []string{item.Barcode})
		if o, ok := result.OutcomeFor(listing.LocalID); ok && o.Err != nil {
			return "", o.Err
		}
	}
	return item.Barcode, nil
}

func (c *TrendyolClient) productItem(l marketsync.ProductListing) (trendyolProductItem, error) {
	barcode := firstNonEmpty(l.RemoteID, l.Barcode)
	if barcode == "" {
		return trendyolProductItem{}, &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     "barcode is required",
			Fields:      []marketsync.FieldError{{Field: "barcode", Message: "required"}},
		}
	}
	var categoryID int64
	if l.CategoryID != "" {
		id, err := strconv.ParseInt(l.CategoryID, 10, 64)
		if err != nil {
			return trendyolProductItem{}, &marketsync.ValidationError{
				Marketplace: c.Code(),
				Message:     "category id must be numeric",
				Fields:      []marketsync.FieldError{{Field: "categoryId", Message: l.CategoryID}},
			}
		}
		categoryID = id
	}
	listPrice := l.ListPrice
	if listPrice.LessThan(l.SalePrice) {
		listPrice = l.SalePrice
	}

	item := trendyolProductItem{
		Barcode:       barcode,
		Title:         l.Title,
		ProductMainID: firstNonEmpty(l.SKU, l.LocalID),
		Brand:         l.Brand,
		CategoryID:    categoryID,
		Quantity:      l.Quantity,
		StockCode:     firstNonEmpty(l.SKU, barcode),
		Description:   l.Description,
		CurrencyType:  firstNonEmpty(l.Currency, "TRY"),
		ListPrice:     listPrice,
		SalePrice:     l.SalePrice,
		VatRate:       trendyolDefaultVAT,
	}
	for _, img := range l.Images {
		item.Images = append(item.Images, trendyolImage{URL: img})
	}
	keys := make([]string, 0, len(l.Attributes))
	for k := range l.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		item.Attributes = append(item.Attributes, trendyolAttributeItem{AttributeID: k, CustomAttributeValue: l.Attributes[k]})
	}
	return item, nil
}

// DeactivateProduct archives the listing
func (c *TrendyolClient) DeactivateProduct(ctx context.Context, remoteID string) error {
	r, err := jsonRequest(http.MethodPut, c.sellerURL("product", "products", "archive-state"),
		trendyolItems[trendyolArchiveItem]{Items: []trendyolArchiveItem{{Barcode: remoteID, Archived: true}}})
	if err != nil {
		return err
	}
	return c.t.doJSON(ctx, r, nil)
}

// ---------------------------------------------------------------------------
// Stock and price
// ---------------------------------------------------------------------------

// UpdateStock sends one price-and-inventory batch
func (c *TrendyolClient) UpdateStock(ctx context.Context, updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
	items := make([]trendyolInventoryItem, len(updates))
	refs := make([]string, len(updates))
	ids := make([]string, len(updates))
	for i, u := range updates {
		qty := u.Quantity
		items[i] = trendyolInventoryItem{Barcode: u.RemoteID, Quantity: &qty}
		refs[i], ids[i] = u.Ref, u.RemoteID
	}
	return c.sendInventory(ctx, items, refs, ids)
}

// UpdatePrice sends one price-and-inventory batch. The list price never drops
// below the sale price.
func (c *TrendyolClient) UpdatePrice(ctx context.Context, updates []marketsync.PriceUpdate) (*marketsync.BatchResult, error) {
	items := make([]trendyolInventoryItem, len(updates))
	refs := make([]string, len(updates))
	ids := make([]string, len(updates))
	for i, u := range updates {
		sale, list := u.SalePrice, u.ListPrice
		if list.LessThan(sale) {
			list = sale
		}
		items[i] = trendyolInventoryItem{Barcode: u.RemoteID, SalePrice: &sale, ListPrice: &list}
		refs[i], ids[i] = u.Ref, u.RemoteID
	}
	return c.sendInventory(ctx, items, refs, ids)
}

func (c *TrendyolClient) sendInventory(ctx context.Context, items []trendyolInventoryItem, refs, ids []string) (*marketsync.BatchResult, error) {
	r, err := jsonRequest(http.MethodPost,
		joinURL(c.config.BaseURL, "inventory", "sellers", c.config.SupplierID, "products", "price-and-inventory"),
		trendyolItems[trendyolInventoryItem]{Items: items})
	if err != nil {
		return nil, err
	}
	var accepted trendyolBatchAccepted
	if err := c.t.doJSON(ctx, r, &accepted); err != nil {
		return nil, err
	}
	return c.batchOutcome(ctx, accepted.BatchRequestID, refs, ids), nil
}

// batchOutcome reads the batch result once. Lines the marketplace has not
// judged yet count as accepted; a later rejection surfaces through
// reconciliation.
func (c *TrendyolClient) batchOutcome(ctx context.Context, batchID string, refs, ids []string) *marketsync.BatchResult {
	idx := newOutcomeIndex(len(refs))
	for i := range refs {
		idx.add(refs[i], ids[i])
	}
	if batchID == "" {
		return idx.result("")
	}

	var status trendyolBatchStatus
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    c.sellerURL("product", "products", "batch-requests", batchID),
	}, &status)
	if err != nil {
		// the batch is already accepted; a failed status read must not fail it
		return idx.result(batchID)
	}
	for _, item := range status.Items {
		if !strings.EqualFold(item.Status, "FAILED") {
			continue
		}
		barcode := item.RequestItem.barcode()
		for _, ref := range idx.refs {
			if idx.outcomes[ref].RemoteID == barcode {
				idx.fail(ref, lineError(c.Code(), ref, item.FailureReasons...))
			}
		}
	}
	return idx.result(batchID)
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages through packages modified since q.Since
func (c *TrendyolClient) FetchOrders(ctx context.Context, q marketsync.OrderQuery) ([]marketsync.RemoteOrder, error) {
	query := url.Values{
		"orderByField":     {"PackageLastModifiedDate"},
		"orderByDirection": {"ASC"},
		"size":             {strconv.Itoa(trendyolOrderPageSize)},
	}
	if !q.Since.IsZero() {
		query.Set("startDate", strconv.FormatInt(q.Since.UnixMilli(), 10))
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}

	var orders []marketsync.RemoteOrder
	for page := 0; ; page++ {
		query.Set("page", strconv.Itoa(page))
		var resp trendyolOrderPage
		if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: c.sellerURL("order", "orders"), query: query}, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Content {
			order, err := c.toRemoteOrder(raw)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *order)
		}
		if page+1 >= resp.TotalPages || len(resp.Content) == 0 {
			break
		}
	}
	return orders, nil
}

// FetchOrder returns one shipment package
func (c *TrendyolClient) FetchOrder(ctx context.Context, remoteID string) (*marketsync.RemoteOrder, error) {
	var resp trendyolOrderPage
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    c.sellerURL("order", "orders"),
		query:  url.Values{"shipmentPackageIds": {remoteID}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, &marketsync.ValidationError{Marketplace: c.Code(), Message: fmt.Sprintf("shipment package %s not found", remoteID)}
	}
	return c.toRemoteOrder(resp.Content[0])
}

func (c *TrendyolClient) toRemoteOrder(raw json.RawMessage) (*marketsync.RemoteOrder, error) {
	var p trendyolPackage
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, c.t.invalidResponse(err)
	}
	order := &marketsync.RemoteOrder{
		RemoteID:    strconv.FormatInt(p.ID, 10),
		OrderNumber: p.OrderNumber,
		Status:      p.Status,
		TotalAmount: p.TotalPrice,
		Currency:    firstNonEmpty(p.CurrencyCode, "TRY"),
		CreatedAt:   millis(p.OrderDate),
		UpdatedAt:   millis(p.LastModifiedDate),
		Raw:         bytes.Clone(raw),
	}
	for _, l := range p.Lines {
		order.Lines = append(order.Lines, marketsync.RemoteOrderLine{
			RemoteProductID: strconv.FormatInt(l.ProductCode, 10),
			SKU:             l.MerchantSKU,
			Barcode:         l.Barcode,
			Quantity:        l.Quantity,
			UnitPrice:       l.Price,
		})
	}
	return order, nil
}

// UpdateOrderStatus moves a shipment package and, when given, sets its
// tracking number
func (c *TrendyolClient) UpdateOrderStatus(ctx context.Context, update marketsync.OrderStatusUpdate) error {
	params := map[string]string{}
	if update.Carrier != "" {
		params["cargoProviderName"] = update.Carrier
	}
	r, err := jsonRequest(http.MethodPut, c.sellerURL("order", "shipment-packages", update.RemoteOrderID),
		trendyolStatusUpdate{Status: update.Status, Lines: []any{}, Params: params})
	if err != nil {
		return err
	}
	if err := c.t.doJSON(ctx, r, nil); err != nil {
		return err
	}
	if update.TrackingNumber == "" {
		return nil
	}
	r, err = jsonRequest(http.MethodPut,
		c.sellerURL("order", "shipment-packages", update.RemoteOrderID, "update-tracking-number"),
		trendyolTrackingUpdate{TrackingNumber: update.TrackingNumber})
	if err != nil {
		return err
	}
	return c.t.doJSON(ctx, r, nil)
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// FetchCategories flattens Trendyol's category tree
func (c *TrendyolClient) FetchCategories(ctx context.Context) ([]marketsync.RemoteCategory, error) {
	var tree trendyolCategoryTree
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    joinURL(c.config.BaseURL, "product", "product-categories"),
	}, &tree)
	if err != nil {
		return nil, err
	}
	var out []marketsync.RemoteCategory
	var walk func(nodes []trendyolCategory, parent string)
	walk = func(nodes []trendyolCategory, parent string) {
		for _, n := range nodes {
			id := strconv.FormatInt(n.ID, 10)
			out = append(out, marketsync.RemoteCategory{
				RemoteID: id,
				ParentID: parent,
				Name:     n.Name,
				Leaf:     len(n.SubCategories) == 0,
			})
			walk(n.SubCategories, id)
		}
	}
	walk(tree.Categories, "")
	return out, nil
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// TrendyolWebhookParser reads the package documents Trendyol posts on order
// changes. The body is a single package or an array of them.
type TrendyolWebhookParser struct{}

// ParseWebhook implements WebhookParser
func (TrendyolWebhookParser) ParseWebhook(body []byte) ([]marketsync.Notification, error) {
	var packages []trendyolWebhookPackage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &packages); err != nil {
			return nil, webhookDecodeError(marketsync.MarketplaceTrendyol, err)
		}
	} else {
		var p trendyolWebhookPackage
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, webhookDecodeError(marketsync.MarketplaceTrendyol, err)
		}
		packages = append(packages, p)
	}

	notes := make([]marketsync.Notification, 0, len(packages))
	for _, p := range packages {
		kind := marketsync.NotificationOrderStatusChanged
		switch strings.ToLower(p.Status) {
		case "created":
			kind = marketsync.NotificationOrderCreated
		case "cancelled", "unsupplied":
			kind = marketsync.NotificationOrderCancelled
		}
		id := p.packageID()
		notes = append(notes, marketsync.Notification{
			EventID:        fmt.Sprintf("%s-%s-%d", id, p.Status, p.LastModifiedDate),
			Kind:           kind,
			RemoteEntityID: id,
			OccurredAt:     millis(p.LastModifiedDate),
		})
	}
	return notes, nil
}

// webhookDecodeError reports an unreadable webhook body
func webhookDecodeError(code marketsync.MarketplaceCode, err error) error {
	return &marketsync.ValidationError{Marketplace: code, Message: "malformed webhook body: " + err.Error()}
}

var (
	_ marketsync.MarketplaceClient = (*TrendyolClient)(nil)
	_ marketsync.WebhookParser     = TrendyolWebhookParser{}
)
