package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

const (
	hepsiburadaBatchSize        = 200
	hepsiburadaListingPageSize  = 100
	hepsiburadaMaxPageSize      = 1000
	hepsiburadaOrderPageSize    = 100
	hepsiburadaCategoryPageSize = 1000
	hepsiburadaMaxImages        = 5
)

// HepsiburadaClient implements MarketplaceClient for Hepsiburada. Listings are
// addressed by merchant SKU, orders by order number.
type HepsiburadaClient struct {
	config *HepsiburadaConfig
	t      *httpTransport
}

// NewHepsiburadaClient creates a new Hepsiburada client
func NewHepsiburadaClient(config *HepsiburadaConfig, opts Options) (*HepsiburadaClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := newTransport(marketsync.MarketplaceHepsiburada, opts)
	t.userAgent = config.Username
	auth := "Basic " + basicAuth(config.Username, config.Password)
	t.authorize = func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", auth)
		return nil
	}
	return &HepsiburadaClient{config: config, t: t}, nil
}

func (c *HepsiburadaClient) Code() marketsync.MarketplaceCode {
	return marketsync.MarketplaceHepsiburada
}

func (c *HepsiburadaClient) BatchSize() int { return hepsiburadaBatchSize }

func (c *HepsiburadaClient) listingURL(segments ...string) string {
	return joinURL(c.config.ListingURL, append([]string{"listings", "merchantid", c.config.MerchantID}, segments...)...)
}

func (c *HepsiburadaClient) orderURL(segments ...string) string {
	return joinURL(c.config.OrderURL, append([]string{"orders", "merchantid", c.config.MerchantID}, segments...)...)
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// FetchProducts reads one page of listings
func (c *HepsiburadaClient) FetchProducts(ctx context.Context, page marketsync.Pagination) (*marketsync.ProductPage, error) {
	page = page.Normalize(hepsiburadaListingPageSize, hepsiburadaMaxPageSize)
	var resp hepsiburadaListingPage
	err := c.t.doJSON(ctx, &request{
		method: http.MethodGet,
		url:    c.listingURL(),
		query: url.Values{
			"offset": {strconv.Itoa((page.Page - 1) * page.PageSize)},
			"limit":  {strconv.Itoa(page.PageSize)},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	total := (resp.TotalCount + page.PageSize - 1) / page.PageSize
	out := &marketsync.ProductPage{Page: page.Page, TotalPages: total, Items: make([]marketsync.RemoteProduct, 0, len(resp.Listings))}
	for _, l := range resp.Listings {
		status := marketsync.RemoteProductApproved
		if l.IsLocked {
			status = marketsync.RemoteProductRejected
		}
		out.Items = append(out.Items, marketsync.RemoteProduct{
			RemoteID:  l.MerchantSKU,
			SKU:       l.MerchantSKU,
			Title:     l.HepsiburadaSKU,
			Quantity:  l.AvailableStock,
			SalePrice: l.Price,
			Currency:  "TRY",
			Status:    status,
			Active:    l.IsSalable && !l.IsSuspended,
		})
	}
	return out, nil
}

// UpdateStock uploads one stock file
func (c *HepsiburadaClient) UpdateStock(ctx context.Context, updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	lines := make([]hepsiburadaStockLine, len(updates))
	for i, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		lines[i] = hepsiburadaStockLine{MerchantSKU: u.RemoteID, AvailableStock: u.Quantity}
	}
	return c.upload(ctx, "stock-uploads", lines, idx)
}

// UpdatePrice uploads one price file. Hepsiburada keeps a single price, the
// sale price.
func (c *HepsiburadaClient) UpdatePrice(ctx context.Context, updates []marketsync.PriceUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	lines := make([]hepsiburadaPriceLine, len(updates))
	for i, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		lines[i] = hepsiburadaPriceLine{MerchantSKU: u.RemoteID, Price: u.SalePrice}
	}
	return c.upload(ctx, "price-uploads", lines, idx)
}

func (c *HepsiburadaClient) upload(ctx context.Context, kind string, lines any, idx *outcomeIndex) (*marketsync.BatchResult, error) {
	r, err := jsonRequest(http.MethodPost, c.listingURL(kind), lines)
	if err != nil {
		return nil, err
	}
	var accepted hepsiburadaUploadAccepted
	if err := c.t.doJSON(ctx, r, &accepted); err != nil {
		return nil, err
	}
	if accepted.ID == "" {
		return idx.result(""), nil
	}

	var status hepsiburadaUploadStatus
	if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: c.listingURL(kind, "id", accepted.ID)}, &status); err != nil {
		// the upload is already accepted; a failed status read must not fail it
		return idx.result(accepted.ID), nil
	}
	for _, e := range status.Errors {
		msgs := append([]string{e.Message}, e.Errors...)
		idx.failRemote(e.MerchantSKU, lineError(c.Code(), e.MerchantSKU, msgs...))
	}
	return idx.result(accepted.ID), nil
}

// SaveProduct imports a catalog product. Updates of an existing listing go
// through the same import; the merchant SKU is the remote id.
func (c *HepsiburadaClient) SaveProduct(ctx context.Context, listing marketsync.ProductListing) (string, error) {
	sku := firstNonEmpty(listing.RemoteID, listing.SKU)
	if sku == "" {
		return "", &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     "merchant sku is required",
			Fields:      []marketsync.FieldError{{Field: "merchantSku", Message: "required"}},
		}
	}
	categoryID, err := strconv.ParseInt(listing.CategoryID, 10, 64)
	if err != nil {
		return "", &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     "category id must be numeric",
			Fields:      []marketsync.FieldError{{Field: "categoryId", Message: listing.CategoryID}},
		}
	}

	attrs := map[string]string{
		"merchantSku":    sku,
		"Barcode":        listing.Barcode,
		"UrunAdi":        listing.Title,
		"UrunAciklamasi": listing.Description,
		"Marka":          listing.Brand,
		"price":          listing.SalePrice.StringFixed(2),
		"stock":          strconv.FormatInt(listing.Quantity, 10),
	}
	for i, img := range listing.Images {
		if i >= hepsiburadaMaxImages {
			break
		}
		attrs["Image"+strconv.Itoa(i+1)] = img
	}
	for k, v := range listing.Attributes {
		if _, reserved := attrs[k]; !reserved {
			attrs[k] = v
		}
	}

	r, err := jsonRequest(http.MethodPost, joinURL(c.config.ProductURL, "product", "api", "products", "import"),
		[]hepsiburadaImportItem{{CategoryID: categoryID, Merchant: c.config.MerchantID, Attributes: attrs}})
	if err != nil {
		return "", err
	}
	var accepted hepsiburadaImportAccepted
	if err := c.t.doJSON(ctx, r, &accepted); err != nil {
		return "", err
	}
	if !accepted.Success && accepted.Message != "" {
		return "", lineError(c.Code(), sku, accepted.Message)
	}
	return sku, nil
}

// DeactivateProduct removes the listing from sale
func (c *HepsiburadaClient) DeactivateProduct(ctx context.Context, remoteID string) error {
	return c.t.doJSON(ctx, &request{method: http.MethodDelete, url: c.listingURL("sku", remoteID)}, nil)
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages through orders changed since q.Since
func (c *HepsiburadaClient) FetchOrders(ctx context.Context, q marketsync.OrderQuery) ([]marketsync.RemoteOrder, error) {
	query := url.Values{"limit": {strconv.Itoa(hepsiburadaOrderPageSize)}}
	if !q.Since.IsZero() {
		query.Set("begindate", q.Since.UTC().Format(hepsiburadaTimeLayout))
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}

	var orders []marketsync.RemoteOrder
	for offset := 0; ; offset += hepsiburadaOrderPageSize {
		query.Set("offset", strconv.Itoa(offset))
		var resp hepsiburadaOrderPage
		if err := c.t.doJSON(ctx, &request{method: http.MethodGet, url: c.orderURL(), query: query}, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			order, err := c.toRemoteOrder(item)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *order)
		}
		if len(resp.Items) < hepsiburadaOrderPageSize || offset+len(resp.Items) >= resp.TotalCount {
			break
		}
	}
	return orders, nil
}

// FetchOrder reads one order by number
func (c *HepsiburadaClient) FetchOrder(ctx context.Context, remoteID string) (*marketsync.RemoteOrder, error) {
	raw, err := c.t.do(ctx, &request{method: http.MethodGet, url: c.orderURL("ordernumber", remoteID)})
	if err != nil {
		return nil, err
	}
	return c.toRemoteOrder(raw)
}

func (c *HepsiburadaClient) toRemoteOrder(raw []byte) (*marketsync.RemoteOrder, error) {
	var o hepsiburadaOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, c.t.invalidResponse(err)
	}
	order := &marketsync.RemoteOrder{
		RemoteID:      firstNonEmpty(o.OrderNumber, o.ID),
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalPrice.Amount,
		Currency:      firstNonEmpty(o.TotalPrice.Currency, "TRY"),
		CreatedAt:     o.OrderDate,
		UpdatedAt:     o.LastStatusUpdateDate,
		Raw:           bytes.Clone(raw),
	}
	for _, l := range o.Items {
		order.Lines = append(order.Lines, marketsync.RemoteOrderLine{
			RemoteProductID: l.HepsiburadaSKU,
			SKU:             l.MerchantSKU,
			Quantity:        l.Quantity,
			UnitPrice:       l.Price.Amount,
		})
	}
	return order, nil
}

// UpdateOrderStatus moves an order to a new status
func (c *HepsiburadaClient) UpdateOrderStatus(ctx context.Context, update marketsync.OrderStatusUpdate) error {
	r, err := jsonRequest(http.MethodPut, c.orderURL("ordernumber", update.RemoteOrderID, "status"), hepsiburadaStatusUpdate{
		Status:         update.Status,
		TrackingNumber: update.TrackingNumber,
		CargoCompany:   update.Carrier,
	})
	if err != nil {
		return err
	}
	return c.t.doJSON(ctx, r, nil)
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// FetchCategories pages through the active category list
func (c *HepsiburadaClient) FetchCategories(ctx context.Context) ([]marketsync.RemoteCategory, error) {
	var out []marketsync.RemoteCategory
	for page := 0; ; page++ {
		var resp hepsiburadaCategoryPage
		err := c.t.doJSON(ctx, &request{
			method: http.MethodGet,
			url:    joinURL(c.config.ProductURL, "product", "api", "categories", "get-all-categories"),
			query: url.Values{
				"status":    {"ACTIVE"},
				"available": {"true"},
				"page":      {strconv.Itoa(page)},
				"size":      {strconv.Itoa(hepsiburadaCategoryPageSize)},
			},
		}, &resp)
		if err != nil {
			return nil, err
		}
		for _, cat := range resp.Data {
			parent := ""
			if cat.ParentCategoryID > 0 {
				parent = strconv.FormatInt(cat.ParentCategoryID, 10)
			}
			out = append(out, marketsync.RemoteCategory{
				RemoteID: strconv.FormatInt(cat.CategoryID, 10),
				ParentID: parent,
				Name:     cat.Name,
				Leaf:     cat.Leaf,
			})
		}
		if page+1 >= resp.TotalPages || len(resp.Data) == 0 {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// HepsiburadaWebhookParser reads Hepsiburada event deliveries (one event or an
// array of events)
type HepsiburadaWebhookParser struct{}

// ParseWebhook implements WebhookParser
func (HepsiburadaWebhookParser) ParseWebhook(body []byte) ([]marketsync.Notification, error) {
	var events []hepsiburadaEvent
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, webhookDecodeError(marketsync.MarketplaceHepsiburada, err)
		}
	} else {
		var e hepsiburadaEvent
		if err := json.Unmarshal(trimmed, &e); err != nil {
			return nil, webhookDecodeError(marketsync.MarketplaceHepsiburada, err)
		}
		events = append(events, e)
	}

	notes := make([]marketsync.Notification, 0, len(events))
	for _, e := range events {
		n := marketsync.Notification{EventID: e.ID, RemoteEntityID: e.OrderNumber, Reason: e.Reason, OccurredAt: e.CreatedDate}
		switch strings.ToLower(e.Type) {
		case "ordercreated":
			n.Kind = marketsync.NotificationOrderCreated
		case "ordercancelled":
			n.Kind = marketsync.NotificationOrderCancelled
		case "orderstatuschanged", "packagestatuschanged":
			n.Kind = marketsync.NotificationOrderStatusChanged
		case "productapproved":
			n.Kind, n.RemoteEntityID = marketsync.NotificationProductApproved, e.MerchantSKU
		case "productrejected":
			n.Kind, n.RemoteEntityID = marketsync.NotificationProductRejected, e.MerchantSKU
		default:
			return nil, &marketsync.ValidationError{
				Marketplace: marketsync.MarketplaceHepsiburada,
				Message:     fmt.Sprintf("unknown event type %q", e.Type),
				Fields:      []marketsync.FieldError{{Field: "type", Message: e.Type}},
			}
		}
		notes = append(notes, n)
	}
	return notes, nil
}

var (
	_ marketsync.MarketplaceClient = (*HepsiburadaClient)(nil)
	_ marketsync.WebhookParser     = HepsiburadaWebhookParser{}
)
