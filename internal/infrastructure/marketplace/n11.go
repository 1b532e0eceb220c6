package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

const (
	n11BatchSize       = 100
	n11ProductPageSize = 100
	n11MaxPageSize     = 100
	n11OrderPageSize   = 100
	n11PreparingDays   = 3
	n11ShipmentMethod  = 1
	n11NewCondition    = 1
)

// N11 order statuses the seller can set
const (
	N11StatusAccepted = "Accepted"
	N11StatusRejected = "Rejected"
	N11StatusShipped  = "Shipped"
)

// n11Currencies maps ISO codes to N11 currency types
var n11Currencies = map[string]int{"TRY": 1, "USD": 2, "EUR": 3}

// N11Client implements MarketplaceClient over N11's SOAP services. Listings
// are addressed by seller code, orders by N11 order id.
type N11Client struct {
	config *N11Config
	t      *httpTransport
	auth   n11Auth
}

// NewN11Client creates a new N11 client
func NewN11Client(config *N11Config, opts Options) (*N11Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := newTransport(marketsync.MarketplaceN11, opts)
	t.decodeErr = decodeSOAPError
	return &N11Client{
		config: config,
		t:      t,
		auth:   n11Auth{AppKey: config.AppKey, AppSecret: config.AppSecret},
	}, nil
}

func (c *N11Client) Code() marketsync.MarketplaceCode { return marketsync.MarketplaceN11 }

func (c *N11Client) BatchSize() int { return n11BatchSize }

// call posts one SOAP request to service and decodes the body content into out
func (c *N11Client) call(ctx context.Context, service string, in any, out any) error {
	payload, err := xml.Marshal(n11Envelope{SoapNS: n11SoapNS, SchNS: n11SchemaNS, Body: n11Body{Content: in}})
	if err != nil {
		return &marketsync.ValidationError{Marketplace: c.Code(), Message: "encode request: " + err.Error()}
	}
	raw, err := c.t.do(ctx, &request{
		method:  http.MethodPost,
		url:     joinURL(c.config.BaseURL, service+".wsdl"),
		body:    append([]byte(xml.Header), payload...),
		ctype:   "text/xml; charset=utf-8",
		headers: http.Header{"Accept": {"text/xml"}, "SOAPAction": {`""`}},
	})
	if err != nil {
		return err
	}

	var env n11ResponseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return c.t.invalidResponse(err)
	}
	if env.Body.Fault != nil {
		return &marketsync.RemoteServerError{Marketplace: c.Code(), StatusCode: http.StatusOK, Body: env.Body.Fault.String}
	}
	if err := xml.Unmarshal(env.Body.Inner, out); err != nil {
		return c.t.invalidResponse(err)
	}
	return nil
}

// check turns a failed result block into a typed error
func (c *N11Client) check(r n11Result) error {
	if strings.EqualFold(r.Status, "success") {
		return nil
	}
	msg := firstNonEmpty(r.ErrorMessage, r.ErrorCode, "request failed")
	if strings.EqualFold(r.ErrorCategory, "SECURITY") || strings.Contains(strings.ToLower(r.ErrorCode), "auth") {
		return &marketsync.AuthError{Marketplace: c.Code(), Message: msg}
	}
	var fields []marketsync.FieldError
	if r.ErrorCode != "" {
		fields = []marketsync.FieldError{{Field: r.ErrorCode, Message: msg}}
	}
	return &marketsync.ValidationError{Marketplace: c.Code(), Message: msg, Fields: fields}
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// FetchProducts reads one page of products. N11 pages are 0-based.
func (c *N11Client) FetchProducts(ctx context.Context, page marketsync.Pagination) (*marketsync.ProductPage, error) {
	page = page.Normalize(n11ProductPageSize, n11MaxPageSize)
	var resp n11GetProductListResponse
	err := c.call(ctx, "ProductService", n11GetProductListRequest{
		Auth:       c.auth,
		PagingData: n11Paging{CurrentPage: page.Page - 1, PageSize: page.PageSize},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if err := c.check(resp.Result); err != nil {
		return nil, err
	}

	out := &marketsync.ProductPage{Page: page.Page, TotalPages: resp.PagingData.PageCount, Items: make([]marketsync.RemoteProduct, 0, len(resp.Products))}
	for _, p := range resp.Products {
		rp := marketsync.RemoteProduct{
			RemoteID:  p.ProductSellerCode,
			SKU:       p.ProductSellerCode,
			Title:     p.Title,
			SalePrice: p.DisplayPrice,
			Currency:  "TRY",
			Status:    n11ApprovalStatus(p.ApprovalStatus),
			Active:    p.SaleStatus == "2",
		}
		for _, s := range p.StockItems {
			rp.Quantity += s.Quantity
			if rp.Barcode == "" {
				rp.Barcode = s.GTIN
			}
		}
		out.Items = append(out.Items, rp)
	}
	return out, nil
}

func n11ApprovalStatus(s string) marketsync.RemoteProductStatus {
	switch s {
	case "1":
		return marketsync.RemoteProductApproved
	case "4", "5":
		return marketsync.RemoteProductRejected
	default:
		return marketsync.RemoteProductPending
	}
}

// SaveProduct creates or replaces a product. The seller code is the remote id
// and doubles as the stock code of its single stock item.
func (c *N11Client) SaveProduct(ctx context.Context, listing marketsync.ProductListing) (string, error) {
	code := firstNonEmpty(listing.RemoteID, listing.SKU, listing.LocalID)
	currency, ok := n11Currencies[firstNonEmpty(listing.Currency, "TRY")]
	if !ok {
		return "", &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     "unsupported currency " + listing.Currency,
			Fields:      []marketsync.FieldError{{Field: "currencyType", Message: listing.Currency}},
		}
	}

	product := n11ProductSave{
		ProductSellerCode: code,
		Title:             listing.Title,
		Subtitle:          listing.Brand,
		Description:       listing.Description,
		CategoryID:        listing.CategoryID,
		Price:             listing.SalePrice.StringFixed(2),
		CurrencyType:      currency,
		ProductCondition:  n11NewCondition,
		PreparingDay:      n11PreparingDays,
		ShipmentTemplate:  c.config.ShipmentTemplate,
		StockItems:        []n11StockItem{{SellerStockCode: code, Quantity: listing.Quantity, GTIN: listing.Barcode}},
	}
	for i, img := range listing.Images {
		product.Images = append(product.Images, n11Image{URL: img, Order: i + 1})
	}
	names := make([]string, 0, len(listing.Attributes))
	for k := range listing.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		product.Attributes = append(product.Attributes, n11Attribute{Name: k, Value: listing.Attributes[k]})
	}

	var resp n11SaveProductResponse
	if err := c.call(ctx, "ProductService", n11SaveProductRequest{Auth: c.auth, Product: product}, &resp); err != nil {
		return "", err
	}
	if err := c.check(resp.Result); err != nil {
		return "", err
	}
	return firstNonEmpty(resp.Product.ProductSellerCode, code), nil
}

// DeactivateProduct deletes the product by seller code
func (c *N11Client) DeactivateProduct(ctx context.Context, remoteID string) error {
	var resp n11ResultOnly
	if err := c.call(ctx, "ProductService", n11DeleteProductRequest{Auth: c.auth, ProductSellerCode: remoteID}, &resp); err != nil {
		return err
	}
	return c.check(resp.Result)
}

// UpdateStock sets stock quantities by stock seller code in one call. N11
// judges the call as a whole.
func (c *N11Client) UpdateStock(ctx context.Context, updates []marketsync.StockUpdate) (*marketsync.BatchResult, error) {
	items := make([]n11StockItem, len(updates))
	refs := make([]string, len(updates))
	ids := make([]string, len(updates))
	for i, u := range updates {
		items[i] = n11StockItem{SellerStockCode: u.RemoteID, Quantity: u.Quantity}
		refs[i], ids[i] = u.Ref, u.RemoteID
	}
	var resp n11ResultOnly
	if err := c.call(ctx, "ProductStockService", n11UpdateStockRequest{Auth: c.auth, StockItems: items}, &resp); err != nil {
		return nil, err
	}
	if err := c.check(resp.Result); err != nil {
		return nil, err
	}
	return marketsync.AllAccepted("", refs, ids), nil
}

// UpdatePrice sets prices one product at a time. A rejected line fails only
// that line; any other error aborts the batch.
func (c *N11Client) UpdatePrice(ctx context.Context, updates []marketsync.PriceUpdate) (*marketsync.BatchResult, error) {
	idx := newOutcomeIndex(len(updates))
	for _, u := range updates {
		idx.add(u.Ref, u.RemoteID)
		currency, ok := n11Currencies[firstNonEmpty(u.Currency, "TRY")]
		if !ok {
			idx.fail(u.Ref, lineError(c.Code(), u.Ref, "unsupported currency "+u.Currency))
			continue
		}
		var resp n11ResultOnly
		err := c.call(ctx, "ProductService", n11UpdatePriceRequest{
			Auth:              c.auth,
			ProductSellerCode: u.RemoteID,
			Price:             u.SalePrice.StringFixed(2),
			CurrencyType:      currency,
		}, &resp)
		if err == nil {
			err = c.check(resp.Result)
		}
		if err == nil {
			continue
		}
		if marketsync.KindOf(err) != marketsync.ErrorKindValidation {
			return nil, err
		}
		idx.fail(u.Ref, err)
	}
	return idx.result(""), nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages through detailed orders created since q.Since
func (c *N11Client) FetchOrders(ctx context.Context, q marketsync.OrderQuery) ([]marketsync.RemoteOrder, error) {
	search := n11OrderSearch{Status: q.Status}
	if !q.Since.IsZero() {
		search.StartDate = q.Since.UTC().Format(n11TimeLayout)
		search.EndDate = time.Now().UTC().Format(n11TimeLayout)
	}

	var orders []marketsync.RemoteOrder
	for page := 0; ; page++ {
		var resp n11OrderListResponse
		err := c.call(ctx, "OrderService", n11OrderListRequest{
			Auth:       c.auth,
			SearchData: search,
			PagingData: n11Paging{CurrentPage: page, PageSize: n11OrderPageSize},
		}, &resp)
		if err != nil {
			return nil, err
		}
		if err := c.check(resp.Result); err != nil {
			return nil, err
		}
		for i := range resp.Orders {
			orders = append(orders, *c.toRemoteOrder(&resp.Orders[i]))
		}
		if page+1 >= resp.PagingData.PageCount || len(resp.Orders) == 0 {
			break
		}
	}
	return orders, nil
}

// FetchOrder reads one order's detail
func (c *N11Client) FetchOrder(ctx context.Context, remoteID string) (*marketsync.RemoteOrder, error) {
	o, err := c.orderDetail(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	return c.toRemoteOrder(o), nil
}

func (c *N11Client) orderDetail(ctx context.Context, remoteID string) (*n11Order, error) {
	var resp n11OrderDetailResponse
	if err := c.call(ctx, "OrderService", n11OrderDetailRequest{Auth: c.auth, OrderID: remoteID}, &resp); err != nil {
		return nil, err
	}
	if err := c.check(resp.Result); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

func (c *N11Client) toRemoteOrder(o *n11Order) *marketsync.RemoteOrder {
	total := o.TotalAmount
	if total.IsZero() {
		total = o.DueAmount
	}
	order := &marketsync.RemoteOrder{
		RemoteID:    o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		TotalAmount: total,
		Currency:    "TRY",
	}
	if t, err := time.ParseInLocation(n11TimeLayout, o.CreateDate, time.UTC); err == nil {
		order.CreatedAt = t
		order.UpdatedAt = t
	}
	for _, it := range o.Items {
		order.Lines = append(order.Lines, marketsync.RemoteOrderLine{
			RemoteProductID: it.ProductID,
			SKU:             it.ProductSellerCode,
			Quantity:        it.Quantity,
			UnitPrice:       it.Price,
		})
	}
	if raw, err := json.Marshal(o); err == nil {
		order.Raw = raw
	}
	return order
}

// UpdateOrderStatus acts on every item of the order. N11 lets the seller
// accept, reject and ship items; other statuses are set by N11 itself.
func (c *N11Client) UpdateOrderStatus(ctx context.Context, update marketsync.OrderStatusUpdate) error {
	status := strings.ToLower(update.Status)
	if status != strings.ToLower(N11StatusAccepted) && status != strings.ToLower(N11StatusRejected) && status != strings.ToLower(N11StatusShipped) {
		return &marketsync.ValidationError{
			Marketplace: c.Code(),
			Message:     fmt.Sprintf("status %q cannot be set by the seller", update.Status),
			Fields:      []marketsync.FieldError{{Field: "status", Message: update.Status}},
		}
	}
	o, err := c.orderDetail(ctx, update.RemoteOrderID)
	if err != nil {
		return err
	}
	refs := make([]n11OrderItemRef, 0, len(o.Items))
	for _, it := range o.Items {
		refs = append(refs, n11OrderItemRef{ID: it.ID})
	}
	if len(refs) == 0 {
		return &marketsync.ValidationError{Marketplace: c.Code(), Message: fmt.Sprintf("order %s has no items", update.RemoteOrderID)}
	}

	var req any
	switch status {
	case strings.ToLower(N11StatusAccepted):
		req = n11AcceptRequest{Auth: c.auth, Items: refs}
	case strings.ToLower(N11StatusRejected):
		req = n11RejectRequest{Auth: c.auth, Items: refs, RejectReason: "rejected by seller", RejectReasonType: "OTHER"}
	default:
		for i := range refs {
			refs[i].ShipmentInfo = &n11ShipmentInfo{
				ShipmentCompanyID: update.Carrier,
				TrackingNumber:    update.TrackingNumber,
				ShipmentMethod:    n11ShipmentMethod,
			}
		}
		req = n11ShipmentRequest{Auth: c.auth, Items: refs}
	}

	var resp n11ResultOnly
	if err := c.call(ctx, "OrderService", req, &resp); err != nil {
		return err
	}
	return c.check(resp.Result)
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// FetchCategories walks the category tree breadth first down to the
// configured depth. Nodes at the depth limit are reported as non-leaf.
func (c *N11Client) FetchCategories(ctx context.Context) ([]marketsync.RemoteCategory, error) {
	var top n11TopCategoriesResponse
	if err := c.call(ctx, "CategoryService", n11TopCategoriesRequest{Auth: c.auth}, &top); err != nil {
		return nil, err
	}
	if err := c.check(top.Result); err != nil {
		return nil, err
	}

	var out []marketsync.RemoteCategory
	level := make([]int, 0, len(top.Categories))
	for _, cat := range top.Categories {
		out = append(out, marketsync.RemoteCategory{RemoteID: cat.ID, Name: cat.Name})
		level = append(level, len(out)-1)
	}
	for depth := 1; depth < c.config.CategoryDepth && len(level) > 0; depth++ {
		var next []int
		for _, i := range level {
			var sub n11SubCategoriesResponse
			if err := c.call(ctx, "CategoryService", n11SubCategoriesRequest{Auth: c.auth, CategoryID: out[i].RemoteID}, &sub); err != nil {
				return nil, err
			}
			if err := c.check(sub.Result); err != nil {
				return nil, err
			}
			if len(sub.Category.SubCategories) == 0 {
				out[i].Leaf = true
				continue
			}
			for _, s := range sub.Category.SubCategories {
				out = append(out, marketsync.RemoteCategory{RemoteID: s.ID, ParentID: out[i].RemoteID, Name: s.Name})
				next = append(next, len(out)-1)
			}
		}
		level = next
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// N11WebhookParser rejects every delivery: N11 has no push notifications and
// its changes are picked up by the order pull.
type N11WebhookParser struct{}

// ParseWebhook implements WebhookParser
func (N11WebhookParser) ParseWebhook([]byte) ([]marketsync.Notification, error) {
	return nil, fmt.Errorf("%w: n11 does not push notifications", marketsync.ErrUnsupported)
}

// decodeSOAPError extracts the error text of a SOAP error body
func decodeSOAPError(body []byte) (string, []marketsync.FieldError) {
	var env n11ResponseEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return decodeJSONError(body)
	}
	if env.Body.Fault != nil {
		return env.Body.Fault.String, nil
	}
	var res n11ResultOnly
	if err := xml.Unmarshal(env.Body.Inner, &res); err == nil && res.Result.ErrorMessage != "" {
		return res.Result.ErrorMessage, nil
	}
	return truncate(string(bytes.TrimSpace(body)), maxErrorBody), nil
}

var (
	_ marketsync.MarketplaceClient = (*N11Client)(nil)
	_ marketsync.WebhookParser     = N11WebhookParser{}
)
