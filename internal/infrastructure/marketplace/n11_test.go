package marketplace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

func soapResponse(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"><SOAP-ENV:Header/>` +
		`<SOAP-ENV:Body>` + inner + `</SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

func newTestN11(t *testing.T, handler http.HandlerFunc) *N11Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewN11Client(&N11Config{AppKey: "app", AppSecret: "secret", BaseURL: srv.URL}, Options{})
	require.NoError(t, err)
	return c
}

func TestN11Client_FetchProducts(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ProductService.wsdl", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<sch:GetProductListRequest>")
		assert.Contains(t, string(body), "<appKey>app</appKey>")
		assert.Contains(t, string(body), "<currentPage>0</currentPage>")
		_, _ = w.Write([]byte(soapResponse(`<ns3:GetProductListResponse xmlns:ns3="http://www.n11.com/ws/schemas">` +
			`<result><status>success</status></result>` +
			`<products><product><id>1</id><productSellerCode>SKU-1</productSellerCode><title>Mug</title>` +
			`<displayPrice>49.90</displayPrice><saleStatus>2</saleStatus><approvalStatus>1</approvalStatus>` +
			`<stockItems><stockItem><sellerStockCode>SKU-1</sellerStockCode><quantity>7</quantity><gtin>869</gtin></stockItem></stockItems>` +
			`</product></products>` +
			`<pagingData><currentPage>0</currentPage><pageSize>100</pageSize><totalCount>1</totalCount><pageCount>1</pageCount></pagingData>` +
			`</ns3:GetProductListResponse>`)))
	})

	page, err := c.FetchProducts(context.Background(), marketsync.Pagination{Page: 1})
	require.NoError(t, err)
	assert.False(t, page.HasMore())
	require.Len(t, page.Items, 1)
	p := page.Items[0]
	assert.Equal(t, "SKU-1", p.RemoteID)
	assert.Equal(t, int64(7), p.Quantity)
	assert.Equal(t, "869", p.Barcode)
	assert.True(t, p.Active)
	assert.Equal(t, marketsync.RemoteProductApproved, p.Status)
	assert.True(t, decimal.RequireFromString("49.90").Equal(p.SalePrice))
}

func TestN11Client_FailedResultIsValidation(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(soapResponse(`<ns3:UpdateStockByStockSellerCodeResponse xmlns:ns3="http://www.n11.com/ws/schemas">` +
			`<result><status>failure</status><errorCode>SELLER_API.stockItemNotFound</errorCode><errorMessage>stock item not found</errorMessage><errorCategory>SELLER_API</errorCategory></result>` +
			`</ns3:UpdateStockByStockSellerCodeResponse>`)))
	})

	_, err := c.UpdateStock(context.Background(), []marketsync.StockUpdate{{Ref: "1", RemoteID: "SKU-1", Quantity: 3}})
	assert.ErrorIs(t, err, marketsync.ErrValidation)
	assert.Contains(t, err.Error(), "stock item not found")
}

func TestN11Client_SecurityFailureIsAuth(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(soapResponse(`<ns3:DeleteProductBySellerCodeResponse xmlns:ns3="http://www.n11.com/ws/schemas">` +
			`<result><status>failure</status><errorCode>SELLER_API.invalidKey</errorCode><errorMessage>invalid app key</errorMessage><errorCategory>SECURITY</errorCategory></result>` +
			`</ns3:DeleteProductBySellerCodeResponse>`)))
	})

	err := c.DeactivateProduct(context.Background(), "SKU-1")
	assert.ErrorIs(t, err, marketsync.ErrAuth)
}

func TestN11Client_SoapFaultIsServerError(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(soapResponse(`<SOAP-ENV:Fault><faultcode>SOAP-ENV:Server</faultcode><faultstring>internal</faultstring></SOAP-ENV:Fault>`)))
	})

	err := c.DeactivateProduct(context.Background(), "SKU-1")
	assert.ErrorIs(t, err, marketsync.ErrRemoteServer)
}

func TestN11Client_UpdatePricePerLine(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		status := "success"
		if strings.Contains(string(body), "<productSellerCode>SKU-2</productSellerCode>") {
			status = "failure"
		}
		_, _ = w.Write([]byte(soapResponse(fmt.Sprintf(`<ns3:UpdateProductPriceBySellerCodeResponse xmlns:ns3="http://www.n11.com/ws/schemas">`+
			`<result><status>%s</status><errorMessage>price below minimum</errorMessage></result>`+
			`</ns3:UpdateProductPriceBySellerCodeResponse>`, status))))
	})

	res, err := c.UpdatePrice(context.Background(), []marketsync.PriceUpdate{
		{Ref: "1", RemoteID: "SKU-1", SalePrice: decimal.NewFromInt(10)},
		{Ref: "2", RemoteID: "SKU-2", SalePrice: decimal.NewFromInt(1)},
		{Ref: "3", RemoteID: "SKU-3", SalePrice: decimal.NewFromInt(5), Currency: "GBP"},
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.ErrorIs(t, res.Outcomes[1].Err, marketsync.ErrValidation)
	assert.ErrorIs(t, res.Outcomes[2].Err, marketsync.ErrValidation)
}

func TestN11Client_UpdatePriceAbortsOnTransportFailure(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.UpdatePrice(context.Background(), []marketsync.PriceUpdate{{Ref: "1", RemoteID: "SKU-1", SalePrice: decimal.NewFromInt(10)}})
	assert.ErrorIs(t, err, marketsync.ErrRemoteServer)
}

func TestN11Client_UpdateOrderStatus(t *testing.T) {
	var actions []string
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "OrderDetailRequest"):
			actions = append(actions, "detail")
			_, _ = w.Write([]byte(soapResponse(`<ns3:OrderDetailResponse xmlns:ns3="http://www.n11.com/ws/schemas">` +
				`<result><status>success</status></result>` +
				`<orderDetail><id>900</id><orderNumber>N-900</orderNumber><status>1</status>` +
				`<itemList><item><id>901</id><productSellerCode>SKU-1</productSellerCode><quantity>1</quantity><price>10</price></item></itemList>` +
				`</orderDetail></ns3:OrderDetailResponse>`)))
		case strings.Contains(string(body), "MakeOrderItemShipmentRequest"):
			actions = append(actions, "ship")
			assert.Contains(t, string(body), "<trackingNumber>TRK1</trackingNumber>")
			assert.Contains(t, string(body), "<id>901</id>")
			_, _ = w.Write([]byte(soapResponse(`<ns3:MakeOrderItemShipmentResponse xmlns:ns3="http://www.n11.com/ws/schemas"><result><status>success</status></result></ns3:MakeOrderItemShipmentResponse>`)))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	err := c.UpdateOrderStatus(context.Background(), marketsync.OrderStatusUpdate{RemoteOrderID: "900", Status: N11StatusShipped, TrackingNumber: "TRK1", Carrier: "12"})
	require.NoError(t, err)
	assert.Equal(t, []string{"detail", "ship"}, actions)

	err = c.UpdateOrderStatus(context.Background(), marketsync.OrderStatusUpdate{RemoteOrderID: "900", Status: "Delivered"})
	assert.ErrorIs(t, err, marketsync.ErrValidation)
}

func TestN11Client_FetchCategoriesWalksDepth(t *testing.T) {
	c := newTestN11(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "GetTopLevelCategoriesRequest") {
			_, _ = w.Write([]byte(soapResponse(`<ns3:GetTopLevelCategoriesResponse xmlns:ns3="http://www.n11.com/ws/schemas">` +
				`<result><status>success</status></result>` +
				`<categoryList><category><id>1</id><name>Home</name></category><category><id>2</id><name>Books</name></category></categoryList>` +
				`</ns3:GetTopLevelCategoriesResponse>`)))
			return
		}
		subs := ""
		if strings.Contains(string(body), "<categoryId>1</categoryId>") {
			subs = `<subCategoryList><subCategory><id>10</id><name>Kitchen</name></subCategory></subCategoryList>`
		}
		_, _ = w.Write([]byte(soapResponse(`<ns3:GetSubCategoriesResponse xmlns:ns3="http://www.n11.com/ws/schemas">` +
			`<result><status>success</status></result><category><id>x</id>` + subs + `</category>` +
			`</ns3:GetSubCategoriesResponse>`)))
	})

	cats, err := c.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, "1", cats[0].RemoteID)
	assert.False(t, cats[0].Leaf)
	assert.True(t, cats[1].Leaf, "a top category without children is a leaf")
	assert.Equal(t, "10", cats[2].RemoteID)
	assert.Equal(t, "1", cats[2].ParentID)
}

func TestN11WebhookParser_Unsupported(t *testing.T) {
	_, err := N11WebhookParser{}.ParseWebhook([]byte(`{}`))
	assert.ErrorIs(t, err, marketsync.ErrUnsupported)
}
