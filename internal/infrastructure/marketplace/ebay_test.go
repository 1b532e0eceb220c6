package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

func newTestEbay(t *testing.T, mux *http.ServeMux, refreshToken string) *EbayClient {
	t.Helper()
	mux.HandleFunc(EbayTokenPath, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cid", user)
		assert.Equal(t, "cs", pass)
		_ = r.ParseForm()
		want := "client_credentials"
		if refreshToken != "" {
			want = "refresh_token"
		}
		assert.Equal(t, want, r.PostForm.Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"eb-token","expires_in":7200,"token_type":"User Access Token"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewEbayClient(&EbayConfig{ClientID: "cid", ClientSecret: "cs", RefreshToken: refreshToken, BaseURL: srv.URL}, Options{})
	require.NoError(t, err)
	return c
}

func TestEbayConfig_Defaults(t *testing.T) {
	cfg := &EbayConfig{ClientID: "c", ClientSecret: "s"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "EBAY_DE", cfg.MarketplaceID)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, EbayAPIURL, cfg.BaseURL)

	assert.ErrorIs(t, (&EbayConfig{ClientID: "c"}).Validate(), ErrMissingCredential)
}

func TestEbayClient_UpdateStockBulk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sell/inventory/v1/bulk_update_price_quantity", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer eb-token", r.Header.Get("Authorization"))
		assert.Equal(t, "EBAY_DE", r.Header.Get("X-EBAY-C-MARKETPLACE-ID"))
		var body ebayBulkRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Requests, 2)
		_, _ = w.Write([]byte(`{"responses":[
			{"sku":"SKU-1","statusCode":200},
			{"sku":"SKU-2","statusCode":400,"errors":[{"errorId":25604,"message":"Product not found."}]}
		]}`))
	})
	c := newTestEbay(t, mux, "")

	res, err := c.UpdateStock(context.Background(), []marketsync.StockUpdate{
		{Ref: "1", RemoteID: "SKU-1", Quantity: 2},
		{Ref: "2", RemoteID: "SKU-2", Quantity: 9},
	})
	require.NoError(t, err)
	one, _ := res.OutcomeFor("1")
	assert.NoError(t, one.Err)
	two, _ := res.OutcomeFor("2")
	assert.ErrorIs(t, two.Err, marketsync.ErrValidation)
	assert.Contains(t, two.Err.Error(), "Product not found.")
}

func TestEbayClient_UpdatePriceResolvesOffers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sell/inventory/v1/offer", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sku") == "SKU-2" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"errorId":25713,"message":"This Offer is not available."}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total":1,"offers":[{"offerId":"O-1","sku":"SKU-1","marketplaceId":"EBAY_DE"}]}`))
	})
	mux.HandleFunc("/sell/inventory/v1/bulk_update_price_quantity", func(w http.ResponseWriter, r *http.Request) {
		var body ebayBulkRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Requests, 1) && assert.Len(t, body.Requests[0].Offers, 1) {
			assert.Equal(t, "O-1", body.Requests[0].Offers[0].OfferID)
			assert.Equal(t, "19.90", body.Requests[0].Offers[0].Price.Value)
			assert.Equal(t, "EUR", body.Requests[0].Offers[0].Price.Currency)
		}
		_, _ = w.Write([]byte(`{"responses":[{"sku":"SKU-1","offerId":"O-1","statusCode":200}]}`))
	})
	c := newTestEbay(t, mux, "rt")

	res, err := c.UpdatePrice(context.Background(), []marketsync.PriceUpdate{
		{Ref: "1", RemoteID: "SKU-1", SalePrice: decimal.RequireFromString("19.9")},
		{Ref: "2", RemoteID: "SKU-2", SalePrice: decimal.NewFromInt(5)},
	})
	require.NoError(t, err)
	one, _ := res.OutcomeFor("1")
	assert.NoError(t, one.Err)
	two, _ := res.OutcomeFor("2")
	assert.ErrorIs(t, two.Err, marketsync.ErrValidation)
}

func TestEbayClient_FetchCategories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/commerce/taxonomy/v1/get_default_category_tree_id", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EBAY_DE", r.URL.Query().Get("marketplace_id"))
		_, _ = w.Write([]byte(`{"categoryTreeId":"77"}`))
	})
	mux.HandleFunc("/commerce/taxonomy/v1/category_tree/77", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"categoryTreeId":"77","rootCategoryNode":{"category":{"categoryId":"0","categoryName":"Root"},
			"childCategoryTreeNodes":[{"category":{"categoryId":"1","categoryName":"Home"},
				"childCategoryTreeNodes":[{"category":{"categoryId":"11","categoryName":"Kitchen"},"leafCategoryTreeNode":true}]}]}}`))
	})
	c := newTestEbay(t, mux, "")

	cats, err := c.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, marketsync.RemoteCategory{RemoteID: "1", Name: "Home"}, cats[0])
	assert.Equal(t, marketsync.RemoteCategory{RemoteID: "11", ParentID: "1", Name: "Kitchen", Leaf: true}, cats[1])
}

func TestEbayClient_FetchOrders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sell/fulfillment/v1/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("filter"), "lastmodifieddate:[")
		_, _ = w.Write([]byte(`{"total":1,"orders":[{"orderId":"12-345","orderFulfillmentStatus":"NOT_STARTED","orderPaymentStatus":"PAID",
			"pricingSummary":{"total":{"value":"40.00","currency":"EUR"}},
			"lineItems":[{"lineItemId":"li-1","legacyItemId":"2001","sku":"SKU-1","quantity":4,"lineItemCost":{"value":"40.00","currency":"EUR"}}]}]}`))
	})
	c := newTestEbay(t, mux, "")

	orders, err := c.FetchOrders(context.Background(), marketsync.OrderQuery{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "NOT_STARTED", orders[0].Status)
	assert.Equal(t, "PAID", orders[0].PaymentStatus)
	assert.True(t, decimal.NewFromInt(10).Equal(orders[0].Lines[0].UnitPrice))
}

func TestEbayWebhookParser(t *testing.T) {
	notes, err := EbayWebhookParser{}.ParseWebhook([]byte(`{"metadata":{"topic":"ITEM_SOLD"},
		"notification":{"notificationId":"n-1","eventDate":"2026-05-01T10:00:00Z","data":{"orderId":"12-345"}}}`))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, marketsync.NotificationOrderCreated, notes[0].Kind)
	assert.Equal(t, "12-345", notes[0].RemoteEntityID)

	_, err = EbayWebhookParser{}.ParseWebhook([]byte(`{"metadata":{"topic":"MARKETPLACE_ACCOUNT_DELETION"}}`))
	assert.ErrorIs(t, err, marketsync.ErrValidation)
}
