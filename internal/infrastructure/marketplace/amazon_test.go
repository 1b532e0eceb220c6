package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

type amazonStub struct {
	mux        *http.ServeMux
	tokenCalls atomic.Int32
}

func newAmazonStub() *amazonStub {
	s := &amazonStub{mux: http.NewServeMux()}
	s.mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		n := s.tokenCalls.Add(1)
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"bad refresh token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-" + string(rune('0'+n)), "expires_in": 3600})
	})
	return s
}

func (s *amazonStub) client(t *testing.T) *AmazonClient {
	t.Helper()
	srv := httptest.NewServer(s.mux)
	t.Cleanup(srv.Close)
	c, err := NewAmazonClient(&AmazonConfig{
		SellerID:     "S1",
		ClientID:     "cid",
		ClientSecret: "cs",
		RefreshToken: "rt",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/auth/o2/token",
	}, Options{})
	require.NoError(t, err)
	return c
}

func TestAmazonClient_UpdateStockPerLine(t *testing.T) {
	stub := newAmazonStub()
	stub.mux.HandleFunc("/listings/2021-08-01/items/S1/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "at-1", r.Header.Get("x-amz-access-token"))
		assert.Equal(t, defaultAmazonMarketplID, r.URL.Query().Get("marketplaceIds"))
		if r.URL.Path == "/listings/2021-08-01/items/S1/SKU-2" {
			_, _ = w.Write([]byte(`{"sku":"SKU-2","status":"INVALID","issues":[{"severity":"ERROR","message":"quantity invalid"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"sku":"SKU-1","status":"ACCEPTED"}`))
	})
	c := stub.client(t)

	res, err := c.UpdateStock(context.Background(), []marketsync.StockUpdate{
		{Ref: "1", RemoteID: "SKU-1", Quantity: 3},
		{Ref: "2", RemoteID: "SKU-2", Quantity: -1},
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.ErrorIs(t, res.Outcomes[1].Err, marketsync.ErrValidation)
	assert.Contains(t, res.Outcomes[1].Err.Error(), "quantity invalid")
	assert.Equal(t, int32(1), stub.tokenCalls.Load(), "token is cached across calls")
}

func TestAmazonClient_ReauthenticatesAfterUnauthorized(t *testing.T) {
	stub := newAmazonStub()
	var calls atomic.Int32
	stub.mux.HandleFunc("/listings/2021-08-01/items/S1/SKU-1", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "at-2", r.Header.Get("x-amz-access-token"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := stub.client(t)

	err := c.DeactivateProduct(context.Background(), "SKU-1")
	assert.ErrorIs(t, err, marketsync.ErrAuth)

	require.NoError(t, c.DeactivateProduct(context.Background(), "SKU-1"))
	assert.Equal(t, int32(2), stub.tokenCalls.Load())
}

func TestAmazonClient_RejectedGrantIsAuthError(t *testing.T) {
	stub := newAmazonStub()
	srv := httptest.NewServer(stub.mux)
	defer srv.Close()
	c, err := NewAmazonClient(&AmazonConfig{
		SellerID: "S1", ClientID: "cid", ClientSecret: "cs", RefreshToken: "expired",
		BaseURL: srv.URL, TokenURL: srv.URL + "/auth/o2/token",
	}, Options{})
	require.NoError(t, err)

	_, err = c.FetchCategories(context.Background())
	assert.ErrorIs(t, err, marketsync.ErrAuth)
	assert.False(t, marketsync.IsRetryable(err))
}

func TestAmazonClient_FetchProductsFollowsPageTokens(t *testing.T) {
	stub := newAmazonStub()
	stub.mux.HandleFunc("/listings/2021-08-01/items/S1", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageToken") {
		case "":
			_, _ = w.Write([]byte(`{"pagination":{"nextToken":"t2"},"items":[{"sku":"SKU-1","summaries":[{"marketplaceId":"A33AVAJ2PDY3EV","itemName":"Mug","status":["BUYABLE","DISCOVERABLE"]}],"fulfillmentAvailability":[{"fulfillmentChannelCode":"DEFAULT","quantity":4}]}]}`))
		case "t2":
			_, _ = w.Write([]byte(`{"items":[{"sku":"SKU-2","summaries":[{"itemName":"Cup","status":[]}],"issues":[{"severity":"ERROR","message":"missing brand"}]}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	c := stub.client(t)

	// page 2 before page 1: the token is discovered by walking
	page2, err := c.FetchProducts(context.Background(), marketsync.Pagination{Page: 2})
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, "SKU-2", page2.Items[0].RemoteID)
	assert.Equal(t, marketsync.RemoteProductRejected, page2.Items[0].Status)
	assert.False(t, page2.HasMore())

	page1, err := c.FetchProducts(context.Background(), marketsync.Pagination{Page: 1})
	require.NoError(t, err)
	assert.True(t, page1.HasMore())
	assert.Equal(t, int64(4), page1.Items[0].Quantity)
	assert.True(t, page1.Items[0].Active)
}

func TestAmazonClient_FetchOrder(t *testing.T) {
	stub := newAmazonStub()
	stub.mux.HandleFunc("/orders/v0/orders/402-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload":{"AmazonOrderId":"402-1","OrderStatus":"Unshipped","PurchaseDate":"2026-05-01T10:00:00Z","LastUpdateDate":"2026-05-01T11:00:00Z","OrderTotal":{"CurrencyCode":"EUR","Amount":"30.00"}}}`))
	})
	stub.mux.HandleFunc("/orders/v0/orders/402-1/orderItems", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload":{"OrderItems":[{"ASIN":"B01","SellerSKU":"SKU-1","OrderItemId":"oi-1","QuantityOrdered":2,"ItemPrice":{"CurrencyCode":"EUR","Amount":"30.00"}}]}}`))
	})
	c := stub.client(t)

	o, err := c.FetchOrder(context.Background(), "402-1")
	require.NoError(t, err)
	assert.Equal(t, "Unshipped", o.Status)
	assert.True(t, decimal.NewFromInt(30).Equal(o.TotalAmount))
	require.Len(t, o.Lines, 1)
	assert.True(t, decimal.NewFromInt(15).Equal(o.Lines[0].UnitPrice))
}

func TestAmazonClient_OnlyShippedCanBeSet(t *testing.T) {
	c := newAmazonStub().client(t)
	err := c.UpdateOrderStatus(context.Background(), marketsync.OrderStatusUpdate{RemoteOrderID: "402-1", Status: "Canceled"})
	assert.ErrorIs(t, err, marketsync.ErrValidation)
}

func TestAmazonWebhookParser(t *testing.T) {
	notes, err := AmazonWebhookParser{}.ParseWebhook([]byte(`{
		"NotificationType":"ORDER_CHANGE",
		"EventTime":"2026-05-01T10:00:00Z",
		"NotificationMetadata":{"NotificationId":"n-1"},
		"Payload":{"OrderChangeNotification":{"AmazonOrderId":"402-1","OrderStatus":"Canceled"}}
	}`))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n-1", notes[0].EventID)
	assert.Equal(t, marketsync.NotificationOrderCancelled, notes[0].Kind)
	assert.Equal(t, "402-1", notes[0].RemoteEntityID)

	notes, err = AmazonWebhookParser{}.ParseWebhook([]byte(`{
		"NotificationType":"LISTINGS_ITEM_STATUS_CHANGE",
		"NotificationMetadata":{"NotificationId":"n-2"},
		"Payload":{"SellerId":"S1","Sku":"SKU-1","Status":["BUYABLE"]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, marketsync.NotificationProductApproved, notes[0].Kind)

	_, err = AmazonWebhookParser{}.ParseWebhook([]byte(`{"NotificationType":"FEED_PROCESSING_FINISHED"}`))
	assert.ErrorIs(t, err, marketsync.ErrValidation)
}
