package phonepe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/phonepe/sdk"
	"storefront-backend/internal/domains/payment/model"
)

func testMethod() *model.PaymentMethod {
	return &model.PaymentMethod{
		Code:     model.ProviderPhonePe,
		IsActive: true,
		Mode:     model.ModeLive,
		Configuration: map[string]string{
			"client_id":        "M22",
			"client_secret":    "secret",
			"client_version":   "1",
			"webhook_username": "hook",
			"webhook_password": "pass",
		},
	}
}

func newTestClient(t *testing.T, method *model.PaymentMethod, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth/token" {
			atomic.AddInt32(&tokenCalls, 1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "M22", r.PostForm.Get("client_id"))
			assert.Equal(t, "1", r.PostForm.Get("client_version"))
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			fmt.Fprintf(w, `{"access_token":"tok","token_type":"O-Bearer","expires_at":%d}`, time.Now().Add(time.Hour).Unix())
			return
		}
		assert.Equal(t, "O-Bearer tok", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(gateway.Options{
		Methods:    credentials.NewStaticSource(method),
		HTTPClient: srv.Client(),
		URLs:       gateway.CallbackURLs{BaseURL: "https://shop.example.com"},
		Endpoints:  map[string]string{model.ProviderPhonePe: srv.URL},
	})
	return c, &tokenCalls
}

func testOrder() *model.Order {
	return &model.Order{
		ID:                uuid.MustParse("5c4b3a29-1807-4f6e-9d5c-4b3a29180706"),
		OrderNumber:       "ORD-5005",
		Currency:          "INR",
		Total:             decimal.RequireFromString("149.99"),
		PaymentMethodCode: model.ProviderPhonePe,
		PaymentStatus:     model.PaymentStatusPending,
	}
}

func TestInitiatePendingRedirects(t *testing.T) {
	c, _ := newTestClient(t, testMethod(), func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkout/v2/pay", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(14999), body["amount"])
		assert.Equal(t, "ORD-5005", body["merchantOrderId"])
		flow := body["paymentFlow"].(map[string]interface{})
		assert.Equal(t, "PG_CHECKOUT", flow["type"])
		urls := flow["merchantUrls"].(map[string]interface{})
		assert.Contains(t, urls["redirectUrl"], "order_number=ORD-5005")
		fmt.Fprint(w, `{"orderId":"OMO123","state":"PENDING","expireAt":1703756259307,"redirectUrl":"https://mercury.phonepe.com/transact/pg?token=abc"}`)
	})

	result, err := c.Initiate(context.Background(), testOrder(), nil)

	require.NoError(t, err)
	assert.Equal(t, "https://mercury.phonepe.com/transact/pg?token=abc", result.RedirectURL())
	assert.Equal(t, "ORD-5005", result.Reference.SessionID)
	assert.Equal(t, "OMO123", result.Reference.ExtraValue(extraPhonePeOrderID))
}

func TestInitiateNonPendingStateIsProviderError(t *testing.T) {
	c, _ := newTestClient(t, testMethod(), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orderId":"OMO123","state":"FAILED"}`)
	})

	_, err := c.Initiate(context.Background(), testOrder(), nil)

	require.Error(t, err)
	assert.Equal(t, model.KindProvider, model.KindOf(err))
}

func TestInitiateRejectsBadClientVersion(t *testing.T) {
	method := testMethod()
	method.Configuration["client_version"] = "v1"
	c, tokenCalls := newTestClient(t, method, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})

	_, err := c.Initiate(context.Background(), testOrder(), nil)

	assert.Equal(t, model.KindConfiguration, model.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(tokenCalls))
	assert.False(t, c.IsConfigured(context.Background()))
}

func TestVerifyCompletedOrder(t *testing.T) {
	c, tokenCalls := newTestClient(t, testMethod(), func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkout/v2/order/ORD-5005/status", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("details"))
		fmt.Fprint(w, `{"orderId":"OMO123","state":"COMPLETED","amount":14999,"paymentDetails":[
			{"transactionId":"OM1","state":"FAILED"},{"transactionId":"OM2","state":"COMPLETED"}]}`)
	})

	first := c.Verify(context.Background(), testOrder(), nil)
	second := c.Verify(context.Background(), testOrder(), nil)

	assert.True(t, first.Paid)
	assert.Equal(t, "OM2", first.TransactionID)
	assert.True(t, second.Paid)
	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls))
}

func TestBrowserReturnPollsStatus(t *testing.T) {
	c, _ := newTestClient(t, testMethod(), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orderId":"OMO123","state":"PENDING"}`)
	})

	result := c.HandleCallback(context.Background(), &model.CallbackPayload{
		Fields: map[string]string{"order_id": "5c4b3a29-1807-4f6e-9d5c-4b3a29180706", "order_number": "ORD-5005"},
	})

	assert.True(t, result.Verified)
	assert.False(t, result.Success)
	assert.Empty(t, result.Status)
	assert.Empty(t, result.OrderID)
	assert.Equal(t, "ORD-5005", result.SessionRef)
}

func TestWebhookAuthorization(t *testing.T) {
	c, _ := newTestClient(t, testMethod(), func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})
	body := []byte(`{"event":"checkout.order.completed","payload":{"orderId":"OMO123","merchantOrderId":"ORD-5005","state":"COMPLETED","amount":14999,"paymentDetails":[{"transactionId":"OM2","state":"COMPLETED"}]}}`)

	ok := c.HandleCallback(context.Background(), &model.CallbackPayload{
		Body:    body,
		Headers: http.Header{"Authorization": []string{sdk.CallbackAuthorization("hook", "pass")}},
	})
	assert.True(t, ok.Verified)
	assert.True(t, ok.Success)
	assert.Equal(t, "ORD-5005", ok.OrderNumber)
	assert.Equal(t, "OM2", ok.TransactionID)
	assert.NotEmpty(t, ok.EventID)

	bad := c.HandleCallback(context.Background(), &model.CallbackPayload{
		Body:    body,
		Headers: http.Header{"Authorization": []string{sdk.CallbackAuthorization("hook", "wrong")}},
	})
	assert.False(t, bad.Verified)
}

func TestRefund(t *testing.T) {
	c, _ := newTestClient(t, testMethod(), func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/v2/refund", r.URL.Path)
		var body sdk.RefundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(5000), body.Amount)
		assert.Equal(t, "ORD-5005", body.OriginalMerchantOrderID)
		assert.Equal(t, "ORD-5005-R1", body.MerchantRefundID)
		fmt.Fprint(w, `{"refundId":"OMR1","amount":5000,"state":"PENDING"}`)
	})
	order := testOrder()
	order.PaymentStatus = model.PaymentStatusPaid
	order.GatewayReference = &model.GatewayReference{SessionID: "ORD-5005", TransactionID: "OM2"}
	amount := decimal.NewFromInt(50)

	result := c.Refund(context.Background(), order, &amount, "")

	assert.True(t, result.Success)
	assert.Equal(t, "ORD-5005-R1", result.TransactionID)
}

func TestPoolReusesClientPerCredentialSet(t *testing.T) {
	pool := sdk.NewPool(nil, nil, sdk.ProductionEndpoints)
	cfg := sdk.Config{ClientID: "a", ClientSecret: "s", ClientVersion: 1}

	first := pool.Client(cfg)
	second := pool.Client(cfg)
	cfg.ClientVersion = 2
	third := pool.Client(cfg)

	assert.Same(t, first, second)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, pool.Len())
}
