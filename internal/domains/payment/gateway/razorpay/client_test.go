package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/signature"
	"storefront-backend/internal/domains/payment/model"
)

const (
	testKeyID     = "rzp_test_abc"
	testSecret    = "s3cr3t"
	testWebhookSK = "whk"
)

func testMethod() *model.PaymentMethod {
	return &model.PaymentMethod{
		Code:     model.ProviderRazorpay,
		IsActive: true,
		Mode:     model.ModeTest,
		Configuration: map[string]string{
			"test_key_id":     testKeyID,
			"test_key_secret": testSecret,
			"webhook_secret":  testWebhookSK,
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testKeyID, user)
		assert.Equal(t, testSecret, pass)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(gateway.Options{
		Methods:    credentials.NewStaticSource(testMethod()),
		HTTPClient: srv.Client(),
		URLs:       gateway.CallbackURLs{BaseURL: "https://shop.example.com"},
		Endpoints:  map[string]string{model.ProviderRazorpay: srv.URL},
	})
	return c, &calls
}

func testOrder() *model.Order {
	return &model.Order{
		ID:                uuid.MustParse("9a3d2c1b-0f4e-4d5c-8b7a-1c2d3e4f5a6b"),
		OrderNumber:       "3003",
		Currency:          "INR",
		Total:             decimal.RequireFromString("499.50"),
		CustomerName:      "Ravi Kumar",
		CustomerEmail:     "ravi@example.com",
		CustomerPhone:     "9999999999",
		PaymentMethodCode: model.ProviderRazorpay,
		PaymentStatus:     model.PaymentStatusPending,
	}
}

func sign(payload, secret string) string {
	return signature.HMACSHA256Hex([]byte(payload), secret)
}

func TestInitiateReturnsCheckoutParameters(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)
		var body createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(49950), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, "3003", body.Receipt)
		assert.Equal(t, "9a3d2c1b-0f4e-4d5c-8b7a-1c2d3e4f5a6b", body.Notes["order_id"])
		fmt.Fprint(w, `{"id":"order_RZ1","amount":49950,"currency":"INR","status":"created"}`)
	})

	result, err := c.Initiate(context.Background(), testOrder(), nil)

	require.NoError(t, err)
	assert.Equal(t, model.GatewayTypeFrontendIntegration, result.GatewayType)
	assert.Equal(t, "order_RZ1", result.PaymentData["order_id"])
	assert.Equal(t, testKeyID, result.PaymentData["key"])
	assert.Equal(t, int64(49950), result.PaymentData["amount"])
	assert.Equal(t, CheckoutScript, result.PaymentData["script"])
	assert.Equal(t, "order_RZ1", result.Reference.SessionID)
}

func TestInitiateRejectsZeroAmount(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	order := testOrder()
	order.Total = decimal.Zero

	_, err := c.Initiate(context.Background(), order, nil)

	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestCallbackVerifiesHandlerSignature(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	good := c.HandleCallback(context.Background(), &model.CallbackPayload{Fields: map[string]string{
		"order_id":            "9a3d2c1b-0f4e-4d5c-8b7a-1c2d3e4f5a6b",
		"razorpay_order_id":   "order_RZ1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sign("order_RZ1|pay_1", testSecret),
	}})
	assert.True(t, good.Verified)
	assert.True(t, good.Success)
	assert.Equal(t, "pay_1", good.TransactionID)
	assert.Equal(t, model.PaymentStatusPaid, good.Status)
	// The posted order_id is unsigned; only the signed razorpay order binds.
	assert.Empty(t, good.OrderID)
	assert.Equal(t, "order_RZ1", good.SessionRef)

	bad := c.HandleCallback(context.Background(), &model.CallbackPayload{Fields: map[string]string{
		"razorpay_order_id":   "order_RZ1",
		"razorpay_payment_id": "pay_2",
		"razorpay_signature":  sign("order_RZ1|pay_1", testSecret),
	}})
	assert.False(t, bad.Verified)
	assert.False(t, bad.Success)
	assert.Empty(t, bad.Status)

	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestWebhookPaymentCaptured(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_RZ1","amount":49950,"status":"captured","notes":{"order_id":"9a3d2c1b-0f4e-4d5c-8b7a-1c2d3e4f5a6b"}}}}}`)

	result := c.HandleCallback(context.Background(), &model.CallbackPayload{
		Body: body,
		Headers: http.Header{
			signatureHeader: []string{sign(string(body), testWebhookSK)},
			eventIDHeader:   []string{"evt_1"},
		},
	})

	assert.True(t, result.Verified)
	assert.True(t, result.Success)
	assert.Equal(t, "evt_1", result.EventID)
	assert.Equal(t, "order_RZ1", result.SessionRef)
	assert.Equal(t, "9a3d2c1b-0f4e-4d5c-8b7a-1c2d3e4f5a6b", result.OrderID)
}

func TestWebhookRefundCreated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"refund.created","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","amount":10000,"status":"processed"}},"payment":{"entity":{"id":"pay_1","order_id":"order_RZ1","notes":{"order_id":"abc"}}}}}`)

	result := c.HandleCallback(context.Background(), &model.CallbackPayload{
		Body:    body,
		Headers: http.Header{signatureHeader: []string{sign(string(body), testWebhookSK)}},
	})

	assert.True(t, result.Success)
	assert.Equal(t, model.EventRefundCreated, result.Event)
	assert.Equal(t, "rfnd_1", result.RefundID)
	require.NotNil(t, result.RefundAmount)
	assert.True(t, result.RefundAmount.Equal(decimal.NewFromInt(100)))
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"payment.captured"}`)
	sig := sign(string(body), testWebhookSK)

	result := c.HandleCallback(context.Background(), &model.CallbackPayload{
		Body:    []byte(`{"event":"payment.captured "}`),
		Headers: http.Header{signatureHeader: []string{sig}},
	})

	assert.False(t, result.Verified)
}

func TestVerifyListsOrderPayments(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders/order_RZ1/payments", r.URL.Path)
		fmt.Fprint(w, `{"count":2,"items":[{"id":"pay_0","status":"failed"},{"id":"pay_1","status":"captured"}]}`)
	})
	order := testOrder()
	order.GatewayReference = &model.GatewayReference{SessionID: "order_RZ1"}

	result := c.Verify(context.Background(), order, nil)

	assert.True(t, result.Paid)
	assert.Equal(t, "pay_1", result.TransactionID)
}

func TestVerifyRejectsForeignOrderID(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	order := testOrder()
	order.GatewayReference = &model.GatewayReference{SessionID: "order_RZ1"}

	result := c.Verify(context.Background(), order, map[string]string{
		"razorpay_order_id":   "order_OTHER",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sign("order_OTHER|pay_1", testSecret),
	})

	assert.False(t, result.Paid)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestRefundPayment(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments/pay_1/refund", r.URL.Path)
		var body refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(49950), body.Amount)
		fmt.Fprint(w, `{"id":"rfnd_1","payment_id":"pay_1","amount":49950,"status":"processed"}`)
	})
	order := testOrder()
	order.PaymentStatus = model.PaymentStatusPaid
	order.GatewayReference = &model.GatewayReference{SessionID: "order_RZ1", TransactionID: "pay_1"}

	result := c.Refund(context.Background(), order, nil, "")

	assert.True(t, result.Success)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("499.50")))
}
