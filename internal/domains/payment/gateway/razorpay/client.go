// Package razorpay implements Razorpay Standard Checkout: a server-side order
// plus the checkout.js modal, settled by a signed callback or webhook.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/money"
	"storefront-backend/internal/domains/payment/gateway/signature"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// RAZORPAY CLIENT
// =====================================================

type Client struct {
	methods    credentials.Source
	httpClient *http.Client
	urls       gateway.CallbackURLs
	baseURL    string
	now        func() time.Time
}

var _ gateway.Gateway = (*Client)(nil)

func New(opts gateway.Options) *Client {
	opts = opts.WithDefaults()
	return &Client{
		methods:    opts.Methods,
		httpClient: opts.HTTPClient,
		urls:       opts.URLs,
		baseURL:    opts.Endpoint(model.ProviderRazorpay, DefaultBaseURL),
		now:        opts.Now,
	}
}

func (c *Client) Code() string { return model.ProviderRazorpay }

func (c *Client) Supports(methodCode string) bool { return methodCode == c.Code() }

func (c *Client) IsConfigured(ctx context.Context) bool {
	return credentials.Configured(ctx, c.methods, credentialSpec)
}

func (c *Client) ConfigFields() []model.ConfigField {
	return configFields
}

// =====================================================
// SIGNATURES
// =====================================================

// VerifyPaymentSignature checks the checkout handler signature,
// HMAC-SHA256(order_id + "|" + payment_id) keyed with the key secret.
func VerifyPaymentSignature(orderID, paymentID, sig, secret string) bool {
	if orderID == "" || paymentID == "" {
		return false
	}
	return signature.VerifyHMACSHA256([]byte(orderID+"|"+paymentID), secret, sig)
}

// VerifyWebhookSignature checks X-Razorpay-Signature over the raw body.
func VerifyWebhookSignature(body []byte, sig, secret string) bool {
	return signature.VerifyHMACSHA256(body, secret, sig)
}

// =====================================================
// INITIATE (ORDER + CHECKOUT MODAL)
// =====================================================

func (c *Client) Initiate(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error) {
	// Step 1: Resolve credentials
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		return nil, err
	}

	// Step 2: Convert amount
	currency := strings.ToUpper(order.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	amount := money.Subunits(order.Total)
	if amount <= 0 {
		return nil, model.NewInvalidAmountError(order.Total.String())
	}

	// Step 3: Create remote order
	var created orderEntity
	err = c.send(ctx, creds, http.MethodPost, "/v1/orders", createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  order.OrderNumber,
		Notes: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
		},
	}, &created)
	if err != nil {
		return nil, model.NewProviderError(c.Code(), "create order", err)
	}
	if created.ID == "" {
		return nil, model.NewProviderError(c.Code(), "create order", errors.New("response has no order id"))
	}

	// Step 4: Describe the checkout modal
	name := creds.Get(keyMerchantName)
	if name == "" {
		name = "Order #" + order.OrderNumber
	}
	callbackURL := gateway.Override(data, "return_url", c.urls.Return(c.Code(), order.ID))

	return &model.GatewayResult{
		Success:     true,
		GatewayType: model.GatewayTypeFrontendIntegration,
		PaymentData: map[string]interface{}{
			"key":          creds.Get(keyID),
			"order_id":     created.ID,
			"amount":       amount,
			"currency":     currency,
			"name":         name,
			"description":  "Payment for order #" + order.OrderNumber,
			"callback_url": callbackURL,
			"script":       CheckoutScript,
			"prefill": map[string]string{
				"name":    order.CustomerName,
				"email":   order.CustomerEmail,
				"contact": order.CustomerPhone,
			},
			"notes": map[string]string{"order_id": order.ID.String()},
		},
		Reference: &model.GatewayReference{
			Provider:    c.Code(),
			SessionID:   created.ID,
			InitiatedAt: c.now(),
		},
	}, nil
}

// =====================================================
// VERIFY
// =====================================================

// Verify accepts the checkout handler fields (razorpay_payment_id,
// razorpay_order_id, razorpay_signature). Without them it lists the payments
// of the stored Razorpay order.
func (c *Client) Verify(ctx context.Context, order *model.Order, data map[string]string) *model.VerifyResult {
	sessionRef := ""
	if order.GatewayReference != nil {
		sessionRef = order.GatewayReference.SessionID
	}

	paymentID := strings.TrimSpace(data["razorpay_payment_id"])
	remoteOrderID := strings.TrimSpace(data["razorpay_order_id"])
	if paymentID == "" && sessionRef == "" {
		return model.NotPaid("no Razorpay order to verify")
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, order.ID.String(), "verify")
		return model.NotPaid(err.Error())
	}

	if paymentID != "" {
		if sessionRef != "" && remoteOrderID != sessionRef {
			return model.NotPaid("razorpay_order_id does not belong to this order")
		}
		if !VerifyPaymentSignature(remoteOrderID, paymentID, data["razorpay_signature"], creds.Get(keySecret)) {
			c.logFailure(model.ErrInvalidSignature, order.ID.String(), "verify payment signature")
			return model.NotPaid("invalid payment signature")
		}

		var payment paymentEntity
		if err := c.send(ctx, creds, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &payment); err != nil {
			c.logFailure(err, order.ID.String(), "fetch payment")
			return model.NotPaid("failed to fetch payment")
		}
		return &model.VerifyResult{
			Paid:          payment.Status == paymentCaptured,
			TransactionID: payment.ID,
			RemoteStatus:  payment.Status,
		}
	}

	var payments paymentList
	if err := c.send(ctx, creds, http.MethodGet, "/v1/orders/"+url.PathEscape(sessionRef)+"/payments", nil, &payments); err != nil {
		c.logFailure(err, order.ID.String(), "list order payments")
		return model.NotPaid("failed to list order payments")
	}
	for _, p := range payments.Items {
		if p.Status == paymentCaptured {
			return &model.VerifyResult{Paid: true, TransactionID: p.ID, RemoteStatus: p.Status}
		}
	}
	return model.NotPaid("no captured payment for Razorpay order " + sessionRef)
}

// =====================================================
// CALLBACK
// =====================================================

// HandleCallback accepts webhooks (X-Razorpay-Signature) and the checkout
// callback_url POST. Failure fields on the callback are unsigned and never
// change the order.
func (c *Client) HandleCallback(ctx context.Context, payload *model.CallbackPayload) *model.CallbackResult {
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, payload.Field("order_id"), "callback")
		return model.CallbackFailed(err.Error())
	}

	if payload.Headers != nil && payload.Headers.Get(signatureHeader) != "" {
		return c.handleWebhook(creds, payload)
	}

	paymentID := payload.Field("razorpay_payment_id")
	remoteOrderID := payload.Field("razorpay_order_id")
	if paymentID == "" {
		if desc := payload.Field("error[description]"); desc != "" {
			return model.CallbackFailed("Payment failed: " + desc)
		}
		return model.CallbackFailed("missing razorpay_payment_id")
	}

	if !VerifyPaymentSignature(remoteOrderID, paymentID, payload.Field("razorpay_signature"), creds.Get(keySecret)) {
		c.logFailure(model.ErrInvalidSignature, payload.Field("order_id"), "verify payment signature")
		return model.CallbackFailed("invalid payment signature")
	}

	return &model.CallbackResult{
		Verified:      true,
		Success:       true,
		Event:         model.EventPaymentReturn,
		SessionRef:    remoteOrderID,
		TransactionID: paymentID,
		Status:        model.PaymentStatusPaid,
		Message:       "Payment signature verified",
	}
}

func (c *Client) handleWebhook(creds *credentials.Resolver, payload *model.CallbackPayload) *model.CallbackResult {
	if !VerifyWebhookSignature(payload.Body, payload.Headers.Get(signatureHeader), creds.Get(keyWebhookSecret)) {
		c.logFailure(model.ErrInvalidSignature, "", "verify webhook signature")
		return model.CallbackFailed("invalid webhook signature")
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload.Body, &evt); err != nil {
		return model.CallbackFailed("malformed webhook body")
	}

	result := &model.CallbackResult{
		Verified: true,
		Event:    evt.Event,
		EventID:  payload.Headers.Get(eventIDHeader),
	}

	var payment *paymentEntity
	if evt.Payload.Payment != nil {
		payment = &evt.Payload.Payment.Entity
		result.OrderID = payment.Notes["order_id"]
		result.SessionRef = payment.OrderID
		result.TransactionID = payment.ID
	}

	switch evt.Event {
	case EventPaymentCaptured, EventOrderPaid:
		if payment == nil {
			return model.CallbackFailed("webhook has no payment entity")
		}
		result.Success = true
		result.Status = model.PaymentStatusPaid
		result.Message = "Payment captured"

	case EventPaymentFailed:
		result.Status = model.PaymentStatusFailed
		result.Message = "Payment failed"
		if payment != nil && payment.ErrorDescription != "" {
			result.Message += ": " + payment.ErrorDescription
		}

	case EventRefundCreated, EventRefundProcessed:
		if evt.Payload.Refund == nil {
			return model.CallbackFailed("webhook has no refund entity")
		}
		rf := evt.Payload.Refund.Entity
		amount := money.FromSubunits(rf.Amount)
		result.Success = true
		result.Event = model.EventRefundCreated
		result.RefundID = rf.ID
		result.RefundAmount = &amount
		result.TransactionID = rf.PaymentID
		if result.OrderID == "" {
			result.OrderID = rf.Notes["order_id"]
		}
		result.Message = "Refund " + rf.Status

	default:
		result.Message = "Event ignored: " + evt.Event
	}

	return result
}

// =====================================================
// REFUND
// =====================================================

func (c *Client) Refund(ctx context.Context, order *model.Order, amount *decimal.Decimal, reason string) *model.RefundResult {
	refundAmount := order.RefundableAmount()
	if amount != nil {
		refundAmount = *amount
	}

	paymentID := order.CapturedTransactionID()
	if paymentID == "" {
		pe := model.NewNoCapturedTransactionError(order.ID.String())
		c.logFailure(pe, order.ID.String(), "refund")
		return model.RefundFailed(pe.Kind, refundAmount, pe.Message)
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, order.ID.String(), "refund")
		return model.RefundFailed(model.KindOf(err), refundAmount, err.Error())
	}

	body := refundRequest{
		Amount: money.Subunits(refundAmount),
		Notes:  map[string]string{"order_id": order.ID.String()},
	}
	if reason != "" {
		body.Notes["reason"] = reason
	}

	var rf refundEntity
	if err := c.send(ctx, creds, http.MethodPost, "/v1/payments/"+url.PathEscape(paymentID)+"/refund", body, &rf); err != nil {
		c.logFailure(err, order.ID.String(), "create refund")
		return model.RefundFailed(model.KindProvider, refundAmount, "Razorpay refund failed: "+err.Error())
	}

	ok := rf.Status == refundProcessed || rf.Status == refundPending
	result := &model.RefundResult{
		Success:       ok,
		TransactionID: rf.ID,
		Amount:        money.FromSubunits(rf.Amount),
		Status:        rf.Status,
		Message:       "Refund " + rf.Status,
	}
	if !ok {
		result.Kind = model.KindProvider
	}
	return result
}

// =====================================================
// HTTP HELPERS
// =====================================================

func (c *Client) send(ctx context.Context, creds *credentials.Resolver, method, path string, body, out interface{}) error {
	reader := bytes.NewReader(nil)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(creds.Get(keyID), creds.Get(keySecret))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return gateway.Do(c.httpClient, req, out, parseError)
}

func (c *Client) logFailure(err error, orderID, op string) {
	log.Error().Err(err).
		Str("provider", model.ProviderRazorpay).
		Str("order_id", orderID).
		Str("operation", op).
		Msg("razorpay operation failed")
}
