// Package stripe implements hosted Checkout sessions against the Stripe API.
package stripe

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/money"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// STRIPE CLIENT
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
		baseURL:    opts.Endpoint(model.ProviderStripe, DefaultBaseURL),
		now:        opts.Now,
	}
}

func (c *Client) Code() string { return model.ProviderStripe }

func (c *Client) Supports(methodCode string) bool { return methodCode == c.Code() }

func (c *Client) IsConfigured(ctx context.Context) bool {
	return credentials.Configured(ctx, c.methods, credentialSpec)
}

func (c *Client) ConfigFields() []model.ConfigField {
	return configFields
}

// =====================================================
// INITIATE (CHECKOUT SESSION)
// =====================================================

// Initiate creates a hosted Checkout session and redirects to it. Shipping is
// sent as a fixed-amount shipping option next to a single line item for the
// rest of the total.
func (c *Client) Initiate(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error) {
	// Step 1: Resolve credentials
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		return nil, err
	}

	// Step 2: Compute amounts
	currency := strings.ToLower(order.Currency)
	if currency == "" {
		currency = strings.ToLower(model.DefaultCurrency)
	}
	itemsMinor := money.MinorUnits(order.ItemsTotal(), currency)
	shippingMinor := money.MinorUnits(order.ShippingAmount, currency)
	if itemsMinor <= 0 || itemsMinor+shippingMinor <= 0 {
		return nil, model.NewInvalidAmountError(order.Total.String())
	}

	// Step 3: Build form
	successURL := gateway.Override(data, "return_url",
		c.urls.ReturnWith(c.Code(), order.ID, "session_id="+checkoutPlacehold))
	cancelURL := gateway.Override(data, "cancel_url", c.urls.Cancel(c.Code(), order.ID))

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", order.ID.String())
	form.Set("metadata[order_id]", order.ID.String())
	form.Set("metadata[order_number]", order.OrderNumber)
	form.Set("payment_intent_data[metadata][order_id]", order.ID.String())
	if order.CustomerEmail != "" {
		form.Set("customer_email", order.CustomerEmail)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(itemsMinor, 10))
	form.Set("line_items[0][price_data][product_data][name]", "Order #"+order.OrderNumber)
	if shippingMinor > 0 {
		form.Set("shipping_options[0][shipping_rate_data][type]", "fixed_amount")
		form.Set("shipping_options[0][shipping_rate_data][display_name]", "Shipping")
		form.Set("shipping_options[0][shipping_rate_data][fixed_amount][amount]", strconv.FormatInt(shippingMinor, 10))
		form.Set("shipping_options[0][shipping_rate_data][fixed_amount][currency]", currency)
	}

	// Step 4: Call Stripe
	var session checkoutSession
	if err := c.post(ctx, creds, "/v1/checkout/sessions", form, order.ID.String(), &session); err != nil {
		return nil, model.NewProviderError(c.Code(), "create checkout session", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, model.NewProviderError(c.Code(), "create checkout session", errMissing("url"))
	}

	// Step 5: Return redirect
	ref := &model.GatewayReference{
		Provider:        c.Code(),
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntent,
		InitiatedAt:     c.now(),
	}
	result := model.NewRedirectResult(session.URL, ref)
	if pk := creds.Get(keyPublishable); pk != "" {
		result.PaymentData["publishable_key"] = pk
	}
	result.PaymentData["session_id"] = session.ID
	return result, nil
}

// =====================================================
// VERIFY
// =====================================================

// Verify settles by payment intent when one is known and falls back to the
// checkout session. With neither there is nothing to ask Stripe about.
// A remote object counts as paid only when it belongs to this order and
// carries the amount requested at initiation.
func (c *Client) Verify(ctx context.Context, order *model.Order, data map[string]string) *model.VerifyResult {
	ref := order.GatewayReference
	intentID := strings.TrimSpace(data["payment_intent_id"])
	sessionID := strings.TrimSpace(data["session_id"])
	if ref != nil {
		if intentID == "" {
			intentID = ref.PaymentIntentID
		}
		if sessionID == "" {
			sessionID = ref.SessionID
		}
	}
	if intentID == "" && sessionID == "" {
		return model.NotPaid("no payment intent or checkout session to verify")
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, order.ID.String(), "verify")
		return model.NotPaid(err.Error())
	}

	if intentID != "" {
		intent, err := c.retrieveIntent(ctx, creds, intentID)
		if err != nil {
			c.logFailure(err, order.ID.String(), "retrieve payment intent")
			return model.NotPaid("failed to retrieve payment intent")
		}
		if !ref.MatchesSession(intent.ID) && intent.Metadata["order_id"] != order.ID.String() {
			c.logFailure(model.ErrReferenceMismatch, order.ID.String(), "verify payment intent")
			return model.NotPaid("payment intent does not belong to this order")
		}
		result := &model.VerifyResult{
			Paid:            intent.Status == intentSucceeded,
			TransactionID:   intent.ID,
			PaymentIntentID: intent.ID,
			RemoteStatus:    intent.Status,
		}
		if result.Paid && intent.Amount != chargedMinor(order) {
			c.logFailure(model.ErrAmountMismatch, order.ID.String(), "verify payment intent")
			return model.NotPaid("payment intent amount does not match order total")
		}
		return result
	}

	session, err := c.retrieveSession(ctx, creds, sessionID)
	if err != nil {
		c.logFailure(err, order.ID.String(), "retrieve checkout session")
		return model.NotPaid("failed to retrieve checkout session")
	}
	if !ref.MatchesSession(session.ID) && session.ClientReferenceID != order.ID.String() &&
		session.Metadata["order_id"] != order.ID.String() {
		c.logFailure(model.ErrReferenceMismatch, order.ID.String(), "verify checkout session")
		return model.NotPaid("checkout session does not belong to this order")
	}
	result := &model.VerifyResult{
		Paid:            session.PaymentStatus == sessionPaid,
		TransactionID:   session.PaymentIntent,
		PaymentIntentID: session.PaymentIntent,
		RemoteStatus:    session.PaymentStatus,
	}
	if result.Paid && session.AmountTotal != chargedMinor(order) {
		c.logFailure(model.ErrAmountMismatch, order.ID.String(), "verify checkout session")
		return model.NotPaid("checkout session amount does not match order total")
	}
	return result
}

// chargedMinor is the amount Initiate asks Stripe for: items plus shipping,
// each rounded to minor units.
func chargedMinor(order *model.Order) int64 {
	currency := order.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}
	return money.MinorUnits(order.ItemsTotal(), currency) + money.MinorUnits(order.ShippingAmount, currency)
}

// =====================================================
// CALLBACK
// =====================================================

// HandleCallback accepts signed webhooks (Stripe-Signature header) and
// browser returns carrying session_id. A browser return is trusted only
// after re-fetching the session from Stripe.
func (c *Client) HandleCallback(ctx context.Context, payload *model.CallbackPayload) *model.CallbackResult {
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, payload.Field("order_id"), "callback")
		return model.CallbackFailed(err.Error())
	}

	if payload.Headers != nil && payload.Headers.Get(signatureHeader) != "" {
		return c.handleWebhook(creds, payload)
	}

	if payload.Field("cancelled") != "" {
		return &model.CallbackResult{
			Verified: true,
			Event:    model.EventPaymentReturn,
			OrderID:  payload.Field("order_id"),
			Message:  "Payment cancelled by customer",
		}
	}

	sessionID := payload.Field("session_id")
	if sessionID == "" || sessionID == checkoutPlacehold {
		return model.CallbackFailed("missing session_id")
	}

	session, err := c.retrieveSession(ctx, creds, sessionID)
	if err != nil {
		c.logFailure(err, payload.Field("order_id"), "retrieve checkout session")
		return model.CallbackFailed("failed to retrieve checkout session")
	}

	result := &model.CallbackResult{
		Verified:      true,
		Event:         model.EventPaymentReturn,
		OrderID:       session.ClientReferenceID,
		SessionRef:    session.ID,
		TransactionID: session.PaymentIntent,
	}
	if result.OrderID == "" {
		result.OrderID = session.Metadata["order_id"]
	}
	if session.PaymentStatus == sessionPaid {
		result.Success = true
		result.Status = model.PaymentStatusPaid
		result.Message = "Payment completed"
	} else {
		result.Message = "Payment not completed: " + session.PaymentStatus
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

	intentID := ""
	if ref := order.GatewayReference; ref != nil {
		intentID = ref.PaymentIntentID
		if intentID == "" {
			intentID = ref.TransactionID
		}
	}
	if intentID == "" {
		pe := model.NewNoCapturedTransactionError(order.ID.String())
		c.logFailure(pe, order.ID.String(), "refund")
		return model.RefundFailed(pe.Kind, refundAmount, pe.Message)
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, order.ID.String(), "refund")
		return model.RefundFailed(model.KindOf(err), refundAmount, err.Error())
	}

	form := url.Values{}
	form.Set("payment_intent", intentID)
	form.Set("amount", strconv.FormatInt(money.MinorUnits(refundAmount, order.Currency), 10))
	form.Set("metadata[order_id]", order.ID.String())
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}

	idempotencyKey := order.ID.String() + "-refund-" + strconv.Itoa(len(order.GatewayReference.Refunds)+1)

	var rf refund
	if err := c.post(ctx, creds, "/v1/refunds", form, idempotencyKey, &rf); err != nil {
		c.logFailure(err, order.ID.String(), "create refund")
		return model.RefundFailed(model.KindProvider, refundAmount, "Stripe refund failed: "+err.Error())
	}

	ok := rf.Status == refundSucceeded || rf.Status == refundPending
	result := &model.RefundResult{
		Success:       ok,
		TransactionID: rf.ID,
		Amount:        money.MajorUnits(rf.Amount, order.Currency),
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

func (c *Client) post(ctx context.Context, creds *credentials.Resolver, path string, form url.Values, idempotencyKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+creds.Get(keySecret))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return gateway.Do(c.httpClient, req, out, parseError)
}

func (c *Client) get(ctx context.Context, creds *credentials.Resolver, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.Get(keySecret))
	return gateway.Do(c.httpClient, req, out, parseError)
}

func (c *Client) retrieveIntent(ctx context.Context, creds *credentials.Resolver, id string) (*paymentIntent, error) {
	var intent paymentIntent
	if err := c.get(ctx, creds, "/v1/payment_intents/"+url.PathEscape(id), &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) retrieveSession(ctx context.Context, creds *credentials.Resolver, id string) (*checkoutSession, error) {
	var session checkoutSession
	if err := c.get(ctx, creds, "/v1/checkout/sessions/"+url.PathEscape(id), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) logFailure(err error, orderID, op string) {
	log.Error().Err(err).
		Str("provider", model.ProviderStripe).
		Str("order_id", orderID).
		Str("operation", op).
		Msg("stripe operation failed")
}

type errMissing string

func (e errMissing) Error() string { return "response missing " + string(e) }
