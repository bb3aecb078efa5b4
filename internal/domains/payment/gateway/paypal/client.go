// Package paypal implements the PayPal Orders v2 checkout flow.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/money"
	"storefront-backend/internal/domains/payment/gateway/token"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// PAYPAL CLIENT
// =====================================================

type Client struct {
	methods    credentials.Source
	httpClient *http.Client
	tokens     *token.Source
	urls       gateway.CallbackURLs
	// override replaces both sandbox and live hosts when set.
	override string
	now      func() time.Time
}

var _ gateway.Gateway = (*Client)(nil)

func New(opts gateway.Options) *Client {
	opts = opts.WithDefaults()
	return &Client{
		methods:    opts.Methods,
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		urls:       opts.URLs,
		override:   opts.Endpoint(model.ProviderPayPal, ""),
		now:        opts.Now,
	}
}

func (c *Client) Code() string { return model.ProviderPayPal }

func (c *Client) Supports(methodCode string) bool { return methodCode == c.Code() }

func (c *Client) IsConfigured(ctx context.Context) bool {
	return credentials.Configured(ctx, c.methods, credentialSpec)
}

func (c *Client) ConfigFields() []model.ConfigField {
	return configFields
}

func (c *Client) baseURL(creds *credentials.Resolver) string {
	if c.override != "" {
		return c.override
	}
	if creds.IsTestMode() {
		return SandboxBaseURL
	}
	return LiveBaseURL
}

// =====================================================
// INITIATE (CREATE ORDER)
// =====================================================

func (c *Client) Initiate(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error) {
	// Step 1: Resolve credentials
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		return nil, err
	}

	// Step 2: Validate amount and address
	if !order.Total.IsPositive() {
		return nil, model.NewInvalidAmountError(order.Total.String())
	}
	currency := strings.ToUpper(order.Currency)
	if currency == "" {
		currency = model.DefaultCurrency
	}

	unit := purchaseUnit{
		ReferenceID: order.ID.String(),
		CustomID:    order.ID.String(),
		InvoiceID:   order.OrderNumber,
		Amount: amountWithBreakdown{
			CurrencyCode: currency,
			Value:        money.Fixed2(order.Total),
			Breakdown:    buildBreakdown(order, currency),
		},
	}

	shippingPreference := "NO_SHIPPING"
	if !order.ShippingAddress.IsEmpty() {
		shipping, err := buildShipping(order)
		if err != nil {
			return nil, err
		}
		unit.Shipping = shipping
		shippingPreference = "SET_PROVIDED_ADDRESS"
	}

	body := createOrderRequest{
		Intent:        "CAPTURE",
		PurchaseUnits: []purchaseUnit{unit},
		ApplicationContext: applicationContext{
			ReturnURL:          gateway.Override(data, "return_url", c.urls.Return(c.Code(), order.ID)),
			CancelURL:          gateway.Override(data, "cancel_url", c.urls.Cancel(c.Code(), order.ID)),
			BrandName:          creds.Get(keyBrandName),
			ShippingPreference: shippingPreference,
			UserAction:         "PAY_NOW",
		},
	}

	// Step 3: Create remote order
	var created orderResponse
	if err := c.call(ctx, creds, http.MethodPost, "/v2/checkout/orders", body, order.ID.String(), &created); err != nil {
		return nil, model.NewProviderError(c.Code(), "create order", err)
	}

	// Step 4: Extract approve link
	approve := created.approveURL()
	if created.ID == "" || approve == "" {
		return nil, model.NewProviderError(c.Code(), "create order", errors.New("response has no approve link"))
	}

	ref := &model.GatewayReference{
		Provider:    c.Code(),
		SessionID:   created.ID,
		InitiatedAt: c.now(),
	}
	result := model.NewRedirectResult(approve, ref)
	result.PaymentData["paypal_order_id"] = created.ID
	return result, nil
}

// buildBreakdown is sent only when the components add up to the total;
// PayPal rejects inconsistent breakdowns.
func buildBreakdown(order *model.Order, currency string) *breakdown {
	items := order.Subtotal
	sum := items.Add(order.ShippingAmount).Add(order.TaxAmount).Sub(order.DiscountAmount)
	if !items.IsPositive() || !sum.Equal(order.Total) {
		return nil
	}

	mv := func(d decimal.Decimal) *moneyValue {
		if d.IsZero() {
			return nil
		}
		return &moneyValue{CurrencyCode: currency, Value: money.Fixed2(d)}
	}
	return &breakdown{
		ItemTotal: &moneyValue{CurrencyCode: currency, Value: money.Fixed2(items)},
		Shipping:  mv(order.ShippingAmount),
		TaxTotal:  mv(order.TaxAmount),
		Discount:  mv(order.DiscountAmount),
	}
}

func buildShipping(order *model.Order) (*shippingDetail, error) {
	addr := order.ShippingAddress
	country, ok := CountryCode(addr.Country)
	if !ok {
		return nil, model.NewInvalidAddressError("Unrecognized shipping country: " + addr.Country)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return nil, model.NewInvalidAddressError("Shipping address line 1 is required")
	}

	s := &shippingDetail{}
	s.Name.FullName = order.CustomerName
	s.Address.AddressLine1 = addr.Line1
	s.Address.AddressLine2 = addr.Line2
	s.Address.AdminArea2 = addr.City
	s.Address.AdminArea1 = addr.State
	s.Address.PostalCode = addr.PostalCode
	s.Address.CountryCode = country
	return s, nil
}

// =====================================================
// VERIFY (CAPTURE ON RETURN)
// =====================================================

// Verify captures the approved remote order. Paid iff the capture (or an
// earlier capture) is COMPLETED for the order total. A token other than the
// stored remote order must carry this order's custom_id before it is
// captured.
func (c *Client) Verify(ctx context.Context, order *model.Order, data map[string]string) *model.VerifyResult {
	remoteID := strings.TrimSpace(data["token"])
	if remoteID == "" && order.GatewayReference != nil {
		remoteID = order.GatewayReference.SessionID
	}
	if remoteID == "" {
		return model.NotPaid("no PayPal order to capture")
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, order.ID.String(), "verify")
		return model.NotPaid(err.Error())
	}

	if !order.GatewayReference.MatchesSession(remoteID) {
		var remote orderResponse
		if err := c.call(ctx, creds, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(remoteID), nil, "", &remote); err != nil {
			c.logFailure(err, order.ID.String(), "show order")
			return model.NotPaid("failed to read PayPal order")
		}
		if remote.customID() != order.ID.String() {
			c.logFailure(model.ErrReferenceMismatch, order.ID.String(), "verify")
			return model.NotPaid("PayPal order does not belong to this order")
		}
	}

	captured, err := c.capture(ctx, creds, remoteID)
	if err != nil {
		c.logFailure(err, order.ID.String(), "capture order")
		return model.NotPaid("failed to capture PayPal order")
	}

	result := &model.VerifyResult{
		Paid:          captured.Status == statusCompleted,
		TransactionID: captured.captureID(),
		RemoteStatus:  captured.Status,
	}
	if amount, ok := captured.capturedAmount(); result.Paid && ok && !amount.Equal(order.Total.Round(2)) {
		c.logFailure(model.ErrAmountMismatch, order.ID.String(), "verify")
		return model.NotPaid("captured amount does not match order total")
	}
	return result
}

// capture posts a capture and falls back to reading the order when PayPal
// reports it was already captured.
func (c *Client) capture(ctx context.Context, creds *credentials.Resolver, remoteID string) (*orderResponse, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(remoteID)

	var captured orderResponse
	err := c.call(ctx, creds, http.MethodPost, path+"/capture", struct{}{}, "capture-"+remoteID, &captured)
	if err == nil {
		return &captured, nil
	}

	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != issueAlreadyCaptured {
		return nil, err
	}

	var existing orderResponse
	if err := c.call(ctx, creds, http.MethodGet, path, nil, "", &existing); err != nil {
		return nil, err
	}
	return &existing, nil
}

// =====================================================
// CALLBACK
// =====================================================

// HandleCallback handles the browser return. PayPal appends token (the
// remote order id) and PayerID; trust comes from the authenticated capture.
func (c *Client) HandleCallback(ctx context.Context, payload *model.CallbackPayload) *model.CallbackResult {
	orderID := payload.Field("order_id")
	remoteID := payload.Field("token")

	if payload.Field("cancelled") != "" {
		return &model.CallbackResult{
			Verified:   true,
			Event:      model.EventPaymentReturn,
			OrderID:    orderID,
			SessionRef: remoteID,
			Message:    "Payment cancelled by customer",
		}
	}
	if remoteID == "" {
		return model.CallbackFailed("missing token")
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, orderID, "callback")
		return model.CallbackFailed(err.Error())
	}

	captured, err := c.capture(ctx, creds, remoteID)
	if err != nil {
		c.logFailure(err, orderID, "capture order")
		return model.CallbackFailed("failed to capture PayPal order")
	}

	result := &model.CallbackResult{
		Verified:      true,
		Event:         model.EventPaymentReturn,
		OrderID:       captured.customID(),
		SessionRef:    remoteID,
		TransactionID: captured.captureID(),
	}
	if captured.Status == statusCompleted {
		result.Success = true
		result.Status = model.PaymentStatusPaid
		result.Message = "Payment captured"
	} else {
		result.Message = "PayPal order status " + captured.Status
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

	captureID := order.CapturedTransactionID()
	if captureID == "" {
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
		Amount: moneyValue{CurrencyCode: strings.ToUpper(order.Currency), Value: money.Fixed2(refundAmount)},
	}
	if reason != "" {
		body.NoteToPayer = truncate(reason, 255)
	}

	var rf refundResponse
	path := "/v2/payments/captures/" + url.PathEscape(captureID) + "/refund"
	if err := c.call(ctx, creds, http.MethodPost, path, body, "", &rf); err != nil {
		c.logFailure(err, order.ID.String(), "refund capture")
		return model.RefundFailed(model.KindProvider, refundAmount, "PayPal refund failed: "+err.Error())
	}

	ok := rf.Status == statusCompleted || rf.Status == statusPending
	result := &model.RefundResult{
		Success:       ok,
		TransactionID: rf.ID,
		Amount:        refundAmount,
		Status:        rf.Status,
		Message:       "Refund " + strings.ToLower(rf.Status),
	}
	if !ok {
		result.Kind = model.KindProvider
	}
	return result
}

// =====================================================
// HTTP HELPERS
// =====================================================

// tokenKey scopes cached tokens by mode and client id so a credential change
// never reuses a stale token.
func (c *Client) tokenKey(creds *credentials.Resolver) string {
	mode := model.ModeLive
	if creds.IsTestMode() {
		mode = model.ModeTest
	}
	return token.Key(c.Code(), mode, creds.Get(keyClientID))
}

func (c *Client) accessToken(ctx context.Context, creds *credentials.Resolver) (string, error) {
	tok, err := c.tokens.Token(ctx, c.tokenKey(creds), func(ctx context.Context) (*token.Token, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(creds)+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(creds.Get(keyClientID), creds.Get(keyClientSecret))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		var resp tokenResponse
		if err := gateway.Do(c.httpClient, req, &resp, parseError); err != nil {
			return nil, err
		}
		return &token.Token{
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			ExpiresAt:   c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		}, nil
	})
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *Client) call(ctx context.Context, creds *credentials.Resolver, method, path string, body interface{}, requestID string, out interface{}) error {
	accessToken, err := c.accessToken(ctx, creds)
	if err != nil {
		return err
	}

	reader := bytes.NewReader(nil)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL(creds)+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	err = gateway.Do(c.httpClient, req, out, parseError)
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(ctx, c.tokenKey(creds))
	}
	return err
}

func (c *Client) logFailure(err error, orderID, op string) {
	log.Error().Err(err).
		Str("provider", model.ProviderPayPal).
		Str("order_id", orderID).
		Str("operation", op).
		Msg("paypal operation failed")
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
