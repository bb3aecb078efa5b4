// Package phonepe implements PhonePe Standard Checkout through the pooled
// sdk client. Orders are addressed by their order number.
package phonepe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/money"
	"storefront-backend/internal/domains/payment/gateway/phonepe/sdk"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// PHONEPE CONFIGURATION
// =====================================================

const (
	keyClientID         = "client_id"
	keyClientSecret     = "client_secret"
	keyClientVersion    = "client_version"
	keyWebhookUsername  = "webhook_username"
	keyWebhookPassword  = "webhook_password"
	extraMerchantOrder  = "merchant_order_id"
	extraPhonePeOrderID = "phonepe_order_id"
)

var credentialSpec = credentials.Spec{
	Code:     model.ProviderPhonePe,
	Required: []string{keyClientID, keyClientSecret, keyClientVersion},
}

var configFields = []model.ConfigField{
	model.ModeField(),
	{Key: "client_id", Label: "Client ID", Type: model.FieldTypeText, Required: true},
	{Key: "client_secret", Label: "Client Secret", Type: model.FieldTypePassword, Required: true},
	{Key: "client_version", Label: "Client Version", Type: model.FieldTypeText, Required: true, Help: "Numeric version issued with the client id"},
	{Key: "webhook_username", Label: "Webhook Username", Type: model.FieldTypeText, Help: "Configured on the PhonePe dashboard"},
	{Key: "webhook_password", Label: "Webhook Password", Type: model.FieldTypePassword},
}

// =====================================================
// PHONEPE CLIENT
// =====================================================

type Client struct {
	methods credentials.Source
	pool    *sdk.Pool
	urls    gateway.CallbackURLs
	now     func() time.Time
}

var _ gateway.Gateway = (*Client)(nil)

func New(opts gateway.Options) *Client {
	opts = opts.WithDefaults()
	endpoints := sdk.ProductionEndpoints
	if base := opts.Endpoint(model.ProviderPhonePe, ""); base != "" {
		endpoints = sdk.Endpoints{Auth: base + "/v1/oauth/token", PG: base}
	}
	return &Client{
		methods: opts.Methods,
		pool:    sdk.NewPool(opts.HTTPClient, opts.Tokens, endpoints),
		urls:    opts.URLs,
		now:     opts.Now,
	}
}

func (c *Client) Code() string { return model.ProviderPhonePe }

func (c *Client) Supports(methodCode string) bool { return methodCode == c.Code() }

func (c *Client) IsConfigured(ctx context.Context) bool {
	_, _, err := c.load(ctx)
	return err == nil
}

func (c *Client) ConfigFields() []model.ConfigField {
	return configFields
}

// load resolves credentials and returns the pooled sdk client for them.
func (c *Client) load(ctx context.Context) (*credentials.Resolver, *sdk.Client, error) {
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		return nil, nil, err
	}
	version, err := strconv.Atoi(creds.Get(keyClientVersion))
	if err != nil || version <= 0 {
		return nil, nil, model.NewConfigurationError(c.Code(), []string{keyClientVersion})
	}
	client := c.pool.Client(sdk.Config{
		ClientID:      creds.Get(keyClientID),
		ClientSecret:  creds.Get(keyClientSecret),
		ClientVersion: version,
		Env:           sdk.EnvProduction,
	})
	return creds, client, nil
}

// =====================================================
// INITIATE
// =====================================================

func (c *Client) Initiate(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error) {
	// Step 1: Resolve credentials
	_, client, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	// Step 2: Convert amount to paise
	amount := money.Subunits(order.Total)
	if amount <= 0 {
		return nil, model.NewInvalidAmountError(order.Total.String())
	}

	// Step 3: Create pay request
	redirectURL := gateway.Override(data, "return_url",
		c.urls.ReturnWith(c.Code(), order.ID, "order_number="+order.OrderNumber))
	resp, err := client.Pay(ctx, sdk.PayRequest{
		MerchantOrderID: order.OrderNumber,
		Amount:          amount,
		RedirectURL:     redirectURL,
		Message:         "Payment for order #" + order.OrderNumber,
		MetaInfo:        map[string]string{"udf1": order.ID.String()},
	})
	if err != nil {
		return nil, model.NewProviderError(c.Code(), "pay", err)
	}

	// Step 4: Redirect only while the order is awaiting payment
	if resp.State != sdk.StatePending || resp.RedirectURL == "" {
		return nil, model.NewProviderError(c.Code(), "pay",
			fmt.Errorf("unexpected order state %q", resp.State))
	}

	ref := &model.GatewayReference{
		Provider:  c.Code(),
		SessionID: order.OrderNumber,
		Extra: map[string]string{
			extraMerchantOrder:  order.OrderNumber,
			extraPhonePeOrderID: resp.OrderID,
		},
		InitiatedAt: c.now(),
	}
	return model.NewRedirectResult(resp.RedirectURL, ref), nil
}

// =====================================================
// VERIFY
// =====================================================

func (c *Client) Verify(ctx context.Context, order *model.Order, _ map[string]string) *model.VerifyResult {
	_, client, err := c.load(ctx)
	if err != nil {
		c.logFailure(err, order.ID.String(), "verify")
		return model.NotPaid(err.Error())
	}

	status, err := client.OrderStatus(ctx, merchantOrderID(order), true)
	if err != nil {
		c.logFailure(err, order.ID.String(), "order status")
		return model.NotPaid("failed to fetch PhonePe order status")
	}
	return verifyResult(status)
}

func merchantOrderID(order *model.Order) string {
	if order.GatewayReference != nil {
		if id := order.GatewayReference.ExtraValue(extraMerchantOrder); id != "" {
			return id
		}
	}
	return order.OrderNumber
}

func verifyResult(status *sdk.OrderStatusResponse) *model.VerifyResult {
	txn := status.CompletedTransactionID()
	if txn == "" {
		txn = status.OrderID
	}
	return &model.VerifyResult{
		Paid:          status.State == sdk.StateCompleted,
		TransactionID: txn,
		RemoteStatus:  status.State,
	}
}

// =====================================================
// CALLBACK
// =====================================================

// HandleCallback authenticates server callbacks with the configured
// username/password digest. Browser returns carry no proof and are settled
// by polling the order status.
func (c *Client) HandleCallback(ctx context.Context, payload *model.CallbackPayload) *model.CallbackResult {
	creds, client, err := c.load(ctx)
	if err != nil {
		c.logFailure(err, payload.Field("order_id"), "callback")
		return model.CallbackFailed(err.Error())
	}

	if payload.Headers != nil && payload.Headers.Get("Authorization") != "" {
		return c.handleWebhook(creds, payload)
	}

	orderNumber := payload.Field("order_number")
	if orderNumber == "" {
		return model.CallbackFailed("missing order_number")
	}

	status, err := client.OrderStatus(ctx, orderNumber, true)
	if err != nil {
		c.logFailure(err, payload.Field("order_id"), "order status")
		return model.CallbackFailed("failed to fetch PhonePe order status")
	}

	vr := verifyResult(status)
	result := &model.CallbackResult{
		Verified:      true,
		Event:         model.EventPaymentReturn,
		OrderNumber:   orderNumber,
		SessionRef:    orderNumber,
		TransactionID: vr.TransactionID,
		Message:       "PhonePe order state " + status.State,
	}
	switch status.State {
	case sdk.StateCompleted:
		result.Success = true
		result.Status = model.PaymentStatusPaid
	case sdk.StateFailed:
		result.Status = model.PaymentStatusFailed
	}
	return result
}

func (c *Client) handleWebhook(creds *credentials.Resolver, payload *model.CallbackPayload) *model.CallbackResult {
	evt, err := sdk.ValidateCallback(
		creds.Get(keyWebhookUsername),
		creds.Get(keyWebhookPassword),
		payload.Headers.Get("Authorization"),
		payload.Body,
	)
	if err != nil {
		c.logFailure(err, "", "validate callback")
		return model.CallbackFailed("invalid callback authorization")
	}

	p := evt.Payload
	result := &model.CallbackResult{
		Verified: true,
		Event:    evt.Event,
		EventID:  evt.Event + ":" + firstNonEmpty(p.RefundID, p.OrderID) + ":" + p.State,
	}

	switch evt.Event {
	case sdk.EventOrderCompleted, sdk.EventOrderFailed:
		status := &sdk.OrderStatusResponse{OrderID: p.OrderID, State: p.State, PaymentDetails: p.PaymentDetails}
		result.OrderNumber = p.MerchantOrderID
		result.SessionRef = p.MerchantOrderID
		result.TransactionID = verifyResult(status).TransactionID
		switch p.State {
		case sdk.StateCompleted:
			result.Success = true
			result.Status = model.PaymentStatusPaid
			result.Message = "Order completed"
		case sdk.StateFailed:
			result.Status = model.PaymentStatusFailed
			result.Message = "Order failed"
		default:
			result.Message = "Order state " + p.State
		}

	case sdk.EventRefundCompleted:
		amount := money.FromSubunits(p.Amount)
		result.Success = true
		result.Event = model.EventRefundCreated
		result.OrderNumber = p.OriginalMerchantOrderID
		result.SessionRef = p.OriginalMerchantOrderID
		result.RefundID = firstNonEmpty(p.MerchantRefundID, p.RefundID)
		result.RefundAmount = &amount
		result.Message = "Refund completed"

	default:
		result.Message = "Event ignored: " + evt.Event
	}
	return result
}

// =====================================================
// REFUND
// =====================================================

func (c *Client) Refund(ctx context.Context, order *model.Order, amount *decimal.Decimal, _ string) *model.RefundResult {
	refundAmount := order.RefundableAmount()
	if amount != nil {
		refundAmount = *amount
	}

	if order.CapturedTransactionID() == "" {
		pe := model.NewNoCapturedTransactionError(order.ID.String())
		c.logFailure(pe, order.ID.String(), "refund")
		return model.RefundFailed(pe.Kind, refundAmount, pe.Message)
	}

	_, client, err := c.load(ctx)
	if err != nil {
		c.logFailure(err, order.ID.String(), "refund")
		return model.RefundFailed(model.KindOf(err), refundAmount, err.Error())
	}

	refundID := fmt.Sprintf("%s-R%d", merchantOrderID(order), len(order.GatewayReference.Refunds)+1)
	resp, err := client.Refund(ctx, sdk.RefundRequest{
		MerchantRefundID:        refundID,
		OriginalMerchantOrderID: merchantOrderID(order),
		Amount:                  money.Subunits(refundAmount),
	})
	if err != nil {
		c.logFailure(err, order.ID.String(), "refund")
		return model.RefundFailed(model.KindProvider, refundAmount, "PhonePe refund failed: "+err.Error())
	}

	ok := resp.State == sdk.StatePending || resp.State == sdk.StateConfirmed || resp.State == sdk.StateCompleted
	result := &model.RefundResult{
		Success:       ok,
		TransactionID: refundID,
		Amount:        refundAmount,
		Status:        strings.ToLower(resp.State),
		Message:       "Refund " + strings.ToLower(resp.State),
	}
	if !ok {
		result.Kind = model.KindProvider
	}
	return result
}

func (c *Client) logFailure(err error, orderID, op string) {
	log.Error().Err(err).
		Str("provider", model.ProviderPhonePe).
		Str("order_id", orderID).
		Str("operation", op).
		Msg("phonepe operation failed")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
