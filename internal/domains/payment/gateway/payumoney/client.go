// Package payumoney implements the PayU hosted form flow. Customers are sent
// to PayU through an auto-submitted form and come back through a hashed POST.
package payumoney

import (
	"context"
	"fmt"
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
// PAYUMONEY CLIENT
// =====================================================

type Client struct {
	methods    credentials.Source
	httpClient *http.Client
	urls       gateway.CallbackURLs
	override   string
	now        func() time.Time
}

var _ gateway.Gateway = (*Client)(nil)

func New(opts gateway.Options) *Client {
	opts = opts.WithDefaults()
	return &Client{
		methods:    opts.Methods,
		httpClient: opts.HTTPClient,
		urls:       opts.URLs,
		override:   opts.Endpoint(model.ProviderPayUMoney, ""),
		now:        opts.Now,
	}
}

func (c *Client) Code() string { return model.ProviderPayUMoney }

func (c *Client) Supports(methodCode string) bool { return methodCode == c.Code() }

func (c *Client) IsConfigured(ctx context.Context) bool {
	return credentials.Configured(ctx, c.methods, credentialSpec)
}

func (c *Client) ConfigFields() []model.ConfigField {
	return configFields
}

func (c *Client) paymentURL(creds *credentials.Resolver) string {
	switch {
	case c.override != "":
		return c.override + "/_payment"
	case creds.IsTestMode():
		return TestPaymentURL
	default:
		return ProductionPaymentURL
	}
}

func (c *Client) serviceURL(creds *credentials.Resolver) string {
	switch {
	case c.override != "":
		return c.override + "/merchant/postservice.php?form=2"
	case creds.IsTestMode():
		return testServiceURL
	default:
		return productionServiceURL
	}
}

// =====================================================
// INITIATE (FORM POST)
// =====================================================

func (c *Client) Initiate(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error) {
	// Step 1: Resolve credentials
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		return nil, err
	}

	// Step 2: Validate amount
	if !order.Total.IsPositive() {
		return nil, model.NewInvalidAmountError(order.Total.String())
	}

	// Step 3: Build hashed form
	txnID := c.newTxnID(order.OrderNumber)
	returnURL := gateway.Override(data, "return_url", c.urls.Return(c.Code(), order.ID))
	fields := BuildForm(FormParams{
		Key:         creds.Get(keyMerchantKey),
		TxnID:       txnID,
		Amount:      money.Fixed2(order.Total),
		ProductInfo: "Order #" + order.OrderNumber,
		FirstName:   order.FirstName(),
		Email:       order.CustomerEmail,
		Phone:       order.CustomerPhone,
		UDF:         [5]string{order.ID.String(), order.OrderNumber},
		SURL:        returnURL,
		FURL:        returnURL,
		CURL:        gateway.Override(data, "cancel_url", c.urls.Cancel(c.Code(), order.ID)),
	}, creds.Get(keyMerchantSalt))

	return &model.GatewayResult{
		Success:     true,
		GatewayType: model.GatewayTypeFormPost,
		PaymentData: map[string]interface{}{
			"action": c.paymentURL(creds),
			"method": http.MethodPost,
			"fields": fields,
		},
		Reference: &model.GatewayReference{
			Provider:    c.Code(),
			SessionID:   txnID,
			InitiatedAt: c.now(),
		},
	}, nil
}

// newTxnID derives a unique merchant transaction id from the order number.
func (c *Client) newTxnID(orderNumber string) string {
	suffix := strconv.FormatInt(c.now().UnixNano(), 36)
	id := "T" + orderNumber + suffix
	if len(id) > maxTxnIDLength {
		id = id[len(id)-maxTxnIDLength:]
	}
	return id
}

// =====================================================
// VERIFY
// =====================================================

// Verify checks posted response fields when given, otherwise asks the
// verify_payment postservice about the stored txnid.
func (c *Client) Verify(ctx context.Context, order *model.Order, data map[string]string) *model.VerifyResult {
	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, order.ID.String(), "verify")
		return model.NotPaid(err.Error())
	}

	if data["hash"] != "" {
		fields := withKey(data, creds)
		if !VerifyResponseHash(fields, creds.Get(keyMerchantSalt)) {
			c.logFailure(model.ErrInvalidSignature, order.ID.String(), "verify response hash")
			return model.NotPaid("invalid response hash")
		}
		// udf1 is covered by the hash and always carries the order id.
		if fields["udf1"] != order.ID.String() {
			c.logFailure(model.ErrReferenceMismatch, order.ID.String(), "verify response hash")
			return model.NotPaid("PayU response does not belong to this order")
		}
		result := &model.VerifyResult{
			Paid:          fields["status"] == statusSuccess,
			TransactionID: transactionID(fields),
			RemoteStatus:  fields["status"],
		}
		if result.Paid && !amountMatches(fields["amount"], order) {
			c.logFailure(model.ErrAmountMismatch, order.ID.String(), "verify response hash")
			return model.NotPaid("PayU amount does not match order total")
		}
		return result
	}

	if order.GatewayReference == nil || order.GatewayReference.SessionID == "" {
		return model.NotPaid("no PayU transaction to verify")
	}
	txnID := order.GatewayReference.SessionID

	detail, err := c.verifyPayment(ctx, creds, txnID)
	if err != nil {
		c.logFailure(err, order.ID.String(), "verify_payment")
		return model.NotPaid("failed to verify PayU transaction")
	}
	txn := detail.MihPayID
	if txn == "" {
		txn = txnID
	}
	result := &model.VerifyResult{
		Paid:          detail.Status == statusSuccess,
		TransactionID: txn,
		RemoteStatus:  detail.Status,
	}
	if result.Paid && detail.Amount != "" && !amountMatches(detail.Amount, order) {
		c.logFailure(model.ErrAmountMismatch, order.ID.String(), "verify_payment")
		return model.NotPaid("PayU amount does not match order total")
	}
	return result
}

// amountMatches compares a PayU decimal amount with the order total.
func amountMatches(amount string, order *model.Order) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return false
	}
	return d.Equal(order.Total.Round(2))
}

func (c *Client) verifyPayment(ctx context.Context, creds *credentials.Resolver, txnID string) (*transactionDetail, error) {
	key := creds.Get(keyMerchantKey)
	form := url.Values{
		"key":     {key},
		"command": {commandVerifyPayment},
		"var1":    {txnID},
		"hash":    {commandHash(key, commandVerifyPayment, txnID, creds.Get(keyMerchantSalt))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL(creds), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp verifyResponse
	if err := gateway.Do(c.httpClient, req, &resp, parseError); err != nil {
		return nil, err
	}
	detail, ok := resp.TransactionDetails[txnID]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found: %s", txnID, resp.Message)
	}
	return &detail, nil
}

// =====================================================
// CALLBACK
// =====================================================

// HandleCallback verifies the reverse hash PayU posts to surl/furl. A
// cancellation through curl is accepted without a status change.
func (c *Client) HandleCallback(ctx context.Context, payload *model.CallbackPayload) *model.CallbackResult {
	orderID := payload.Field("udf1")
	if orderID == "" {
		orderID = payload.Field("order_id")
	}

	if payload.Field("cancelled") != "" && payload.Field("hash") == "" {
		return &model.CallbackResult{
			Verified: true,
			Event:    model.EventPaymentReturn,
			OrderID:  orderID,
			Message:  "Payment cancelled by customer",
		}
	}

	creds, err := credentials.Load(ctx, c.methods, credentialSpec)
	if err != nil {
		c.logFailure(err, orderID, "callback")
		return model.CallbackFailed(err.Error())
	}

	fields := withKey(payload.Fields, creds)
	if !VerifyResponseHash(fields, creds.Get(keyMerchantSalt)) {
		c.logFailure(model.ErrInvalidSignature, orderID, "verify response hash")
		return model.CallbackFailed("invalid response hash")
	}

	result := &model.CallbackResult{
		Verified:      true,
		Event:         model.EventPaymentReturn,
		OrderID:       orderID,
		OrderNumber:   fields["udf2"],
		SessionRef:    fields["txnid"],
		TransactionID: transactionID(fields),
	}
	switch fields["status"] {
	case statusSuccess:
		result.Success = true
		result.Status = model.PaymentStatusPaid
		result.Message = "Payment successful"
	case statusFailure:
		result.Status = model.PaymentStatusFailed
		result.Message = "Payment failed"
		if msg := fields["error_Message"]; msg != "" {
			result.Message += ": " + msg
		}
	default:
		result.Message = "Payment status " + fields["status"]
	}
	return result
}

// withKey copies the posted fields, trimmed, with the configured merchant
// key so a forged key field can never select the hash input.
func withKey(posted map[string]string, creds *credentials.Resolver) map[string]string {
	fields := make(map[string]string, len(posted)+1)
	for k, v := range posted {
		fields[k] = strings.TrimSpace(v)
	}
	fields["key"] = creds.Get(keyMerchantKey)
	return fields
}

func transactionID(fields map[string]string) string {
	if id := fields["mihpayid"]; id != "" {
		return id
	}
	return fields["txnid"]
}

// =====================================================
// REFUND
// =====================================================

// Refund always fails; PayU refunds are issued from the merchant dashboard.
func (c *Client) Refund(_ context.Context, order *model.Order, amount *decimal.Decimal, _ string) *model.RefundResult {
	refundAmount := order.RefundableAmount()
	if amount != nil {
		refundAmount = *amount
	}
	pe := model.NewRefundNotSupportedError(c.Code())
	c.logFailure(pe, order.ID.String(), "refund")
	return model.RefundFailed(pe.Kind, refundAmount, pe.Message)
}

func (c *Client) logFailure(err error, orderID, op string) {
	log.Error().Err(err).
		Str("provider", model.ProviderPayUMoney).
		Str("order_id", orderID).
		Str("operation", op).
		Msg("payumoney operation failed")
}
