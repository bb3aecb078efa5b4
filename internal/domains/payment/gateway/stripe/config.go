package stripe

import (
	"encoding/json"

	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// STRIPE CONFIGURATION
// =====================================================

const (
	DefaultBaseURL = "https://api.stripe.com"

	keySecret         = "secret_key"
	keyLegacySecret   = "api_key"
	keyPublishable    = "publishable_key"
	keyWebhookSecret  = "webhook_secret"
	signatureHeader   = "Stripe-Signature"
	webhookTolerance  = 300 // seconds
	sessionPaid       = "paid"
	intentSucceeded   = "succeeded"
	refundSucceeded   = "succeeded"
	refundPending     = "pending"
	checkoutPlacehold = "{CHECKOUT_SESSION_ID}"
)

// Webhook event types handled by HandleCallback.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventAsyncPaymentFailed   = "checkout.session.async_payment_failed"
	EventPaymentIntentFailed  = "payment_intent.payment_failed"
	EventPaymentIntentSucceed = "payment_intent.succeeded"
)

var credentialSpec = credentials.Spec{
	Code:     model.ProviderStripe,
	Required: []string{keySecret},
	Legacy:   map[string]string{keySecret: keyLegacySecret},
}

var configFields = []model.ConfigField{
	model.ModeField(),
	{Key: "secret_key", Label: "Live Secret Key", Type: model.FieldTypePassword, Required: true, Help: "sk_live_..."},
	{Key: "test_secret_key", Label: "Test Secret Key", Type: model.FieldTypePassword, Help: "sk_test_..., used in test mode"},
	{Key: "publishable_key", Label: "Live Publishable Key", Type: model.FieldTypeText, Help: "pk_live_..."},
	{Key: "test_publishable_key", Label: "Test Publishable Key", Type: model.FieldTypeText},
	{Key: "webhook_secret", Label: "Webhook Signing Secret", Type: model.FieldTypePassword, Help: "whsec_..., enables webhook verification"},
}

// =====================================================
// API TYPES
// =====================================================

type checkoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

type paymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	LatestCharge   string            `json:"latest_charge"`
	Metadata       map[string]string `json:"metadata"`
}

type refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent"`
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func parseError(body []byte) (string, string) {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", string(body)
	}
	code := payload.Error.Code
	if code == "" {
		code = payload.Error.Type
	}
	return code, payload.Error.Message
}
