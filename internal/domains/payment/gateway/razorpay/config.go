package razorpay

import (
	"encoding/json"

	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// RAZORPAY CONFIGURATION
// =====================================================

const (
	DefaultBaseURL = "https://api.razorpay.com"
	CheckoutScript = "https://checkout.razorpay.com/v1/checkout.js"

	keyID            = "key_id"
	keySecret        = "key_secret"
	keyWebhookSecret = "webhook_secret"
	keyMerchantName  = "merchant_name"

	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"

	defaultCurrency = "INR"

	paymentCaptured = "captured"
	refundProcessed = "processed"
	refundPending   = "pending"
)

// Webhook events acted on.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
	EventRefundCreated   = "refund.created"
	EventRefundProcessed = "refund.processed"
)

var credentialSpec = credentials.Spec{
	Code:     model.ProviderRazorpay,
	Required: []string{keyID, keySecret},
}

var configFields = []model.ConfigField{
	model.ModeField(),
	{Key: "key_id", Label: "Live Key ID", Type: model.FieldTypeText, Required: true},
	{Key: "key_secret", Label: "Live Key Secret", Type: model.FieldTypePassword, Required: true},
	{Key: "test_key_id", Label: "Test Key ID", Type: model.FieldTypeText, Help: "rzp_test_ key used in test mode"},
	{Key: "test_key_secret", Label: "Test Key Secret", Type: model.FieldTypePassword, Help: "Used in test mode"},
	{Key: "webhook_secret", Label: "Webhook Secret", Type: model.FieldTypePassword, Help: "Required to accept webhooks"},
	{Key: "merchant_name", Label: "Merchant Name", Type: model.FieldTypeText, Help: "Shown in the checkout modal"},
}

// =====================================================
// API TYPES
// =====================================================

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderEntity struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

type paymentEntity struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Method   string            `json:"method"`
	Notes    map[string]string `json:"notes"`

	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type paymentList struct {
	Count int             `json:"count"`
	Items []paymentEntity `json:"items"`
}

type refundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type refundEntity struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes"`
}

type webhookEvent struct {
	Entity  string `json:"entity"`
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
		Order *struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

func parseError(body []byte) (string, string) {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return "", string(body)
	}
	return e.Error.Code, e.Error.Description
}
