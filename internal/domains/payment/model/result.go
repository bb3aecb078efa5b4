package model

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// =====================================================
// GATEWAY RESULT (initiate)
// =====================================================

// GatewayResult tells the caller how to continue checkout. PaymentData holds
// a redirect_url, a form descriptor (action, method, fields) or client SDK
// parameters depending on GatewayType.
type GatewayResult struct {
	Success      bool                   `json:"success"`
	GatewayType  string                 `json:"gateway_type"`
	PaymentData  map[string]interface{} `json:"payment_data,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`

	// Reference is the provider bookkeeping to persist on the order.
	Reference *GatewayReference `json:"-"`
}

func NewRedirectResult(url string, ref *GatewayReference) *GatewayResult {
	return &GatewayResult{
		Success:     true,
		GatewayType: GatewayTypeRedirect,
		PaymentData: map[string]interface{}{"redirect_url": url},
		Reference:   ref,
	}
}

// RedirectURL returns PaymentData["redirect_url"] for redirect results.
func (r *GatewayResult) RedirectURL() string {
	if r == nil || r.PaymentData == nil {
		return ""
	}
	url, _ := r.PaymentData["redirect_url"].(string)
	return url
}

// =====================================================
// VERIFY RESULT
// =====================================================

// VerifyResult is the outcome of a server-side settlement poll. Paid is false
// for every failure, including unknown orders and provider errors.
type VerifyResult struct {
	Paid            bool   `json:"paid"`
	TransactionID   string `json:"transaction_id,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	RemoteStatus    string `json:"remote_status,omitempty"`
	Message         string `json:"message,omitempty"`
}

func NotPaid(message string) *VerifyResult {
	return &VerifyResult{Paid: false, Message: message}
}

// =====================================================
// CALLBACK PAYLOAD / RESULT
// =====================================================

// CallbackPayload carries a browser return or a server-to-server webhook.
// Body is the raw request body, Fields the parsed form/query values.
type CallbackPayload struct {
	Provider string
	Fields   map[string]string
	Body     []byte
	Headers  http.Header
}

// Field returns the trimmed value of a form/query field.
func (p *CallbackPayload) Field(key string) string {
	if p.Fields == nil {
		return ""
	}
	return strings.TrimSpace(p.Fields[key])
}

// CallbackResult never mutates an order; the payment service applies it.
type CallbackResult struct {
	// Verified is true when authenticity checks passed.
	Verified bool `json:"verified"`
	// Success is true when the event settles the payment (or records a refund).
	Success bool `json:"success"`

	Event         string `json:"event,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	OrderID       string `json:"order_id,omitempty"`
	OrderNumber   string `json:"order_number,omitempty"`
	SessionRef    string `json:"session_ref,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`

	RefundID     string           `json:"refund_id,omitempty"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`

	Message string `json:"message"`
}

func CallbackFailed(message string) *CallbackResult {
	return &CallbackResult{Verified: false, Success: false, Message: message}
}

// =====================================================
// REFUND RESULT
// =====================================================
type RefundResult struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status,omitempty"`
	Message       string          `json:"message"`

	// Kind is set on failures so callers can tell state problems from
	// provider outages.
	Kind ErrorKind `json:"kind,omitempty"`
}

func RefundFailed(kind ErrorKind, amount decimal.Decimal, message string) *RefundResult {
	return &RefundResult{Success: false, Amount: amount, Message: message, Kind: kind}
}

// =====================================================
// CONFIG FIELDS
// =====================================================

// ConfigField describes one credential input for the settings UI.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Help     string   `json:"help,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// ModeField is shared by every provider.
func ModeField() ConfigField {
	return ConfigField{
		Key:      "mode",
		Label:    "Mode",
		Type:     FieldTypeSelect,
		Required: true,
		Options:  []string{ModeTest, ModeLive},
		Help:     "Test mode prefers test_ prefixed credentials",
	}
}
