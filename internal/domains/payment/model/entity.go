package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =====================================================
// ORDER ENTITY
// =====================================================

// Order is owned by the checkout domain. The payment core reads the amount,
// currency and customer fields and writes only PaymentStatus,
// GatewayReference and PaymentVersion.
type Order struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrderNumber string    `json:"order_number" db:"order_number"`
	Currency    string    `json:"currency" db:"currency"`

	// Amounts (major units)
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	ShippingAmount decimal.Decimal `json:"shipping_amount" db:"shipping_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	Total          decimal.Decimal `json:"total" db:"total"`

	// Customer contact
	CustomerName    string  `json:"customer_name" db:"customer_name"`
	CustomerEmail   string  `json:"customer_email" db:"customer_email"`
	CustomerPhone   string  `json:"customer_phone" db:"customer_phone"`
	ShippingAddress Address `json:"shipping_address" db:"shipping_address"`

	// Payment state
	PaymentMethodCode string            `json:"payment_method_code" db:"payment_method_code"`
	PaymentStatus     string            `json:"payment_status" db:"payment_status"`
	GatewayReference  *GatewayReference `json:"gateway_reference,omitempty" db:"gateway_reference"`
	PaymentVersion    int               `json:"payment_version" db:"payment_version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// IsEmpty reports whether no shipping address was captured at checkout.
func (a Address) IsEmpty() bool {
	return a.Line1 == "" && a.City == "" && a.Country == ""
}

// ItemsTotal is the order total without shipping.
func (o *Order) ItemsTotal() decimal.Decimal {
	return o.Total.Sub(o.ShippingAmount)
}

// FirstName is the first token of CustomerName, used by providers that need
// a split name.
func (o *Order) FirstName() string {
	fields := strings.Fields(o.CustomerName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// LastName is everything after the first token of CustomerName.
func (o *Order) LastName() string {
	fields := strings.Fields(o.CustomerName)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// CapturedTransactionID returns the settled provider transaction id, or "".
func (o *Order) CapturedTransactionID() string {
	if o.GatewayReference == nil {
		return ""
	}
	return o.GatewayReference.TransactionID
}

// RefundableAmount is the captured total minus everything refunded so far.
func (o *Order) RefundableAmount() decimal.Decimal {
	if o.GatewayReference == nil {
		return o.Total
	}
	remaining := o.Total.Sub(o.GatewayReference.RefundedTotal())
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsSettled reports whether the order has left the pending/failed states.
func (o *Order) IsSettled() bool {
	switch o.PaymentStatus {
	case PaymentStatusPaid, PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		return true
	}
	return false
}

// =====================================================
// GATEWAY REFERENCE
// =====================================================

// GatewayReference is the provider bookkeeping persisted on the order between
// initiation and settlement/refund. SessionID holds the provider's checkout
// session, order or txn id depending on the provider.
type GatewayReference struct {
	Provider        string            `json:"provider"`
	SessionID       string            `json:"session_id,omitempty"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	TransactionID   string            `json:"transaction_id,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
	Refunds         []RefundRecord    `json:"refunds,omitempty"`
	InitiatedAt     time.Time         `json:"initiated_at"`
	SettledAt       *time.Time        `json:"settled_at,omitempty"`
}

type RefundRecord struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
	Status     string          `json:"status,omitempty"`
	RefundedAt time.Time       `json:"refunded_at"`
}

// RefundedTotal sums every recorded refund.
func (r *GatewayReference) RefundedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, rf := range r.Refunds {
		total = total.Add(rf.Amount)
	}
	return total
}

// MatchesSession reports whether ref is one of the provider ids recorded
// for the current session.
func (r *GatewayReference) MatchesSession(ref string) bool {
	if r == nil || ref == "" {
		return false
	}
	return ref == r.SessionID || ref == r.PaymentIntentID || ref == r.TransactionID
}

// HasRefund reports whether a refund with the provider id is already recorded.
func (r *GatewayReference) HasRefund(id string) bool {
	if id == "" {
		return false
	}
	for _, rf := range r.Refunds {
		if rf.ID == id {
			return true
		}
	}
	return false
}

// ExtraValue returns Extra[key] or "".
func (r *GatewayReference) ExtraValue(key string) string {
	if r == nil || r.Extra == nil {
		return ""
	}
	return r.Extra[key]
}

// =====================================================
// PAYMENT METHOD ENTITY
// =====================================================

// PaymentMethod is one row per provider code. Configuration keys may be
// namespaced by mode, e.g. test_secret_key next to secret_key.
type PaymentMethod struct {
	Code          string            `json:"code" db:"code"`
	Name          string            `json:"name" db:"name"`
	IsActive      bool              `json:"is_active" db:"is_active"`
	Mode          string            `json:"mode" db:"mode"`
	Configuration map[string]string `json:"configuration" db:"configuration"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

func (m *PaymentMethod) IsTestMode() bool {
	return m.Mode == ModeTest
}

// =====================================================
// PAYMENT WEBHOOK LOG ENTITY
// =====================================================
type PaymentWebhookLog struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Provider  string     `json:"provider" db:"provider"`
	EventType string     `json:"event_type" db:"event_type"`
	EventID   string     `json:"event_id" db:"event_id"`
	OrderID   *uuid.UUID `json:"order_id,omitempty" db:"order_id"`

	// Request data
	Headers   map[string]string `json:"headers" db:"headers"`
	Body      string            `json:"body" db:"body"`
	Signature string            `json:"signature,omitempty" db:"signature"`

	// Processing status
	IsValid         bool    `json:"is_valid" db:"is_valid"`
	IsProcessed     bool    `json:"is_processed" db:"is_processed"`
	Attempts        int     `json:"attempts" db:"attempts"`
	ProcessingError *string `json:"processing_error,omitempty" db:"processing_error"`

	ReceivedAt  time.Time  `json:"received_at" db:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// MarkAsInvalid marks webhook as invalid (bad signature)
func (w *PaymentWebhookLog) MarkAsInvalid(reason string) {
	w.IsValid = false
	w.ProcessingError = &reason
}
