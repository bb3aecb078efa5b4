package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =====================================================
// INITIATE PAYMENT REQUEST/RESPONSE
// =====================================================

// InitiatePaymentRequest carries provider-specific extras (e.g. a return URL
// override) through to the adapter.
type InitiatePaymentRequest struct {
	Data map[string]string `json:"data,omitempty"`
}

func (r InitiatePaymentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Data, validation.Length(0, 20).Error("too many data fields")),
	)
}

type InitiatePaymentResponse struct {
	OrderID     uuid.UUID              `json:"order_id"`
	Provider    string                 `json:"provider"`
	GatewayType string                 `json:"gateway_type"`
	PaymentData map[string]interface{} `json:"payment_data"`
}

// =====================================================
// VERIFY PAYMENT REQUEST/RESPONSE
// =====================================================

type VerifyPaymentRequest struct {
	Data map[string]string `json:"data,omitempty"`
}

type VerifyPaymentResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	Paid          bool      `json:"paid"`
	PaymentStatus string    `json:"payment_status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// =====================================================
// REFUND REQUEST/RESPONSE
// =====================================================

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

func (r RefundRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Amount, validation.By(func(value interface{}) error {
			amount, _ := value.(*decimal.Decimal)
			if amount != nil && !amount.IsPositive() {
				return errors.New("amount must be positive")
			}
			return nil
		})),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

type RefundResponse struct {
	OrderID       uuid.UUID       `json:"order_id"`
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"`
	Message       string          `json:"message"`
	Kind          ErrorKind       `json:"kind,omitempty"`
}

// =====================================================
// CALLBACK RESPONSE
// =====================================================

type CallbackResponse struct {
	Provider      string     `json:"provider"`
	Success       bool       `json:"success"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	PaymentStatus string     `json:"payment_status,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Duplicate     bool       `json:"duplicate,omitempty"`
	Message       string     `json:"message"`
}

// =====================================================
// CONFIG FIELDS RESPONSE
// =====================================================

type ConfigFieldsResponse struct {
	Code       string        `json:"code"`
	Configured bool          `json:"configured"`
	Fields     []ConfigField `json:"fields"`
}
