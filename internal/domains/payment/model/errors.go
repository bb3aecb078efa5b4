package model

import (
	"errors"
	"fmt"
	"strings"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrNotConfigured         = errors.New("payment gateway is not configured")
	ErrUnsupportedMethod     = errors.New("unsupported payment method")
	ErrInvalidAmount         = errors.New("invalid payment amount")
	ErrInvalidAddress        = errors.New("invalid shipping address")
	ErrProviderFailure       = errors.New("payment provider request failed")
	ErrInvalidSignature      = errors.New("invalid callback signature")
	ErrMissingReference      = errors.New("missing gateway reference")
	ErrNoCapturedTransaction = errors.New("no captured transaction to refund")
	ErrRefundNotSupported    = errors.New("provider does not support programmatic refunds")
	ErrRefundExceedsCaptured = errors.New("refund amount exceeds refundable amount")
	ErrOrderNotRefundable    = errors.New("order is not in a refundable state")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderAlreadyPaid      = errors.New("order already paid")
	ErrConcurrentUpdate      = errors.New("order payment was modified concurrently")
	ErrOrderLocked           = errors.New("order payment is being processed")
	ErrMethodNotFound        = errors.New("payment method not found")
	ErrCallbackUnmatched     = errors.New("callback does not match any order")
	ErrReferenceMismatch     = errors.New("provider reference does not belong to order")
	ErrAmountMismatch        = errors.New("provider amount does not match order total")
)

// =====================================================
// ERROR KINDS
// =====================================================

// ErrorKind classifies a PaymentError so callers can decide whether to retry.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindValidation        ErrorKind = "validation"
	KindProvider          ErrorKind = "provider"
	KindVerification      ErrorKind = "verification"
	KindState             ErrorKind = "state"
	KindUnsupportedMethod ErrorKind = "unsupported_method"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// =====================================================
// CUSTOM PAYMENT ERROR
// =====================================================

type PaymentError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed later without any
// change to configuration or input.
func (e *PaymentError) Retryable() bool {
	return e.Kind == KindProvider || e.Kind == KindConflict
}

// NewPaymentError creates a new payment error
func NewPaymentError(kind ErrorKind, code, message string, err error) *PaymentError {
	return &PaymentError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the kind of the first PaymentError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsRetryable is KindOf for callers that only need the retry decision.
func IsRetryable(err error) bool {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// =====================================================
// ERROR CONSTRUCTORS
// =====================================================

func NewConfigurationError(provider string, missing []string) *PaymentError {
	msg := fmt.Sprintf("Payment gateway %s is not configured", provider)
	if len(missing) > 0 {
		msg = fmt.Sprintf("%s (missing: %s)", msg, strings.Join(missing, ", "))
	}
	return NewPaymentError(KindConfiguration, ErrCodeNotConfigured, msg, ErrNotConfigured)
}

func NewUnsupportedMethodError(methodCode string) *PaymentError {
	return NewPaymentError(
		KindUnsupportedMethod,
		ErrCodeUnsupportedMethod,
		fmt.Sprintf("No payment gateway supports method %q", methodCode),
		ErrUnsupportedMethod,
	)
}

func NewInvalidAmountError(amount string) *PaymentError {
	return NewPaymentError(
		KindValidation,
		ErrCodeInvalidAmount,
		fmt.Sprintf("Payment amount must be positive, got %s", amount),
		ErrInvalidAmount,
	)
}

func NewInvalidAddressError(reason string) *PaymentError {
	return NewPaymentError(KindValidation, ErrCodeInvalidAddress, reason, ErrInvalidAddress)
}

func NewValidationError(message string, err error) *PaymentError {
	return NewPaymentError(KindValidation, ErrCodeInvalidRequest, message, err)
}

// NewProviderError wraps a transport or remote failure. cause is kept in the
// chain together with ErrProviderFailure.
func NewProviderError(provider, operation string, cause error) *PaymentError {
	return NewPaymentError(
		KindProvider,
		ErrCodeProviderFailure,
		fmt.Sprintf("%s %s failed", provider, operation),
		fmt.Errorf("%w: %w", ErrProviderFailure, cause),
	)
}

func NewInvalidSignatureError(provider string) *PaymentError {
	return NewPaymentError(
		KindVerification,
		ErrCodeInvalidSignature,
		fmt.Sprintf("Invalid %s signature - possible fraud attempt", provider),
		ErrInvalidSignature,
	)
}

func NewNoCapturedTransactionError(orderID string) *PaymentError {
	return NewPaymentError(
		KindState,
		ErrCodeNoCapturedTransaction,
		fmt.Sprintf("Order %s has no captured transaction", orderID),
		ErrNoCapturedTransaction,
	)
}

func NewRefundNotSupportedError(provider string) *PaymentError {
	return NewPaymentError(
		KindState,
		ErrCodeRefundNotSupported,
		fmt.Sprintf("Refunds for %s must be issued manually from the merchant dashboard", provider),
		ErrRefundNotSupported,
	)
}

func NewRefundExceedsCapturedError(requested, refundable string) *PaymentError {
	return NewPaymentError(
		KindState,
		ErrCodeRefundExceedsCaptured,
		fmt.Sprintf("Refund amount %s exceeds refundable amount %s", requested, refundable),
		ErrRefundExceedsCaptured,
	)
}

func NewOrderNotRefundableError(status string) *PaymentError {
	return NewPaymentError(
		KindState,
		ErrCodeOrderNotRefundable,
		fmt.Sprintf("Order payment status must be 'paid' or 'partially_refunded', current status: %s", status),
		ErrOrderNotRefundable,
	)
}

func NewOrderNotFoundError(ref string) *PaymentError {
	return NewPaymentError(
		KindNotFound,
		ErrCodeOrderNotFound,
		fmt.Sprintf("Order not found: %s", ref),
		ErrOrderNotFound,
	)
}

func NewOrderAlreadyPaidError(orderID string) *PaymentError {
	return NewPaymentError(
		KindState,
		ErrCodeOrderAlreadyPaid,
		fmt.Sprintf("Order %s is already paid", orderID),
		ErrOrderAlreadyPaid,
	)
}

func NewMethodNotFoundError(code string) *PaymentError {
	return NewPaymentError(
		KindNotFound,
		ErrCodeMethodNotFound,
		fmt.Sprintf("Payment method not found: %s", code),
		ErrMethodNotFound,
	)
}

func NewConcurrentUpdateError(orderID string) *PaymentError {
	return NewPaymentError(
		KindConflict,
		ErrCodeConcurrentUpdate,
		fmt.Sprintf("Order %s payment was modified concurrently", orderID),
		ErrConcurrentUpdate,
	)
}

func NewOrderLockedError(orderID string) *PaymentError {
	return NewPaymentError(
		KindConflict,
		ErrCodeOrderLocked,
		fmt.Sprintf("Order %s payment is being processed by another request", orderID),
		ErrOrderLocked,
	)
}

func NewCallbackUnmatchedError(provider, ref string) *PaymentError {
	return NewPaymentError(
		KindNotFound,
		ErrCodeCallbackUnmatched,
		fmt.Sprintf("%s callback reference %q does not match any order", provider, ref),
		ErrCallbackUnmatched,
	)
}
