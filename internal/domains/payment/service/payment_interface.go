package service

import (
	"context"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/database"
)

// =====================================================
// PAYMENT SERVICE INTERFACE
// =====================================================

// PaymentService is the only component that changes an order's payment
// state. Every change happens under the order's lock.
type PaymentService interface {
	// ============================================
	// CHECKOUT ENDPOINTS
	// ============================================

	// ProcessPayment initiates a payment with the order's provider and
	// persists the new gateway reference
	ProcessPayment(ctx context.Context, orderID uuid.UUID, req model.InitiatePaymentRequest) (*model.InitiatePaymentResponse, error)

	// VerifyPayment polls the provider and settles the order when paid
	VerifyPayment(ctx context.Context, orderID uuid.UUID, req model.VerifyPaymentRequest) (*model.VerifyPaymentResponse, error)

	// ============================================
	// CALLBACK PROCESSING
	// ============================================

	// HandleCallback authenticates a browser return or webhook, logs it and
	// applies it to the matching order at most once
	HandleCallback(ctx context.Context, provider string, payload *model.CallbackPayload) (*model.CallbackResponse, error)

	// ============================================
	// ADMIN ENDPOINTS
	// ============================================

	// Refund refunds part or all of a settled order
	Refund(ctx context.Context, orderID uuid.UUID, req model.RefundRequest) (*model.RefundResponse, error)

	// ConfigFields describes a provider's credential inputs
	ConfigFields(ctx context.Context, code string) (*model.ConfigFieldsResponse, error)

	// ============================================
	// BACKGROUND JOBS
	// ============================================

	// ReconcilePending verifies stale pending sessions and returns how many
	// orders were settled
	ReconcilePending(ctx context.Context) (int, error)
}

// Transactor runs fn in a database transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn database.TxFunc) error
}
