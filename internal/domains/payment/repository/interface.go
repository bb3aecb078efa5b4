package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/payment/model"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// =====================================================
// ORDER PAYMENT REPOSITORY INTERFACE
// =====================================================

// OrderRepoInterface reads orders and writes only their payment columns.
type OrderRepoInterface interface {
	// GetByID gets an order by its primary key
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByNumber gets an order by its human-facing order number
	GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error)

	// GetBySessionRef finds the order whose gateway reference carries ref as
	// its session, payment intent or transaction id.
	GetBySessionRef(ctx context.Context, provider, ref string) (*model.Order, error)

	// ListAwaitingSettlement lists pending orders with a provider session
	// initiated in [initiatedAfter, initiatedBefore), least recently
	// reconciled first.
	ListAwaitingSettlement(ctx context.Context, providers []string, initiatedAfter, initiatedBefore time.Time, limit int) ([]*model.Order, error)

	// MarkReconciled records that the reconcile job checked these orders.
	MarkReconciled(ctx context.Context, ids []uuid.UUID, at time.Time) error

	// UpdatePayment persists status and gateway reference when the stored
	// payment_version still matches, then bumps the version on order.
	UpdatePayment(ctx context.Context, order *model.Order) error

	// UpdatePaymentWithTx is UpdatePayment inside the caller's transaction
	UpdatePaymentWithTx(ctx context.Context, tx *sql.Tx, order *model.Order) error
}

// =====================================================
// PAYMENT METHOD REPOSITORY INTERFACE
// =====================================================
type MethodRepoInterface interface {
	// GetByCode gets the stored configuration of one provider
	GetByCode(ctx context.Context, code string) (*model.PaymentMethod, error)

	// List lists every configured provider
	List(ctx context.Context) ([]*model.PaymentMethod, error)
}

// =====================================================
// WEBHOOK LOG REPOSITORY INTERFACE
// =====================================================
type WebhookRepoInterface interface {
	// Record inserts a log row, or bumps the attempt counter when
	// (provider, event_id) was seen before. processed reports whether the
	// earlier delivery was already applied.
	Record(ctx context.Context, log *model.PaymentWebhookLog) (processed bool, err error)

	// MarkAsProcessed marks webhook as processed
	MarkAsProcessed(ctx context.Context, id uuid.UUID) error

	// MarkAsProcessedWithTx is MarkAsProcessed inside the caller's transaction
	MarkAsProcessedWithTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error

	// MarkProcessingError records why a verified webhook could not be applied
	MarkProcessingError(ctx context.Context, id uuid.UUID, errorMsg string) error
}
