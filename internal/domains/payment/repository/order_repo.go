package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// ORDER PAYMENT REPOSITORY IMPLEMENTATION
// =====================================================
type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepoInterface {
	return &orderRepository{db: db}
}

const orderColumns = `
	id, order_number, currency,
	subtotal, shipping_fee, tax_amount, discount_amount, total,
	customer_name, customer_email, customer_phone, shipping_address,
	payment_method, payment_status, gateway_reference, payment_version,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o        model.Order
		phone    sql.NullString
		address  []byte
		gateway  []byte
		currency sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &currency,
		&o.Subtotal, &o.ShippingAmount, &o.TaxAmount, &o.DiscountAmount, &o.Total,
		&o.CustomerName, &o.CustomerEmail, &phone, &address,
		&o.PaymentMethodCode, &o.PaymentStatus, &gateway, &o.PaymentVersion,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CustomerPhone = phone.String
	o.Currency = currency.String
	if o.Currency == "" {
		o.Currency = model.DefaultCurrency
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
		}
	}
	if len(gateway) > 0 {
		var ref model.GatewayReference
		if err := json.Unmarshal(gateway, &ref); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gateway reference: %w", err)
		}
		o.GatewayReference = &ref
	}
	return &o, nil
}

// =====================================================
// READ METHODS
// =====================================================

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, id.String(), query, id)
}

func (r *orderRepository) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	return r.getOne(ctx, orderNumber, query, orderNumber)
}

func (r *orderRepository) GetBySessionRef(ctx context.Context, provider, ref string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_method = $1
		AND gateway_reference IS NOT NULL
		AND $2 IN (
			gateway_reference->>'session_id',
			gateway_reference->>'payment_intent_id',
			gateway_reference->>'transaction_id'
		)
		ORDER BY updated_at DESC
		LIMIT 1`
	return r.getOne(ctx, ref, query, provider, ref)
}

func (r *orderRepository) getOne(ctx context.Context, ref, query string, args ...interface{}) (*model.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewOrderNotFoundError(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", ref, err)
	}
	return order, nil
}

// ListAwaitingSettlement feeds the reconcile job. Providers are matched with
// pq.Array. Only sessions initiated inside [initiatedAfter, initiatedBefore)
// qualify, and orders checked least recently come first.
func (r *orderRepository) ListAwaitingSettlement(
	ctx context.Context,
	providers []string,
	initiatedAfter time.Time,
	initiatedBefore time.Time,
	limit int,
) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = $1
		AND payment_method = ANY($2)
		AND gateway_reference IS NOT NULL
		AND (gateway_reference->>'initiated_at')::timestamptz >= $3
		AND (gateway_reference->>'initiated_at')::timestamptz < $4
		ORDER BY payment_reconciled_at ASC NULLS FIRST,
			(gateway_reference->>'initiated_at')::timestamptz ASC
		LIMIT $5`

	rows, err := r.db.QueryContext(ctx, query,
		model.PaymentStatusPending,
		pq.Array(providers),
		initiatedAfter,
		initiatedBefore,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// MarkReconciled stamps payment_reconciled_at without touching
// payment_version, so it never races a settlement.
func (r *orderRepository) MarkReconciled(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `UPDATE orders SET payment_reconciled_at = $1 WHERE id = ANY($2::uuid[])`
	if _, err := r.db.ExecContext(ctx, query, at, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to mark orders reconciled: %w", err)
	}
	return nil
}

// =====================================================
// WRITE METHODS
// =====================================================

func (r *orderRepository) UpdatePayment(ctx context.Context, order *model.Order) error {
	return updatePayment(ctx, r.db, order)
}

func (r *orderRepository) UpdatePaymentWithTx(ctx context.Context, tx *sql.Tx, order *model.Order) error {
	return updatePayment(ctx, tx, order)
}

// updatePayment is an optimistic write: a concurrent writer that bumped
// payment_version first makes this update match zero rows.
func updatePayment(ctx context.Context, db DBTX, order *model.Order) error {
	query := `
		UPDATE orders
		SET payment_status = $1,
			gateway_reference = $2,
			paid_at = COALESCE(paid_at, $3),
			payment_version = payment_version + 1,
			updated_at = NOW()
		WHERE id = $4
		AND payment_version = $5
	`

	var (
		reference interface{}
		paidAt    interface{}
	)
	if order.GatewayReference != nil {
		data, err := json.Marshal(order.GatewayReference)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway reference: %w", err)
		}
		reference = string(data)
		if order.GatewayReference.SettledAt != nil {
			paidAt = *order.GatewayReference.SettledAt
		}
	}

	result, err := db.ExecContext(ctx, query,
		order.PaymentStatus,
		reference,
		paidAt,
		order.ID,
		order.PaymentVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update order payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return model.NewConcurrentUpdateError(order.ID.String())
	}

	order.PaymentVersion++
	return nil
}
