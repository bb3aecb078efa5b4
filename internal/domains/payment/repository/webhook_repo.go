package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// WEBHOOK LOG REPOSITORY IMPLEMENTATION
// =====================================================
type webhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) WebhookRepoInterface {
	return &webhookRepository{db: db}
}

// =====================================================
// CREATE & LOGGING METHODS
// =====================================================

// Record is called once the adapter has authenticated the request and before
// the order is touched. Deliveries without an event id (browser returns) are
// stored with a NULL event_id and never collide.
//
// A redelivered event keeps its original row; log.ID is replaced by the id of
// that row so later status updates land on it.
func (r *webhookRepository) Record(ctx context.Context, log *model.PaymentWebhookLog) (bool, error) {
	query := `
		INSERT INTO payment_webhook_logs (
			id, provider, event_type, event_id, order_id,
			headers, body, signature, is_valid, is_processed,
			processing_error, attempts, received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, 1, $11
		)
		ON CONFLICT (provider, event_id) DO UPDATE
		SET attempts = payment_webhook_logs.attempts + 1
		RETURNING id, is_processed
	`

	headersJSON, err := json.Marshal(log.Headers)
	if err != nil {
		return false, fmt.Errorf("failed to marshal headers: %w", err)
	}

	var (
		id        uuid.UUID
		processed bool
	)
	err = r.db.QueryRowContext(ctx, query,
		log.ID,
		log.Provider,
		log.EventType,
		sql.NullString{String: log.EventID, Valid: log.EventID != ""},
		log.OrderID,
		string(headersJSON),
		log.Body,
		log.Signature,
		log.IsValid,
		log.ProcessingError,
		log.ReceivedAt,
	).Scan(&id, &processed)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook log: %w", err)
	}

	log.ID = id
	log.IsProcessed = processed
	return processed, nil
}

// =====================================================
// STATUS UPDATE METHODS
// =====================================================

func (r *webhookRepository) MarkAsProcessed(ctx context.Context, id uuid.UUID) error {
	return markAsProcessed(ctx, r.db, id)
}

func (r *webhookRepository) MarkAsProcessedWithTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return markAsProcessed(ctx, tx, id)
}

func markAsProcessed(ctx context.Context, db DBTX, id uuid.UUID) error {
	query := `
		UPDATE payment_webhook_logs
		SET is_processed = true,
			processing_error = NULL,
			processed_at = NOW()
		WHERE id = $1
	`
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark webhook as processed: %w", err)
	}
	return nil
}

// MarkProcessingError keeps is_processed false so a redelivery is applied.
func (r *webhookRepository) MarkProcessingError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE payment_webhook_logs
		SET processing_error = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, errorMsg); err != nil {
		return fmt.Errorf("failed to mark webhook processing error: %w", err)
	}
	return nil
}
