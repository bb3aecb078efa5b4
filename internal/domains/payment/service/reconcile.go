package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/logger"
)

// =====================================================
// RECONCILE PENDING PAYMENTS
// =====================================================

// ReconcilePending settles orders whose customer never came back and whose
// webhook never arrived. One failing order does not stop the batch.
//
// Every listed order is stamped as reconciled before it is verified, so a
// batch of abandoned sessions moves to the back of the queue on the next run.
func (s *paymentService) ReconcilePending(ctx context.Context) (int, error) {
	l := logger.FromContext(ctx)
	now := s.now()
	after := now.Add(-s.cfg.ReconcileMaxAge)
	before := now.Add(-s.cfg.ReconcileMinAge)

	orders, err := s.orderRepo.ListAwaitingSettlement(ctx, s.cfg.ReconcileProviders, after, before, s.cfg.ReconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending orders: %w", err)
	}

	ids := make([]uuid.UUID, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	if err := s.orderRepo.MarkReconciled(ctx, ids, now); err != nil {
		l.Warn().Err(err).Int("orders", len(ids)).Msg("failed to mark orders reconciled")
	}

	settled := 0
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		resp, err := s.VerifyPayment(ctx, order.ID, model.VerifyPaymentRequest{})
		if err != nil {
			l.Warn().Err(err).
				Str("order_id", order.ID.String()).
				Str("provider", order.PaymentMethodCode).
				Msg("reconcile verify failed")
			continue
		}
		if resp.Paid {
			settled++
		}
	}

	l.Info().
		Int("checked", len(orders)).
		Int("settled", settled).
		Msg("pending payments reconciled")
	return settled, nil
}
