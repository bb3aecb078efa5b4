package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"storefront-backend/internal/shared"
)

// Reconciler is the slice of the payment service the job needs.
type Reconciler interface {
	ReconcilePending(ctx context.Context) (int, error)
}

// ReconcileHandler polls providers for sessions whose browser return and
// webhook were both lost.
type ReconcileHandler struct {
	reconciler Reconciler
}

func NewReconcileHandler(reconciler Reconciler) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

func (h *ReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	start := time.Now()
	settled, err := h.reconciler.ReconcilePending(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("triggered_by", payload.TriggeredBy).
			Int("settled", settled).
			Msg("Reconcile pending payments failed")
		return fmt.Errorf("reconcile pending payments: %w", err)
	}

	log.Info().
		Str("triggered_by", payload.TriggeredBy).
		Int("settled", settled).
		Dur("took", time.Since(start)).
		Msg("Reconcile pending payments finished")
	return nil
}

// NewReconcileTask builds the task enqueued by the scheduler or by an
// operator.
func NewReconcileTask(triggeredBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(shared.ReconcilePayload{TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(shared.TypeReconcilePendingPayments, payload), nil
}
