package main

import (
	"github.com/hibiken/asynq"

	paymentJob "storefront-backend/internal/domains/payment/job"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	reconcilePending *paymentJob.ReconcileHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		reconcilePending: paymentJob.NewReconcileHandler(c.PaymentService),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeReconcilePendingPayments, h.reconcilePending.ProcessTask)
}
