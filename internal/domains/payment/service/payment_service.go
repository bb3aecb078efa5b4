package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/model"
	repo "storefront-backend/internal/domains/payment/repository"
	"storefront-backend/pkg/lock"
	"storefront-backend/pkg/logger"
)

// =====================================================
// SERVICE CONFIGURATION
// =====================================================

type Config struct {
	// ReconcileMinAge is how long a session stays pending before the
	// reconcile job polls the provider.
	ReconcileMinAge time.Duration
	// ReconcileMaxAge stops polling sessions that were abandoned.
	ReconcileMaxAge time.Duration
	// ReconcileBatchSize caps orders verified per run.
	ReconcileBatchSize int
	// ReconcileProviders are the providers that support server-side polling.
	ReconcileProviders []string
}

func (c Config) withDefaults() Config {
	if c.ReconcileMinAge <= 0 {
		c.ReconcileMinAge = model.ReconcileMinAgeMinutes * time.Minute
	}
	if c.ReconcileMaxAge <= c.ReconcileMinAge {
		c.ReconcileMaxAge = model.ReconcileMaxAgeHours * time.Hour
	}
	if c.ReconcileBatchSize <= 0 {
		c.ReconcileBatchSize = model.ReconcileBatchSize
	}
	if len(c.ReconcileProviders) == 0 {
		c.ReconcileProviders = model.ValidProviders
	}
	return c
}

// =====================================================
// PAYMENT SERVICE IMPLEMENTATION
// =====================================================
type paymentService struct {
	registry    *gateway.Registry
	orderRepo   repo.OrderRepoInterface
	webhookRepo repo.WebhookRepoInterface
	txManager   Transactor
	locker      lock.Locker
	cfg         Config
	now         func() time.Time
}

func NewPaymentService(
	registry *gateway.Registry,
	orderRepo repo.OrderRepoInterface,
	webhookRepo repo.WebhookRepoInterface,
	txManager Transactor,
	locker lock.Locker,
	cfg Config,
) PaymentService {
	return &paymentService{
		registry:    registry,
		orderRepo:   orderRepo,
		webhookRepo: webhookRepo,
		txManager:   txManager,
		locker:      locker,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
	}
}

func orderLockKey(orderID uuid.UUID) string {
	return "payment:order:" + orderID.String()
}

// withOrderLock runs fn while holding the order's payment lock.
func (s *paymentService) withOrderLock(ctx context.Context, orderID uuid.UUID, fn func() error) error {
	release, err := s.locker.Acquire(ctx, orderLockKey(orderID))
	if errors.Is(err, lock.ErrNotObtained) {
		return model.NewOrderLockedError(orderID.String())
	}
	if err != nil {
		return fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("order_id", orderID.String()).Msg("failed to release order lock")
		}
	}()
	return fn()
}

// =====================================================
// PROCESS PAYMENT
// =====================================================

// ProcessPayment initiates payment for an order
//
// Business Logic Flow:
// 1. Validate request
// 2. Lock and load the order
// 3. Initiate through the registry (installs the new gateway reference)
// 4. Persist status + reference with the optimistic version check
//
// Edge Cases:
// - Order already settled -> PAY016
// - Provider not configured -> PAY001 (no network call)
// - Provider failure -> PAY005 (retryable)
func (s *paymentService) ProcessPayment(
	ctx context.Context,
	orderID uuid.UUID,
	req model.InitiatePaymentRequest,
) (*model.InitiatePaymentResponse, error) {
	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError("Invalid request", err)
	}

	var response *model.InitiatePaymentResponse
	err := s.withOrderLock(ctx, orderID, func() error {
		// Step 2: Load order
		order, err := s.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		// Step 3: Initiate with the provider
		result, err := s.registry.ProcessPayment(ctx, order, req.Data)
		if err != nil {
			return err
		}

		// Step 4: Persist the new reference
		if err := s.orderRepo.UpdatePayment(ctx, order); err != nil {
			return err
		}

		response = &model.InitiatePaymentResponse{
			OrderID:     order.ID,
			Provider:    order.PaymentMethodCode,
			GatewayType: result.GatewayType,
			PaymentData: result.PaymentData,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("order_id", orderID.String()).
		Str("provider", response.Provider).
		Msg("payment session created")
	return response, nil
}

// =====================================================
// VERIFY PAYMENT
// =====================================================

// VerifyPayment is safe to call repeatedly: a settled order is reported as
// paid without asking the provider again.
func (s *paymentService) VerifyPayment(
	ctx context.Context,
	orderID uuid.UUID,
	req model.VerifyPaymentRequest,
) (*model.VerifyPaymentResponse, error) {
	var response *model.VerifyPaymentResponse
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		if order.IsSettled() {
			response = &model.VerifyPaymentResponse{
				OrderID:       order.ID,
				Paid:          true,
				PaymentStatus: order.PaymentStatus,
				TransactionID: order.CapturedTransactionID(),
				Message:       "Order already settled",
			}
			return nil
		}

		result := s.registry.VerifyPayment(ctx, order, req.Data)
		if result.Paid && order.MarkPaid(result.TransactionID, result.PaymentIntentID, s.now()) {
			if err := s.orderRepo.UpdatePayment(ctx, order); err != nil {
				return err
			}
			logger.FromContext(ctx).Info().
				Str("order_id", order.ID.String()).
				Str("provider", order.PaymentMethodCode).
				Str("transaction_id", result.TransactionID).
				Msg("payment verified")
		}

		response = &model.VerifyPaymentResponse{
			OrderID:       order.ID,
			Paid:          result.Paid,
			PaymentStatus: order.PaymentStatus,
			TransactionID: result.TransactionID,
			Message:       result.Message,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// =====================================================
// REFUND
// =====================================================

// Refund delegates amount validation to the registry and records a
// successful refund on the order. Failures are reported on the response.
func (s *paymentService) Refund(
	ctx context.Context,
	orderID uuid.UUID,
	req model.RefundRequest,
) (*model.RefundResponse, error) {
	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError("Invalid refund request", err)
	}

	var response *model.RefundResponse
	err := s.withOrderLock(ctx, orderID, func() error {
		// Step 2: Load order
		order, err := s.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		// Step 3: Refund through the provider
		result, err := s.registry.Refund(ctx, order, req.Amount, req.Reason)
		if err != nil {
			return err
		}

		response = &model.RefundResponse{
			OrderID:       order.ID,
			Success:       result.Success,
			TransactionID: result.TransactionID,
			Amount:        result.Amount,
			PaymentStatus: order.PaymentStatus,
			Message:       result.Message,
			Kind:          result.Kind,
		}
		if !result.Success {
			logger.FromContext(ctx).Warn().
				Str("order_id", order.ID.String()).
				Str("provider", order.PaymentMethodCode).
				Str("kind", string(result.Kind)).
				Msg(result.Message)
			return nil
		}

		// Step 4: Record the refund on the order
		refundID := result.TransactionID
		if refundID == "" {
			refundID = uuid.NewString()
		}
		changed, err := order.AddRefund(model.RefundRecord{
			ID:         refundID,
			Amount:     result.Amount,
			Reason:     req.Reason,
			Status:     result.Status,
			RefundedAt: s.now(),
		})
		if err != nil {
			// The provider already accepted the refund; surface the
			// bookkeeping failure so it can be reconciled by hand.
			logger.FromContext(ctx).Error().Err(err).
				Str("order_id", order.ID.String()).
				Str("refund_id", refundID).
				Msg("provider refund succeeded but could not be recorded")
			return err
		}
		if changed {
			if err := s.orderRepo.UpdatePayment(ctx, order); err != nil {
				return err
			}
		}
		response.PaymentStatus = order.PaymentStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// =====================================================
// CONFIG FIELDS
// =====================================================

func (s *paymentService) ConfigFields(ctx context.Context, code string) (*model.ConfigFieldsResponse, error) {
	g, ok := s.registry.Get(code)
	if !ok {
		return nil, model.NewUnsupportedMethodError(code)
	}
	return &model.ConfigFieldsResponse{
		Code:       g.Code(),
		Configured: g.IsConfigured(ctx),
		Fields:     g.ConfigFields(),
	}, nil
}
