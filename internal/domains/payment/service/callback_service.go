package service

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/logger"
)

// =====================================================
// CALLBACK PROCESSING
// =====================================================

// HandleCallback processes a browser return or provider webhook
//
// Business Logic Flow:
// 1. Authenticate and interpret the payload (adapter, no side effects on orders)
// 2. Match the order by id, then order number, then session reference
// 3. Record the delivery in payment_webhook_logs (idempotency by event id)
// 4. Under the order lock, apply the transition and mark the log processed
//    in one transaction
//
// Unverified payloads are logged and answered with Success=false. Only
// infrastructure failures and unmatched state-changing events return an
// error.
func (s *paymentService) HandleCallback(
	ctx context.Context,
	provider string,
	payload *model.CallbackPayload,
) (*model.CallbackResponse, error) {
	l := logger.FromContext(ctx)

	// Step 1: Authenticate and interpret
	result, err := s.registry.HandleCallback(ctx, provider, payload)
	if err != nil {
		return nil, err
	}

	response := &model.CallbackResponse{
		Provider:      provider,
		Success:       result.Success,
		TransactionID: result.TransactionID,
		Message:       result.Message,
	}

	// Step 2: Match the order
	var (
		order     *model.Order
		lookupErr error
	)
	if result.Verified {
		order, lookupErr = s.resolveOrder(ctx, provider, result)
		if order != nil {
			response.OrderID = &order.ID
			response.PaymentStatus = order.PaymentStatus
		}
	}

	// Step 3: Record the delivery
	entry := newWebhookLog(provider, payload, result, s.now())
	if order != nil {
		entry.OrderID = &order.ID
	}
	processed, err := s.webhookRepo.Record(ctx, entry)
	if err != nil {
		return nil, err
	}
	if processed {
		l.Info().
			Str("provider", provider).
			Str("event_id", result.EventID).
			Msg("duplicate callback ignored")
		response.Duplicate = true
		response.Message = "Event already processed"
		return response, nil
	}

	if !result.Verified {
		l.Warn().
			Str("provider", provider).
			Str("reason", result.Message).
			Msg("callback rejected")
		response.Success = false
		return response, nil
	}

	if !changesState(result) {
		if err := s.webhookRepo.MarkAsProcessed(ctx, entry.ID); err != nil {
			return nil, err
		}
		return response, nil
	}

	if lookupErr != nil {
		s.markProcessingError(ctx, entry.ID, lookupErr)
		return nil, lookupErr
	}

	// Step 4: Apply under the order lock
	err = s.withOrderLock(ctx, order.ID, func() error {
		current, err := s.orderRepo.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}

		changed, err := applyCallback(current, result, s.now())
		if err != nil {
			return err
		}

		if err := s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
			if changed {
				if err := s.orderRepo.UpdatePaymentWithTx(ctx, tx, current); err != nil {
					return err
				}
			}
			return s.webhookRepo.MarkAsProcessedWithTx(ctx, tx, entry.ID)
		}); err != nil {
			return err
		}

		response.PaymentStatus = current.PaymentStatus
		if changed {
			l.Info().
				Str("order_id", current.ID.String()).
				Str("provider", provider).
				Str("event", result.Event).
				Str("payment_status", current.PaymentStatus).
				Msg("callback applied")
		}
		return nil
	})
	if err != nil {
		s.markProcessingError(ctx, entry.ID, err)
		return nil, err
	}
	return response, nil
}

// resolveOrder matches the callback to one local order. The provider
// reference the adapter authenticated (SessionRef) is tried first. Whatever
// order is found must agree with every reference the result carries and
// belong to the calling provider, so an unsigned order_id can never redirect
// a verified payment onto another order.
func (s *paymentService) resolveOrder(ctx context.Context, provider string, r *model.CallbackResult) (*model.Order, error) {
	lastErr := error(model.NewCallbackUnmatchedError(provider, ""))

	lookups := []struct {
		ref string
		get func() (*model.Order, error)
	}{
		{r.SessionRef, func() (*model.Order, error) { return s.orderRepo.GetBySessionRef(ctx, provider, r.SessionRef) }},
		{r.OrderID, func() (*model.Order, error) {
			id, err := uuid.Parse(r.OrderID)
			if err != nil {
				return nil, model.NewCallbackUnmatchedError(provider, r.OrderID)
			}
			return s.orderRepo.GetByID(ctx, id)
		}},
		{r.OrderNumber, func() (*model.Order, error) { return s.orderRepo.GetByNumber(ctx, r.OrderNumber) }},
	}

	for _, lookup := range lookups {
		if lookup.ref == "" {
			continue
		}
		order, err := lookup.get()
		if err != nil {
			if model.KindOf(err) != model.KindNotFound {
				return nil, err
			}
			lastErr = err
			continue
		}
		if order.PaymentMethodCode != provider {
			return nil, model.NewCallbackUnmatchedError(provider, lookup.ref)
		}
		if ref, ok := conflictingRef(order, r); !ok {
			return nil, model.NewCallbackUnmatchedError(provider, ref)
		}
		return order, nil
	}

	// A verified session reference that matches no order must not fall back
	// to weaker references.
	if r.SessionRef != "" && (r.OrderID != "" || r.OrderNumber != "") {
		return nil, model.NewCallbackUnmatchedError(provider, r.SessionRef)
	}
	return nil, lastErr
}

// conflictingRef checks every reference on the result against order and
// returns the first one that disagrees.
func conflictingRef(order *model.Order, r *model.CallbackResult) (string, bool) {
	if r.SessionRef != "" && !order.GatewayReference.MatchesSession(r.SessionRef) {
		return r.SessionRef, false
	}
	if r.OrderID != "" && r.OrderID != order.ID.String() {
		return r.OrderID, false
	}
	if r.OrderNumber != "" && r.OrderNumber != order.OrderNumber {
		return r.OrderNumber, false
	}
	return "", true
}

// changesState reports whether the result asks for an order transition.
func changesState(r *model.CallbackResult) bool {
	if r.Event == model.EventRefundCreated && r.RefundAmount != nil {
		return true
	}
	return r.Status == model.PaymentStatusPaid || r.Status == model.PaymentStatusFailed
}

func applyCallback(order *model.Order, r *model.CallbackResult, now time.Time) (bool, error) {
	if r.Event == model.EventRefundCreated && r.RefundAmount != nil {
		return order.AddRefund(model.RefundRecord{
			ID:         r.RefundID,
			Amount:     *r.RefundAmount,
			Status:     "processed",
			RefundedAt: now,
		})
	}

	switch r.Status {
	case model.PaymentStatusPaid:
		return order.MarkPaid(r.TransactionID, "", now), nil
	case model.PaymentStatusFailed:
		return order.MarkFailed(), nil
	}
	return false, nil
}

func (s *paymentService) markProcessingError(ctx context.Context, id uuid.UUID, cause error) {
	if err := s.webhookRepo.MarkProcessingError(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("webhook_id", id.String()).Msg("failed to record webhook processing error")
	}
}

// =====================================================
// WEBHOOK LOG
// =====================================================

var signatureHeaders = []string{"Stripe-Signature", "X-Razorpay-Signature"}

// redactedHeaders are never persisted.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

func newWebhookLog(provider string, payload *model.CallbackPayload, r *model.CallbackResult, now time.Time) *model.PaymentWebhookLog {
	headers := make(map[string]string, len(payload.Headers))
	for key, values := range payload.Headers {
		if len(values) == 0 || redactedHeaders[key] {
			continue
		}
		headers[key] = values[0]
	}

	body := string(payload.Body)
	if body == "" && len(payload.Fields) > 0 {
		form := url.Values{}
		for k, v := range payload.Fields {
			form.Set(k, v)
		}
		body = form.Encode()
	}

	var signature string
	for _, h := range signatureHeaders {
		if v := payload.Headers.Get(h); v != "" {
			signature = v
			break
		}
	}
	if signature == "" {
		signature = firstField(payload, "hash", "razorpay_signature")
	}

	eventType := r.Event
	if eventType == "" {
		eventType = model.EventPaymentReturn
	}

	entry := &model.PaymentWebhookLog{
		ID:         uuid.New(),
		Provider:   provider,
		EventType:  eventType,
		EventID:    r.EventID,
		Headers:    headers,
		Body:       body,
		Signature:  signature,
		IsValid:    r.Verified,
		ReceivedAt: now,
	}
	if !r.Verified {
		entry.MarkAsInvalid(r.Message)
	}
	return entry
}

func firstField(payload *model.CallbackPayload, keys ...string) string {
	for _, k := range keys {
		if v := payload.Field(k); v != "" {
			return v
		}
	}
	return ""
}
