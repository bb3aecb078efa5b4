package gateway

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// GATEWAY REGISTRY
// =====================================================

// Registry maps provider codes to adapters and is the single entry point the
// payment service uses. Lookup by payment method scans adapters in
// registration order.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	order    []string
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds g. Registering a code twice replaces the earlier adapter but
// keeps its position in the scan order.
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := g.Code()
	if _, exists := r.gateways[code]; !exists {
		r.order = append(r.order, code)
	}
	r.gateways[code] = g
}

func (r *Registry) Get(code string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[code]
	return g, ok
}

// GetByPaymentMethod returns the first adapter, in registration order, whose
// Supports accepts methodCode.
func (r *Registry) GetByPaymentMethod(methodCode string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, code := range r.order {
		g := r.gateways[code]
		if g.Supports(methodCode) {
			return g, true
		}
	}
	return nil, false
}

// Codes lists registered provider codes in registration order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// =====================================================
// OPERATIONS
// =====================================================

// ProcessPayment initiates a payment for order and installs the returned
// provider reference on it. The caller persists the order.
func (r *Registry) ProcessPayment(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error) {
	g, ok := r.GetByPaymentMethod(order.PaymentMethodCode)
	if !ok {
		return nil, model.NewUnsupportedMethodError(order.PaymentMethodCode)
	}
	if order.IsSettled() {
		return nil, model.NewOrderAlreadyPaidError(order.ID.String())
	}
	if !g.IsConfigured(ctx) {
		return nil, model.NewConfigurationError(g.Code(), nil)
	}

	result, err := g.Initiate(ctx, order, data)
	if err != nil {
		log.Error().Err(err).
			Str("order_id", order.ID.String()).
			Str("provider", g.Code()).
			Str("kind", string(model.KindOf(err))).
			Msg("payment initiation failed")
		return nil, err
	}

	if result.Reference != nil {
		if result.Reference.Provider == "" {
			result.Reference.Provider = g.Code()
		}
		if err := order.AttachReference(result.Reference); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("provider", g.Code()).
		Str("gateway_type", result.GatewayType).
		Msg("payment initiated")
	return result, nil
}

// VerifyPayment polls the matching adapter. An unknown method is simply not
// paid.
func (r *Registry) VerifyPayment(ctx context.Context, order *model.Order, data map[string]string) *model.VerifyResult {
	g, ok := r.GetByPaymentMethod(order.PaymentMethodCode)
	if !ok {
		log.Warn().
			Str("order_id", order.ID.String()).
			Str("method", order.PaymentMethodCode).
			Msg("verify requested for unsupported payment method")
		return model.NotPaid("unsupported payment method")
	}
	return g.Verify(ctx, order, data)
}

// Refund validates the amount against what is still refundable and
// delegates to the matching adapter. Only an unknown method is an error;
// every other failure is reported on the result.
func (r *Registry) Refund(ctx context.Context, order *model.Order, amount *decimal.Decimal, reason string) (*model.RefundResult, error) {
	g, ok := r.GetByPaymentMethod(order.PaymentMethodCode)
	if !ok {
		return nil, model.NewUnsupportedMethodError(order.PaymentMethodCode)
	}

	requested := decimal.Zero
	if amount != nil {
		requested = *amount
	}

	if order.PaymentStatus != model.PaymentStatusPaid && order.PaymentStatus != model.PaymentStatusPartiallyRefunded {
		pe := model.NewOrderNotRefundableError(order.PaymentStatus)
		return model.RefundFailed(pe.Kind, requested, pe.Message), nil
	}

	resolved, err := order.ResolveRefundAmount(amount)
	if err != nil {
		log.Warn().Err(err).
			Str("order_id", order.ID.String()).
			Str("provider", g.Code()).
			Msg("refund rejected")
		return model.RefundFailed(model.KindOf(err), requested, err.Error()), nil
	}

	return g.Refund(ctx, order, &resolved, reason), nil
}

// HandleCallback routes a return/webhook payload to the adapter registered
// under provider.
func (r *Registry) HandleCallback(ctx context.Context, provider string, payload *model.CallbackPayload) (*model.CallbackResult, error) {
	g, ok := r.Get(provider)
	if !ok {
		return nil, model.NewUnsupportedMethodError(provider)
	}
	payload.Provider = g.Code()
	return g.HandleCallback(ctx, payload), nil
}

// ConfigFields returns the credential descriptors for code.
func (r *Registry) ConfigFields(code string) ([]model.ConfigField, error) {
	g, ok := r.Get(code)
	if !ok {
		return nil, model.NewUnsupportedMethodError(code)
	}
	return g.ConfigFields(), nil
}
