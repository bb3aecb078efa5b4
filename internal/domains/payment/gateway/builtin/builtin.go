// Package builtin wires every shipped adapter into a registry.
package builtin

import (
	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/paypal"
	"storefront-backend/internal/domains/payment/gateway/payumoney"
	"storefront-backend/internal/domains/payment/gateway/phonepe"
	"storefront-backend/internal/domains/payment/gateway/razorpay"
	"storefront-backend/internal/domains/payment/gateway/stripe"
)

// DefaultAdapters builds the shipped adapters in model.ValidProviders order.
// The options are shared, so every adapter uses one HTTP client and one
// token source.
func DefaultAdapters(opts gateway.Options) []gateway.Gateway {
	opts = opts.WithDefaults()
	return []gateway.Gateway{
		stripe.New(opts),
		paypal.New(opts),
		razorpay.New(opts),
		payumoney.New(opts),
		phonepe.New(opts),
	}
}

func NewDefaultRegistry(opts gateway.Options) *gateway.Registry {
	return gateway.NewRegistry(DefaultAdapters(opts)...)
}
