package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/token"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// GATEWAY CONTRACT
// =====================================================

// Gateway is implemented once per payment provider. Adapters never mutate the
// order they are given; Initiate reports the new provider reference on the
// result and the registry installs it.
type Gateway interface {
	// Code is the stable provider identifier matched against
	// Order.PaymentMethodCode.
	Code() string

	// Supports reports whether this adapter handles methodCode.
	Supports(methodCode string) bool

	// IsConfigured is true when the method is active and every required
	// credential resolves for the active mode.
	IsConfigured(ctx context.Context) bool

	// Initiate starts a payment. It fails with a configuration error before
	// any network call, a validation error for non-positive amounts, and a
	// provider error when the remote call fails.
	Initiate(ctx context.Context, order *model.Order, data map[string]string) (*model.GatewayResult, error)

	// Verify polls the provider for settlement. Failures are logged and
	// reported as Paid=false.
	Verify(ctx context.Context, order *model.Order, data map[string]string) *model.VerifyResult

	// HandleCallback authenticates a browser return or webhook and reports
	// what it means for the order. It never returns an error.
	HandleCallback(ctx context.Context, payload *model.CallbackPayload) *model.CallbackResult

	// Refund refunds amount (nil means everything refundable) against the
	// captured transaction. It never returns an error.
	Refund(ctx context.Context, order *model.Order, amount *decimal.Decimal, reason string) *model.RefundResult

	// ConfigFields declares the credential inputs for the settings UI.
	ConfigFields() []model.ConfigField
}

// =====================================================
// ADAPTER OPTIONS
// =====================================================

// Options are the shared collaborators every adapter is built with.
type Options struct {
	Methods    credentials.Source
	HTTPClient *http.Client
	Tokens     *token.Source
	URLs       CallbackURLs

	// Endpoints overrides a provider's API base URL, keyed by provider code.
	// Used for stub environments and tests.
	Endpoints map[string]string

	Now func() time.Time
}

// WithDefaults fills in an HTTP client, token source and clock.
func (o Options) WithDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Tokens == nil {
		o.Tokens = token.NewSource(token.NewMemoryCache())
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Endpoint returns the override for provider or def.
func (o Options) Endpoint(provider, def string) string {
	if v := strings.TrimRight(o.Endpoints[provider], "/"); v != "" {
		return v
	}
	return def
}

// =====================================================
// CALLBACK URLS
// =====================================================

// CallbackURLs builds the public URLs providers send customers and webhooks
// back to.
type CallbackURLs struct {
	BaseURL string
}

func (u CallbackURLs) base() string {
	return strings.TrimRight(u.BaseURL, "/")
}

// Return is the browser-return URL for an order.
func (u CallbackURLs) Return(provider string, orderID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/payments/callback/%s?order_id=%s", u.base(), provider, orderID)
}

// ReturnWith appends extra query parameters to Return. Values are not
// escaped so provider placeholders like {CHECKOUT_SESSION_ID} survive.
func (u CallbackURLs) ReturnWith(provider string, orderID uuid.UUID, extra string) string {
	return u.Return(provider, orderID) + "&" + extra
}

// Cancel is the URL used when the customer abandons the provider page.
func (u CallbackURLs) Cancel(provider string, orderID uuid.UUID) string {
	return u.Return(provider, orderID) + "&cancelled=1"
}

// Webhook is the server-to-server notification URL.
func (u CallbackURLs) Webhook(provider string) string {
	return fmt.Sprintf("%s/api/v1/webhooks/%s", u.base(), provider)
}

// Override returns data[key] when it is an absolute http(s) URL, else def.
func Override(data map[string]string, key, def string) string {
	v := strings.TrimSpace(data[key])
	if v == "" {
		return def
	}
	parsed, err := url.Parse(v)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return def
	}
	return v
}
