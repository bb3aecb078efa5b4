// Package credentials resolves a provider's active credential set from its
// PaymentMethod configuration.
package credentials

import (
	"context"
	"errors"
	"strings"

	"storefront-backend/internal/domains/payment/model"
)

const testPrefix = "test_"

// Source loads the stored configuration for a provider code.
type Source interface {
	Method(ctx context.Context, code string) (*model.PaymentMethod, error)
}

// Resolver answers credential lookups for one PaymentMethod. In test mode a
// test_ prefixed key wins over the unprefixed (live) key.
type Resolver struct {
	method *model.PaymentMethod
	legacy map[string]string
}

func NewResolver(method *model.PaymentMethod) *Resolver {
	if method == nil {
		method = &model.PaymentMethod{}
	}
	return &Resolver{method: method, legacy: map[string]string{}}
}

// WithLegacy registers legacyKey as a last-resort alias for key.
func (r *Resolver) WithLegacy(key, legacyKey string) *Resolver {
	r.legacy[key] = legacyKey
	return r
}

func (r *Resolver) Method() *model.PaymentMethod {
	return r.method
}

func (r *Resolver) IsTestMode() bool {
	return r.method.IsTestMode()
}

// Get resolves key for the active mode.
func (r *Resolver) Get(key string) string {
	if v := r.lookup(key); v != "" {
		return v
	}
	if alt, ok := r.legacy[key]; ok {
		return r.lookup(alt)
	}
	return ""
}

func (r *Resolver) lookup(key string) string {
	cfg := r.method.Configuration
	if cfg == nil {
		return ""
	}
	if r.IsTestMode() {
		if v := strings.TrimSpace(cfg[testPrefix+key]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(cfg[key])
}

// Missing lists the required keys that resolve to empty values.
func (r *Resolver) Missing(required ...string) []string {
	var missing []string
	for _, key := range required {
		if r.Get(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Complete reports whether every required key resolves to a non-empty value.
func (r *Resolver) Complete(required ...string) bool {
	return len(r.Missing(required...)) == 0
}

// =====================================================
// LOADING
// =====================================================

// Spec describes what a provider needs from its configuration.
type Spec struct {
	Code     string
	Required []string
	// Legacy maps a credential key to an older key name still accepted.
	Legacy map[string]string
}

// Load fetches and validates the credentials for spec.Code. Any inactive,
// missing or incomplete configuration is a configuration error; no caller
// reaches the network without a complete Resolver.
func Load(ctx context.Context, src Source, spec Spec) (*Resolver, error) {
	if src == nil {
		return nil, model.NewConfigurationError(spec.Code, spec.Required)
	}

	method, err := src.Method(ctx, spec.Code)
	if err != nil {
		if errors.Is(err, model.ErrMethodNotFound) {
			return nil, model.NewConfigurationError(spec.Code, spec.Required)
		}
		return nil, err
	}
	if method == nil || !method.IsActive {
		return nil, model.NewConfigurationError(spec.Code, nil)
	}

	r := NewResolver(method)
	for key, alt := range spec.Legacy {
		r.WithLegacy(key, alt)
	}

	if missing := r.Missing(spec.Required...); len(missing) > 0 {
		return nil, model.NewConfigurationError(spec.Code, missing)
	}
	return r, nil
}

// Configured is Load reduced to a boolean.
func Configured(ctx context.Context, src Source, spec Spec) bool {
	_, err := Load(ctx, src, spec)
	return err == nil
}
