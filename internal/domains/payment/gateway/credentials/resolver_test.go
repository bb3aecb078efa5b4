package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/cache"
)

func TestResolverPrefersTestKeysInTestMode(t *testing.T) {
	method := &model.PaymentMethod{
		Code:     model.ProviderRazorpay,
		IsActive: true,
		Mode:     model.ModeTest,
		Configuration: map[string]string{
			"key_id":          "rzp_live_abc",
			"test_key_id":     "rzp_test_abc",
			"key_secret":      "live-secret",
			"webhook_secret":  "whsec",
			"test_key_secret": "  ",
		},
	}
	r := NewResolver(method)

	assert.Equal(t, "rzp_test_abc", r.Get("key_id"))
	assert.Equal(t, "live-secret", r.Get("key_secret"), "blank test_ value falls back to live")
	assert.Equal(t, "whsec", r.Get("webhook_secret"))
	assert.Equal(t, "", r.Get("unknown"))
}

func TestResolverIgnoresTestKeysInLiveMode(t *testing.T) {
	r := NewResolver(&model.PaymentMethod{
		Mode: model.ModeLive,
		Configuration: map[string]string{
			"client_id":      "live-id",
			"test_client_id": "sandbox-id",
		},
	})

	assert.Equal(t, "live-id", r.Get("client_id"))
}

func TestResolverEveryKeyFollowsModeRule(t *testing.T) {
	keys := []string{"secret_key", "client_id", "merchant_salt", "key_secret"}
	cfg := map[string]string{}
	for _, k := range keys {
		cfg[k] = "live-" + k
		cfg["test_"+k] = "test-" + k
	}
	r := NewResolver(&model.PaymentMethod{Mode: model.ModeTest, Configuration: cfg})

	for _, k := range keys {
		assert.Equal(t, "test-"+k, r.Get(k))
	}

	delete(cfg, "test_client_id")
	assert.Equal(t, "live-client_id", r.Get("client_id"))
}

func TestResolverLegacyFallback(t *testing.T) {
	r := NewResolver(&model.PaymentMethod{
		Mode:          model.ModeTest,
		Configuration: map[string]string{"api_key": "sk_legacy"},
	}).WithLegacy("secret_key", "api_key")

	assert.Equal(t, "sk_legacy", r.Get("secret_key"))
	assert.True(t, r.Complete("secret_key"))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	spec := Spec{Code: model.ProviderPayPal, Required: []string{"client_id", "client_secret"}}

	t.Run("missing method is a configuration error", func(t *testing.T) {
		_, err := Load(ctx, NewStaticSource(), spec)
		require.Error(t, err)
		assert.Equal(t, model.KindConfiguration, model.KindOf(err))
	})

	t.Run("inactive method is not configured", func(t *testing.T) {
		src := NewStaticSource(&model.PaymentMethod{
			Code:          model.ProviderPayPal,
			IsActive:      false,
			Configuration: map[string]string{"client_id": "a", "client_secret": "b"},
		})
		assert.False(t, Configured(ctx, src, spec))
	})

	t.Run("incomplete credentials list what is missing", func(t *testing.T) {
		src := NewStaticSource(&model.PaymentMethod{
			Code:          model.ProviderPayPal,
			IsActive:      true,
			Configuration: map[string]string{"client_id": "a"},
		})
		_, err := Load(ctx, src, spec)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrNotConfigured))
		assert.Contains(t, err.Error(), "client_secret")
	})

	t.Run("complete credentials load", func(t *testing.T) {
		src := NewStaticSource(&model.PaymentMethod{
			Code:          model.ProviderPayPal,
			IsActive:      true,
			Mode:          model.ModeLive,
			Configuration: map[string]string{"client_id": "a", "client_secret": "b"},
		})
		r, err := Load(ctx, src, spec)
		require.NoError(t, err)
		assert.Equal(t, "b", r.Get("client_secret"))
	})
}

type countingLoader struct {
	calls  int
	method *model.PaymentMethod
}

func (l *countingLoader) GetByCode(_ context.Context, code string) (*model.PaymentMethod, error) {
	l.calls++
	if l.method == nil || l.method.Code != code {
		return nil, model.NewMethodNotFoundError(code)
	}
	return l.method, nil
}

func TestCachedSourceReadsThrough(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{method: &model.PaymentMethod{
		Code:          model.ProviderStripe,
		IsActive:      true,
		Mode:          model.ModeLive,
		Configuration: map[string]string{"secret_key": "sk_live"},
	}}
	src := NewCachedSource(loader, cache.NewMemoryCache(), time.Minute)

	for i := 0; i < 3; i++ {
		m, err := src.Method(ctx, model.ProviderStripe)
		require.NoError(t, err)
		assert.Equal(t, "sk_live", m.Configuration["secret_key"])
	}
	assert.Equal(t, 1, loader.calls)

	require.NoError(t, src.Invalidate(ctx, model.ProviderStripe))
	_, err := src.Method(ctx, model.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)

	_, err = src.Method(ctx, model.ProviderPhonePe)
	assert.True(t, errors.Is(err, model.ErrMethodNotFound))
}
