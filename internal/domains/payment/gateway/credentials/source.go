package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/cache"
)

// =====================================================
// STATIC SOURCE
// =====================================================

// StaticSource serves methods from memory. It backs tests and single-tenant
// deployments that configure providers from the environment.
type StaticSource struct {
	mu      sync.RWMutex
	methods map[string]*model.PaymentMethod
}

func NewStaticSource(methods ...*model.PaymentMethod) *StaticSource {
	s := &StaticSource{methods: make(map[string]*model.PaymentMethod, len(methods))}
	for _, m := range methods {
		s.methods[m.Code] = m
	}
	return s
}

func (s *StaticSource) Put(method *model.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method.Code] = method
}

func (s *StaticSource) Method(_ context.Context, code string) (*model.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.methods[code]
	if !ok {
		return nil, model.NewMethodNotFoundError(code)
	}
	return m, nil
}

// =====================================================
// CACHED SOURCE
// =====================================================

// MethodLoader is the persistence side of a CachedSource.
type MethodLoader interface {
	GetByCode(ctx context.Context, code string) (*model.PaymentMethod, error)
}

// CachedSource reads through a cache in front of the payment_methods table.
// Cache failures degrade to a direct read.
type CachedSource struct {
	loader MethodLoader
	cache  cache.Cache
	ttl    time.Duration
}

func NewCachedSource(loader MethodLoader, c cache.Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{loader: loader, cache: c, ttl: ttl}
}

func cacheKey(code string) string {
	return fmt.Sprintf("payment:method:%s", code)
}

func (s *CachedSource) Method(ctx context.Context, code string) (*model.PaymentMethod, error) {
	key := cacheKey(code)

	if s.cache != nil {
		var cached model.PaymentMethod
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("provider", code).Msg("payment method cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	method, err := s.loader.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, method, s.ttl); err != nil {
			log.Warn().Err(err).Str("provider", code).Msg("payment method cache write failed")
		}
	}
	return method, nil
}

// Invalidate drops the cached configuration for code after an admin update.
func (s *CachedSource) Invalidate(ctx context.Context, code string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey(code))
}
