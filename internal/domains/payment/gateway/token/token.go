// Package token caches provider OAuth access tokens outside the adapters.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultSkew is subtracted from a token's expiry so it is never presented
// right as it lapses.
const DefaultSkew = 60 * time.Second

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can still be used at now.
func (t *Token) ValidAt(now time.Time, skew time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Add(skew).Before(t.ExpiresAt)
}

// Key builds the cache key for a credential set. The client secret is never
// part of the key.
func Key(provider, mode, clientID string) string {
	return fmt.Sprintf("payment:oauth:%s:%s:%s", provider, mode, clientID)
}

// =====================================================
// CACHE BACKENDS
// =====================================================

type Cache interface {
	Get(ctx context.Context, key string) (*Token, error)
	Put(ctx context.Context, key string, tok *Token) error
	Delete(ctx context.Context, key string) error
}

// MemoryCache keeps tokens for the life of the process.
type MemoryCache struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: make(map[string]*Token)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokens[key]
	if !ok {
		return nil, nil
	}
	cp := *tok
	return &cp, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, tok *Token) error {
	cp := *tok
	c.mu.Lock()
	c.tokens[key] = &cp
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
	return nil
}

// RedisCache shares tokens across API and worker processes. Entries expire
// with the token.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Token, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get token: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &tok, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, tok *Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// =====================================================
// SOURCE
// =====================================================

// FetchFunc obtains a fresh token from the provider.
type FetchFunc func(ctx context.Context) (*Token, error)

// Source hands out cached tokens and refreshes them on expiry. Concurrent
// refreshes for the same key share one provider call.
type Source struct {
	cache Cache
	skew  time.Duration
	now   func() time.Time
	group singleflight.Group
}

func NewSource(cache Cache) *Source {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Source{cache: cache, skew: DefaultSkew, now: time.Now}
}

// Token returns a valid token for key, calling fetch only when the cached one
// is missing or about to expire.
func (s *Source) Token(ctx context.Context, key string, fetch FetchFunc) (*Token, error) {
	if tok := s.cached(ctx, key); tok != nil {
		return tok, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if tok := s.cached(ctx, key); tok != nil {
			return tok, nil
		}

		tok, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, fmt.Errorf("token endpoint returned no access token")
		}

		if err := s.cache.Put(ctx, key, tok); err != nil {
			log.Warn().Err(err).Str("token_key", key).Msg("failed to cache access token")
		}
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

// Invalidate drops a token the provider rejected.
func (s *Source) Invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("token_key", key).Msg("failed to invalidate access token")
	}
}

func (s *Source) cached(ctx context.Context, key string) *Token {
	tok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("token_key", key).Msg("token cache read failed")
		return nil
	}
	if !tok.ValidAt(s.now(), s.skew) {
		return nil
	}
	return tok
}
