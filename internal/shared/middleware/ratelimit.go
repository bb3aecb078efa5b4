package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"storefront-backend/internal/shared/response"
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than idleTTL are dropped by Cleanup.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  3 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// getVisitor retrieves or creates a rate limiter for the given key.
func (l *RateLimiter) getVisitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(l.limit, l.burst)
		l.visitors[key] = &visitor{limiter, l.now()}
		return limiter
	}

	v.lastSeen = l.now()
	return v.limiter
}

// Allow reports whether key may make a request now.
func (l *RateLimiter) Allow(key string) bool {
	return l.getVisitor(key).AllowN(l.now(), 1)
}

// Cleanup removes idle visitors and returns how many were dropped.
func (l *RateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, v := range l.visitors {
		if l.now().Sub(v.lastSeen) > l.idleTTL {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every minute until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Middleware limits by client IP. Buckets are shared by every route the
// middleware is mounted on.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow("ip:" + clientIP(c)) {
			c.Header("Retry-After", "1")
			response.TooManyRequests(c, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
