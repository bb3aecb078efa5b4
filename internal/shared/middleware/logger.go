package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"storefront-backend/pkg/logger"
)

// Logger writes one line per request. Callback and webhook paths are logged
// by route template so provider query strings (signatures, tokens) never
// reach the log.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		l := logger.FromContext(c.Request.Context())
		event := l.Info()
		switch {
		case status >= 500:
			event = l.Error()
		case status >= 400:
			event = l.Warn()
		}

		if provider := c.Param("provider"); provider != "" {
			event = event.Str("provider", provider)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Int("size", c.Writer.Size()).
			Dur("latency_ms", time.Since(start)).
			Str("ip", c.GetString(ContextKeyClientIP)).
			Msg("HTTP Request")
	}
}
