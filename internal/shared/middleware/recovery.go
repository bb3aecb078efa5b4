package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/shared/response"
	"storefront-backend/pkg/logger"
)

// Recovery turns a panic into a 500. Headers already sent cannot be
// rewritten, so only the log line is guaranteed then.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context()).Error().
					Str("path", c.FullPath()).
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")

				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, "SYS_001", "Internal server error")
				}
				c.Abort()
			}
		}()

		c.Next()
	}
}
