package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-backend/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestID reuses an inbound X-Request-ID or generates one, and attaches a
// request-scoped logger to the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}

		c.Set("request_id", reqID)
		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), reqID))

		c.Next()
	}
}
