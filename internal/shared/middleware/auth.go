package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/shared/response"
	"storefront-backend/pkg/jwt"
	"storefront-backend/pkg/logger"
)

// Context keys set by AuthMiddleware.
const (
	ContextKeySubject = "subject"
	ContextKeyRole    = "role"
)

// AuthMiddleware validates the bearer service token and stores its subject
// and role on the gin context.
func AuthMiddleware(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Read the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		// 2. Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		// 3. Verify and parse
		claims, err := manager.ValidateServiceToken(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn().
				Err(err).
				Str("path", c.FullPath()).
				Msg("service token rejected")
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}
