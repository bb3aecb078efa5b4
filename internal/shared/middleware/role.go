package middleware

import (
	"github.com/gin-gonic/gin"

	"storefront-backend/internal/shared/response"
)

// RequireRole aborts with 403 unless AuthMiddleware stored one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		role := c.GetString(ContextKeyRole)
		if !allowed[role] {
			response.Forbidden(c, "Access denied: insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}
