package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/utils"
)

// RequireAdmin must run after AuthRequired.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(KeyRole) != utils.RoleAdmin {
			slog.WarnContext(c.Request.Context(), "admin route denied", "user_id", c.GetString(KeyUserID), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(KeyRole) == utils.RoleAdmin
}
