package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/audit"
	"storefront/internal/utils"
)

// Context keys set for authenticated requests.
const (
	KeyUserID = "user_id"
	KeyEmail  = "email"
	KeyRole   = "role"
)

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c *gin.Context, claims *utils.Claims) {
	c.Set(KeyUserID, claims.UserID)
	c.Set(KeyEmail, claims.Email)
	c.Set(KeyRole, claims.Role)
	ctx := audit.WithActor(c.Request.Context(), audit.Actor{
		UserID: claims.UserID,
		Email:  claims.Email,
		IP:     c.ClientIP(),
	})
	c.Request = c.Request.WithContext(ctx)
}

// OptionalAuth reads a bearer token when present. Guests pass through; a
// present but invalid token is rejected.
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), audit.Actor{IP: c.ClientIP()}))
			c.Next()
			return
		}
		claims, err := utils.ParseToken(secret, tok)
		if err != nil {
			slog.DebugContext(c.Request.Context(), "rejected token", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing token"})
			return
		}
		claims, err := utils.ParseToken(secret, tok)
		if err != nil {
			slog.DebugContext(c.Request.Context(), "rejected token", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}
