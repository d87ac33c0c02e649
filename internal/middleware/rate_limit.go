package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/cache"
)

// ByClientIP keys limits on the caller's address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUserOrIP keys limits on the authenticated user, falling back to the
// address for guests.
func ByUserOrIP(c *gin.Context) string {
	if id := c.GetString(KeyUserID); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects callers over the limiter's budget with 429. A limiter
// error lets the request through.
func RateLimit(l cache.Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Allow(c.Request.Context(), key(c))
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}
