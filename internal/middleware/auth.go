package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"appstore-notifications/internal/response"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the admin key for the subscription query API.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthMiddleware only lets through requests presenting adminKey.
// An empty adminKey disables the protected routes entirely.
func APIKeyAuthMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "API access is disabled")
			return
		}

		apiKey := c.GetHeader(APIKeyHeader)
		if apiKey == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "Missing API key")
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(adminKey)) != 1 {
			response.AbortWithError(c, http.StatusUnauthorized, "Invalid API key")
			return
		}

		c.Set("request_time", time.Now())
		c.Next()
	}
}
