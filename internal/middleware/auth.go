package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// AuthHeader carries the shared key on internal admin routes.
const AuthHeader = "X-Internal-API-Key"

// internalAPIKey returns the configured shared key. The prefixed name wins
// so a deployment can scope the key to this service; the bare name is the
// convention shared across services.
func internalAPIKey() string {
	if key := os.Getenv("BOM_SERVICE_INTERNAL_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("INTERNAL_API_KEY")
}

// InternalAuthMiddleware gates the /internal route group behind the shared
// service key, compared in constant time.
func InternalAuthMiddleware() gin.HandlerFunc {
	apiKey := internalAPIKey()
	if apiKey == "" {
		// Fail closed rather than exposing admin routes unauthenticated.
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "server misconfigured: internal API key not set",
			})
		}
	}
	apiKeyBytes := []byte(apiKey)

	return func(c *gin.Context) {
		key := c.GetHeader(AuthHeader)
		if subtle.ConstantTimeCompare([]byte(key), apiKeyBytes) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}
