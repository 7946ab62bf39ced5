package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ActorKey holds the caller label set by AdminTokenAuth.
const ActorKey = "actor"

// AdminTokenAuth guards the catalog admin routes with a static token sent as
// "Authorization: Bearer <token>" or "X-Admin-Token". An empty token disables
// the check outside production; in production it rejects every request.
func AdminTokenAuth(token string, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			if production {
				abortUnauthorized(c, "Admin API token is not configured")
				return
			}
			c.Set(ActorKey, "development")
			c.Next()
			return
		}

		provided := c.GetHeader("X-Admin-Token")
		if provided == "" {
			authHeader := c.GetHeader("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				abortUnauthorized(c, "Authorization header required")
				return
			}
			provided = strings.TrimSpace(authHeader[len("Bearer "):])
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			abortUnauthorized(c, "Invalid admin token")
			return
		}

		c.Set(ActorKey, "admin")
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
