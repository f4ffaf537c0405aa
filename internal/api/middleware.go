package api

import (
	"net/http"
	"strings"

	"zapgpt/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer token and stores the caller's
// identity on the context under "userId" and "userEmail".
func AuthRequired(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be a bearer token"})
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Next()
	}
}

// currentUserID pulls the authenticated user id set by AuthRequired.
func currentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userId")
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}
