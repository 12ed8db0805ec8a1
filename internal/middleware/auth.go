package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/auth"
)

// TokenVerifier validates an access token and returns the user id.
type TokenVerifier interface {
	VerifyAccess(token string) (int, error)
}

// AuthMiddleware validates the Authorization header and stores the
// authenticated user id on the request context.
func AuthMiddleware(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := tokens.VerifyAccess(parts[1])
		if err != nil {
			status := gin.H{"error": "invalid token"}
			if errors.Is(err, auth.ErrTokenExpired) {
				status = gin.H{"error": "token expired"}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, status)
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
