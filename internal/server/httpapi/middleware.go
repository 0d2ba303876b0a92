package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/server/auth"
)

const ctxKeyUsername = "username"

// RequireAuth verifies the bearer token and stores the decoded username in
// the request context. Missing or unverifiable tokens yield 401; anything
// else that goes wrong during verification is a 500.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
			return
		}

		token := strings.TrimPrefix(header, common.BearerPrefix)
		username, err := auth.UsernameFromToken(token, h.jwtSecret)
		if err != nil {
			if auth.IsVerificationFailure(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
				return
			}
			h.logger.Error(c.Request.Context(), "token verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "failed to verify token"})
			return
		}

		c.Set(ctxKeyUsername, username)
		c.Next()
	}
}

// CORS allows browser clients served from any origin to reach the API.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
