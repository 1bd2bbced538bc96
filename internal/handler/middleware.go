package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	core "giftvault/server/internal/service"
)

// AuthMiddleware validates the JWT bearer token on protected routes
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			core.AbortWithMessage(c, core.ErrUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			core.AbortWithMessage(c, core.ErrUnauthorized, "malformed authorization header")
			return
		}

		subject, err := core.VerifyToken(parts[1], secret)
		if err != nil {
			if err == core.ErrTokenExpired {
				core.AbortWithMessage(c, core.ErrUnauthorized, "token expired")
			} else {
				core.AbortWithMessage(c, core.ErrUnauthorized, "invalid token")
			}
			return
		}

		c.Set("username", subject)
		c.Next()
	}
}
