package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
)

const ClaimsKey = "claims"

// TokenKey is the cache key holding the live token of a session. Deleting
// it revokes the token.
func TokenKey(sessionID string) string {
	return "token:" + sessionID
}

// TokenFromRequest reads the Bearer header, falling back to the token
// query parameter used by browsers for WebSocket and EventSource.
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// SessionAuth checks the player token, that it is still live in the cache,
// and that it belongs to the session named by the :id path parameter.
func SessionAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := TokenFromRequest(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if id := ctx.Param("id"); id != "" && id != claims.SessionID {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not match session"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		live, err := c.Get(cacheCtx, TokenKey(claims.SessionID))
		if err != nil || live != tokenStr {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		ctx.Set(ClaimsKey, claims)
		ctx.Next()
	}
}

// GetClaims retrieves the authenticated claims from the Gin context.
func GetClaims(c *gin.Context) *Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		return v.(*Claims)
	}
	return nil
}
