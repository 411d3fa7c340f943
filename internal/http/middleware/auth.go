// README: Auth middleware; verifies the bearer token and exposes caller uid and role to handlers.
package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/infra"
	"foodtrack/internal/types"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"
)

// Auth rejects requests without a valid "Authorization: Bearer <token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerRole, RoleFromClaims(token.Claims))
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return raw, raw != ""
}

// RoleFromClaims reads the "role" custom claim; a missing or unknown role is a client.
func RoleFromClaims(claims map[string]interface{}) types.Role {
	if v, ok := claims["role"].(string); ok {
		return types.ParseRole(v)
	}
	return types.RoleClient
}

// RequireRole aborts with 403 unless the caller has one of roles.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, CallerRole(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

func CallerRole(c *gin.Context) types.Role {
	if v, ok := c.Get(ctxCallerRole); ok {
		if r, ok := v.(types.Role); ok {
			return r
		}
	}
	return types.RoleClient
}

func Caller(c *gin.Context) types.Identity {
	return types.Identity{ID: types.ID(CallerUID(c)), Role: CallerRole(c)}
}
