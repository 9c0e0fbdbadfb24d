package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"perfreview/backend/internal/security"
)

const bearerPrefix = "bearer "

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*security.TokenPayload, error)
}

// RequireAuth rejects requests without a valid Bearer access token with 401 and otherwise stores
// user id, session id and roles in the request context.
func RequireAuth(tokens AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c)
			return
		}
		payload, err := tokens.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			abortUnauthorized(c)
			return
		}
		ctx := WithIdentity(c.Request.Context(), payload.Subject, payload.SessionID, payload.Roles)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole lets the request through only if the access token carries one of roles.
// It must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, have := range GetRoles(c.Request.Context()) {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
