package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"perfreview/backend/internal/audit"
)

// Audit records an audit entry after each authenticated request. Routes listed in skip, routes
// the auth handlers audit themselves, and unmatched routes are not recorded.
func Audit(logger audit.AuditLogger, skip map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if logger == nil {
			return
		}
		route := c.FullPath()
		method := c.Request.Method
		if route == "" || skip[route] || audit.SelfAudited(method, route) {
			return
		}
		userID, ok := GetUserID(c.Request.Context())
		if !ok {
			return
		}
		ar := audit.ParseRoute(method, route)
		logger.LogEvent(c.Request.Context(), userID, ar.Action, ar.Resource, fmt.Sprintf(`{"status":%d}`, c.Writer.Status()))
	}
}
