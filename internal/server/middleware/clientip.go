package middleware

import "github.com/gin-gonic/gin"

// ClientIP stores gin's view of the client address (which honours the engine's trusted proxies)
// in the request context, where the audit logger and the orchestrator read it.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}
