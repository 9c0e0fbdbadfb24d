// Package handler serves the liveness and readiness probes over HTTP and gRPC.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"perfreview/backend/internal/health"
)

// ReadinessChecker runs the dependency checks.
type ReadinessChecker interface {
	Check(ctx context.Context) ([]health.Result, error)
}

// Register mounts GET /healthz (process is up) and GET /readyz (dependencies reachable).
func Register(r gin.IRouter, checker ReadinessChecker) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		results, err := checker.Check(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": results})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": results})
	})
}
