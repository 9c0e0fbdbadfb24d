// Package server assembles the HTTP router and the gRPC server.
package server

import (
	"github.com/gin-gonic/gin"

	"perfreview/backend/internal/audit"
	healthhandler "perfreview/backend/internal/health/handler"
	identityhandler "perfreview/backend/internal/identity/handler"
	"perfreview/backend/internal/server/middleware"
)

// Deps holds the dependencies of the HTTP router.
type Deps struct {
	// Auth serves /auth. Required.
	Auth *identityhandler.Handler
	// Tokens verifies Bearer access tokens. Required.
	Tokens middleware.AccessVerifier
	// Health answers /readyz. Required.
	Health healthhandler.ReadinessChecker
	// Audit records authenticated requests. If nil, only the auth flows write audit rows.
	Audit audit.AuditLogger
	// ServiceName labels spans and metrics.
	ServiceName string
	// TrustedProxies are the proxy CIDRs whose forwarding headers gin honours for the client IP.
	// Nil trusts none.
	TrustedProxies []string
}

// probeRoutes are neither traced nor audited.
var probeRoutes = map[string]bool{"/healthz": true, "/readyz": true}

// NewRouter returns the gin engine with middleware and every route mounted.
func NewRouter(deps Deps) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery(), middleware.ClientIP())
	healthhandler.Register(r, deps.Health)

	api := r.Group("", middleware.Telemetry(deps.ServiceName), middleware.Audit(deps.Audit, probeRoutes))
	deps.Auth.Register(api, middleware.RequireAuth(deps.Tokens))
	return r, nil
}
