package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a grpc health server whose overall status starts NOT_SERVING until Watch runs.
func NewGRPCServer() *health.Server {
	s := health.NewServer()
	s.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Watch runs checker immediately and then every interval, mirroring the result into s for the
// overall service and for service. It returns when ctx is done, after marking s NOT_SERVING.
func Watch(ctx context.Context, s *health.Server, checker ReadinessChecker, service string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		next := healthpb.HealthCheckResponse_SERVING
		if _, err := checker.Check(ctx); err != nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
			if last != next {
				log.Printf("health: not serving: %v", err)
			}
		}
		if next != last {
			s.SetServingStatus("", next)
			s.SetServingStatus(service, next)
			last = next
		}
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
