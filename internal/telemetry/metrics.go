package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "perfreview/backend/auth"

// AuthMetrics counts auth outcomes. The zero value and a nil pointer are both no-ops.
type AuthMetrics struct {
	logins    metric.Int64Counter
	refreshes metric.Int64Counter
	thefts    metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter, or on the global meter provider when nil.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	logins, err := meter.Int64Counter("auth.login", metric.WithDescription("Authentication attempts by outcome"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.refresh", metric.WithDescription("Refresh token redemptions by outcome"))
	if err != nil {
		return nil, err
	}
	thefts, err := meter.Int64Counter("auth.theft_detected", metric.WithDescription("Refresh token reuse detections"))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{logins: logins, refreshes: refreshes, thefts: thefts}, nil
}

// Login records one authentication attempt with outcome (e.g. "success", "AuthenticationFailed").
func (m *AuthMetrics) Login(ctx context.Context, outcome string) {
	if m == nil || m.logins == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Refresh records one refresh attempt with outcome.
func (m *AuthMetrics) Refresh(ctx context.Context, outcome string) {
	if m == nil || m.refreshes == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// TheftDetected records one refresh token reuse.
func (m *AuthMetrics) TheftDetected(ctx context.Context) {
	if m == nil || m.thefts == nil {
		return
	}
	m.thefts.Add(ctx, 1)
}
