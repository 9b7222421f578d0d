package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics holds counters for auth lifecycle operations.
type AuthMetrics struct {
	logins    metric.Int64Counter
	refreshes metric.Int64Counter
	replays   metric.Int64Counter
	logouts   metric.Int64Counter
}

// NewAuthMetrics creates the auth counters on the given MeterProvider.
// A nil provider returns nil; all AuthMetrics methods are nil-safe.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter("costing.auth")

	logins, err := meter.Int64Counter("auth.logins",
		metric.WithDescription("Login attempts by result"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.refreshes",
		metric.WithDescription("Refresh token rotations by result"))
	if err != nil {
		return nil, err
	}
	replays, err := meter.Int64Counter("auth.replays_detected",
		metric.WithDescription("Refresh token replays detected"))
	if err != nil {
		return nil, err
	}
	logouts, err := meter.Int64Counter("auth.logouts",
		metric.WithDescription("Logout requests"))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		logins:    logins,
		refreshes: refreshes,
		replays:   replays,
		logouts:   logouts,
	}, nil
}

func (m *AuthMetrics) RecordLogin(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) RecordRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) RecordReplay(ctx context.Context) {
	if m == nil {
		return
	}
	m.replays.Add(ctx, 1)
}

func (m *AuthMetrics) RecordLogout(ctx context.Context) {
	if m == nil {
		return
	}
	m.logouts.Add(ctx, 1)
}
