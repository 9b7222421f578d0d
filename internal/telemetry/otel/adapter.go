package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"costing-api/backend/internal/audit"
	auditdomain "costing-api/backend/internal/audit/domain"
)

// NewEventEmitter returns an EventEmitter that sends audit entries as OTel log
// records via the given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) audit.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("costing.audit")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *auditdomain.AuditLog) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the audit entry to an OTel log record and emits it. Best-effort; errors are logged by the caller.
func (e *otelEmitter) Emit(ctx context.Context, entry *auditdomain.AuditLog) error {
	if entry == nil {
		return nil
	}
	rec := otellog.Record{}
	if !entry.CreatedAt.IsZero() {
		rec.SetTimestamp(entry.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if entry.Metadata != "" {
		rec.SetBody(otellog.StringValue(entry.Metadata))
	}
	if entry.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", entry.UserID))
	}
	if entry.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", entry.SessionID))
	}
	if entry.Action != "" {
		rec.AddAttributes(otellog.String("action", entry.Action))
	}
	if entry.IP != "" {
		rec.AddAttributes(otellog.String("ip", entry.IP))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
