// Package audit records auth-subsystem events. Auditing is best-effort:
// failures are logged and never surface to the request that triggered them.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"costing-api/backend/internal/audit/domain"
	auditrepo "costing-api/backend/internal/audit/repository"
)

// Event is one audit event before assignment of ID and timestamp.
type Event struct {
	UserID    string
	SessionID string
	Action    string
	IP        string
	Metadata  string
}

// EventEmitter mirrors audit events to an external sink (e.g. OTel logs).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, e *domain.AuditLog) error
}

// AuditLogger records a single audit event. Used by the auth service on every
// lifecycle transition, including the internally-distinguished failure modes
// that the client sees only as a uniform unauthorized response.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger using the audit repository and an optional emitter.
type Logger struct {
	repo    auditrepo.Repository
	emitter EventEmitter
}

// NewLogger returns an AuditLogger that persists to repo and mirrors to
// emitter. Both may be nil; a nil repo disables persistence, a nil emitter
// disables mirroring.
func NewLogger(repo auditrepo.Repository, emitter EventEmitter) *Logger {
	return &Logger{repo: repo, emitter: emitter}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	ip := e.IP
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    e.UserID,
		SessionID: e.SessionID,
		Action:    e.Action,
		IP:        ip,
		Metadata:  e.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Warn().Err(err).Str("action", e.Action).Msg("audit: failed to persist event")
		}
	}
	if l.emitter != nil {
		EmitAsync(l.emitter, entry)
	}
}

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not
// blocked. The goroutine uses context.Background() so request cancellation
// does not abort an in-flight emit.
func EmitAsync(emitter EventEmitter, entry *domain.AuditLog) {
	if emitter == nil || entry == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, entry); err != nil {
			log.Warn().Err(err).Str("action", entry.Action).Msg("audit: async emit failed")
		}
	}()
}

// Nop returns an AuditLogger that records nothing. For tests.
func Nop() AuditLogger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) LogEvent(context.Context, Event) {}
