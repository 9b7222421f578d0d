package domain

import "time"

// Audit actions recorded by the auth subsystem. Failures are distinguished
// here even when the client-facing response is uniform.
const (
	ActionRegister                = "register"
	ActionLoginSuccess            = "login_success"
	ActionLoginFailureUnknownUser = "login_failure_unknown_email"
	ActionLoginFailureBadPassword = "login_failure_bad_password"
	ActionRefreshRotated          = "refresh_rotated"
	ActionReplayDetected          = "refresh_replay_detected"
	ActionLogout                  = "logout"
	ActionLogoutTokenMismatch     = "logout_token_mismatch"
	ActionSessionRevoked          = "session_revoked"
)

// AuditLog represents one audit event.
type AuditLog struct {
	ID        string
	UserID    string // empty when the actor is unknown (e.g. bad credentials for an unknown email)
	SessionID string
	Action    string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
