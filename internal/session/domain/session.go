package domain

import "time"

// Revocation reasons. A revoked session is terminal; the reason is kept for
// audit and replay forensics.
const (
	ReasonRotated               = "rotated"
	ReasonTokenMismatch         = "token_mismatch"
	ReasonLogout                = "logout"
	ReasonTokenMismatchOnLogout = "token_mismatch_on_logout"
	ReasonLogoutFallback        = "logout_fallback"
	ReasonRevokedByUser         = "revoked_by_user"
)

// Session anchors one refresh-token lineage. Rows are never deleted or
// un-revoked; rotation creates a successor row and revokes this one.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string // salted one-way hash; the raw token is never stored
	IPAddress        string // provenance only, not used for enforcement
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil while active
	RevokedReason    string     // empty while active
}

// IsActive reports whether the session is live at the given instant:
// not revoked and not past its absolute expiry.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
