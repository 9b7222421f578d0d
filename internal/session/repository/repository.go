package repository

import (
	"context"

	"costing-api/backend/internal/session/domain"
)

// Store is the session persistence surface available both directly and inside
// a transaction via Repository.InTx.
type Store interface {
	// GetByID returns the session for id regardless of state, or nil if absent.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetActive returns the session for id and userID only if it is active
	// (not revoked, not expired); nil otherwise.
	GetActive(ctx context.Context, id, userID string) (*domain.Session, error)
	// GetActiveForUpdate is GetActive with an exclusive row lock. Outside a
	// transaction the lock is released immediately, so it only serializes
	// writers when called through InTx.
	GetActiveForUpdate(ctx context.Context, id, userID string) (*domain.Session, error)
	// Create persists a new session row. The session must have ID set.
	Create(ctx context.Context, s *domain.Session) error
	// Revoke marks the session revoked with the given reason. Revocation is
	// terminal: an already-revoked row is left untouched.
	Revoke(ctx context.Context, id, reason string) error
}

// Repository defines persistence for sessions.
type Repository interface {
	Store
	// ListActiveByUser returns the user's active sessions, newest first,
	// bounded by limit. Used for session listing and the legacy logout scan.
	ListActiveByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error)
	// InTx runs fn inside one transaction; every Store call made through fn's
	// argument sees and mutates uncommitted transaction state. Rotation runs
	// here so concurrent refreshes on the same session serialize on the row
	// lock taken by GetActiveForUpdate.
	InTx(ctx context.Context, fn func(Store) error) error
}
