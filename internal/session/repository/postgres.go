package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"costing-api/backend/internal/session/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type pgStore struct {
	q querier
}

// PostgresRepository persists sessions in Postgres. The zero value is not
// usable; construct with NewPostgresRepository.
type PostgresRepository struct {
	pgStore
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{pgStore: pgStore{q: db}, db: db}
}

const sessionColumns = `id, user_id, refresh_token_hash, ip_address, user_agent, created_at, expires_at, revoked_at, revoked_reason`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (s pgStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetActive returns the active session for id and userID, or nil if the row
// is absent, revoked, or expired.
func (s pgStore) GetActive(ctx context.Context, id, userID string) (*domain.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > now()`,
		id, userID)
	return scanSession(row)
}

// GetActiveForUpdate is GetActive with FOR UPDATE; inside InTx the row lock is
// held until commit or rollback, serializing concurrent rotations.
func (s pgStore) GetActiveForUpdate(ctx context.Context, id, userID string) (*domain.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > now()
		 FOR UPDATE`,
		id, userID)
	return scanSession(row)
}

// Create persists the session. The session must have ID set.
func (s pgStore) Create(ctx context.Context, sess *domain.Session) error {
	ip := sql.NullString{String: sess.IPAddress, Valid: sess.IPAddress != ""}
	ua := sql.NullString{String: sess.UserAgent, Valid: sess.UserAgent != ""}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, ip_address, user_agent, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.UserID, sess.RefreshTokenHash, ip, ua, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Revoke marks the session revoked with the given reason. The revoked_at IS
// NULL guard makes revocation terminal: it never overwrites an earlier reason.
func (s pgStore) Revoke(ctx context.Context, id, reason string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2, revoked_reason = $3
		 WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ListActiveByUser returns up to limit of the user's active sessions, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// InTx runs fn in one transaction. fn's Store argument routes every query
// through the transaction, so GetActiveForUpdate holds its row lock until
// commit or rollback.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(pgStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	sess, err := scanSessionFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

func scanSessionRows(rows *sql.Rows) (*domain.Session, error) {
	return scanSessionFrom(rows)
}

func scanSessionFrom(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var ip, ua, reason sql.NullString
	var revokedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &ip, &ua,
		&s.CreatedAt, &s.ExpiresAt, &revokedAt, &reason)
	if err != nil {
		return nil, err
	}
	if ip.Valid {
		s.IPAddress = ip.String
	}
	if ua.Valid {
		s.UserAgent = ua.String
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	if reason.Valid {
		s.RevokedReason = reason.String
	}
	return &s, nil
}
