package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"costing-api/backend/internal/audit"
	auditdomain "costing-api/backend/internal/audit/domain"
	"costing-api/backend/internal/security"
	sessiondomain "costing-api/backend/internal/session/domain"
	sessionrepo "costing-api/backend/internal/session/repository"
	telemetry "costing-api/backend/internal/telemetry/otel"
	userdomain "costing-api/backend/internal/user/domain"
	userrepo "costing-api/backend/internal/user/repository"
)

// Sentinel errors for the auth service; handlers map them to HTTP statuses.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrSessionInvalid         = errors.New("session revoked or expired")
)

// legacyLogoutScanLimit bounds the session scan for refresh tokens issued
// before session ids were embedded in the payload.
const legacyLogoutScanLimit = 10

// sessionListLimit bounds the active-session listing.
const sessionListLimit = 50

// Meta carries request provenance recorded on sessions and audit entries.
// Never used for enforcement.
type Meta struct {
	IP        string
	UserAgent string
}

// AuthResult holds the outcome of Register, Login, or Refresh.
type AuthResult struct {
	User            *userdomain.User
	SessionID       string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Identity is the per-request caller identity resolved by Authenticate.
type Identity struct {
	UserID    string
	SessionID string
	Role      userdomain.Role
	Email     string
	Name      string
}

// AuthService implements register, login, refresh rotation, logout, and
// per-request authentication over revocable sessions.
type AuthService struct {
	users    userrepo.Repository
	sessions sessionrepo.Repository
	hasher   *security.Hasher
	codec    *security.TokenCodec
	auditor  audit.AuditLogger
	metrics  *telemetry.AuthMetrics
}

// NewAuthService returns an AuthService with the given dependencies.
// auditor must be non-nil (use audit.Nop() to disable); metrics may be nil.
func NewAuthService(
	users userrepo.Repository,
	sessions sessionrepo.Repository,
	hasher *security.Hasher,
	codec *security.TokenCodec,
	auditor audit.AuditLogger,
	metrics *telemetry.AuthMetrics,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		codec:    codec,
		auditor:  auditor,
		metrics:  metrics,
	}
}

// AccessTTL returns the access token lifetime, for cookie max-age.
func (s *AuthService) AccessTTL() time.Duration { return s.codec.AccessTTL() }

// RefreshTTL returns the refresh token lifetime, for cookie max-age.
func (s *AuthService) RefreshTTL() time.Duration { return s.codec.RefreshTTL() }

// Register creates a user with the given details and issues a first session.
func (s *AuthService) Register(ctx context.Context, name, username, email, password string, meta Meta) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Username:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: hashed,
		Role:         userdomain.RoleUser,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win the race past the lookup above.
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	s.auditor.LogEvent(ctx, audit.Event{
		UserID: user.ID,
		Action: auditdomain.ActionRegister,
		IP:     meta.IP,
	})
	return s.issueSession(ctx, user, meta)
}

// Login authenticates with email/password and issues a new session. Unknown
// email and wrong password both return ErrInvalidCredentials; the audit trail
// distinguishes them.
func (s *AuthService) Login(ctx context.Context, email, password string, meta Meta) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.auditor.LogEvent(ctx, audit.Event{
			Action:   auditdomain.ActionLoginFailureUnknownUser,
			IP:       meta.IP,
			Metadata: email,
		})
		s.metrics.RecordLogin(ctx, "failure")
		return nil, ErrInvalidCredentials
	}
	if user.Status != userdomain.UserStatusActive {
		s.auditor.LogEvent(ctx, audit.Event{
			UserID:   user.ID,
			Action:   auditdomain.ActionLoginFailureBadPassword,
			IP:       meta.IP,
			Metadata: "status=" + string(user.Status),
		})
		s.metrics.RecordLogin(ctx, "failure")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.auditor.LogEvent(ctx, audit.Event{
			UserID: user.ID,
			Action: auditdomain.ActionLoginFailureBadPassword,
			IP:     meta.IP,
		})
		s.metrics.RecordLogin(ctx, "failure")
		return nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("auth: failed to update last login")
	}
	user.LastLoginAt = &now
	result, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.auditor.LogEvent(ctx, audit.Event{
		UserID:    user.ID,
		SessionID: result.SessionID,
		Action:    auditdomain.ActionLoginSuccess,
		IP:        meta.IP,
	})
	s.metrics.RecordLogin(ctx, "success")
	return result, nil
}

// Refresh rotates the session behind a valid refresh token: a successor
// session is created with fresh tokens and the old one is revoked. Refresh
// tokens are single-use; presenting one whose hash no longer matches the
// active row is treated as theft and revokes the session.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string, meta Meta) (*AuthResult, error) {
	claims, err := s.codec.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	userID := claims.Subject
	sessionID := claims.SessionID
	if userID == "" || sessionID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrUnauthenticated
	}

	var (
		result *AuthResult
		replay bool
	)
	err = s.sessions.InTx(ctx, func(store sessionrepo.Store) error {
		sess, err := store.GetActiveForUpdate(ctx, sessionID, userID)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrSessionInvalid
		}
		if !security.CompareRefreshToken(rawRefreshToken, sess.RefreshTokenHash) {
			// The active row holds a different hash, so this token was
			// already rotated away or never belonged here. Commit the
			// revocation even though the request fails.
			if err := store.Revoke(ctx, sessionID, sessiondomain.ReasonTokenMismatch); err != nil {
				return err
			}
			replay = true
			return nil
		}
		res, successor, err := s.buildSuccessor(user, meta)
		if err != nil {
			return err
		}
		// Order matters for crash safety: the successor must exist before
		// the old row is revoked, or a crash strands the user logged out.
		if err := store.Create(ctx, successor); err != nil {
			return err
		}
		if err := store.Revoke(ctx, sessionID, sessiondomain.ReasonRotated); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			s.metrics.RecordRefresh(ctx, "failure")
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if replay {
		s.auditor.LogEvent(ctx, audit.Event{
			UserID:    userID,
			SessionID: sessionID,
			Action:    auditdomain.ActionReplayDetected,
			IP:        meta.IP,
		})
		s.metrics.RecordReplay(ctx)
		s.metrics.RecordRefresh(ctx, "replay")
		return nil, ErrSessionInvalid
	}
	s.auditor.LogEvent(ctx, audit.Event{
		UserID:    userID,
		SessionID: result.SessionID,
		Action:    auditdomain.ActionRefreshRotated,
		IP:        meta.IP,
		Metadata:  "previous_session=" + sessionID,
	})
	s.metrics.RecordRefresh(ctx, "success")
	return result, nil
}

// Logout revokes the session behind the refresh token. Idempotent: a missing,
// unverifiable, or already-dead token is a successful logout. Only storage
// failures are returned.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken string, meta Meta) error {
	if rawRefreshToken == "" {
		return nil
	}
	claims, err := s.codec.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return nil
	}
	userID := claims.Subject
	sessionID := claims.SessionID
	if sessionID == "" {
		return s.logoutLegacy(ctx, userID, rawRefreshToken, meta)
	}
	sess, err := s.sessions.GetActive(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if !security.CompareRefreshToken(rawRefreshToken, sess.RefreshTokenHash) {
		if err := s.sessions.Revoke(ctx, sessionID, sessiondomain.ReasonTokenMismatchOnLogout); err != nil {
			return err
		}
		s.auditor.LogEvent(ctx, audit.Event{
			UserID:    userID,
			SessionID: sessionID,
			Action:    auditdomain.ActionLogoutTokenMismatch,
			IP:        meta.IP,
		})
		s.metrics.RecordLogout(ctx)
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID, sessiondomain.ReasonLogout); err != nil {
		return err
	}
	s.auditor.LogEvent(ctx, audit.Event{
		UserID:    userID,
		SessionID: sessionID,
		Action:    auditdomain.ActionLogout,
		IP:        meta.IP,
	})
	s.metrics.RecordLogout(ctx)
	return nil
}

// logoutLegacy handles refresh tokens issued before session ids were embedded
// in the payload: scan the most recent active sessions and revoke the first
// whose hash matches. Deprecated path, removed once old tokens age out.
func (s *AuthService) logoutLegacy(ctx context.Context, userID, rawRefreshToken string, meta Meta) error {
	if userID == "" {
		return nil
	}
	active, err := s.sessions.ListActiveByUser(ctx, userID, legacyLogoutScanLimit)
	if err != nil {
		return err
	}
	for _, sess := range active {
		if !security.CompareRefreshToken(rawRefreshToken, sess.RefreshTokenHash) {
			continue
		}
		if err := s.sessions.Revoke(ctx, sess.ID, sessiondomain.ReasonLogoutFallback); err != nil {
			return err
		}
		s.auditor.LogEvent(ctx, audit.Event{
			UserID:    userID,
			SessionID: sess.ID,
			Action:    auditdomain.ActionLogout,
			IP:        meta.IP,
			Metadata:  "legacy_token",
		})
		s.metrics.RecordLogout(ctx)
		return nil
	}
	return nil
}

// Authenticate resolves the caller identity behind an access token. The
// session store is authoritative: a verifiable token whose session is revoked
// or expired fails with ErrSessionInvalid.
func (s *AuthService) Authenticate(ctx context.Context, rawAccessToken string) (*Identity, error) {
	claims, err := s.codec.VerifyAccess(rawAccessToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	userID := claims.Subject
	sessionID := claims.SessionID
	if userID == "" || sessionID == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.sessions.GetActive(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionInvalid
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrUnauthenticated
	}
	return &Identity{
		UserID:    user.ID,
		SessionID: sessionID,
		Role:      user.Role,
		Email:     user.Email,
		Name:      user.Name,
	}, nil
}

// Sessions lists the caller's active sessions, newest first.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID, sessionListLimit)
}

// RevokeSession revokes one of the caller's own active sessions.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string, meta Meta) error {
	sess, err := s.sessions.GetActive(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionInvalid
	}
	if err := s.sessions.Revoke(ctx, sessionID, sessiondomain.ReasonRevokedByUser); err != nil {
		return err
	}
	s.auditor.LogEvent(ctx, audit.Event{
		UserID:    userID,
		SessionID: sessionID,
		Action:    auditdomain.ActionSessionRevoked,
		IP:        meta.IP,
	})
	return nil
}

// issueSession creates a fresh session for user and returns both tokens.
func (s *AuthService) issueSession(ctx context.Context, user *userdomain.User, meta Meta) (*AuthResult, error) {
	result, sess, err := s.buildSuccessor(user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return result, nil
}

// buildSuccessor mints a new session id, both tokens, and the session row to
// persist. The caller decides the transactional context for Create.
func (s *AuthService) buildSuccessor(user *userdomain.User, meta Meta) (*AuthResult, *sessiondomain.Session, error) {
	sessionID := uuid.New().String()
	accessToken, accessExp, err := s.codec.IssueAccess(sessionID, user.ID, string(user.Role), user.Email)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, refreshExp, err := s.codec.IssueRefresh(sessionID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	hash, err := security.HashRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: hash,
		IPAddress:        meta.IP,
		UserAgent:        meta.UserAgent,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        refreshExp,
	}
	result := &AuthResult{
		User:            user,
		SessionID:       sessionID,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessExp,
	}
	return result, sess, nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: password must be at least 12 characters", ErrInvalidInput)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber || !hasSymbol {
		return fmt.Errorf("%w: password must contain upper, lower, number, and symbol characters", ErrInvalidInput)
	}
	return nil
}
