package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"costing-api/backend/internal/audit"
	"costing-api/backend/internal/security"
	sessiondomain "costing-api/backend/internal/session/domain"
	sessionrepo "costing-api/backend/internal/session/repository"
	userdomain "costing-api/backend/internal/user/domain"
	userrepo "costing-api/backend/internal/user/repository"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:    make(map[string]*userdomain.User),
		byEmail: make(map[string]*userdomain.User),
	}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return userrepo.ErrDuplicateEmail
	}
	u2 := *u
	r.byID[u.ID] = &u2
	r.byEmail[u.Email] = &u2
	return nil
}

func (r *memUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

// memSessionStore holds session rows without locking; memSessionRepo wraps it
// with a mutex held per call, and for the whole function inside InTx so that
// transactional refresh rotation serializes the way the row lock does.
type memSessionStore struct {
	m map[string]*sessiondomain.Session
}

func (s *memSessionStore) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	return s.m[id], nil
}

func (s *memSessionStore) GetActive(ctx context.Context, id, userID string) (*sessiondomain.Session, error) {
	sess := s.m[id]
	if sess == nil || sess.UserID != userID || !sess.IsActive(time.Now().UTC()) {
		return nil, nil
	}
	return sess, nil
}

func (s *memSessionStore) GetActiveForUpdate(ctx context.Context, id, userID string) (*sessiondomain.Session, error) {
	return s.GetActive(ctx, id, userID)
}

func (s *memSessionStore) Create(ctx context.Context, sess *sessiondomain.Session) error {
	s2 := *sess
	s.m[sess.ID] = &s2
	return nil
}

func (s *memSessionStore) Revoke(ctx context.Context, id, reason string) error {
	if sess, ok := s.m[id]; ok && sess.RevokedAt == nil {
		t := time.Now().UTC()
		sess.RevokedAt = &t
		sess.RevokedReason = reason
	}
	return nil
}

type memSessionRepo struct {
	mu    sync.Mutex
	store memSessionStore
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: memSessionStore{m: make(map[string]*sessiondomain.Session)}}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetByID(ctx, id)
}

func (r *memSessionRepo) GetActive(ctx context.Context, id, userID string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetActive(ctx, id, userID)
}

func (r *memSessionRepo) GetActiveForUpdate(ctx context.Context, id, userID string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetActiveForUpdate(ctx, id, userID)
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Create(ctx, s)
}

func (r *memSessionRepo) Revoke(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Revoke(ctx, id, reason)
}

func (r *memSessionRepo) ListActiveByUser(ctx context.Context, userID string, limit int) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var out []*sessiondomain.Session
	for _, s := range r.store.m {
		if s.UserID == userID && s.IsActive(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSessionRepo) InTx(ctx context.Context, fn func(sessionrepo.Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&r.store)
}

func (r *memSessionRepo) activeCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, s := range r.store.m {
		if s.UserID == userID && s.IsActive(now) {
			n++
		}
	}
	return n
}

const testPassword = "Sup3r-Secret-Pass!"

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo, *memSessionRepo) {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	hasher := security.NewHasher(10)
	codec, err := security.NewTestTokenCodec(15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTestTokenCodec: %v", err)
	}
	svc := NewAuthService(users, sessions, hasher, codec, audit.Nop(), nil)
	return svc, users, sessions
}

func registerUser(t *testing.T, svc *AuthService, email string) *AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), "Test User", "", email, testPassword, Meta{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res
}

func TestAuthService_Register(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()

	res := registerUser(t, svc, "alice@example.com")
	if res.User == nil || res.User.ID == "" {
		t.Fatal("expected user in result")
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.User.Role != userdomain.RoleUser {
		t.Fatalf("role = %q, want user", res.User.Role)
	}
	if got := sessions.activeCount(res.User.ID); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	_, err := svc.Register(ctx, "Other", "", "alice@example.com", testPassword, Meta{})
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("duplicate register err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

// blindLookupUserRepo never finds a user by email, so Register's pre-insert
// lookup passes and only the unique index stops the duplicate. Models a
// concurrent registration winning between lookup and insert.
type blindLookupUserRepo struct{ *memUserRepo }

func (r blindLookupUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	return nil, nil
}

func TestAuthService_RegisterConcurrentDuplicate(t *testing.T) {
	svc, users, sessions := newTestAuthService(t)
	ctx := context.Background()
	registerUser(t, svc, "dave@example.com")

	racing := NewAuthService(blindLookupUserRepo{users}, sessions, svc.hasher, svc.codec, audit.Nop(), nil)
	_, err := racing.Register(ctx, "Dave Too", "", "dave@example.com", testPassword, Meta{})
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("racing register err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", testPassword},
		{"bad email", "not-an-email", testPassword},
		{"short password", "bob@example.com", "Sh0rt!"},
		{"no symbol", "bob@example.com", "LongPassword123456"},
		{"no upper", "bob@example.com", "long-password-123!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, "Bob", "", tc.email, tc.password, Meta{}); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	svc, users, _ := newTestAuthService(t)
	ctx := context.Background()
	res := registerUser(t, svc, "carol@example.com")

	if _, err := svc.Login(ctx, "nobody@example.com", testPassword, Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "carol@example.com", "Wr0ng-Password!", Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}

	users.mu.Lock()
	users.byID[res.User.ID].Status = userdomain.UserStatusSuspended
	users.mu.Unlock()
	if _, err := svc.Login(ctx, "carol@example.com", testPassword, Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("suspended user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthService_LoginCreatesSessionPerDevice(t *testing.T) {
	svc, users, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "dave@example.com")

	first, err := svc.Login(ctx, "dave@example.com", testPassword, Meta{IP: "10.0.0.1", UserAgent: "laptop"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := svc.Login(ctx, "dave@example.com", testPassword, Meta{IP: "10.0.0.2", UserAgent: "phone"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("expected distinct sessions per login")
	}
	// registration session plus two logins
	if got := sessions.activeCount(reg.User.ID); got != 3 {
		t.Fatalf("active sessions = %d, want 3", got)
	}
	u, _ := users.GetByID(ctx, reg.User.ID)
	if u.LastLoginAt == nil {
		t.Fatal("expected last login timestamp")
	}
}

func TestAuthService_RefreshRotation(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "erin@example.com")

	rotated, err := svc.Refresh(ctx, reg.RefreshToken, Meta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.SessionID == reg.SessionID {
		t.Fatal("expected a new session id after rotation")
	}
	if rotated.RefreshToken == reg.RefreshToken || rotated.AccessToken == reg.AccessToken {
		t.Fatal("expected fresh tokens after rotation")
	}

	old, _ := sessions.GetByID(ctx, reg.SessionID)
	if old.RevokedAt == nil || old.RevokedReason != sessiondomain.ReasonRotated {
		t.Fatalf("old session revoked=%v reason=%q, want rotated", old.RevokedAt, old.RevokedReason)
	}
	if got := sessions.activeCount(reg.User.ID); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	// the rotated-away token is single-use
	if _, err := svc.Refresh(ctx, reg.RefreshToken, Meta{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("replay err = %v, want ErrSessionInvalid", err)
	}

	// the successor still works
	if _, err := svc.Refresh(ctx, rotated.RefreshToken, Meta{}); err != nil {
		t.Fatalf("successor refresh: %v", err)
	}
}

func TestAuthService_RefreshHashMismatchRevokesSession(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "frank@example.com")

	// A second verifiable token bound to the same session but with a different
	// body does not match the stored hash. The session must die.
	forged, _, err := svc.codec.IssueRefresh(reg.SessionID, reg.User.ID)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := svc.Refresh(ctx, forged, Meta{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("mismatch err = %v, want ErrSessionInvalid", err)
	}
	sess, _ := sessions.GetByID(ctx, reg.SessionID)
	if sess.RevokedAt == nil || sess.RevokedReason != sessiondomain.ReasonTokenMismatch {
		t.Fatalf("session revoked=%v reason=%q, want token_mismatch", sess.RevokedAt, sess.RevokedReason)
	}

	// the legitimate token now hits a dead session
	if _, err := svc.Refresh(ctx, reg.RefreshToken, Meta{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("post-revocation err = %v, want ErrSessionInvalid", err)
	}
}

func TestAuthService_RefreshConcurrent(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "grace@example.com")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Refresh(ctx, reg.RefreshToken, Meta{})
			errs <- err
		}()
	}
	var okCount, invalidCount int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			okCount++
		case errors.Is(err, ErrSessionInvalid):
			invalidCount++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if okCount != 1 || invalidCount != 1 {
		t.Fatalf("ok=%d invalid=%d, want exactly one winner", okCount, invalidCount)
	}
	if got := sessions.activeCount(reg.User.ID); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
}

func TestAuthService_RefreshExpiredSession(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "heidi@example.com")

	// expire the row; the JWT itself is still within its lifetime
	sessions.mu.Lock()
	sessions.store.m[reg.SessionID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	sessions.mu.Unlock()

	if _, err := svc.Refresh(ctx, reg.RefreshToken, Meta{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expired session err = %v, want ErrSessionInvalid", err)
	}
}

func TestAuthService_RefreshBadToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "ivan@example.com")

	if _, err := svc.Refresh(ctx, "garbage", Meta{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("garbage token err = %v, want ErrUnauthenticated", err)
	}
	// an access token is not a refresh token
	if _, err := svc.Refresh(ctx, reg.AccessToken, Meta{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("access-as-refresh err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthService_LogoutIdempotent(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "judy@example.com")

	if err := svc.Logout(ctx, reg.RefreshToken, Meta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	sess, _ := sessions.GetByID(ctx, reg.SessionID)
	if sess.RevokedAt == nil || sess.RevokedReason != sessiondomain.ReasonLogout {
		t.Fatalf("session revoked=%v reason=%q, want logout", sess.RevokedAt, sess.RevokedReason)
	}

	// repeated, empty, and garbage logouts all succeed
	if err := svc.Logout(ctx, reg.RefreshToken, Meta{}); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svc.Logout(ctx, "", Meta{}); err != nil {
		t.Fatalf("empty Logout: %v", err)
	}
	if err := svc.Logout(ctx, "garbage", Meta{}); err != nil {
		t.Fatalf("garbage Logout: %v", err)
	}
}

func TestAuthService_LogoutTokenMismatch(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "kate@example.com")

	forged, _, err := svc.codec.IssueRefresh(reg.SessionID, reg.User.ID)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if err := svc.Logout(ctx, forged, Meta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	sess, _ := sessions.GetByID(ctx, reg.SessionID)
	if sess.RevokedAt == nil || sess.RevokedReason != sessiondomain.ReasonTokenMismatchOnLogout {
		t.Fatalf("session reason = %q, want token_mismatch_on_logout", sess.RevokedReason)
	}
}

func TestAuthService_LogoutLegacyToken(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "leo@example.com")

	// tokens issued before session ids were embedded carry only the user id
	legacy, _, err := svc.codec.IssueRefresh("", reg.User.ID)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	hash, err := security.HashRefreshToken(legacy)
	if err != nil {
		t.Fatalf("HashRefreshToken: %v", err)
	}
	legacySess := &sessiondomain.Session{
		ID:               "legacy-session",
		UserID:           reg.User.ID,
		RefreshTokenHash: hash,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}
	if err := sessions.Create(ctx, legacySess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Logout(ctx, legacy, Meta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	sess, _ := sessions.GetByID(ctx, "legacy-session")
	if sess.RevokedAt == nil || sess.RevokedReason != sessiondomain.ReasonLogoutFallback {
		t.Fatalf("legacy session reason = %q, want logout_fallback", sess.RevokedReason)
	}
	// the registration session is untouched
	if got := sessions.activeCount(reg.User.ID); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, users, _ := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "mallory@example.com")

	ident, err := svc.Authenticate(ctx, reg.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ident.UserID != reg.User.ID || ident.SessionID != reg.SessionID {
		t.Fatalf("identity = %+v, want user %s session %s", ident, reg.User.ID, reg.SessionID)
	}
	if ident.Role != userdomain.RoleUser || ident.Email != "mallory@example.com" {
		t.Fatalf("identity projection = %+v", ident)
	}

	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("garbage err = %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.Authenticate(ctx, reg.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("refresh-as-access err = %v, want ErrUnauthenticated", err)
	}

	// the store is authoritative: a live JWT for a dead session fails
	if err := svc.Logout(ctx, reg.RefreshToken, Meta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, reg.AccessToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("dead session err = %v, want ErrSessionInvalid", err)
	}

	// suspended accounts lose access immediately
	second := registerUser(t, svc, "nina@example.com")
	users.mu.Lock()
	users.byID[second.User.ID].Status = userdomain.UserStatusSuspended
	users.mu.Unlock()
	if _, err := svc.Authenticate(ctx, second.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("suspended err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthService_SessionsAndRevoke(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	reg := registerUser(t, svc, "oscar@example.com")
	login, err := svc.Login(ctx, "oscar@example.com", testPassword, Meta{UserAgent: "phone"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	list, err := svc.Sessions(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list))
	}

	// revoking someone else's session id fails
	if err := svc.RevokeSession(ctx, "other-user", login.SessionID, Meta{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("foreign revoke err = %v, want ErrSessionInvalid", err)
	}

	if err := svc.RevokeSession(ctx, reg.User.ID, login.SessionID, Meta{}); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	sess, _ := sessions.GetByID(ctx, login.SessionID)
	if sess.RevokedReason != sessiondomain.ReasonRevokedByUser {
		t.Fatalf("reason = %q, want revoked_by_user", sess.RevokedReason)
	}
	// revoking again fails since the session is no longer active
	if err := svc.RevokeSession(ctx, reg.User.ID, login.SessionID, Meta{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("second revoke err = %v, want ErrSessionInvalid", err)
	}
}
