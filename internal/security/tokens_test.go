package security

import (
	"testing"
	"time"
)

func newCodec(t *testing.T) *TokenCodec {
	t.Helper()
	c, err := NewTestTokenCodec(15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTestTokenCodec: %v", err)
	}
	return c
}

func TestTokenCodec_IssueAndVerifyAccess(t *testing.T) {
	c := newCodec(t)

	token, exp, err := c.IssueAccess("s1", "u1", "user", "u1@example.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("access token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	claims, err := c.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("Subject = %q, want u1", claims.Subject)
	}
	if claims.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", claims.SessionID)
	}
	if claims.Role != "user" {
		t.Errorf("Role = %q, want user", claims.Role)
	}
	if claims.Email != "u1@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
}

func TestTokenCodec_IssueAndVerifyRefresh(t *testing.T) {
	c := newCodec(t)

	token, exp, err := c.IssueRefresh("s1", "u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if exp.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("refresh exp = %v, want ~24h out", exp)
	}

	claims, err := c.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.Subject != "u1" || claims.SessionID != "s1" {
		t.Errorf("claims = {sub:%q session:%q}", claims.Subject, claims.SessionID)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
}

// The two token kinds are signed with independent keys; a refresh token must
// never pass access verification and vice versa.
func TestTokenCodec_KindsAreNotInterchangeable(t *testing.T) {
	c := newCodec(t)

	access, _, err := c.IssueAccess("s1", "u1", "user", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, err := c.IssueRefresh("s1", "u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	if _, err := c.VerifyAccess(refresh); err != ErrInvalidToken {
		t.Errorf("VerifyAccess(refresh token): want ErrInvalidToken, got %v", err)
	}
	if _, err := c.VerifyRefresh(access); err != ErrInvalidToken {
		t.Errorf("VerifyRefresh(access token): want ErrInvalidToken, got %v", err)
	}
}

func TestTokenCodec_VerifyMalformed(t *testing.T) {
	c := newCodec(t)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := c.VerifyAccess(tok); err != ErrInvalidToken {
			t.Errorf("VerifyAccess(%q): want ErrInvalidToken, got %v", tok, err)
		}
		if _, err := c.VerifyRefresh(tok); err != ErrInvalidToken {
			t.Errorf("VerifyRefresh(%q): want ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestTokenCodec_VerifyExpired(t *testing.T) {
	access, refresh, err := NewTestKeyPairs()
	if err != nil {
		t.Fatalf("NewTestKeyPairs: %v", err)
	}
	c := NewTokenCodec(access, refresh, "test-issuer", "test-audience", -time.Minute, -time.Minute)

	token, _, err := c.IssueAccess("s1", "u1", "user", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := c.VerifyAccess(token); err != ErrInvalidToken {
		t.Errorf("VerifyAccess(expired): want ErrInvalidToken, got %v", err)
	}

	rt, _, err := c.IssueRefresh("s1", "u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := c.VerifyRefresh(rt); err != ErrInvalidToken {
		t.Errorf("VerifyRefresh(expired): want ErrInvalidToken, got %v", err)
	}
}

func TestTokenCodec_VerifyWrongIssuerOrAudience(t *testing.T) {
	access, refresh, err := NewTestKeyPairs()
	if err != nil {
		t.Fatalf("NewTestKeyPairs: %v", err)
	}
	issuing := NewTokenCodec(access, refresh, "other-issuer", "other-audience", 15*time.Minute, 24*time.Hour)
	verifying := NewTokenCodec(access, refresh, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour)

	token, _, err := issuing.IssueAccess("s1", "u1", "user", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := verifying.VerifyAccess(token); err != ErrInvalidToken {
		t.Errorf("VerifyAccess(wrong iss/aud): want ErrInvalidToken, got %v", err)
	}
}
