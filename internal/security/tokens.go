package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token. Role and Email are
// denormalized so coarse authorization checks can skip a user lookup; the
// session liveness check in the store is still authoritative.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
}

// RefreshClaims holds JWT claims for the refresh token. Only user and session
// identity; no role or email.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// KeyPair is a signing/verification key pair for one token kind (RS256 or ES256).
type KeyPair struct {
	Private crypto.Signer
	Public  crypto.PublicKey
}

// TokenCodec issues and verifies JWT access and refresh tokens. Access and
// refresh tokens are signed with independent key pairs so that a leaked
// access key cannot be used to forge refresh tokens.
type TokenCodec struct {
	accessKeys  KeyPair
	refreshKeys KeyPair
	issuer      string
	audience    string
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// NewTokenCodec returns a TokenCodec that signs access tokens with accessKeys
// and refresh tokens with refreshKeys. issuer and audience are set on claims
// and enforced on verification.
func NewTokenCodec(accessKeys, refreshKeys KeyPair, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		accessKeys:  accessKeys,
		refreshKeys: refreshKeys,
		issuer:      issuer,
		audience:    audience,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess issues a short-lived access JWT for the given session and user.
// Returns the token string and its expiration time.
func (c *TokenCodec) IssueAccess(sessionID, userID, role, email string) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		Role:      role,
		Email:     email,
	}
	token, err = sign(c.accessKeys.Private, claims)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT bound to the given session.
// Returns the token string and its expiration time.
func (c *TokenCodec) IssueRefresh(sessionID, userID string) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(c.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	token, err = sign(c.refreshKeys.Private, claims)
	return token, expiresAt, err
}

// VerifyAccess parses and verifies an access token (signature, exp, iss, aud).
// Returns the claims, or ErrInvalidToken.
func (c *TokenCodec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenString, c.accessKeys.Public, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and verifies a refresh token (signature, exp, iss, aud).
// Returns the claims, or ErrInvalidToken. A SessionID may be empty for legacy
// tokens; callers decide how to treat those.
func (c *TokenCodec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenString, c.refreshKeys.Public, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) verify(tokenString string, publicKey crypto.PublicKey, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func sign(privateKey crypto.Signer, claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(privateKey)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
