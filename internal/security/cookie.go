package security

import (
	"net/http"
	"time"
)

// Cookie names for the two bearer tokens.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieManager writes and clears the auth token cookies. Cookies are always
// HttpOnly; production tightens to Secure + SameSite=Strict, development uses
// SameSite=Lax so local cross-port frontends work.
type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// NewCookieManager returns a CookieManager for the given cookie domain.
// production selects the hardened attribute set.
func NewCookieManager(domain string, production bool) *CookieManager {
	ss := http.SameSiteLaxMode
	if production {
		ss = http.SameSiteStrictMode
	}
	return &CookieManager{Domain: domain, Secure: production, SameSite: ss}
}

// SetTokenCookies sets both auth cookies with max-age matching each token's TTL.
func (c *CookieManager) SetTokenCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		Domain:   c.Domain,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		Domain:   c.Domain,
	})
}

// ClearTokenCookies expires both auth cookies. Safe to call on every logout
// branch, including when no valid token was presented.
func (c *CookieManager) ClearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Domain:   c.Domain,
		})
	}
}

// GetCookie returns the named cookie's value, or "" if absent.
func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
