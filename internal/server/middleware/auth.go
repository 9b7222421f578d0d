// Package middleware holds gin middleware for authentication, request
// logging, and tracing.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"costing-api/backend/internal/identity/service"
	"costing-api/backend/internal/security"
	userdomain "costing-api/backend/internal/user/domain"
)

// Authenticate resolves the caller from the access token cookie, falling back
// to a Bearer header, and stores the identity in both the gin context and the
// request context. All failures return a uniform 401 with no detail about
// which check failed.
func Authenticate(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c.Request)
		if token == "" {
			unauthorized(c)
			return
		}
		ident, err := authSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(identityGinKey, ident)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), ident))
		c.Next()
	}
}

// RequireAdmin rejects non-admin callers. Must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := IdentityFromGin(c)
		if ident == nil || ident.Role != userdomain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// IdentityFromGin returns the identity stored by Authenticate, or nil.
func IdentityFromGin(c *gin.Context) *service.Identity {
	v, ok := c.Get(identityGinKey)
	if !ok {
		return nil
	}
	ident, _ := v.(*service.Identity)
	return ident
}

// accessToken extracts the access token from the cookie or, when absent, from
// the Authorization header. Only the access token has a header fallback;
// refresh tokens travel exclusively in cookies.
func accessToken(r *http.Request) string {
	if v := security.GetCookie(r, security.AccessTokenCookie); v != "" {
		return v
	}
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
