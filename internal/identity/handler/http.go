// Package handler exposes the auth lifecycle over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"costing-api/backend/internal/identity/service"
	"costing-api/backend/internal/security"
	"costing-api/backend/internal/server/middleware"
	userdomain "costing-api/backend/internal/user/domain"
)

// AuthHandler handles register, login, refresh, logout, and me.
type AuthHandler struct {
	svc     *service.AuthService
	cookies *security.CookieManager
}

// NewAuthHandler returns an AuthHandler backed by svc, writing token cookies
// through cookies.
func NewAuthHandler(svc *service.AuthService, cookies *security.CookieManager) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

// RegisterRoutes mounts the auth routes. authRequired guards /me. authLimit,
// when non-nil, throttles the credential-guessing surface (login and refresh).
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup, authRequired, authLimit gin.HandlerFunc) {
	auth := rg.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", limited(authLimit, h.Login)...)
	auth.POST("/refresh", limited(authLimit, h.Refresh)...)
	auth.POST("/logout", h.Logout)
	auth.GET("/me", authRequired, h.Me)
}

func limited(limit, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type authResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Register creates an account and logs the caller in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.svc.Register(c.Request.Context(), req.Name, req.Username, req.Email, req.Password, requestMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		internalError(c, err)
		return
	}
	h.cookies.SetTokenCookies(c.Writer, res.AccessToken, res.RefreshToken, h.svc.AccessTTL(), h.svc.RefreshTTL())
	c.JSON(http.StatusCreated, authResponse{User: toUserResponse(res.User), ExpiresAt: res.AccessExpiresAt})
}

// Login authenticates and sets a fresh token pair in cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		internalError(c, err)
		return
	}
	h.cookies.SetTokenCookies(c.Writer, res.AccessToken, res.RefreshToken, h.svc.AccessTTL(), h.svc.RefreshTTL())
	c.JSON(http.StatusOK, authResponse{User: toUserResponse(res.User), ExpiresAt: res.AccessExpiresAt})
}

// Refresh rotates the refresh token from the cookie and sets the new pair.
// Any failure clears both cookies so clients drop dead tokens.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw := security.GetCookie(c.Request, security.RefreshTokenCookie)
	if raw == "" {
		h.cookies.ClearTokenCookies(c.Writer)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	res, err := h.svc.Refresh(c.Request.Context(), raw, requestMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) || errors.Is(err, service.ErrSessionInvalid) {
			h.cookies.ClearTokenCookies(c.Writer)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		internalError(c, err)
		return
	}
	h.cookies.SetTokenCookies(c.Writer, res.AccessToken, res.RefreshToken, h.svc.AccessTTL(), h.svc.RefreshTTL())
	c.JSON(http.StatusOK, authResponse{User: toUserResponse(res.User), ExpiresAt: res.AccessExpiresAt})
}

// Logout revokes the session behind the refresh cookie and clears both
// cookies. Succeeds no matter what the cookie holds.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw := security.GetCookie(c.Request, security.RefreshTokenCookie)
	if err := h.svc.Logout(c.Request.Context(), raw, requestMeta(c)); err != nil {
		internalError(c, err)
		return
	}
	h.cookies.ClearTokenCookies(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated caller identity.
func (h *AuthHandler) Me(c *gin.Context) {
	ident := middleware.IdentityFromGin(c)
	if ident == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         ident.UserID,
		"session_id": ident.SessionID,
		"name":       ident.Name,
		"email":      ident.Email,
		"role":       string(ident.Role),
	})
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
		Role:        string(u.Role),
		LastLoginAt: u.LastLoginAt,
	}
}

func requestMeta(c *gin.Context) service.Meta {
	return service.Meta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func internalError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("auth handler: internal error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
