// Package handler exposes session listing and revocation over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"costing-api/backend/internal/identity/service"
	sessiondomain "costing-api/backend/internal/session/domain"
	"costing-api/backend/internal/server/middleware"
)

// SessionHandler handles the caller's own session management.
type SessionHandler struct {
	svc *service.AuthService
}

// NewSessionHandler returns a SessionHandler backed by svc.
func NewSessionHandler(svc *service.AuthService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// RegisterRoutes mounts the session routes behind authRequired.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup, authRequired gin.HandlerFunc) {
	sessions := rg.Group("/sessions", authRequired)
	sessions.GET("", h.List)
	sessions.DELETE("/:id", h.Revoke)
}

type sessionResponse struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

// List returns the caller's active sessions, newest first.
func (h *SessionHandler) List(c *gin.Context) {
	ident := middleware.IdentityFromGin(c)
	if ident == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	sessions, err := h.svc.Sessions(c.Request.Context(), ident.UserID)
	if err != nil {
		log.Error().Err(err).Msg("session handler: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s, ident.SessionID))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// Revoke revokes one of the caller's own sessions.
func (h *SessionHandler) Revoke(c *gin.Context) {
	ident := middleware.IdentityFromGin(c)
	if ident == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	sessionID := c.Param("id")
	err := h.svc.RevokeSession(c.Request.Context(), ident.UserID, sessionID, service.Meta{IP: c.ClientIP()})
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		log.Error().Err(err).Msg("session handler: revoke failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session revoked"})
}

func toSessionResponse(s *sessiondomain.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Current:   s.ID == currentID,
	}
}
