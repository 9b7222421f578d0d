// Package handler exposes the audit trail to administrators.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"costing-api/backend/internal/audit/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AuditHandler serves per-user audit history. Admin only.
type AuditHandler struct {
	logs repository.Repository
}

// NewAuditHandler returns an AuditHandler reading from logs.
func NewAuditHandler(logs repository.Repository) *AuditHandler {
	return &AuditHandler{logs: logs}
}

// RegisterRoutes mounts the admin audit routes behind both middlewares.
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup, authRequired, adminRequired gin.HandlerFunc) {
	admin := rg.Group("/admin", authRequired, adminRequired)
	admin.GET("/users/:id/audit-logs", h.ListByUser)
}

type auditLogResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Action    string    `json:"action"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListByUser returns a user's audit entries, newest first.
func (h *AuditHandler) ListByUser(c *gin.Context) {
	userID := c.Param("id")
	limit := queryInt32(c, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt32(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.logs.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("audit handler: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]auditLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditLogResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			SessionID: e.SessionID,
			Action:    e.Action,
			IP:        e.IP,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": out})
}

func queryInt32(c *gin.Context, name string, def int32) int32 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	return int32(v)
}
