package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/http/response"
	"github.com/yungbote/tourforge-backend/internal/services"
)

type NotificationHandler struct {
	notifications services.NotificationService
}

func NewNotificationHandler(notifications services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// GET /api/notifications?unread=true&limit=N
func (h *NotificationHandler) List(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.notifications.List(c.Request.Context(), unread, limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_notification_id", err)
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), id); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"updated": n})
}

// DELETE /api/notifications
func (h *NotificationHandler) ClearAll(c *gin.Context) {
	n, err := h.notifications.ClearAll(c.Request.Context())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": n})
}
