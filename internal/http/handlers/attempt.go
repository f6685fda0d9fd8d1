package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/http/response"
	"github.com/yungbote/tourforge-backend/internal/services"
)

type AttemptHandler struct {
	attempts services.AttemptService
}

func NewAttemptHandler(attempts services.AttemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// POST /api/jobs/:id/attempts
func (h *AttemptHandler) Append(c *gin.Context) {
	var req struct {
		Output string `json:"output"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	a, err := h.attempts.Append(c.Request.Context(), c.Param("id"), req.Output)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"attempt": a})
}

// GET /api/jobs/:id/attempts
func (h *AttemptHandler) Ledger(c *gin.Context) {
	ledger, err := h.attempts.Ledger(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, ledger)
}

// POST /api/attempts/:id/decision
func (h *AttemptHandler) RecordDecision(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_attempt_id", err)
		return
	}
	var req struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	a, err := h.attempts.RecordDecision(c.Request.Context(), id, req.Decision, req.Reason)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": a})
}
