package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/http/response"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"github.com/yungbote/tourforge-backend/internal/services"
)

type PipelineHandler struct {
	pipelines services.PipelineService
	artifacts services.ArtifactService
}

func NewPipelineHandler(pipelines services.PipelineService, artifacts services.ArtifactService) *PipelineHandler {
	return &PipelineHandler{pipelines: pipelines, artifacts: artifacts}
}

// POST /api/pipelines
func (h *PipelineHandler) Create(c *gin.Context) {
	var req services.CreatePipelineInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	view, err := h.pipelines.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"pipeline": view})
}

// GET /api/pipelines
func (h *PipelineHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	views, err := h.pipelines.List(c.Request.Context(), limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipelines": views})
}

// GET /api/pipelines/:id
func (h *PipelineHandler) Get(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	view, err := h.pipelines.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// GET /api/pipelines/:id/validate
func (h *PipelineHandler) Validate(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	res, err := h.pipelines.Validate(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"validation": res})
}

// POST /api/pipelines/:id/recover
func (h *PipelineHandler) Recover(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	view, err := h.pipelines.ApplyRecovery(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// POST /api/pipelines/:id/phase
func (h *PipelineHandler) Advance(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	var req services.AdvanceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.pipelines.Advance(c.Request.Context(), id, req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// PUT /api/pipelines/:id/steps/:step/output
func (h *PipelineHandler) WriteOutput(c *gin.Context) {
	id, step, ok := pipelineStep(c)
	if !ok {
		return
	}
	var req services.StepOutputInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.pipelines.WriteStepOutput(c.Request.Context(), id, step, req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// POST /api/pipelines/:id/steps/:step/attempt
func (h *PipelineHandler) RecordAttempt(c *gin.Context) {
	id, step, ok := pipelineStep(c)
	if !ok {
		return
	}
	var req struct {
		Outcome services.AttemptOutcome `json:"outcome"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	res, err := h.pipelines.RecordAttempt(c.Request.Context(), id, step, req.Outcome)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/pipelines/:id/steps/:step/approve
func (h *PipelineHandler) Approve(c *gin.Context) {
	id, step, ok := pipelineStep(c)
	if !ok {
		return
	}
	view, err := h.pipelines.Approve(c.Request.Context(), id, step)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// POST /api/pipelines/:id/steps/:step/reject
func (h *PipelineHandler) Reject(c *gin.Context) {
	id, step, ok := pipelineStep(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	view, err := h.pipelines.Reject(c.Request.Context(), id, step, req.Reason)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// POST /api/pipelines/:id/steps/:step/reset
func (h *PipelineHandler) StartOver(c *gin.Context) {
	id, step, ok := pipelineStep(c)
	if !ok {
		return
	}
	view, err := h.pipelines.StartOver(c.Request.Context(), id, step)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pipeline": view})
}

// GET /api/pipelines/:id/artifacts
func (h *PipelineHandler) Artifacts(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	out, err := h.artifacts.Resolve(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func pipelineID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pipeline_id", err)
		return uuid.Nil, false
	}
	return id, true
}

func pipelineStep(c *gin.Context) (uuid.UUID, phases.Step, bool) {
	id, ok := pipelineID(c)
	if !ok {
		return uuid.Nil, 0, false
	}
	step, err := phases.ParseStep(c.Param("step"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_step", err)
		return uuid.Nil, 0, false
	}
	return id, step, true
}
