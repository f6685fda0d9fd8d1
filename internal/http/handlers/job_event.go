package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/http/response"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/events"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
	"github.com/yungbote/tourforge-backend/internal/services"
)

type JobEventHandler struct {
	log    *logger.Logger
	events services.JobEventService
}

func NewJobEventHandler(log *logger.Logger, jobEvents services.JobEventService) *JobEventHandler {
	return &JobEventHandler{log: log.With("handler", "JobEventHandler"), events: jobEvents}
}

// POST /api/jobs/:id/events
func (h *JobEventHandler) Append(c *gin.Context) {
	var req services.AppendJobEventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ev, err := h.events.Append(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"event": ev})
}

// GET /api/jobs/:id/events?after_seq=N
func (h *JobEventHandler) History(c *gin.Context) {
	var after int64
	if raw := c.Query("after_seq"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_after_seq", errors.New("after_seq must be a non-negative integer"))
			return
		}
		after = v
	}
	hist, err := h.events.History(c.Request.Context(), c.Param("id"), after)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, hist)
}

// GET /api/jobs/:id/events/stream
// Replays the job's history then follows live appends until the job reaches
// a terminal event or the client goes away.
func (h *JobEventHandler) Stream(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()
	sub, err := h.events.Subscribe(ctx, jobID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	realtime.SetStreamHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	channel := realtime.JobChannel(jobID)
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				h.log.Warn("Job event stream ended", "job_id", jobID, "error", err)
			}
			return
		}
		msg := realtime.SSEMessage{
			Channel: channel,
			Event:   realtime.SSEEventJobEventAppended,
			Data:    gin.H{"job_id": jobID, "event": ev},
		}
		if err := realtime.WriteMessage(c.Writer, msg); err != nil {
			h.log.Debug("Job event stream write failed", "job_id", jobID, "error", err)
			return
		}
		if events.IsTerminal(ev.Type) {
			return
		}
	}
}
