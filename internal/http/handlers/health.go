package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/observability"
)

type HealthHandler struct {
	metrics *observability.Metrics
}

func NewHealthHandler(metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{metrics: metrics}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /metrics
func (h *HealthHandler) Metrics(c *gin.Context) {
	h.metrics.WriteHTTP(c.Writer, c.Request)
}
