package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

func TestAttachTraceContextEchoesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(logger.Nop()))
	r.GET("/api/pipelines/:id", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/pipelines/p1", nil)
	req.Header.Set(headerRequestID, "req-7")
	req.Header.Set(headerTraceID, "trace-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-7" || seen.TraceID != "trace-7" {
		t.Fatalf("trace data = %+v", seen)
	}
	if rec.Header().Get(headerRequestID) != "req-7" || rec.Header().Get(headerTraceID) != "trace-7" {
		t.Fatalf("response headers = %v", rec.Header())
	}
}

func TestAttachTraceContextGeneratesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/healthcheck", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if len(rec.Header().Get(headerTraceID)) != 32 {
		t.Fatalf("generated trace id = %q", rec.Header().Get(headerTraceID))
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("missing request id")
	}
}
