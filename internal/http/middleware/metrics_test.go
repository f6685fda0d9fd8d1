package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/observability"
)

func TestMetricsSkipsLatencyForEventStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/pipelines/:id", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.GET("/api/jobs/:id/events/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "event: message\n\n")
	})

	for _, path := range []string{"/api/pipelines/p1", "/api/jobs/j1/events/stream", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`route="/api/pipelines/:id"`,
		`route="/api/jobs/:id/events/stream"`,
		`route="unmatched"`,
	} {
		if !strings.Contains(out, "tf_api_requests_total{") || !strings.Contains(out, want) {
			t.Fatalf("missing %s in:\n%s", want, out)
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "duration") && strings.Contains(line, "events/stream") {
			t.Fatalf("stream route must not be timed: %s", line)
		}
	}
}
