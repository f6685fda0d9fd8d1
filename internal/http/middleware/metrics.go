package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yungbote/tourforge-backend/internal/observability"
)

// Metrics counts requests per matched route. SSE responses live as long as
// the subscription, so they are counted but kept out of the latency histogram.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.ApiInflightInc()
		c.Next()
		m.ApiInflightDec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dur := time.Since(start)
		if isEventStream(c) {
			dur = -1
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), dur)
	}
}

func isEventStream(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}
