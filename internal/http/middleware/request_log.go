package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

// RequestLogger writes one line per request. Path parameters (pipeline, job,
// attempt and notification ids, step keys) are logged by name so a record's
// history can be grepped out of the access log.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx := c.Request.Context()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		for _, p := range c.Params {
			fields = append(fields, "param_"+p.Key, p.Value)
		}
		fields = append(fields, ctxutil.LogFields(ctx)...)
		if rd := ctxutil.GetRequestData(ctx); rd != nil && rd.UserID != uuid.Nil {
			fields = append(fields, "user_id", rd.UserID.String())
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
