package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/tourforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tourforge-backend/internal/http/middleware"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string

	AuthMiddleware  *httpMW.AuthMiddleware
	RealtimeHandler *httpH.RealtimeHandler

	PipelineHandler     *httpH.PipelineHandler
	AttemptHandler      *httpH.AttemptHandler
	JobEventHandler     *httpH.JobEventHandler
	NotificationHandler *httpH.NotificationHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		if cfg.Metrics != nil {
			r.GET("/metrics", cfg.HealthHandler.Metrics)
		}
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
			protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
			protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)
		}

		// Pipelines
		if h := cfg.PipelineHandler; h != nil {
			protected.POST("/pipelines", h.Create)
			protected.GET("/pipelines", h.List)
			protected.GET("/pipelines/:id", h.Get)
			protected.GET("/pipelines/:id/validate", h.Validate)
			protected.POST("/pipelines/:id/recover", h.Recover)
			protected.POST("/pipelines/:id/phase", h.Advance)
			protected.PUT("/pipelines/:id/steps/:step/output", h.WriteOutput)
			protected.POST("/pipelines/:id/steps/:step/attempt", h.RecordAttempt)
			protected.POST("/pipelines/:id/steps/:step/approve", h.Approve)
			protected.POST("/pipelines/:id/steps/:step/reject", h.Reject)
			protected.POST("/pipelines/:id/steps/:step/reset", h.StartOver)
			protected.GET("/pipelines/:id/artifacts", h.Artifacts)
		}

		// Attempts
		if h := cfg.AttemptHandler; h != nil {
			protected.POST("/jobs/:id/attempts", h.Append)
			protected.GET("/jobs/:id/attempts", h.Ledger)
			protected.POST("/attempts/:id/decision", h.RecordDecision)
		}

		// Job events
		if h := cfg.JobEventHandler; h != nil {
			protected.POST("/jobs/:id/events", h.Append)
			protected.GET("/jobs/:id/events", h.History)
			protected.GET("/jobs/:id/events/stream", h.Stream)
		}

		// Notifications
		if h := cfg.NotificationHandler; h != nil {
			protected.GET("/notifications", h.List)
			protected.POST("/notifications/read-all", h.MarkAllRead)
			protected.POST("/notifications/:id/read", h.MarkRead)
			protected.DELETE("/notifications", h.ClearAll)
		}
	}

	return r
}
