package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/http"
	httpH "github.com/yungbote/tourforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tourforge-backend/internal/http/middleware"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Realtime     *httpH.RealtimeHandler
	Pipeline     *httpH.PipelineHandler
	Attempt      *httpH.AttemptHandler
	JobEvent     *httpH.JobEventHandler
	Notification *httpH.NotificationHandler
}

func wireHandlers(log *logger.Logger, services Services, sseHub *realtime.SSEHub, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(metrics),
		Realtime:     httpH.NewRealtimeHandler(log, sseHub, metrics),
		Pipeline:     httpH.NewPipelineHandler(services.Pipelines, services.Artifacts),
		Attempt:      httpH.NewAttemptHandler(services.Attempts),
		JobEvent:     httpH.NewJobEventHandler(log, services.JobEvents),
		Notification: httpH.NewNotificationHandler(services.Notifications),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth, cfg.AuthDisabled),
	}
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		ServiceName:         cfg.Otel.ServiceName,
		TracingEnabled:      cfg.Otel.Enabled,
		CORSOrigins:         cfg.CORSOrigins,
		AuthMiddleware:      middleware.Auth,
		RealtimeHandler:     handlers.Realtime,
		PipelineHandler:     handlers.Pipeline,
		AttemptHandler:      handlers.Attempt,
		JobEventHandler:     handlers.JobEvent,
		NotificationHandler: handlers.Notification,
		HealthHandler:       handlers.Health,
	})
}
