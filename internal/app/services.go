package app

import (
	"time"

	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/events"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
	"github.com/yungbote/tourforge-backend/internal/services"
)

type Services struct {
	Auth          services.AuthService
	Notifications services.NotificationService
	Pipelines     services.PipelineService
	Attempts      services.AttemptService
	JobEvents     services.JobEventService
	Artifacts     services.ArtifactService
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clients Clients, hub *realtime.SSEHub, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")

	var emitter services.SSEEmitter = &services.HubEmitter{Hub: hub}
	if clients.SSEBus != nil {
		emitter = &services.RedisEmitter{Bus: clients.SSEBus, Log: log}
	}
	notifier := services.NewPipelineNotifier(emitter)

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	auth := services.NewAuthService(log, cfg.JWTSecretKey, ttl)
	notifications := services.NewNotificationService(log, reposet.Notification, notify.NewRouter(cfg.Policy.Routes), notifier, metrics)
	pipelines := services.NewPipelineService(log, reposet.Pipeline, cfg.Policy.Retry(), notifications, notifier, metrics)
	attempts := services.NewAttemptService(log, reposet.Attempt, reposet.Pipeline, notifications, notifier, metrics)
	jobEvents := services.NewJobEventService(log, reposet.JobEvent, reposet.Pipeline, events.NewStream(), cfg.Policy.EventHistoryLimit, notifications, notifier, metrics)
	artifacts := services.NewArtifactService(log, pipelines, clients.Artifacts, metrics)

	return Services{
		Auth:          auth,
		Notifications: notifications,
		Pipelines:     pipelines,
		Attempts:      attempts,
		JobEvents:     jobEvents,
		Artifacts:     artifacts,
	}
}
