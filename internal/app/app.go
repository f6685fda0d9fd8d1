package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/tourforge-backend/internal/data/db"
	httpserver "github.com/yungbote/tourforge-backend/internal/http"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Clients  Clients
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.JWTSecretKey) == "" && !cfg.AuthDisabled {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required unless AUTH_DISABLED is set")
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.Init(log)

	dbs, err := db.NewService(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbs.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)
	serviceset := wireServices(log, cfg, reposet, clients, ssehub, metrics)
	handlerset := wireHandlers(log, serviceset, ssehub, metrics)
	middleware := wireMiddleware(log, cfg, serviceset)
	router := wireRouter(log, cfg, metrics, handlerset, middleware)

	log.Info("Pipeline policy loaded",
		"max_auto_attempts", cfg.Policy.MaxAutoAttempts,
		"event_history_limit", cfg.Policy.EventHistoryLimit,
	)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		SSEHub:       ssehub,
		Metrics:      metrics,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and forwards the cross-process SSE bus until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(gctx, a.forward(gctx)); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}

	a.Metrics.StartDBCollector(gctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(gctx, a.Log, a.Cfg.RedisAddr)
	a.Metrics.StartServer(gctx, a.Log, a.Cfg.MetricsAddr)

	g.Go(func() error {
		srv := &httpserver.Server{Engine: a.Router}
		addr := ":" + strings.TrimPrefix(a.Cfg.Port, ":")
		a.Log.Info("HTTP server listening", "addr", addr)
		return srv.Run(gctx, addr)
	})
	return g.Wait()
}

// forward delivers bus messages to local SSE clients. Job events written by
// another process are pulled into the local stream so open job streams see them.
func (a *App) forward(ctx context.Context) func(m realtime.SSEMessage) {
	return func(m realtime.SSEMessage) {
		a.SSEHub.Broadcast(m)
		if m.Event != realtime.SSEEventJobEventAppended || !strings.HasPrefix(m.Channel, "job:") {
			return
		}
		jobID := strings.TrimPrefix(m.Channel, "job:")
		go func() {
			if err := a.Services.JobEvents.Sync(ctx, jobID); err != nil && ctx.Err() == nil {
				a.Log.Warn("job event sync failed", "job_id", jobID, "error", err)
			}
		}()
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
