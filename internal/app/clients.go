package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/platform/storage"
	"github.com/yungbote/tourforge-backend/internal/realtime/bus"
)

type Clients struct {
	SSEBus    bus.Bus
	Artifacts storage.Resolver
	gcs       *storage.GCSResolver
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		b, err := bus.NewRedisBus(bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel}, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		c.SSEBus = b
	} else {
		log.Info("REDIS_ADDR not set, SSE stays in-process")
	}

	// Artifact storage
	switch {
	case strings.TrimSpace(cfg.Storage.PublicBaseURL) != "":
		r, err := storage.NewPublicResolver(cfg.Storage)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init public artifact resolver: %w", err)
		}
		c.Artifacts = r
	case strings.TrimSpace(cfg.Storage.Bucket) != "":
		r, err := storage.NewGCSResolver(ctx, cfg.Storage, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init gcs artifact resolver: %w", err)
		}
		c.Artifacts = r
		c.gcs = r
	default:
		log.Warn("Artifact storage not configured, artifact URLs will report errors")
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.gcs != nil {
		_ = c.gcs.Close()
	}
}
