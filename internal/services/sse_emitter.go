package services

import (
	"context"

	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
	"github.com/yungbote/tourforge-backend/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

// HubEmitter delivers to clients of this process only.
type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Hub == nil {
		return
	}
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes on the bus; every process forwards the message to its
// own hub, this one included.
type RedisEmitter struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ctx, msg); err != nil && e.Log != nil {
		e.Log.Warn("sse publish failed", "channel", msg.Channel, "event", msg.Event, "error", err)
	}
}
