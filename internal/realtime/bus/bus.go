package bus

import (
	"context"

	"github.com/yungbote/tourforge-backend/internal/realtime"
)

// Bus fans SSE messages out across server processes.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
