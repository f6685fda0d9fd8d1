package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

// SSEClient is one open /sse/stream connection. It always listens on its
// owner's user channel and may join job channels on request.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	once     sync.Once
	Logger   *logger.Logger
}

// Done is closed when the hub closes the client.
func (c *SSEClient) Done() <-chan struct{} { return c.done }

// CanJoin reports whether userID may listen on channel: any job channel,
// or the user's own channel. Other users' channels carry their inboxes.
func CanJoin(userID uuid.UUID, channel string) bool {
	channel = strings.TrimSpace(channel)
	if id, ok := strings.CutPrefix(channel, "job:"); ok {
		return strings.TrimSpace(id) != ""
	}
	return userID != uuid.Nil && channel == UserChannel(userID)
}
