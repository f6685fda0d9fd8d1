package handlers

import (
	"errors"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/http/response"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/apierr"
	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

type RealtimeHandler struct {
	Log     *logger.Logger
	Hub     *realtime.SSEHub
	metrics *observability.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient // key: SessionID
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, metrics *observability.Metrics) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log.With("handler", "RealtimeHandler"),
		Hub:     hub,
		metrics: metrics,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sse/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondDomainError(c, apierr.Unauthorized("not authenticated"))
		return
	}
	userID := rd.UserID
	sessionID := rd.SessionID
	if sessionID == uuid.Nil {
		response.RespondDomainError(c, apierr.Unauthorized("missing session id"))
		return
	}
	h.Log.Info("SSEStream open", "user_id", userID.String(), "session_id", sessionID.String())

	h.mu.Lock()
	// A session holds one stream; a reconnect replaces the old one.
	if existing, ok := h.clients[sessionID]; ok {
		h.Hub.CloseClient(existing)
		delete(h.clients, sessionID)
	}
	client := h.Hub.NewSSEClient(userID)
	client.Logger = h.Log.With("SSEClientID", client.ID)
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.metrics.SSEClientConnected()
	defer h.metrics.SSEClientDisconnected()

	h.Hub.AddChannel(client, realtime.UserChannel(userID))
	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.Hub.CloseClient(client)
}

// POST /api/sse/subscribe
func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	client, channel, ok := h.resolve(c)
	if !ok {
		return
	}
	h.Hub.AddChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "subscribed", "channel": channel})
}

// POST /api/sse/unsubscribe
func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	client, channel, ok := h.resolve(c)
	if !ok {
		return
	}
	h.Hub.RemoveChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "unsubscribed", "channel": channel})
}

func (h *RealtimeHandler) resolve(c *gin.Context) (*realtime.SSEClient, string, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondDomainError(c, apierr.Unauthorized("not authenticated"))
		return nil, "", false
	}
	if rd.SessionID == uuid.Nil {
		response.RespondDomainError(c, apierr.Unauthorized("missing session id"))
		return nil, "", false
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Channel) == "" {
		response.RespondDomainError(c, apierr.BadRequest("invalid_channel", errors.New("invalid channel")))
		return nil, "", false
	}
	channel := strings.TrimSpace(req.Channel)
	if !realtime.CanJoin(rd.UserID, channel) {
		response.RespondDomainError(c, apierr.Forbidden("channel not allowed"))
		return nil, "", false
	}

	h.mu.RLock()
	client, exists := h.clients[rd.SessionID]
	h.mu.RUnlock()
	if !exists {
		response.RespondDomainError(c, apierr.Conflict("no_active_stream", "no active SSE connection for this session"))
		return nil, "", false
	}
	return client, channel, true
}
