package services

import (
	"context"

	"github.com/google/uuid"

	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/validation"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

// =========================
// Pipeline notifier
// =========================

type PipelineNotifier interface {
	PipelineUpdated(ctx context.Context, view *PipelineView)
	NeedsHuman(ctx context.Context, p *domain.Pipeline, attention []validation.Attention)
	AttemptRecorded(ctx context.Context, userID uuid.UUID, attempt *domain.Attempt)
	JobEventAppended(ctx context.Context, userID uuid.UUID, ev *domain.JobEvent)
	NotificationCreated(ctx context.Context, n *domain.Notification)
	NotificationsChanged(ctx context.Context, userID uuid.UUID, unread int64)
}

type pipelineNotifier struct {
	emit SSEEmitter
}

func NewPipelineNotifier(emit SSEEmitter) PipelineNotifier {
	return &pipelineNotifier{emit: emit}
}

func (n *pipelineNotifier) send(ctx context.Context, channel string, event realtime.SSEEvent, data any) {
	if n == nil || n.emit == nil || channel == "" {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{Channel: channel, Event: event, Data: data})
}

func (n *pipelineNotifier) PipelineUpdated(ctx context.Context, view *PipelineView) {
	if view == nil || view.Pipeline == nil || view.Pipeline.OwnerUserID == uuid.Nil {
		return
	}
	n.send(ctx, realtime.UserChannel(view.Pipeline.OwnerUserID), realtime.SSEEventPipelineUpdated, map[string]any{
		"pipeline_id": view.Pipeline.ID,
		"phase":       view.Pipeline.Phase,
		"step":        view.Pipeline.CurrentStep,
		"is_valid":    view.Validation.IsValid,
		"summary":     view.Summary,
	})
}

func (n *pipelineNotifier) NeedsHuman(ctx context.Context, p *domain.Pipeline, attention []validation.Attention) {
	if p == nil || p.OwnerUserID == uuid.Nil || len(attention) == 0 {
		return
	}
	n.send(ctx, realtime.UserChannel(p.OwnerUserID), realtime.SSEEventPipelineNeedsHuman, map[string]any{
		"pipeline_id":     p.ID,
		"needs_attention": attention,
	})
}

func (n *pipelineNotifier) AttemptRecorded(ctx context.Context, userID uuid.UUID, attempt *domain.Attempt) {
	if attempt == nil {
		return
	}
	data := map[string]any{"attempt": attempt}
	n.send(ctx, realtime.JobChannel(attempt.JobID), realtime.SSEEventAttemptRecorded, data)
	if userID != uuid.Nil {
		n.send(ctx, realtime.UserChannel(userID), realtime.SSEEventAttemptRecorded, data)
	}
}

func (n *pipelineNotifier) JobEventAppended(ctx context.Context, userID uuid.UUID, ev *domain.JobEvent) {
	if ev == nil {
		return
	}
	data := map[string]any{"job_id": ev.JobID, "event": ev}
	n.send(ctx, realtime.JobChannel(ev.JobID), realtime.SSEEventJobEventAppended, data)
	if userID != uuid.Nil {
		n.send(ctx, realtime.UserChannel(userID), realtime.SSEEventJobEventAppended, data)
	}
}

func (n *pipelineNotifier) NotificationCreated(ctx context.Context, note *domain.Notification) {
	if note == nil || note.OwnerUserID == uuid.Nil {
		return
	}
	n.send(ctx, realtime.UserChannel(note.OwnerUserID), realtime.SSEEventNotificationCreated, map[string]any{
		"notification": note,
		"href":         note.Href(),
	})
}

func (n *pipelineNotifier) NotificationsChanged(ctx context.Context, userID uuid.UUID, unread int64) {
	if userID == uuid.Nil {
		return
	}
	n.send(ctx, realtime.UserChannel(userID), realtime.SSEEventNotificationsChanged, map[string]any{
		"unread": unread,
	})
}
