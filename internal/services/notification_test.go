package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

func TestNotificationInboxOperations(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	ctx := userCtx(owner)

	var ids []uuid.UUID
	for _, typ := range []notify.EventType{notify.RenderCompleted, notify.EditFailed, notify.BatchStarted} {
		n, err := h.notifications.Notify(ctx, notify.DomainEvent{Type: typ, OwnerUserID: owner, JobID: "job-1", BatchID: "batch-1"})
		if err != nil {
			t.Fatalf("Notify %s: %v", typ, err)
		}
		ids = append(ids, n.ID)
	}
	if h.emitter.count(realtime.SSEEventNotificationCreated) != 3 {
		t.Fatalf("expected 3 NotificationCreated messages")
	}

	list, err := h.notifications.List(ctx, false, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Notifications) != 3 || list.Unread != 3 {
		t.Fatalf("unexpected list %d unread=%d", len(list.Notifications), list.Unread)
	}

	if err := h.notifications.MarkRead(ctx, ids[0]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := h.notifications.MarkRead(ctx, ids[0]); err != nil {
		t.Fatalf("MarkRead must be idempotent: %v", err)
	}
	unread, _ := h.notifications.List(ctx, true, 0)
	if len(unread.Notifications) != 2 || unread.Unread != 2 {
		t.Fatalf("expected 2 unread, got %d/%d", len(unread.Notifications), unread.Unread)
	}

	if n, err := h.notifications.MarkAllRead(ctx); err != nil || n != 2 {
		t.Fatalf("MarkAllRead = %d err=%v", n, err)
	}
	if n, err := h.notifications.MarkAllRead(ctx); err != nil || n != 0 {
		t.Fatalf("second MarkAllRead = %d err=%v", n, err)
	}
	if n, err := h.notifications.ClearAll(ctx); err != nil || n != 3 {
		t.Fatalf("ClearAll = %d err=%v", n, err)
	}
	if n, err := h.notifications.ClearAll(ctx); err != nil || n != 0 {
		t.Fatalf("second ClearAll = %d err=%v", n, err)
	}
	if h.emitter.count(realtime.SSEEventNotificationsChanged) == 0 {
		t.Fatalf("expected NotificationsChanged messages")
	}
}

func TestNotificationErrors(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	ctx := userCtx(owner)
	if _, err := h.notifications.Notify(ctx, notify.DomainEvent{Type: "teleport_done", OwnerUserID: owner}); !aggregates.IsCode(err, aggregates.CodeValidation) {
		t.Fatalf("unknown type: expected validation error, got %v", err)
	}
	if _, err := h.notifications.Notify(ctx, notify.DomainEvent{Type: notify.RenderStarted}); !aggregates.IsCode(err, aggregates.CodeValidation) {
		t.Fatalf("missing owner: expected validation error, got %v", err)
	}
	if err := h.notifications.MarkRead(ctx, uuid.New()); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("unknown id: expected not found, got %v", err)
	}

	n, err := h.notifications.Notify(ctx, notify.DomainEvent{Type: notify.RenderStarted, OwnerUserID: owner, JobID: "r1"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := h.notifications.MarkRead(userCtx(uuid.New()), n.ID); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("foreign notification: expected not found, got %v", err)
	}
	if _, err := h.notifications.List(userCtx(uuid.Nil), false, 0); !aggregates.IsCode(err, aggregates.CodeValidation) {
		t.Fatalf("anonymous list: expected validation error, got %v", err)
	}
}
