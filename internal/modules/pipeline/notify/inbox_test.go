package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
)

func TestInboxReadStateIsIdempotent(t *testing.T) {
	owner := uuid.New()
	in := NewInbox(owner)
	a := in.Add(domain.Notification{Type: string(RenderCompleted), Label: "a"})
	in.Add(domain.Notification{Type: string(BatchFailed), Label: "b"})

	if a.OwnerUserID != owner || a.ID == uuid.Nil {
		t.Fatalf("Add should stamp owner and id: %+v", a)
	}
	if err := in.MarkRead(a.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := in.MarkRead(a.ID); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	if in.UnreadCount() != 1 {
		t.Fatalf("expected 1 unread, got %d", in.UnreadCount())
	}
	if n := in.MarkAllRead(); n != 1 {
		t.Fatalf("expected 1 change, got %d", n)
	}
	if n := in.MarkAllRead(); n != 0 {
		t.Fatalf("second MarkAllRead should change nothing, got %d", n)
	}
	for _, it := range in.List() {
		if !it.IsRead {
			t.Fatalf("all notifications should be read")
		}
	}
	if n := in.ClearAll(); n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	if n := in.ClearAll(); n != 0 || len(in.List()) != 0 {
		t.Fatalf("ClearAll should be idempotent")
	}
}

func TestInboxMarkReadUnknown(t *testing.T) {
	in := NewInbox(uuid.New())
	if err := in.MarkRead(uuid.New()); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInboxListNewestFirst(t *testing.T) {
	in := NewInbox(uuid.New())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in.Add(domain.Notification{Label: "old", CreatedAt: base})
	in.Add(domain.Notification{Label: "new", CreatedAt: base.Add(time.Minute)})
	list := in.List()
	if list[0].Label != "new" || list[1].Label != "old" {
		t.Fatalf("unexpected order %v, %v", list[0].Label, list[1].Label)
	}
}
