package aggregates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
)

func TestRequireVersionMatch(t *testing.T) {
	if err := RequireVersionMatch(3, 3); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireVersionMatch(2, 3); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "ok"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireCASSuccess(false, "stale"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestUpdateByVersionRequiresDB(t *testing.T) {
	g := NewCASGuard(nil)
	_, err := g.UpdateByVersion(dbctx.Context{Ctx: context.Background()}, "pipeline", uuid.New(), 1, map[string]any{"phase": "upload"})
	if err == nil {
		t.Fatalf("expected error without db")
	}
}
