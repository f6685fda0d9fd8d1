package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/events"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/retry"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

func (e *recordingEmitter) count(event realtime.SSEEvent) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

type harness struct {
	emitter       *recordingEmitter
	metrics       *observability.Metrics
	notifRepo     repos.NotificationRepo
	eventRepo     repos.JobEventRepo
	pipelineRepo  repos.PipelineRepo
	notifications NotificationService
	pipelines     PipelineService
	attempts      AttemptService
	jobEvents     JobEventService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{emitter: &recordingEmitter{}, metrics: observability.New()}
	notifier := NewPipelineNotifier(h.emitter)
	h.notifRepo = repos.NewNotificationRepo(db, log)
	h.eventRepo = repos.NewJobEventRepo(db, log)
	h.pipelineRepo = repos.NewPipelineRepo(db, log)
	h.notifications = NewNotificationService(log, h.notifRepo, notify.NewRouter(nil), notifier, h.metrics)
	h.pipelines = NewPipelineService(log, h.pipelineRepo, retry.DefaultPolicy(), h.notifications, notifier, h.metrics)
	h.attempts = NewAttemptService(log, repos.NewAttemptRepo(db, log), h.pipelineRepo, h.notifications, notifier, h.metrics)
	h.jobEvents = NewJobEventService(log, h.eventRepo, h.pipelineRepo, events.NewStream(), 500, h.notifications, notifier, h.metrics)
	return h
}

func userCtx(id uuid.UUID) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: id})
}

// notificationsOf returns the owner's notifications of one type.
func (h *harness) notificationsOf(t *testing.T, owner uuid.UUID, typ notify.EventType) []domain.Notification {
	t.Helper()
	rows, err := h.notifRepo.ListByOwner(dbctx.Context{Ctx: context.Background()}, owner, false, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var out []domain.Notification
	for _, n := range rows {
		if n.Type == string(typ) {
			out = append(out, n)
		}
	}
	return out
}

func testLogger(t *testing.T) *logger.Logger { return testutil.Logger(t) }
