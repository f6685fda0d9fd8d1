package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/events"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/realtime"
)

func TestJobEventLifecycleNotifiesOnce(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	ctx := userCtx(owner)
	const job = "batch-42"

	steps := []AppendJobEventInput{
		{Type: "started", Kind: JobKindBatch},
		{Type: "progress", ProgressInt: 40, Kind: JobKindBatch},
		{Type: "started", Kind: JobKindBatch},
		{Type: "completed", Kind: JobKindBatch},
		{Type: "completed", Kind: JobKindBatch},
	}
	for i, in := range steps {
		ev, err := h.jobEvents.Append(ctx, job, in)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if ev.Seq != int64(i+1) {
			t.Fatalf("append %d: expected seq %d, got %d", i, i+1, ev.Seq)
		}
	}

	hist, err := h.jobEvents.History(ctx, job, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Events) != 5 || !hist.Status.Complete || hist.Status.Progress != 100 {
		t.Fatalf("unexpected history %+v", hist.Status)
	}
	if got := h.notificationsOf(t, owner, notify.BatchStarted); len(got) != 1 {
		t.Fatalf("expected one batch_started, got %d", len(got))
	}
	done := h.notificationsOf(t, owner, notify.BatchCompleted)
	if len(done) != 1 || done[0].Params()[notify.ParamBatchID] != job {
		t.Fatalf("expected one batch_completed targeting the batch, got %+v", done)
	}
	if h.emitter.count(realtime.SSEEventJobEventAppended) != 10 {
		t.Fatalf("expected job and user channel messages for 5 events, got %d", h.emitter.count(realtime.SSEEventJobEventAppended))
	}

	after, err := h.jobEvents.History(ctx, job, 3)
	if err != nil {
		t.Fatalf("History after: %v", err)
	}
	if len(after.Events) != 2 || after.Events[0].Seq != 4 {
		t.Fatalf("expected events after seq 3, got %+v", after.Events)
	}
}

func TestJobEventFailureNotifies(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	ctx := userCtx(owner)
	if _, err := h.jobEvents.Append(ctx, "render-1", AppendJobEventInput{Type: "failed", Message: "gpu lost", Kind: JobKindRender}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := h.notificationsOf(t, owner, notify.RenderFailed)
	if len(got) != 1 || got[0].Message != "gpu lost" || got[0].Params()[notify.ParamJobID] != "render-1" {
		t.Fatalf("expected render_failed notification, got %+v", got)
	}
}

func TestJobEventValidation(t *testing.T) {
	h := newHarness(t)
	ctx := userCtx(uuid.New())
	cases := []struct {
		job string
		in  AppendJobEventInput
	}{
		{"", AppendJobEventInput{Type: "started"}},
		{"job", AppendJobEventInput{Type: " "}},
		{"job", AppendJobEventInput{Type: "started", Kind: "upload"}},
	}
	for _, tc := range cases {
		if _, err := h.jobEvents.Append(ctx, tc.job, tc.in); !aggregates.IsCode(err, aggregates.CodeValidation) {
			t.Fatalf("%+v: expected validation error, got %v", tc, err)
		}
	}
}

func TestJobEventSubscribeReplaysThenFollows(t *testing.T) {
	h := newHarness(t)
	ctx := userCtx(uuid.New())
	const job = "edit-5"
	if _, err := h.jobEvents.Append(ctx, job, AppendJobEventInput{Type: "started"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	sub, err := h.jobEvents.Subscribe(ctx, job)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := sub.Next(waitCtx)
	if err != nil || first.Seq != 1 {
		t.Fatalf("expected replayed seq 1, got %+v err=%v", first, err)
	}

	go func() {
		_, _ = h.jobEvents.Append(ctx, job, AppendJobEventInput{Type: "progress", ProgressInt: 50})
	}()
	second, err := sub.Next(waitCtx)
	if err != nil || second.Seq != 2 || second.ProgressInt != 50 {
		t.Fatalf("expected live seq 2, got %+v err=%v", second, err)
	}
}

func TestJobEventSyncPicksUpOtherWriters(t *testing.T) {
	h := newHarness(t)
	ctx := userCtx(uuid.New())
	other := NewJobEventService(testLogger(t), h.eventRepo, h.pipelineRepo, events.NewStream(), 0, nil, nil, nil)
	if _, err := other.Append(ctx, "render-9", AppendJobEventInput{Type: "done"}); err != nil {
		t.Fatalf("Append elsewhere: %v", err)
	}
	hist, err := h.jobEvents.History(ctx, "render-9", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Events) != 1 || !hist.Status.Complete || !hist.Status.Succeeded {
		t.Fatalf("expected synced terminal status, got %+v", hist.Status)
	}
}

// stallingEventRepo parks the first progress append after it commits, so a
// later writer can persist and publish its event first.
type stallingEventRepo struct {
	repos.JobEventRepo
	committed chan struct{}
	release   chan struct{}
}

func (r *stallingEventRepo) Append(dbc dbctx.Context, ev *domain.JobEvent) (*domain.JobEvent, error) {
	out, err := r.JobEventRepo.Append(dbc, ev)
	if err == nil && ev.Type == "progress" {
		close(r.committed)
		<-r.release
	}
	return out, err
}

func TestJobEventConcurrentAppendsKeepEveryEvent(t *testing.T) {
	h := newHarness(t)
	ctx := userCtx(uuid.New())
	const job = "render-12"
	repo := &stallingEventRepo{JobEventRepo: h.eventRepo, committed: make(chan struct{}), release: make(chan struct{})}
	stream := events.NewStream()
	svc := NewJobEventService(testLogger(t), repo, h.pipelineRepo, stream, 0, nil, nil, nil)

	slowDone := make(chan error, 1)
	go func() {
		_, err := svc.Append(ctx, job, AppendJobEventInput{Type: "progress", ProgressInt: 40})
		slowDone <- err
	}()
	<-repo.committed

	last, err := svc.Append(ctx, job, AppendJobEventInput{Type: "failed", Message: "oom"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if last.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", last.Seq)
	}
	close(repo.release)
	select {
	case err := <-slowDone:
		if err != nil {
			t.Fatalf("Append progress: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stalled append never returned")
	}

	got := stream.Events(job)
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("expected seqs 1,2 in the stream, got %+v", got)
	}
	st := stream.Status(job)
	if !st.Complete || st.Succeeded {
		t.Fatalf("expected failed terminal status, got %+v", st)
	}
	hist, err := svc.History(ctx, job, 0)
	if err != nil || len(hist.Events) != 2 {
		t.Fatalf("expected 2 persisted events, got %+v err=%v", hist, err)
	}
}

func TestJobEventsAreScopedToOwner(t *testing.T) {
	h := newHarness(t)
	owner, intruder := uuid.New(), uuid.New()
	const job = "batch-8"
	if _, err := h.jobEvents.Append(userCtx(owner), job, AppendJobEventInput{Type: "started", Kind: JobKindBatch}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	other := userCtx(intruder)
	if _, err := h.jobEvents.Append(other, job, AppendJobEventInput{Type: "completed", Kind: JobKindBatch}); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("foreign append: expected not found, got %v", err)
	}
	if _, err := h.jobEvents.History(other, job, 0); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("foreign history: expected not found, got %v", err)
	}
	if _, err := h.jobEvents.Subscribe(other, job); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("foreign subscribe: expected not found, got %v", err)
	}
	if _, err := h.jobEvents.History(context.Background(), job, 0); !aggregates.IsCode(err, aggregates.CodeValidation) {
		t.Fatalf("anonymous history: expected validation error, got %v", err)
	}

	hist, err := h.jobEvents.History(userCtx(owner), job, 0)
	if err != nil || len(hist.Events) != 1 || hist.Events[0].OwnerUserID != owner {
		t.Fatalf("owner history: %+v err=%v", hist, err)
	}
	if got := h.notificationsOf(t, intruder, notify.BatchStarted); len(got) != 0 {
		t.Fatalf("intruder should not be notified, got %d", len(got))
	}
	if got := h.notificationsOf(t, owner, notify.BatchStarted); len(got) != 1 {
		t.Fatalf("expected one batch_started for the owner, got %d", len(got))
	}
}

func TestPipelineStepJobEventsFollowPipelineOwner(t *testing.T) {
	h := newHarness(t)
	owner, intruder := uuid.New(), uuid.New()
	view, err := h.pipelines.Create(userCtx(owner), CreatePipelineInput{UploadID: "plan-3"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	job := domain.StepJobID(view.Pipeline.ID, phases.StepStyle)
	if _, err := h.jobEvents.Append(userCtx(intruder), job, AppendJobEventInput{Type: "started"}); !aggregates.IsCode(err, aggregates.CodeNotFound) {
		t.Fatalf("first write by a stranger: expected not found, got %v", err)
	}
	if _, err := h.jobEvents.Append(userCtx(owner), job, AppendJobEventInput{Type: "started"}); err != nil {
		t.Fatalf("owner Append: %v", err)
	}
}
