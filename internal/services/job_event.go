package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/events"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

// JobKind selects which notification family a job's lifecycle maps to.
type JobKind string

const (
	JobKindRender   JobKind = "render"
	JobKindEdit     JobKind = "edit"
	JobKindBatch    JobKind = "batch"
	JobKindPipeline JobKind = "pipeline"
)

var lifecycleEvents = map[JobKind][3]notify.EventType{
	JobKindRender:   {notify.RenderStarted, notify.RenderCompleted, notify.RenderFailed},
	JobKindEdit:     {notify.EditStarted, notify.EditCompleted, notify.EditFailed},
	JobKindBatch:    {notify.BatchStarted, notify.BatchCompleted, notify.BatchFailed},
	JobKindPipeline: {notify.PipelineStarted, notify.PipelineCompleted, notify.PipelineFailed},
}

type AppendJobEventInput struct {
	Type        string          `json:"type"`
	ProgressInt int             `json:"progress_int"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	// Kind is optional; when set, the first start and terminal events notify the caller.
	Kind JobKind `json:"kind,omitempty"`
}

type JobEventHistory struct {
	JobID  string            `json:"job_id"`
	Events []domain.JobEvent `json:"events"`
	Status events.Status     `json:"status"`
}

type JobEventService interface {
	Append(ctx context.Context, jobID string, in AppendJobEventInput) (*domain.JobEvent, error)
	History(ctx context.Context, jobID string, afterSeq int64) (*JobEventHistory, error)
	// Subscribe replays the job's history and then follows live appends.
	Subscribe(ctx context.Context, jobID string) (*events.Subscription, error)
	// Sync pulls events another process persisted into the local stream.
	Sync(ctx context.Context, jobID string) error
}

type jobEventService struct {
	log           *logger.Logger
	repo          repos.JobEventRepo
	access        jobAccess
	stream        *events.Stream
	historyLimit  int
	notifications NotificationService
	notifier      PipelineNotifier
	metrics       *observability.Metrics
}

func NewJobEventService(
	log *logger.Logger,
	repo repos.JobEventRepo,
	pipelines repos.PipelineRepo,
	stream *events.Stream,
	historyLimit int,
	notifications NotificationService,
	notifier PipelineNotifier,
	metrics *observability.Metrics,
) JobEventService {
	if stream == nil {
		stream = events.NewStream()
	}
	return &jobEventService{
		log:           log.With("service", "JobEventService"),
		repo:          repo,
		access:        jobAccess{pipelines: pipelines},
		stream:        stream,
		historyLimit:  historyLimit,
		notifications: notifications,
		notifier:      notifier,
		metrics:       metrics,
	}
}

func (s *jobEventService) Append(ctx context.Context, jobID string, in AppendJobEventInput) (*domain.JobEvent, error) {
	const op = "jobEvents.Append"
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, aggregates.Validation(op, "job id is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, aggregates.Validation(op, "event type is required")
	}
	if in.Kind != "" {
		if _, ok := lifecycleEvents[in.Kind]; !ok {
			return nil, aggregates.Validation(op, "unknown job kind %q", in.Kind)
		}
	}
	owner, err := s.authorize(ctx, op, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.Sync(ctx, jobID); err != nil {
		return nil, err
	}
	before := s.stream.Status(jobID)

	ev := &domain.JobEvent{
		OwnerUserID: owner,
		JobID:       jobID,
		Type:        strings.TrimSpace(in.Type),
		ProgressInt: in.ProgressInt,
		Message:     strings.TrimSpace(in.Message),
	}
	if len(in.Data) > 0 {
		ev.Data = datatypes.JSON(in.Data)
	}
	saved, err := s.repo.Append(dbctx.Context{Ctx: ctx}, ev)
	if err != nil {
		return nil, err
	}
	// Concurrent appends to one job can commit in one order and get here in
	// the other; pulling from the repo keeps the stream in seq order.
	if err := s.Sync(ctx, jobID); err != nil {
		s.log.Warn("job event persisted but stream sync failed", "job_id", jobID, "seq", saved.Seq, "error", err)
	}
	class := events.Classify(saved.Type)
	s.metrics.IncJobEvent(string(class))

	if s.notifier != nil {
		s.notifier.JobEventAppended(ctx, owner, saved)
	}
	if in.Kind != "" {
		s.notifyLifecycle(ctx, owner, in.Kind, before, saved)
	}
	return saved, nil
}

// notifyLifecycle fires on the first start event and on the first terminal event.
func (s *jobEventService) notifyLifecycle(ctx context.Context, owner uuid.UUID, kind JobKind, before events.Status, ev *domain.JobEvent) {
	if s.notifications == nil || before.Complete {
		return
	}
	types := lifecycleEvents[kind]
	var typ notify.EventType
	switch events.Classify(ev.Type) {
	case events.ClassStart:
		if before.Count > 0 {
			return
		}
		typ = types[0]
	case events.ClassSuccess:
		typ = types[1]
	case events.ClassFailure:
		typ = types[2]
	default:
		return
	}
	de := notify.DomainEvent{Type: typ, OwnerUserID: owner, Message: ev.Message}
	switch kind {
	case JobKindBatch:
		de.BatchID = ev.JobID
	case JobKindPipeline:
		de.PipelineID = ev.JobID
	default:
		de = jobTarget(de, ev.JobID)
	}
	if _, err := s.notifications.Notify(ctx, de); err != nil {
		s.log.Warn("job lifecycle notification failed", "job_id", ev.JobID, "type", typ, "error", err)
	}
}

func (s *jobEventService) History(ctx context.Context, jobID string, afterSeq int64) (*JobEventHistory, error) {
	const op = "jobEvents.History"
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, aggregates.Validation(op, "job id is required")
	}
	if _, err := s.authorize(ctx, op, jobID); err != nil {
		return nil, err
	}
	if err := s.Sync(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByJob(dbctx.Context{Ctx: ctx}, jobID, afterSeq, s.historyLimit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.JobEvent{}
	}
	return &JobEventHistory{JobID: jobID, Events: rows, Status: s.stream.Status(jobID)}, nil
}

func (s *jobEventService) Subscribe(ctx context.Context, jobID string) (*events.Subscription, error) {
	const op = "jobEvents.Subscribe"
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, aggregates.Validation(op, "job id is required")
	}
	if _, err := s.authorize(ctx, op, jobID); err != nil {
		return nil, err
	}
	if err := s.Sync(ctx, jobID); err != nil {
		return nil, err
	}
	return s.stream.Subscribe(jobID), nil
}

func (s *jobEventService) authorize(ctx context.Context, op, jobID string) (uuid.UUID, error) {
	return s.access.authorize(ctx, op, jobID, func() (uuid.UUID, bool, error) {
		return s.repo.OwnerOf(dbctx.Context{Ctx: ctx}, jobID)
	})
}

// maxSyncPasses bounds re-reads when a concurrent Sync moved the cursor
// between the read and the ingest.
const maxSyncPasses = 3

// Sync ingests persisted events after the stream's last seq, strictly in seq
// order. The repo assigns seq as max+1 under a unique index, so a committed
// seq n implies every seq below it is committed too.
func (s *jobEventService) Sync(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	dbc := dbctx.Context{Ctx: ctx}
	for pass := 0; pass < maxSyncPasses; pass++ {
		rows, err := s.repo.ListByJob(dbc, jobID, s.stream.LastSeq(jobID), 0)
		if err != nil {
			return err
		}
		complete := true
		for _, ev := range rows {
			if !s.stream.Ingest(ev) && ev.Seq > s.stream.LastSeq(jobID) {
				complete = false
				break
			}
		}
		if complete {
			return nil
		}
	}
	s.log.Warn("job event stream has a seq gap", "job_id", jobID, "last_seq", s.stream.LastSeq(jobID))
	return nil
}
