package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/retry"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/validation"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

// PipelineView is a pipeline record together with its reactive validation.
type PipelineView struct {
	Pipeline       *domain.Pipeline       `json:"pipeline"`
	Validation     validation.Result      `json:"validation"`
	NeedsAttention []validation.Attention `json:"needs_attention"`
	Summary        string                 `json:"summary"`
}

type CreatePipelineInput struct {
	UploadID string `json:"upload_id"`
}

// AdvanceInput is an executor's phase write. CurrentStep defaults to the
// phase's canonical step.
type AdvanceInput struct {
	Phase       string `json:"phase"`
	CurrentStep *int   `json:"current_step,omitempty"`
}

type StepOutputInput struct {
	OutputUploadID *string                `json:"output_upload_id,omitempty"`
	Outputs        []domain.OutputVariant `json:"outputs,omitempty"`
}

// AttemptOutcome optionally closes the automatic cycle being counted.
type AttemptOutcome string

const (
	OutcomeNone      AttemptOutcome = ""
	OutcomeSucceeded AttemptOutcome = "succeeded"
	OutcomeFailed    AttemptOutcome = "failed"
)

type RecordAttemptResult struct {
	View      *PipelineView     `json:"view"`
	State     domain.RetryState `json:"state"`
	Remaining int               `json:"remaining"`
	Escalated bool              `json:"escalated"`
}

type PipelineService interface {
	Create(ctx context.Context, in CreatePipelineInput) (*PipelineView, error)
	Get(ctx context.Context, id uuid.UUID) (*PipelineView, error)
	List(ctx context.Context, limit int) ([]*PipelineView, error)
	Validate(ctx context.Context, id uuid.UUID) (*validation.Result, error)
	ApplyRecovery(ctx context.Context, id uuid.UUID) (*PipelineView, error)

	Advance(ctx context.Context, id uuid.UUID, in AdvanceInput) (*PipelineView, error)
	WriteStepOutput(ctx context.Context, id uuid.UUID, step phases.Step, in StepOutputInput) (*PipelineView, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, step phases.Step, outcome AttemptOutcome) (*RecordAttemptResult, error)

	Approve(ctx context.Context, id uuid.UUID, step phases.Step) (*PipelineView, error)
	Reject(ctx context.Context, id uuid.UUID, step phases.Step, reason string) (*PipelineView, error)
	StartOver(ctx context.Context, id uuid.UUID, step phases.Step) (*PipelineView, error)
}

type pipelineService struct {
	log           *logger.Logger
	repo          repos.PipelineRepo
	retryPolicy   retry.Policy
	notifications NotificationService
	notifier      PipelineNotifier
	metrics       *observability.Metrics
}

func NewPipelineService(
	log *logger.Logger,
	repo repos.PipelineRepo,
	retryPolicy retry.Policy,
	notifications NotificationService,
	notifier PipelineNotifier,
	metrics *observability.Metrics,
) PipelineService {
	return &pipelineService{
		log:           log.With("service", "PipelineService"),
		repo:          repo,
		retryPolicy:   retryPolicy.Normalize(),
		notifications: notifications,
		notifier:      notifier,
		metrics:       metrics,
	}
}

func (s *pipelineService) Create(ctx context.Context, in CreatePipelineInput) (*PipelineView, error) {
	owner, err := requireUser(ctx, "pipelines.Create")
	if err != nil {
		return nil, err
	}
	p := &domain.Pipeline{
		OwnerUserID: owner,
		UploadID:    strings.TrimSpace(in.UploadID),
		Phase:       string(phases.Initial),
	}
	created, err := s.repo.Create(dbctx.Context{Ctx: ctx}, p)
	if err != nil {
		return nil, err
	}
	s.log.Info("pipeline created", append(ctxutil.LogFields(ctx), "pipeline_id", created.ID)...)
	if created.UploadID != "" {
		s.notify(ctx, notify.DomainEvent{
			Type:        notify.PipelineAttached,
			OwnerUserID: owner,
			PipelineID:  created.ID.String(),
			UploadID:    created.UploadID,
		})
	}
	view, err := s.inspect(created)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, view)
	return view, nil
}

func (s *pipelineService) Get(ctx context.Context, id uuid.UUID) (*PipelineView, error) {
	p, err := s.load(ctx, "pipelines.Get", id)
	if err != nil {
		return nil, err
	}
	return s.inspect(p)
}

func (s *pipelineService) List(ctx context.Context, limit int) ([]*PipelineView, error) {
	owner, err := requireUser(ctx, "pipelines.List")
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOwner(dbctx.Context{Ctx: ctx}, owner, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*PipelineView, 0, len(rows))
	for _, p := range rows {
		view, err := s.inspect(p)
		if err != nil {
			// A record with an unknown phase is still listed; it just has no validation.
			s.log.Warn("skipping validation of undecodable pipeline", "pipeline_id", p.ID, "error", err)
			out = append(out, &PipelineView{Pipeline: p, NeedsAttention: []validation.Attention{}})
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *pipelineService) Validate(ctx context.Context, id uuid.UUID) (*validation.Result, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &view.Validation, nil
}

func (s *pipelineService) ApplyRecovery(ctx context.Context, id uuid.UUID) (*PipelineView, error) {
	var applied validation.Code
	view, err := s.mutate(ctx, "pipelines.ApplyRecovery", id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		res := validation.Validate(*snap)
		rec, ok := res.Recovery()
		if !ok {
			return errUnchanged
		}
		for _, is := range res.Issues {
			if is.Recovery != nil {
				applied = is.Code
				break
			}
		}
		snap.Phase = rec.Phase
		snap.CurrentStep = rec.CurrentStep
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied != "" {
		s.metrics.IncRecovery(string(applied))
		s.log.Info("recovery applied", "pipeline_id", id, "code", applied, "phase", view.Pipeline.Phase, "step", view.Pipeline.CurrentStep)
	}
	return view, nil
}

func (s *pipelineService) Advance(ctx context.Context, id uuid.UUID, in AdvanceInput) (*PipelineView, error) {
	const op = "pipelines.Advance"
	to, err := phases.ParsePhase(in.Phase)
	if err != nil || strings.TrimSpace(in.Phase) == "" {
		return nil, aggregates.Validation(op, "invalid phase %q", in.Phase)
	}
	var from phases.Phase
	view, err := s.mutate(ctx, op, id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		from = snap.Phase
		if !phases.CanTransition(from, to) && from != to {
			// Executors own the phase; the write lands and validation reports the fallout.
			s.log.Warn("unexpected phase transition", "pipeline_id", p.ID, "from", from, "to", to)
		}
		step, _ := phases.ExpectedStep(to)
		if in.CurrentStep != nil {
			step = *in.CurrentStep
		}
		snap.Phase = to
		snap.CurrentStep = step
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		s.announceTransition(ctx, view.Pipeline, from, to)
	}
	return view, nil
}

func (s *pipelineService) announceTransition(ctx context.Context, p *domain.Pipeline, from, to phases.Phase) {
	ev := notify.DomainEvent{
		OwnerUserID: p.OwnerUserID,
		PipelineID:  p.ID.String(),
		UploadID:    p.UploadID,
	}
	switch {
	case to.IsReview():
		step, _ := phases.StepOf(to)
		ev.Type = notify.PipelineStepComplete
		ev.Step = int(step)
	case to == phases.PhaseCompleted:
		ev.Type = notify.PipelineCompleted
	case from == phases.PhaseUpload:
		ev.Type = notify.PipelineStarted
	default:
		return
	}
	s.notify(ctx, ev)
}

func (s *pipelineService) WriteStepOutput(ctx context.Context, id uuid.UUID, step phases.Step, in StepOutputInput) (*PipelineView, error) {
	const op = "pipelines.WriteStepOutput"
	if !step.Valid() {
		return nil, aggregates.Validation(op, "invalid step %d", int(step))
	}
	return s.mutate(ctx, op, id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		out := &domain.StepOutput{
			OutputUploadID: in.OutputUploadID,
			Outputs:        in.Outputs,
		}
		if prev := snap.Outputs.Get(step); prev != nil {
			out.ManualApproved = prev.ManualApproved
		}
		snap.Outputs.Set(step, out)
		return nil
	})
}

func (s *pipelineService) RecordAttempt(ctx context.Context, id uuid.UUID, step phases.Step, outcome AttemptOutcome) (*RecordAttemptResult, error) {
	const op = "pipelines.RecordAttempt"
	if !step.Valid() {
		return nil, aggregates.Validation(op, "invalid step %d", int(step))
	}
	switch outcome {
	case OutcomeNone, OutcomeSucceeded, OutcomeFailed:
	default:
		return nil, aggregates.Validation(op, "invalid outcome %q", outcome)
	}
	var (
		state     domain.RetryState
		remaining int
		escalated bool
	)
	view, err := s.mutate(ctx, op, id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		tracker := retry.NewTracker(s.retryPolicy, &snap.Retry)
		st, err := tracker.RecordAttempt(step)
		if err != nil {
			return err
		}
		// A pass reported on the attempt that exhausted the budget does not
		// clear the block; only a human can.
		switch {
		case st.Blocked():
		case outcome == OutcomeSucceeded:
			st, err = tracker.MarkSucceeded(step)
		case outcome == OutcomeFailed:
			st, err = tracker.MarkFailed(step)
		}
		if err != nil {
			return err
		}
		state = st
		escalated = st.Blocked()
		remaining = tracker.Remaining(step)
		return nil
	})
	if err != nil {
		if aggregates.IsCode(err, aggregates.CodePolicyViolation) {
			s.metrics.IncPolicyViolation(op)
			s.log.Warn("retry on blocked step refused", "pipeline_id", id, "step", step)
		}
		return nil, err
	}
	if escalated {
		s.metrics.IncRetryEscalation(step.Key())
		s.log.Warn("step escalated to human review", "pipeline_id", id, "step", step, "attempts", state.AttemptCount)
		s.notify(ctx, notify.DomainEvent{
			Type:        notify.QARejected,
			OwnerUserID: view.Pipeline.OwnerUserID,
			PipelineID:  view.Pipeline.ID.String(),
			UploadID:    view.Pipeline.UploadID,
			Step:        int(step),
			Blocked:     true,
			Message:     "Automatic retries exhausted",
		})
		if s.notifier != nil {
			s.notifier.NeedsHuman(ctx, view.Pipeline, view.NeedsAttention)
		}
	}
	return &RecordAttemptResult{View: view, State: state, Remaining: remaining, Escalated: escalated}, nil
}

// Approve records a human approval and advances in the same write.
func (s *pipelineService) Approve(ctx context.Context, id uuid.UUID, step phases.Step) (*PipelineView, error) {
	const op = "pipelines.Approve"
	review, ok := phases.ReviewPhase(step)
	if !ok {
		return nil, aggregates.Validation(op, "invalid step %d", int(step))
	}
	view, err := s.mutate(ctx, op, id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		if snap.Phase != review {
			return aggregates.PolicyViolation(op, "%s is not in review (phase %s)", step, snap.Phase)
		}
		out := snap.Outputs.Get(step)
		if !out.HasOutput() {
			return aggregates.PolicyViolation(op, "%s has no output to approve", step)
		}
		approved := *out
		approved.ManualApproved = true
		approved.QADecision = domain.DecisionApproved
		approved.QAReason = ""
		snap.Outputs.Set(step, &approved)
		if _, err := retry.NewTracker(s.retryPolicy, &snap.Retry).Approve(step); err != nil {
			return err
		}
		snap.Phase = phases.NextPendingPhase(int(step))
		snap.CurrentStep = int(step) + 1
		return nil
	})
	if err != nil {
		s.countPolicyViolation(op, err)
		return nil, err
	}
	s.metrics.IncQADecision(string(domain.DecisionApproved))
	ev := notify.DomainEvent{
		Type:        notify.QAApproved,
		OwnerUserID: view.Pipeline.OwnerUserID,
		PipelineID:  view.Pipeline.ID.String(),
		UploadID:    view.Pipeline.UploadID,
		Step:        int(step),
	}
	if view.Pipeline.Phase == string(phases.PhaseCompleted) {
		ev.Type = notify.PipelineCompleted
		ev.Step = 0
	}
	s.notify(ctx, ev)
	return view, nil
}

// Reject sends a step in review back to its pending phase. Retry counters are
// left alone; they only count automatic cycles.
func (s *pipelineService) Reject(ctx context.Context, id uuid.UUID, step phases.Step, reason string) (*PipelineView, error) {
	const op = "pipelines.Reject"
	review, ok := phases.ReviewPhase(step)
	if !ok {
		return nil, aggregates.Validation(op, "invalid step %d", int(step))
	}
	pending, _ := phases.PendingPhase(step)
	reason = strings.TrimSpace(reason)
	view, err := s.mutate(ctx, op, id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		if snap.Phase != review {
			return aggregates.PolicyViolation(op, "%s is not in review (phase %s)", step, snap.Phase)
		}
		rejected := domain.StepOutput{}
		if out := snap.Outputs.Get(step); out != nil {
			rejected = *out
		}
		rejected.ManualApproved = false
		rejected.QADecision = domain.DecisionRejected
		rejected.QAReason = reason
		snap.Outputs.Set(step, &rejected)
		snap.Phase = pending
		snap.CurrentStep = int(step)
		return nil
	})
	if err != nil {
		s.countPolicyViolation(op, err)
		return nil, err
	}
	s.metrics.IncQADecision(string(domain.DecisionRejected))
	s.notify(ctx, notify.DomainEvent{
		Type:        notify.PipelineStepRejected,
		OwnerUserID: view.Pipeline.OwnerUserID,
		PipelineID:  view.Pipeline.ID.String(),
		UploadID:    view.Pipeline.UploadID,
		Step:        int(step),
		Message:     reason,
	})
	return view, nil
}

// StartOver clears blocked_for_human and regresses to the step's pending phase.
func (s *pipelineService) StartOver(ctx context.Context, id uuid.UUID, step phases.Step) (*PipelineView, error) {
	const op = "pipelines.StartOver"
	pending, ok := phases.PendingPhase(step)
	if !ok {
		return nil, aggregates.Validation(op, "invalid step %d", int(step))
	}
	view, err := s.mutate(ctx, op, id, func(p *domain.Pipeline, snap *domain.Snapshot) error {
		reached, _ := phases.ExpectedStep(snap.Phase)
		if int(step) > reached {
			return aggregates.PolicyViolation(op, "%s has not been reached (phase %s)", step, snap.Phase)
		}
		if _, err := retry.NewTracker(s.retryPolicy, &snap.Retry).Reset(step); err != nil {
			return err
		}
		if out := snap.Outputs.Get(step); out != nil {
			cleared := *out
			cleared.ManualApproved = false
			cleared.QADecision = domain.DecisionNone
			cleared.QAReason = ""
			snap.Outputs.Set(step, &cleared)
		}
		snap.Phase = pending
		snap.CurrentStep = int(step)
		return nil
	})
	if err != nil {
		s.countPolicyViolation(op, err)
		return nil, err
	}
	s.log.Info("step started over", "pipeline_id", id, "step", step)
	return view, nil
}

// errUnchanged lets a mutation skip the write.
var errUnchanged = errors.New("pipeline unchanged")

// mutate loads, edits a snapshot, and writes it back with a version check.
func (s *pipelineService) mutate(ctx context.Context, op string, id uuid.UUID, fn func(p *domain.Pipeline, snap *domain.Snapshot) error) (*PipelineView, error) {
	ctx, span := observability.StartSpan(ctx, op, attribute.String("pipeline.id", id.String()))
	defer span.End()

	p, err := s.load(ctx, op, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	snap, err := p.Snapshot()
	if err != nil {
		return nil, aggregates.Wrap(aggregates.CodeInvariantViolation, op, err)
	}
	if err := fn(p, &snap); err != nil {
		if errors.Is(err, errUnchanged) {
			return s.inspect(p)
		}
		span.RecordError(err)
		return nil, err
	}
	p.Apply(snap)
	if err := s.repo.Save(dbctx.Context{Ctx: ctx}, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	view, err := s.inspect(p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, view)
	return view, nil
}

func (s *pipelineService) load(ctx context.Context, op string, id uuid.UUID) (*domain.Pipeline, error) {
	owner, err := requireUser(ctx, op)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerUserID != owner {
		return nil, aggregates.NotFound(op, "pipeline %s not found", id)
	}
	return p, nil
}

// inspect validates a record; issues are logged and counted, never returned as errors.
func (s *pipelineService) inspect(p *domain.Pipeline) (*PipelineView, error) {
	snap, err := p.Snapshot()
	if err != nil {
		return nil, aggregates.Wrap(aggregates.CodeInvariantViolation, "pipelines.inspect", err)
	}
	res := validation.Validate(snap)
	attention := validation.NeedsAttention(snap)
	if attention == nil {
		attention = []validation.Attention{}
	}
	view := &PipelineView{
		Pipeline:       p,
		Validation:     res,
		NeedsAttention: attention,
		Summary:        validation.Summarize(snap),
	}
	issues := make(map[string]string, len(res.Issues))
	for _, is := range res.Issues {
		issues[string(is.Code)] = string(is.Severity)
	}
	s.metrics.ObserveValidation(res.IsValid, issues)
	if !res.IsValid {
		s.log.Warn("pipeline state invalid", "pipeline_id", p.ID, "summary", view.Summary)
	}
	return view, nil
}

func (s *pipelineService) publish(ctx context.Context, view *PipelineView) {
	if s.notifier != nil {
		s.notifier.PipelineUpdated(ctx, view)
	}
}

// notify is best effort: a failed notification never fails the pipeline write.
func (s *pipelineService) notify(ctx context.Context, ev notify.DomainEvent) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Notify(ctx, ev); err != nil {
		s.log.Warn("notification failed", "type", ev.Type, "pipeline_id", ev.PipelineID, "error", err)
	}
}

func (s *pipelineService) countPolicyViolation(op string, err error) {
	if aggregates.IsCode(err, aggregates.CodePolicyViolation) {
		s.metrics.IncPolicyViolation(op)
	}
}
