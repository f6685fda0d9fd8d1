package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/attempts"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

// AttemptLedger is the QA history of one job.
type AttemptLedger struct {
	JobID         string           `json:"job_id"`
	Attempts      []domain.Attempt `json:"attempts"`
	Latest        *domain.Attempt  `json:"latest,omitempty"`
	HasRejections bool             `json:"has_rejections"`
	AllRejected   bool             `json:"all_rejected"`
}

type AttemptService interface {
	Append(ctx context.Context, jobID, output string) (*domain.Attempt, error)
	Ledger(ctx context.Context, jobID string) (*AttemptLedger, error)
	RecordDecision(ctx context.Context, attemptID uuid.UUID, decision, reason string) (*domain.Attempt, error)
}

type attemptService struct {
	log           *logger.Logger
	repo          repos.AttemptRepo
	access        jobAccess
	notifications NotificationService
	notifier      PipelineNotifier
	metrics       *observability.Metrics
}

func NewAttemptService(log *logger.Logger, repo repos.AttemptRepo, pipelines repos.PipelineRepo, notifications NotificationService, notifier PipelineNotifier, metrics *observability.Metrics) AttemptService {
	return &attemptService{
		log:           log.With("service", "AttemptService"),
		repo:          repo,
		access:        jobAccess{pipelines: pipelines},
		notifications: notifications,
		notifier:      notifier,
		metrics:       metrics,
	}
}

func (s *attemptService) Append(ctx context.Context, jobID, output string) (*domain.Attempt, error) {
	const op = "attempts.Append"
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, aggregates.Validation(op, "job id is required")
	}
	owner, err := s.authorize(ctx, op, jobID)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.Append(dbctx.Context{Ctx: ctx}, owner, jobID, output)
	if err != nil {
		return nil, err
	}
	s.metrics.IncAttemptAppended()
	s.log.Debug("attempt appended", "job_id", a.JobID, "attempt_number", a.AttemptNumber)
	if s.notifier != nil {
		s.notifier.AttemptRecorded(ctx, owner, a)
	}
	return a, nil
}

func (s *attemptService) authorize(ctx context.Context, op, jobID string) (uuid.UUID, error) {
	return s.access.authorize(ctx, op, jobID, func() (uuid.UUID, bool, error) {
		return s.repo.OwnerOf(dbctx.Context{Ctx: ctx}, jobID)
	})
}

func (s *attemptService) Ledger(ctx context.Context, jobID string) (*AttemptLedger, error) {
	const op = "attempts.Ledger"
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, aggregates.Validation(op, "job id is required")
	}
	if _, err := s.authorize(ctx, op, jobID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByJob(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, err
	}
	l := attempts.Load(rows)
	out := &AttemptLedger{
		JobID:         jobID,
		Attempts:      l.Attempts(jobID),
		HasRejections: l.HasRejections(jobID),
		AllRejected:   l.AllRejected(jobID),
	}
	if out.Attempts == nil {
		out.Attempts = []domain.Attempt{}
	}
	if latest, ok := l.Latest(jobID); ok {
		out.Latest = &latest
	}
	return out, nil
}

func (s *attemptService) RecordDecision(ctx context.Context, attemptID uuid.UUID, decision, reason string) (*domain.Attempt, error) {
	const op = "attempts.RecordDecision"
	d, ok := domain.ParseDecision(decision)
	if !ok {
		return nil, aggregates.Validation(op, "unknown decision %q", decision)
	}
	if err := attempts.CheckDecision(op, d); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	current, err := s.repo.GetByID(dbc, attemptID)
	if aggregates.IsCode(err, aggregates.CodeNotFound) {
		s.metrics.IncPolicyViolation(op)
		return nil, aggregates.PolicyViolation(op, "attempt %s does not exist", attemptID)
	}
	if err != nil {
		return nil, err
	}
	owner, err := s.access.authorize(ctx, op, current.JobID, func() (uuid.UUID, bool, error) {
		return current.OwnerUserID, current.OwnerUserID != uuid.Nil, nil
	})
	if err != nil {
		return nil, err
	}
	a, err := s.repo.RecordDecision(dbc, attemptID, d, reason)
	if err != nil {
		if aggregates.IsCode(err, aggregates.CodePolicyViolation) {
			s.metrics.IncPolicyViolation(op)
		}
		return nil, err
	}
	s.metrics.IncQADecision(string(d))
	if s.notifier != nil {
		s.notifier.AttemptRecorded(ctx, owner, a)
	}
	if s.notifications != nil {
		typ := notify.QAApproved
		if d == domain.DecisionRejected {
			typ = notify.QARejected
		}
		ev := jobTarget(notify.DomainEvent{Type: typ, OwnerUserID: owner, Message: a.QAReason}, a.JobID)
		if _, err := s.notifications.Notify(ctx, ev); err != nil {
			s.log.Warn("qa notification failed", "attempt_id", a.ID, "error", err)
		}
	}
	return a, nil
}
