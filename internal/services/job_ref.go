package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
)

// parseStepJob splits a pipeline step job id ("<pipeline uuid>:stepN").
func parseStepJob(jobID string) (uuid.UUID, phases.Step, bool) {
	head, tail, ok := strings.Cut(strings.TrimSpace(jobID), ":")
	if !ok {
		return uuid.Nil, 0, false
	}
	pid, err := uuid.Parse(head)
	if err != nil {
		return uuid.Nil, 0, false
	}
	step, err := phases.ParseStep(tail)
	if err != nil {
		return uuid.Nil, 0, false
	}
	return pid, step, true
}

// jobTarget fills the ids of ev from a job id. Pipeline step jobs target the
// pipeline; anything else is a plain job.
func jobTarget(ev notify.DomainEvent, jobID string) notify.DomainEvent {
	if pid, step, ok := parseStepJob(jobID); ok {
		ev.PipelineID = pid.String()
		ev.Step = int(step)
		return ev
	}
	ev.JobID = strings.TrimSpace(jobID)
	return ev
}

// jobAccess decides who a job belongs to. A pipeline step job belongs to the
// pipeline's owner; any other job to whoever wrote to it first. Other callers
// get not found, as they do for pipelines.
type jobAccess struct {
	pipelines repos.PipelineRepo
}

// authorize returns the job owner, which is always the caller on success.
// stored reports the owner recorded on the job's existing rows.
func (a jobAccess) authorize(ctx context.Context, op, jobID string, stored func() (uuid.UUID, bool, error)) (uuid.UUID, error) {
	caller, err := requireUser(ctx, op)
	if err != nil {
		return uuid.Nil, err
	}
	if pid, _, ok := parseStepJob(jobID); ok && a.pipelines != nil {
		p, err := a.pipelines.GetByID(dbctx.Context{Ctx: ctx}, pid)
		switch {
		case err == nil:
			if p.OwnerUserID != caller {
				return uuid.Nil, aggregates.NotFound(op, "job %s not found", jobID)
			}
			return caller, nil
		case !aggregates.IsCode(err, aggregates.CodeNotFound):
			return uuid.Nil, err
		}
	}
	if stored == nil {
		return caller, nil
	}
	owner, ok, err := stored()
	if err != nil {
		return uuid.Nil, err
	}
	if ok && owner != caller {
		return uuid.Nil, aggregates.NotFound(op, "job %s not found", jobID)
	}
	return caller, nil
}
