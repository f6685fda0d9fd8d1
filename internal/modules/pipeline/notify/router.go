// Package notify turns pipeline, job and batch lifecycle events into
// addressable notifications.
package notify

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"gorm.io/datatypes"
)

type EventType string

const (
	RenderStarted        EventType = "render_started"
	RenderCompleted      EventType = "render_completed"
	RenderFailed         EventType = "render_failed"
	EditStarted          EventType = "edit_started"
	EditCompleted        EventType = "edit_completed"
	EditFailed           EventType = "edit_failed"
	BatchStarted         EventType = "batch_started"
	BatchCompleted       EventType = "batch_completed"
	BatchFailed          EventType = "batch_failed"
	PipelineStarted      EventType = "pipeline_started"
	PipelineCompleted    EventType = "pipeline_completed"
	PipelineFailed       EventType = "pipeline_failed"
	QAApproved           EventType = "qa_approved"
	QARejected           EventType = "qa_rejected"
	PipelineStepComplete EventType = "pipeline_step_complete"
	PipelineStepRejected EventType = "pipeline_step_rejected"
	PipelineAttached     EventType = "pipeline_attached"
)

// Family selects the target route of an event type.
type Family string

const (
	FamilyRender   Family = "render"
	FamilyEdit     Family = "edit"
	FamilyBatch    Family = "batch"
	FamilyPipeline Family = "pipeline"
	FamilyQA       Family = "qa"
	FamilyUpload   Family = "upload"
)

// Query parameter names.
const (
	ParamJobID          = "jobId"
	ParamBatchID        = "batchId"
	ParamPipelineID     = "pipelineId"
	ParamUploadID       = "uploadId"
	ParamStep           = "step"
	ParamAutoOpenReview = "autoOpenReview"
	ParamBlocked        = "blocked"
)

type rule struct {
	family   Family
	label    string
	icon     string
	complete bool
}

var rules = map[EventType]rule{
	RenderStarted:        {FamilyRender, "Render started", "icon-loader", false},
	RenderCompleted:      {FamilyRender, "Render completed", "icon-check-circle", true},
	RenderFailed:         {FamilyRender, "Render failed", "icon-alert-triangle", false},
	EditStarted:          {FamilyEdit, "Edit started", "icon-loader", false},
	EditCompleted:        {FamilyEdit, "Edit completed", "icon-check-circle", true},
	EditFailed:           {FamilyEdit, "Edit failed", "icon-alert-triangle", false},
	BatchStarted:         {FamilyBatch, "Batch started", "icon-layers", false},
	BatchCompleted:       {FamilyBatch, "Batch completed", "icon-check-circle", true},
	BatchFailed:          {FamilyBatch, "Batch failed", "icon-alert-triangle", false},
	PipelineStarted:      {FamilyPipeline, "Tour pipeline started", "icon-git-branch", false},
	PipelineCompleted:    {FamilyPipeline, "Tour ready", "icon-check-circle", true},
	PipelineFailed:       {FamilyPipeline, "Tour pipeline failed", "icon-alert-triangle", false},
	QAApproved:           {FamilyQA, "Quality check passed", "icon-thumbs-up", false},
	QARejected:           {FamilyQA, "Quality check failed", "icon-thumbs-down", false},
	PipelineStepComplete: {FamilyPipeline, "Step ready for review", "icon-eye", true},
	PipelineStepRejected: {FamilyPipeline, "Step sent back", "icon-rotate-ccw", false},
	PipelineAttached:     {FamilyPipeline, "Upload attached to tour", "icon-link", false},
}

var defaultRoutes = map[Family]string{
	FamilyRender:   "/creations",
	FamilyEdit:     "/edits",
	FamilyBatch:    "/batches",
	FamilyPipeline: "/pipelines",
	FamilyUpload:   "/uploads",
}

// EventTypes lists the closed set, sorted by family.
func EventTypes() []EventType {
	return []EventType{
		RenderStarted, RenderCompleted, RenderFailed,
		EditStarted, EditCompleted, EditFailed,
		BatchStarted, BatchCompleted, BatchFailed,
		PipelineStarted, PipelineCompleted, PipelineFailed,
		QAApproved, QARejected,
		PipelineStepComplete, PipelineStepRejected, PipelineAttached,
	}
}

func (t EventType) Valid() bool {
	_, ok := rules[t]
	return ok
}

// DomainEvent is a lifecycle transition worth telling a user about. Only the
// ids the event actually names are set.
type DomainEvent struct {
	Type        EventType `json:"type"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	JobID       string    `json:"job_id,omitempty"`
	BatchID     string    `json:"batch_id,omitempty"`
	PipelineID  string    `json:"pipeline_id,omitempty"`
	UploadID    string    `json:"upload_id,omitempty"`
	Step        int       `json:"step,omitempty"`
	Message     string    `json:"message,omitempty"`
	// Blocked marks a QA rejection that exhausted automatic retries.
	Blocked bool `json:"blocked,omitempty"`
}

type Router struct {
	routes map[Family]string
}

// NewRouter builds a router; overrides replace the default path of a family
// ("render", "edit", "batch", "pipeline", "upload").
func NewRouter(overrides map[string]string) *Router {
	routes := make(map[Family]string, len(defaultRoutes))
	for f, p := range defaultRoutes {
		routes[f] = p
	}
	for f, p := range overrides {
		p = strings.TrimSpace(p)
		if _, known := defaultRoutes[Family(f)]; known && p != "" {
			routes[Family(f)] = p
		}
	}
	return &Router{routes: routes}
}

// Route builds the notification for ev. Identity, read state and timestamps
// are left to the store.
func (r *Router) Route(ev DomainEvent) (domain.Notification, error) {
	ru, ok := rules[ev.Type]
	if !ok {
		return domain.Notification{}, aggregates.Validation("notify.Route", "unknown event type %q", ev.Type)
	}
	label := ru.label
	icon := ru.icon
	if ev.Type == QARejected && ev.Blocked {
		label = "Needs your review"
		icon = "icon-user-check"
	}
	n := domain.Notification{
		OwnerUserID: ev.OwnerUserID,
		Type:        string(ev.Type),
		Label:       label,
		Icon:        icon,
		Message:     strings.TrimSpace(ev.Message),
	}
	route, params := r.target(ru.family, ev)
	if route != "" {
		if ru.complete {
			params[ParamAutoOpenReview] = "true"
		}
		if ev.Blocked {
			params[ParamBlocked] = "true"
		}
		n.TargetRoute = route
	}
	n.TargetParams = datatypes.NewJSONType(params)
	return n, nil
}

func (r *Router) target(f Family, ev DomainEvent) (string, map[string]string) {
	params := map[string]string{}
	jobID := strings.TrimSpace(ev.JobID)
	batchID := strings.TrimSpace(ev.BatchID)
	pipelineID := strings.TrimSpace(ev.PipelineID)
	uploadID := strings.TrimSpace(ev.UploadID)

	pipelineTarget := func() (string, map[string]string) {
		params[ParamPipelineID] = pipelineID
		if ev.Step > 0 {
			params[ParamStep] = strconv.Itoa(ev.Step)
		}
		if uploadID != "" {
			params[ParamUploadID] = uploadID
		}
		return r.routes[FamilyPipeline], params
	}

	switch f {
	case FamilyRender, FamilyEdit:
		if jobID != "" {
			params[ParamJobID] = jobID
			return r.routes[f], params
		}
	case FamilyBatch:
		if batchID != "" {
			params[ParamBatchID] = batchID
			return r.routes[f], params
		}
	case FamilyPipeline:
		if pipelineID != "" {
			return pipelineTarget()
		}
	case FamilyQA:
		if pipelineID != "" {
			return pipelineTarget()
		}
		if jobID != "" {
			params[ParamJobID] = jobID
			return r.routes[FamilyRender], params
		}
	}
	if uploadID != "" {
		params[ParamUploadID] = uploadID
		return r.routes[FamilyUpload], params
	}
	return "", params
}
