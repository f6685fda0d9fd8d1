package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/tourforge-backend/internal/data/aggregates"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type PipelineRepo interface {
	Create(dbc dbctx.Context, p *domain.Pipeline) (*domain.Pipeline, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Pipeline, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*domain.Pipeline, error)
	// Save writes p's state when the stored version still equals p.Version and
	// bumps p.Version on success. A stale version is a conflict.
	Save(dbc dbctx.Context, p *domain.Pipeline) error
}

type pipelineRepo struct {
	db    *gorm.DB
	guard dataagg.CASGuard
	log   *logger.Logger
}

func NewPipelineRepo(db *gorm.DB, baseLog *logger.Logger) PipelineRepo {
	return &pipelineRepo{
		db:    db,
		guard: dataagg.NewCASGuard(db),
		log:   baseLog.With("repo", "PipelineRepo"),
	}
}

func (r *pipelineRepo) Create(dbc dbctx.Context, p *domain.Pipeline) (*domain.Pipeline, error) {
	const op = "pipeline.Create"
	if p == nil || p.OwnerUserID == uuid.Nil {
		return nil, aggregates.Validation(op, "owner is required")
	}
	if err := dbc.DB(r.db).Create(p).Error; err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return p, nil
}

func (r *pipelineRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Pipeline, error) {
	const op = "pipeline.GetByID"
	if id == uuid.Nil {
		return nil, aggregates.Validation(op, "id is required")
	}
	var p domain.Pipeline
	if err := dbc.DB(r.db).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return &p, nil
}

func (r *pipelineRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*domain.Pipeline, error) {
	var out []*domain.Pipeline
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	q := dbc.DB(r.db).Where("owner_user_id = ?", ownerUserID).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, dataagg.MapError("pipeline.ListByOwner", err)
	}
	return out, nil
}

func (r *pipelineRepo) Save(dbc dbctx.Context, p *domain.Pipeline) error {
	const op = "pipeline.Save"
	if p == nil {
		return aggregates.Validation(op, "pipeline is required")
	}
	now := time.Now().UTC()
	ok, err := r.guard.UpdateByVersion(dbc, domain.Pipeline{}.TableName(), p.ID, p.Version, map[string]any{
		"phase":            p.Phase,
		"current_step":     p.CurrentStep,
		"step_outputs":     p.StepOutputs,
		"step_retry_state": p.StepRetryState,
		"updated_at":       now,
	})
	if err != nil {
		return dataagg.MapError(op, err)
	}
	if err := dataagg.RequireCASSuccess(ok, "pipeline was modified concurrently"); err != nil {
		r.log.Warn("stale pipeline write", "pipeline_id", p.ID, "version", p.Version)
		return dataagg.MapError(op, err)
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}
