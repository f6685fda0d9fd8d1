package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/tourforge-backend/internal/data/aggregates"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type JobEventRepo interface {
	// Append assigns the next per-job seq and persists ev.
	Append(dbc dbctx.Context, ev *domain.JobEvent) (*domain.JobEvent, error)
	// ListByJob returns events with seq > afterSeq in seq order. limit <= 0 means all.
	ListByJob(dbc dbctx.Context, jobID string, afterSeq int64, limit int) ([]domain.JobEvent, error)
	// OwnerOf reports the owner recorded on the job's first event.
	OwnerOf(dbc dbctx.Context, jobID string) (uuid.UUID, bool, error)
}

type jobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) JobEventRepo {
	return &jobEventRepo{
		db:  db,
		log: baseLog.With("repo", "JobEventRepo"),
	}
}

func (r *jobEventRepo) Append(dbc dbctx.Context, ev *domain.JobEvent) (*domain.JobEvent, error) {
	const op = "job_event.Append"
	if ev == nil || strings.TrimSpace(ev.JobID) == "" {
		return nil, aggregates.Validation(op, "job id is required")
	}
	ev.JobID = strings.TrimSpace(ev.JobID)
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	for try := 0; ; try++ {
		err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
			var last int64
			if err := tx.Model(&domain.JobEvent{}).
				Where("job_id = ?", ev.JobID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&last).Error; err != nil {
				return err
			}
			ev.Seq = last + 1
			return tx.Create(ev).Error
		})
		err = dataagg.MapError(op, err)
		if err == nil {
			return ev, nil
		}
		if !aggregates.IsCode(err, aggregates.CodeConflict) || dbc.Tx != nil || try >= maxAppendRetries {
			return nil, err
		}
		r.log.Debug("job event append raced, retrying", "job_id", ev.JobID, "try", try+1)
	}
}

func (r *jobEventRepo) ListByJob(dbc dbctx.Context, jobID string, afterSeq int64, limit int) ([]domain.JobEvent, error) {
	out := []domain.JobEvent{}
	q := dbc.DB(r.db).
		Where("job_id = ? AND seq > ?", strings.TrimSpace(jobID), afterSeq).
		Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, dataagg.MapError("job_event.ListByJob", err)
	}
	return out, nil
}

func (r *jobEventRepo) OwnerOf(dbc dbctx.Context, jobID string) (uuid.UUID, bool, error) {
	var rows []domain.JobEvent
	if err := dbc.DB(r.db).
		Select("owner_user_id").
		Where("job_id = ?", strings.TrimSpace(jobID)).
		Order("seq ASC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return uuid.Nil, false, dataagg.MapError("job_event.OwnerOf", err)
	}
	if len(rows) == 0 || rows[0].OwnerUserID == uuid.Nil {
		return uuid.Nil, false, nil
	}
	return rows[0].OwnerUserID, true, nil
}
