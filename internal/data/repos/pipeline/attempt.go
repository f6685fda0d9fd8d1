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

// maxAppendRetries bounds retries of a max+1 append that lost a race on the
// (job_id, number) unique index.
const maxAppendRetries = 5

type AttemptRepo interface {
	Append(dbc dbctx.Context, owner uuid.UUID, jobID, output string) (*domain.Attempt, error)
	// OwnerOf reports the owner recorded on the job's first attempt.
	OwnerOf(dbc dbctx.Context, jobID string) (uuid.UUID, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Attempt, error)
	ListByJob(dbc dbctx.Context, jobID string) ([]domain.Attempt, error)
	RecordDecision(dbc dbctx.Context, id uuid.UUID, decision domain.Decision, reason string) (*domain.Attempt, error)
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	return &attemptRepo{
		db:  db,
		log: baseLog.With("repo", "AttemptRepo"),
	}
}

// Append assigns max(attempt_number)+1 inside a transaction.
func (r *attemptRepo) Append(dbc dbctx.Context, owner uuid.UUID, jobID, output string) (*domain.Attempt, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, aggregates.Validation("attempt.Append", "job id is required")
	}
	for try := 0; ; try++ {
		a, err := r.appendOnce(dbc, owner, jobID, output)
		if err == nil || !aggregates.IsCode(err, aggregates.CodeConflict) || dbc.Tx != nil || try >= maxAppendRetries {
			return a, err
		}
		r.log.Debug("attempt append raced, retrying", "job_id", jobID, "try", try+1)
	}
}

func (r *attemptRepo) appendOnce(dbc dbctx.Context, owner uuid.UUID, jobID, output string) (*domain.Attempt, error) {
	var created *domain.Attempt
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var highest int
		if err := tx.Model(&domain.Attempt{}).
			Where("job_id = ?", jobID).
			Select("COALESCE(MAX(attempt_number), 0)").
			Scan(&highest).Error; err != nil {
			return err
		}
		a := &domain.Attempt{
			OwnerUserID:   owner,
			JobID:         jobID,
			AttemptNumber: highest + 1,
			Output:        output,
		}
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError("attempt.Append", err)
	}
	return created, nil
}

func (r *attemptRepo) OwnerOf(dbc dbctx.Context, jobID string) (uuid.UUID, bool, error) {
	var rows []domain.Attempt
	if err := dbc.DB(r.db).
		Select("owner_user_id").
		Where("job_id = ?", strings.TrimSpace(jobID)).
		Order("attempt_number ASC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return uuid.Nil, false, dataagg.MapError("attempt.OwnerOf", err)
	}
	if len(rows) == 0 || rows[0].OwnerUserID == uuid.Nil {
		return uuid.Nil, false, nil
	}
	return rows[0].OwnerUserID, true, nil
}

func (r *attemptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Attempt, error) {
	var a domain.Attempt
	if err := dbc.DB(r.db).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, dataagg.MapError("attempt.GetByID", err)
	}
	return &a, nil
}

func (r *attemptRepo) ListByJob(dbc dbctx.Context, jobID string) ([]domain.Attempt, error) {
	out := []domain.Attempt{}
	if err := dbc.DB(r.db).
		Where("job_id = ?", strings.TrimSpace(jobID)).
		Order("attempt_number ASC").
		Find(&out).Error; err != nil {
		return nil, dataagg.MapError("attempt.ListByJob", err)
	}
	return out, nil
}

// RecordDecision overwrites the decision. An unknown attempt is a policy violation.
func (r *attemptRepo) RecordDecision(dbc dbctx.Context, id uuid.UUID, decision domain.Decision, reason string) (*domain.Attempt, error) {
	const op = "attempt.RecordDecision"
	res := dbc.DB(r.db).Model(&domain.Attempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"qa_decision": decision,
			"qa_reason":   strings.TrimSpace(reason),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, dataagg.MapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, aggregates.PolicyViolation(op, "attempt %s does not exist", id)
	}
	return r.GetByID(dbc, id)
}
