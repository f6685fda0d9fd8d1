package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attempt is one entry of a job's append-only QA ledger. JobID is opaque: a
// render/edit job id or a StepJobID. OwnerUserID is set by the first append.
type Attempt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID   uuid.UUID `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id"`
	JobID         string    `gorm:"column:job_id;not null;uniqueIndex:idx_job_attempt_number,priority:1" json:"job_id"`
	AttemptNumber int       `gorm:"column:attempt_number;not null;uniqueIndex:idx_job_attempt_number,priority:2" json:"attempt_number"`
	QADecision    Decision  `gorm:"column:qa_decision" json:"qa_decision,omitempty"`
	QAReason      string    `gorm:"column:qa_reason;type:text" json:"qa_reason,omitempty"`
	Output        string    `gorm:"column:output" json:"output"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (Attempt) TableName() string { return "job_attempt" }

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
