package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobEvent is an append-only progress record of a batch or job. Seq is
// assigned at append time and orders the log. The job's owner is the
// OwnerUserID of its first event.
type JobEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id"`
	JobID       string         `gorm:"column:job_id;not null;uniqueIndex:idx_job_event_seq,priority:1" json:"job_id"`
	Seq         int64          `gorm:"column:seq;not null;uniqueIndex:idx_job_event_seq,priority:2" json:"seq"`
	Type        string         `gorm:"column:type;not null;index" json:"type"`
	ProgressInt int            `gorm:"column:progress_int;not null;default:0" json:"progress_int"`
	Message     string         `gorm:"column:message;type:text" json:"message,omitempty"`
	Data        datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	TS          time.Time      `gorm:"column:ts;not null;index" json:"ts"`
}

func (JobEvent) TableName() string { return "job_event" }

func (e *JobEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
