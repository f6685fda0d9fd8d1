package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pipeline is the long-lived record of one floor plan moving through the
// tour stages. Version backs compare-and-set writes.
type Pipeline struct {
	ID             uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID    uuid.UUID                       `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	UploadID       string                          `gorm:"column:upload_id;index" json:"upload_id,omitempty"`
	Phase          string                          `gorm:"column:phase;not null;index" json:"phase"`
	CurrentStep    int                             `gorm:"column:current_step;not null;default:0" json:"current_step"`
	StepOutputs    datatypes.JSONType[StepOutputs] `gorm:"column:step_outputs" json:"step_outputs"`
	StepRetryState datatypes.JSONType[RetryStates] `gorm:"column:step_retry_state" json:"step_retry_state"`
	Version        int                             `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt      time.Time                       `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time                       `gorm:"not null;index" json:"updated_at"`
}

func (Pipeline) TableName() string { return "pipeline" }

func (p *Pipeline) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Phase == "" {
		p.Phase = string(phases.Initial)
	}
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}

// Snapshot is the read-only view the validator and the retry tracker work on.
type Snapshot struct {
	Phase       phases.Phase `json:"phase"`
	CurrentStep int          `json:"current_step"`
	Outputs     StepOutputs  `json:"step_outputs"`
	Retry       RetryStates  `json:"step_retry_state"`
}

// Snapshot decodes the persisted record. An unknown phase string is an error;
// an empty one decodes to the upload phase.
func (p *Pipeline) Snapshot() (Snapshot, error) {
	ph, err := phases.ParsePhase(p.Phase)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Phase:       ph,
		CurrentStep: p.CurrentStep,
		Outputs:     p.StepOutputs.Data(),
		Retry:       p.StepRetryState.Data(),
	}, nil
}

// Apply writes a snapshot back onto the record without touching identity or version.
func (p *Pipeline) Apply(s Snapshot) {
	p.Phase = string(s.Phase)
	p.CurrentStep = s.CurrentStep
	p.StepOutputs = datatypes.NewJSONType(s.Outputs)
	p.StepRetryState = datatypes.NewJSONType(s.Retry)
}

// StepJobID keys the attempt ledger and event stream of one pipeline step.
func StepJobID(pipelineID uuid.UUID, s phases.Step) string {
	return pipelineID.String() + ":" + s.Key()
}
