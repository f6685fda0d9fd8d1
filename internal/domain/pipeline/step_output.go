package pipeline

import (
	"strings"

	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
)

type Decision string

const (
	DecisionNone     Decision = ""
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func ParseDecision(raw string) (Decision, bool) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(raw))); d {
	case DecisionApproved, DecisionRejected:
		return d, true
	case "", "null", "pending":
		return DecisionNone, true
	default:
		return DecisionNone, false
	}
}

// OutputVariant is one of several outputs a step may produce (camera angles, style variations).
type OutputVariant struct {
	OutputUploadID *string  `json:"output_upload_id"`
	QADecision     Decision `json:"qa_decision,omitempty"`
	QAReason       string   `json:"qa_reason,omitempty"`
	VariationIndex *int     `json:"variation_index,omitempty"`
	CameraAngle    string   `json:"camera_angle,omitempty"`
}

type StepOutput struct {
	OutputUploadID *string         `json:"output_upload_id,omitempty"`
	Outputs        []OutputVariant `json:"outputs,omitempty"`
	ManualApproved bool            `json:"manual_approved"`
	QADecision     Decision        `json:"qa_decision,omitempty"`
	QAReason       string          `json:"qa_reason,omitempty"`
}

// OutputIDs lists every non-empty output id, the single output first.
func (o *StepOutput) OutputIDs() []string {
	if o == nil {
		return nil
	}
	var ids []string
	if id := trimmed(o.OutputUploadID); id != "" {
		ids = append(ids, id)
	}
	for _, v := range o.Outputs {
		if id := trimmed(v.OutputUploadID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (o *StepOutput) HasOutput() bool { return len(o.OutputIDs()) > 0 }

func (o *StepOutput) Approved() bool { return o != nil && o.ManualApproved }

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// StepOutputs holds one optional output per step, persisted under "step1".."step4".
type StepOutputs struct {
	Step1 *StepOutput `json:"step1,omitempty"`
	Step2 *StepOutput `json:"step2,omitempty"`
	Step3 *StepOutput `json:"step3,omitempty"`
	Step4 *StepOutput `json:"step4,omitempty"`
}

func (o StepOutputs) Get(s phases.Step) *StepOutput {
	switch s {
	case phases.StepTopDown3D:
		return o.Step1
	case phases.StepStyle:
		return o.Step2
	case phases.StepCameraAngles:
		return o.Step3
	case phases.StepPanoramas:
		return o.Step4
	}
	return nil
}

func (o *StepOutputs) Set(s phases.Step, out *StepOutput) {
	switch s {
	case phases.StepTopDown3D:
		o.Step1 = out
	case phases.StepStyle:
		o.Step2 = out
	case phases.StepCameraAngles:
		o.Step3 = out
	case phases.StepPanoramas:
		o.Step4 = out
	}
}
