package pipeline

import "github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"

type RetryStatus string

const (
	RetryPending         RetryStatus = "pending"
	RetryRunning         RetryStatus = "running"
	RetryBlockedForHuman RetryStatus = "blocked_for_human"
	RetrySucceeded       RetryStatus = "succeeded"
	RetryFailed          RetryStatus = "failed"
)

type RetryState struct {
	Status       RetryStatus `json:"status"`
	AttemptCount int         `json:"attempt_count"`
}

func (r RetryState) Blocked() bool { return r.Status == RetryBlockedForHuman }

// RetryStates mirrors StepOutputs: one optional record per step.
type RetryStates struct {
	Step1 *RetryState `json:"step1,omitempty"`
	Step2 *RetryState `json:"step2,omitempty"`
	Step3 *RetryState `json:"step3,omitempty"`
	Step4 *RetryState `json:"step4,omitempty"`
}

func (r *RetryStates) slot(s phases.Step) **RetryState {
	switch s {
	case phases.StepTopDown3D:
		return &r.Step1
	case phases.StepStyle:
		return &r.Step2
	case phases.StepCameraAngles:
		return &r.Step3
	case phases.StepPanoramas:
		return &r.Step4
	}
	return nil
}

// Get returns the step's state; a step never attempted reads as pending/0.
func (r RetryStates) Get(s phases.Step) RetryState {
	if p := r.slot(s); p != nil && *p != nil {
		return **p
	}
	return RetryState{Status: RetryPending}
}

func (r *RetryStates) Set(s phases.Step, st RetryState) {
	if p := r.slot(s); p != nil {
		v := st
		*p = &v
	}
}

// Blocked lists steps halted for human action, in step order.
func (r RetryStates) Blocked() []phases.Step {
	var out []phases.Step
	for _, s := range phases.Steps() {
		if r.Get(s).Blocked() {
			out = append(out, s)
		}
	}
	return out
}
