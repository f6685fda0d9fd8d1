// Package validation detects illegal pipeline states and suggests the
// transition that makes them legal again. It never mutates its input.
package validation

import (
	"fmt"
	"strings"

	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
)

type Code string

const (
	CodePhaseStepMismatch   Code = "PHASE_STEP_MISMATCH"
	CodeApprovedNotAdvanced Code = "APPROVED_NOT_ADVANCED"
	CodeReviewWithoutOutput Code = "REVIEW_WITHOUT_OUTPUT"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

var severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium}

// Recovery is a legal {phase, current_step} pair the record can be moved to.
type Recovery struct {
	Phase       phases.Phase `json:"phase"`
	CurrentStep int          `json:"current_step"`
}

type Issue struct {
	Code     Code        `json:"code"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Step     phases.Step `json:"step,omitempty"`
	Recovery *Recovery   `json:"recovery,omitempty"`
}

type Result struct {
	IsValid bool    `json:"is_valid"`
	Issues  []Issue `json:"issues"`
}

// Recovery returns the suggestion of the first issue carrying one. Issues are
// ordered critical first, so a mismatch fix wins over output fixes.
func (r Result) Recovery() (Recovery, bool) {
	for _, is := range r.Issues {
		if is.Recovery != nil {
			return *is.Recovery, true
		}
	}
	return Recovery{}, false
}

func (r Result) Count(sev Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}

// Validate runs every check in a fixed order.
func Validate(s domain.Snapshot) Result {
	issues := make([]Issue, 0, 2)
	issues = append(issues, checkPhaseStep(s)...)
	issues = append(issues, checkApprovedNotAdvanced(s)...)
	issues = append(issues, checkReviewOutput(s)...)
	return Result{IsValid: len(issues) == 0, Issues: issues}
}

func checkPhaseStep(s domain.Snapshot) []Issue {
	expected, ok := phases.ExpectedStep(s.Phase)
	if !ok || s.CurrentStep == expected {
		return nil
	}
	return []Issue{{
		Code:     CodePhaseStepMismatch,
		Severity: SeverityCritical,
		Message:  fmt.Sprintf("phase %s expects current_step %d, found %d", s.Phase, expected, s.CurrentStep),
		Recovery: &Recovery{Phase: s.Phase, CurrentStep: expected},
	}}
}

// An approved step must not still sit in its own review phase.
func checkApprovedNotAdvanced(s domain.Snapshot) []Issue {
	step, ok := phases.StepOf(s.Phase)
	if !ok || !s.Phase.IsReview() {
		return nil
	}
	if !s.Outputs.Get(step).Approved() {
		return nil
	}
	return []Issue{{
		Code:     CodeApprovedNotAdvanced,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("%s is approved but the pipeline is still in %s", step, s.Phase),
		Step:     step,
		Recovery: &Recovery{Phase: phases.NextPendingPhase(int(step)), CurrentStep: int(step) + 1},
	}}
}

func checkReviewOutput(s domain.Snapshot) []Issue {
	if !s.Phase.IsReview() {
		return nil
	}
	step, _ := phases.StepOf(s.Phase)
	if s.Outputs.Get(step).HasOutput() {
		return nil
	}
	pending, _ := phases.PendingPhase(step)
	return []Issue{{
		Code:     CodeReviewWithoutOutput,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("%s has no output to review", s.Phase),
		Step:     step,
		Recovery: &Recovery{Phase: pending, CurrentStep: int(step)},
	}}
}

// Attention is a step halted for human action. It is informational, never an issue.
type Attention struct {
	Step         phases.Step `json:"step"`
	AttemptCount int         `json:"attempt_count"`
}

func NeedsAttention(s domain.Snapshot) []Attention {
	var out []Attention
	for _, step := range s.Retry.Blocked() {
		out = append(out, Attention{Step: step, AttemptCount: s.Retry.Get(step).AttemptCount})
	}
	return out
}

// Summarize renders a one-line diagnostic, e.g.
// "phase=style_review step=2 valid=false critical=0 high=1 medium=0 blocked=step3".
func Summarize(s domain.Snapshot) string {
	res := Validate(s)
	var b strings.Builder
	fmt.Fprintf(&b, "phase=%s step=%d valid=%t", s.Phase, s.CurrentStep, res.IsValid)
	for _, sev := range severities {
		fmt.Fprintf(&b, " %s=%d", sev, res.Count(sev))
	}
	if blocked := s.Retry.Blocked(); len(blocked) > 0 {
		keys := make([]string, 0, len(blocked))
		for _, st := range blocked {
			keys = append(keys, st.Key())
		}
		fmt.Fprintf(&b, " blocked=%s", strings.Join(keys, ","))
	}
	return b.String()
}
