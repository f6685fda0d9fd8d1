// Package phases is the phase/step state machine of the floor plan to tour
// pipeline. It is a pure table: no I/O, no state.
package phases

import (
	"fmt"
	"strconv"
	"strings"
)

// Step identifies a pipeline stage. Steps 1..StepCount own a pending/review
// phase pair; 0 is the upload phase and StepCount+1 the completed phase.
type Step int

const (
	StepTopDown3D    Step = 1
	StepStyle        Step = 2
	StepCameraAngles Step = 3
	StepPanoramas    Step = 4

	StepCount = 4
)

// Steps returns every step that owns a pending/review pair, in order.
func Steps() []Step {
	return []Step{StepTopDown3D, StepStyle, StepCameraAngles, StepPanoramas}
}

func (s Step) Valid() bool { return s >= 1 && s <= StepCount }

// Key is the persisted step key ("step1".."step4").
func (s Step) Key() string { return "step" + strconv.Itoa(int(s)) }

func (s Step) String() string { return s.Key() }

// ParseStep accepts "step2", "2" or " Step2 ".
func ParseStep(raw string) (Step, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.TrimPrefix(v, "step")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid step %q", raw)
	}
	s := Step(n)
	if !s.Valid() {
		return 0, fmt.Errorf("step %q out of range 1..%d", raw, StepCount)
	}
	return s, nil
}

// Phase is the coarse pipeline state label.
type Phase string

const (
	PhaseUpload              Phase = "upload"
	PhaseTopDown3DPending    Phase = "top_down_3d_pending"
	PhaseTopDown3DReview     Phase = "top_down_3d_review"
	PhaseStylePending        Phase = "style_pending"
	PhaseStyleReview         Phase = "style_review"
	PhaseCameraAnglesPending Phase = "camera_angles_pending"
	PhaseCameraAnglesReview  Phase = "camera_angles_review"
	PhasePanoramasPending    Phase = "panoramas_pending"
	PhasePanoramasReview     Phase = "panoramas_review"
	PhaseCompleted           Phase = "completed"
)

// Kind groups phases by the role they play in a step.
type Kind string

const (
	KindInitial  Kind = "initial"
	KindPending  Kind = "pending"
	KindReview   Kind = "review"
	KindTerminal Kind = "terminal"
)

type info struct {
	step int
	kind Kind
}

// order is the forward progression of the pipeline.
var order = []Phase{
	PhaseUpload,
	PhaseTopDown3DPending,
	PhaseTopDown3DReview,
	PhaseStylePending,
	PhaseStyleReview,
	PhaseCameraAnglesPending,
	PhaseCameraAnglesReview,
	PhasePanoramasPending,
	PhasePanoramasReview,
	PhaseCompleted,
}

var table = map[Phase]info{
	PhaseUpload:              {step: 0, kind: KindInitial},
	PhaseTopDown3DPending:    {step: 1, kind: KindPending},
	PhaseTopDown3DReview:     {step: 1, kind: KindReview},
	PhaseStylePending:        {step: 2, kind: KindPending},
	PhaseStyleReview:         {step: 2, kind: KindReview},
	PhaseCameraAnglesPending: {step: 3, kind: KindPending},
	PhaseCameraAnglesReview:  {step: 3, kind: KindReview},
	PhasePanoramasPending:    {step: 4, kind: KindPending},
	PhasePanoramasReview:     {step: 4, kind: KindReview},
	PhaseCompleted:           {step: StepCount + 1, kind: KindTerminal},
}

var index = func() map[Phase]int {
	m := make(map[Phase]int, len(order))
	for i, p := range order {
		m[p] = i
	}
	return m
}()

// Initial is the phase a new pipeline starts in and the phase an absent value decodes to.
const Initial = PhaseUpload

// Phases returns the ordered forward progression.
func Phases() []Phase {
	out := make([]Phase, len(order))
	copy(out, order)
	return out
}

func (p Phase) Valid() bool {
	_, ok := table[p]
	return ok
}

func (p Phase) Kind() Kind { return table[p].kind }

func (p Phase) IsReview() bool  { return p.Kind() == KindReview }
func (p Phase) IsPending() bool { return p.Kind() == KindPending }

// ParsePhase decodes a persisted phase. Empty decodes to Initial.
func ParsePhase(raw string) (Phase, error) {
	v := Phase(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return Initial, nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("unknown phase %q", raw)
	}
	return v, nil
}

// ExpectedStep is the canonical current_step for a phase.
func ExpectedStep(p Phase) (int, bool) {
	in, ok := table[p]
	if !ok {
		return 0, false
	}
	return in.step, true
}

// StepOf returns the step a pending or review phase belongs to.
func StepOf(p Phase) (Step, bool) {
	in, ok := table[p]
	if !ok || (in.kind != KindPending && in.kind != KindReview) {
		return 0, false
	}
	return Step(in.step), true
}

func PendingPhase(s Step) (Phase, bool) { return phaseFor(s, KindPending) }
func ReviewPhase(s Step) (Phase, bool)  { return phaseFor(s, KindReview) }

func phaseFor(s Step, kind Kind) (Phase, bool) {
	if !s.Valid() {
		return "", false
	}
	for _, p := range order {
		in := table[p]
		if in.step == int(s) && in.kind == kind {
			return p, true
		}
	}
	return "", false
}

// NextPendingPhase is the phase that follows a successful review of step.
// Unrecognized steps fall back to PhaseCompleted.
func NextPendingPhase(step int) Phase {
	next, ok := PendingPhase(Step(step + 1))
	if !ok {
		return PhaseCompleted
	}
	return next
}

// Next is the successor of p in forward order; completed has none.
func Next(p Phase) (Phase, bool) {
	i, ok := index[p]
	if !ok || i+1 >= len(order) {
		return "", false
	}
	return order[i+1], true
}

// CanTransition reports whether from -> to is a legal move: one step forward,
// a review rejected back to its own pending phase, or a restart of any step
// already reached.
func CanTransition(from, to Phase) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if next, ok := Next(from); ok && next == to {
		return true
	}
	if !to.IsPending() {
		return false
	}
	toStep, _ := StepOf(to)
	fromStep, _ := ExpectedStep(from)
	return int(toStep) <= fromStep
}
