// Package retry bounds automatic QA retries per pipeline step and escalates
// exhausted steps to blocked_for_human.
package retry

import (
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
)

const DefaultMaxAttempts = 3

type Policy struct {
	MaxAttempts int `yaml:"max_auto_attempts" json:"max_auto_attempts"`
}

func DefaultPolicy() Policy { return Policy{MaxAttempts: DefaultMaxAttempts} }

// Normalize clamps MaxAttempts to at least 1.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// Tracker mutates the retry states it was given. It holds no lock; callers
// own the snapshot.
type Tracker struct {
	policy Policy
	states *domain.RetryStates
}

func NewTracker(policy Policy, states *domain.RetryStates) *Tracker {
	if states == nil {
		states = &domain.RetryStates{}
	}
	return &Tracker{policy: policy.Normalize(), states: states}
}

func (t *Tracker) Policy() Policy { return t.policy }

func (t *Tracker) State(step phases.Step) domain.RetryState { return t.states.Get(step) }

// RecordAttempt counts one automatic retry cycle. The call on which the count
// reaches MaxAttempts moves the step to blocked_for_human. Calling it on a
// blocked step is a policy violation and changes nothing.
func (t *Tracker) RecordAttempt(step phases.Step) (domain.RetryState, error) {
	const op = "retry.RecordAttempt"
	if !step.Valid() {
		return domain.RetryState{}, aggregates.Validation(op, "invalid step %d", int(step))
	}
	st := t.states.Get(step)
	if st.Blocked() {
		return st, aggregates.PolicyViolation(op, "step %s is blocked", step)
	}
	st.AttemptCount++
	if st.AttemptCount >= t.policy.MaxAttempts {
		st.Status = domain.RetryBlockedForHuman
	} else {
		st.Status = domain.RetryRunning
	}
	t.states.Set(step, st)
	return st, nil
}

// Reset clears the step for a fresh round of automatic retries. Reset and
// Approve are the only ways out of blocked_for_human; both are human actions.
func (t *Tracker) Reset(step phases.Step) (domain.RetryState, error) {
	if !step.Valid() {
		return domain.RetryState{}, aggregates.Validation("retry.Reset", "invalid step %d", int(step))
	}
	st := domain.RetryState{Status: domain.RetryPending, AttemptCount: 0}
	t.states.Set(step, st)
	return st, nil
}

// MarkSucceeded records a passing automatic attempt. A blocked step is a
// policy violation and stays blocked.
func (t *Tracker) MarkSucceeded(step phases.Step) (domain.RetryState, error) {
	const op = "retry.MarkSucceeded"
	if !step.Valid() {
		return domain.RetryState{}, aggregates.Validation(op, "invalid step %d", int(step))
	}
	st := t.states.Get(step)
	if st.Blocked() {
		return st, aggregates.PolicyViolation(op, "step %s is blocked for human review", step)
	}
	st.Status = domain.RetrySucceeded
	t.states.Set(step, st)
	return st, nil
}

// Approve records a human approval, blocked or not, keeping the attempt count
// for history.
func (t *Tracker) Approve(step phases.Step) (domain.RetryState, error) {
	if !step.Valid() {
		return domain.RetryState{}, aggregates.Validation("retry.Approve", "invalid step %d", int(step))
	}
	st := t.states.Get(step)
	st.Status = domain.RetrySucceeded
	t.states.Set(step, st)
	return st, nil
}

// MarkFailed records a failed attempt. A blocked step stays blocked.
func (t *Tracker) MarkFailed(step phases.Step) (domain.RetryState, error) {
	if !step.Valid() {
		return domain.RetryState{}, aggregates.Validation("retry.MarkFailed", "invalid step %d", int(step))
	}
	st := t.states.Get(step)
	if !st.Blocked() {
		st.Status = domain.RetryFailed
		t.states.Set(step, st)
	}
	return st, nil
}

// CanAutoRetry reports whether an executor may start another automatic cycle.
func (t *Tracker) CanAutoRetry(step phases.Step) bool {
	if !step.Valid() {
		return false
	}
	st := t.states.Get(step)
	return !st.Blocked() && st.Status != domain.RetrySucceeded && st.AttemptCount < t.policy.MaxAttempts
}

// Remaining is the number of automatic cycles left before escalation.
func (t *Tracker) Remaining(step phases.Step) int {
	n := t.policy.MaxAttempts - t.states.Get(step).AttemptCount
	if n < 0 {
		return 0
	}
	return n
}
