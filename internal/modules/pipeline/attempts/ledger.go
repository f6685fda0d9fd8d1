// Package attempts is the append-only QA attempt ledger of a job.
package attempts

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
)

// Ledger keeps attempts per job in memory. It does not serialize concurrent
// appends; the persistence layer does that.
type Ledger struct {
	byJob map[string][]*domain.Attempt
	byID  map[uuid.UUID]*domain.Attempt
	now   func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		byJob: map[string][]*domain.Attempt{},
		byID:  map[uuid.UUID]*domain.Attempt{},
		now:   time.Now,
	}
}

// Load builds a ledger from persisted rows, in any order.
func Load(rows []domain.Attempt) *Ledger {
	l := NewLedger()
	for i := range rows {
		a := rows[i]
		l.byJob[a.JobID] = append(l.byJob[a.JobID], &a)
		l.byID[a.ID] = &a
	}
	for _, list := range l.byJob {
		sort.Slice(list, func(i, j int) bool { return list[i].AttemptNumber < list[j].AttemptNumber })
	}
	return l
}

// AppendAttempt assigns max+1 (1 on an empty ledger) with no decision.
func (l *Ledger) AppendAttempt(jobID, output string) (domain.Attempt, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.Attempt{}, aggregates.Validation("attempts.AppendAttempt", "job id is required")
	}
	now := l.now().UTC()
	a := &domain.Attempt{
		ID:            uuid.New(),
		JobID:         jobID,
		AttemptNumber: NextNumber(l.Attempts(jobID)),
		Output:        output,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.byJob[jobID] = append(l.byJob[jobID], a)
	l.byID[a.ID] = a
	return *a, nil
}

// RecordDecision overwrites any previous decision on the attempt.
func (l *Ledger) RecordDecision(id uuid.UUID, decision domain.Decision, reason string) (domain.Attempt, error) {
	const op = "attempts.RecordDecision"
	if err := CheckDecision(op, decision); err != nil {
		return domain.Attempt{}, err
	}
	a, ok := l.byID[id]
	if !ok {
		return domain.Attempt{}, aggregates.PolicyViolation(op, "attempt %s does not exist", id)
	}
	a.QADecision = decision
	a.QAReason = strings.TrimSpace(reason)
	a.UpdatedAt = l.now().UTC()
	return *a, nil
}

func (l *Ledger) Attempts(jobID string) []domain.Attempt {
	list := l.list(jobID)
	out := make([]domain.Attempt, 0, len(list))
	for _, a := range list {
		out = append(out, *a)
	}
	return out
}

func (l *Ledger) Latest(jobID string) (domain.Attempt, bool) { return Latest(l.Attempts(jobID)) }
func (l *Ledger) HasRejections(jobID string) bool           { return HasRejections(l.Attempts(jobID)) }
func (l *Ledger) AllRejected(jobID string) bool             { return AllRejected(l.Attempts(jobID)) }

func (l *Ledger) list(jobID string) []*domain.Attempt {
	return l.byJob[strings.TrimSpace(jobID)]
}

// CheckDecision accepts only approved and rejected. A missing reason on a
// rejection is allowed.
func CheckDecision(op string, d domain.Decision) error {
	if d != domain.DecisionApproved && d != domain.DecisionRejected {
		return aggregates.Validation(op, "decision must be approved or rejected, got %q", d)
	}
	return nil
}

// NextNumber is max(attempt_number)+1, or 1 for an empty list.
func NextNumber(list []domain.Attempt) int {
	highest := 0
	for _, a := range list {
		if a.AttemptNumber > highest {
			highest = a.AttemptNumber
		}
	}
	return highest + 1
}

// Latest is the attempt with the highest number.
func Latest(list []domain.Attempt) (domain.Attempt, bool) {
	if len(list) == 0 {
		return domain.Attempt{}, false
	}
	best := list[0]
	for _, a := range list[1:] {
		if a.AttemptNumber > best.AttemptNumber {
			best = a
		}
	}
	return best, true
}

func HasRejections(list []domain.Attempt) bool {
	for _, a := range list {
		if a.QADecision == domain.DecisionRejected {
			return true
		}
	}
	return false
}

// AllRejected means automatic fixes are exhausted: non-empty and every entry rejected.
func AllRejected(list []domain.Attempt) bool {
	if len(list) == 0 {
		return false
	}
	for _, a := range list {
		if a.QADecision != domain.DecisionRejected {
			return false
		}
	}
	return true
}
