// Package events is the ordered, append-only progress log of batches and jobs,
// with progress aggregation and cursor-based subscriptions.
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
)

// Status aggregates a job's log.
type Status struct {
	Progress  int    `json:"progress"`
	Complete  bool   `json:"complete"`
	Succeeded bool   `json:"succeeded"`
	LastType  string `json:"last_type,omitempty"`
	Count     int    `json:"count"`
}

// Aggregate folds an ordered log. Progress is the highest progress_int seen,
// clamped to 0..100, and 100 once a success event is seen. Complete never
// reverts once set.
func Aggregate(list []domain.JobEvent) Status {
	var st Status
	for _, ev := range list {
		st = st.fold(ev)
	}
	return st
}

func (st Status) fold(ev domain.JobEvent) Status {
	st.Count++
	st.LastType = ev.Type
	if p := clampProgress(ev.ProgressInt); p > st.Progress {
		st.Progress = p
	}
	if IsTerminal(ev.Type) {
		st.Complete = true
	}
	if IsSuccess(ev.Type) {
		st.Succeeded = true
		st.Progress = 100
	}
	return st
}

type jobLog struct {
	events  []domain.JobEvent
	status  Status
	lastSeq int64
	changed chan struct{}
}

func newJobLog() *jobLog { return &jobLog{changed: make(chan struct{})} }

func (j *jobLog) push(ev domain.JobEvent) {
	j.events = append(j.events, ev)
	j.status = j.status.fold(ev)
	j.lastSeq = ev.Seq
	close(j.changed)
	j.changed = make(chan struct{})
}

// Stream is an in-process event log. It is safe for concurrent use; appends to
// one job are serialized and get consecutive seq numbers.
type Stream struct {
	mu   sync.Mutex
	jobs map[string]*jobLog
	now  func() time.Time
}

func NewStream() *Stream {
	return &Stream{jobs: map[string]*jobLog{}, now: time.Now}
}

func (s *Stream) job(jobID string) *jobLog {
	j, ok := s.jobs[jobID]
	if !ok {
		j = newJobLog()
		s.jobs[jobID] = j
	}
	return j
}

// Append assigns the next seq and a timestamp when absent.
func (s *Stream) Append(jobID string, ev domain.JobEvent) (domain.JobEvent, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.JobEvent{}, aggregates.Validation("events.Append", "job id is required")
	}
	if strings.TrimSpace(ev.Type) == "" {
		return domain.JobEvent{}, aggregates.Validation("events.Append", "event type is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.job(jobID)
	ev.JobID = jobID
	ev.Seq = j.lastSeq + 1
	if ev.TS.IsZero() {
		ev.TS = s.now().UTC()
	}
	j.push(ev)
	return ev, nil
}

// Ingest adds an event that already carries a seq, such as a persisted row.
// Only the event right after the last one is accepted: replays are ignored
// and an event past a gap is refused, so the caller can fetch what is missing
// and retry in order.
func (s *Stream) Ingest(ev domain.JobEvent) bool {
	if ev.JobID == "" || ev.Seq <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.job(ev.JobID)
	if ev.Seq != j.lastSeq+1 {
		return false
	}
	j.push(ev)
	return true
}

// LastSeq is the seq of the newest event held for jobID, 0 when none.
func (s *Stream) LastSeq(jobID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.lastSeq
	}
	return 0
}

func (s *Stream) Events(jobID string) []domain.JobEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	out := make([]domain.JobEvent, len(j.events))
	copy(out, j.events)
	return out
}

func (s *Stream) Status(jobID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.status
	}
	return Status{}
}

func (s *Stream) IsComplete(jobID string) bool { return s.Status(jobID).Complete }
func (s *Stream) Progress(jobID string) int    { return s.Status(jobID).Progress }

// Subscribe replays the full history, then live appends, in seq order.
func (s *Stream) Subscribe(jobID string) *Subscription {
	return &Subscription{stream: s, jobID: jobID}
}

// Subscription is a cursor into one job's log. It never drops events; a slow
// reader just lags behind.
type Subscription struct {
	stream *Stream
	jobID  string
	cursor int
}

func (sub *Subscription) Cursor() int { return sub.cursor }

// Next blocks until the event after the cursor exists or ctx ends.
func (sub *Subscription) Next(ctx context.Context) (domain.JobEvent, error) {
	for {
		s := sub.stream
		s.mu.Lock()
		j := s.job(sub.jobID)
		if sub.cursor < len(j.events) {
			ev := j.events[sub.cursor]
			sub.cursor++
			s.mu.Unlock()
			return ev, nil
		}
		wait := j.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.JobEvent{}, ctx.Err()
		case <-wait:
		}
	}
}
