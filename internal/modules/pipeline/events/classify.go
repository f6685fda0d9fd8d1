package events

import "strings"

// Class is a display grouping of a free-form event type.
type Class string

const (
	ClassStart    Class = "start"
	ClassProgress Class = "progress"
	ClassRetry    Class = "retry"
	ClassQAFail   Class = "qa_fail"
	ClassSuccess  Class = "success"
	ClassFailure  Class = "failure"
	ClassCanceled Class = "canceled"
	ClassOther    Class = "other"
)

// NormalizeType lowercases and folds '-' and ' ' to '_'.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer("-", "_", " ", "_").Replace(t)
}

func Classify(t string) Class {
	n := NormalizeType(t)
	switch {
	case n == "":
		return ClassOther
	case strings.HasPrefix(n, "complete") || n == "done" || n == "succeeded" || n == "success":
		return ClassSuccess
	case strings.HasPrefix(n, "fail") || strings.HasPrefix(n, "error"):
		return ClassFailure
	case n == "canceled" || n == "cancelled":
		return ClassCanceled
	case strings.HasPrefix(n, "qa_fail") || n == "qa_rejected":
		return ClassQAFail
	case strings.HasPrefix(n, "retry"):
		return ClassRetry
	case strings.HasPrefix(n, "start") || n == "queued" || n == "created":
		return ClassStart
	case strings.HasPrefix(n, "progress") || n == "running":
		return ClassProgress
	}
	return ClassOther
}

// IsTerminal reports whether no further events are expected after t.
func IsTerminal(t string) bool {
	switch Classify(t) {
	case ClassSuccess, ClassFailure, ClassCanceled:
		return true
	}
	return false
}

func IsSuccess(t string) bool { return Classify(t) == ClassSuccess }

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
