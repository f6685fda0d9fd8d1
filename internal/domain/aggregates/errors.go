package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the pipeline core, the
// repositories and the HTTP layer.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"

	// CodePolicyViolation marks a caller bug the core refuses to absorb, such
	// as auto-retrying a step that is blocked for human review.
	CodePolicyViolation ErrorCode = "policy_violation"
	// CodeCollaborator marks a failure inside an external collaborator
	// (object storage, network). It never blocks validation.
	CodeCollaborator ErrorCode = "collaborator_failure"
)

// Error is the canonical error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with a code. A nil err stays nil.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func Validation(op, format string, args ...any) error {
	return NewError(CodeValidation, op, fmt.Sprintf(format, args...), nil)
}

func NotFound(op, format string, args ...any) error {
	return NewError(CodeNotFound, op, fmt.Sprintf(format, args...), nil)
}

func PolicyViolation(op, format string, args ...any) error {
	return NewError(CodePolicyViolation, op, fmt.Sprintf(format, args...), nil)
}

func Collaborator(op string, err error) error {
	return Wrap(CodeCollaborator, op, err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf extracts the error code when available.
func CodeOf(err error) ErrorCode {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
