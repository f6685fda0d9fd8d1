// Package apierr carries an HTTP status and a stable error code alongside a
// cause, for errors raised at the transport edge (auth, request parsing,
// SSE session state) rather than in the domain.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

func Unauthorized(msg string) *Error {
	return New(http.StatusUnauthorized, "unauthorized", errors.New(msg))
}

func Forbidden(msg string) *Error {
	return New(http.StatusForbidden, "forbidden", errors.New(msg))
}

// Conflict is for request state the caller must fix first, such as
// subscribing before the session's stream is open.
func Conflict(code, msg string) *Error {
	return New(http.StatusConflict, code, errors.New(msg))
}

// As extracts an *Error with a usable status from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil && ae.Status != 0 {
		return ae, true
	}
	return nil, false
}
