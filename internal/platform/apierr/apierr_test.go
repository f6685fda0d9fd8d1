package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorsCarryStatusAndCode(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
		code   string
	}{
		{BadRequest("invalid_step", errors.New("bad")), http.StatusBadRequest, "invalid_step"},
		{Unauthorized("missing token"), http.StatusUnauthorized, "unauthorized"},
		{Forbidden("channel not allowed"), http.StatusForbidden, "forbidden"},
		{Conflict("no_stream", "open a stream first"), http.StatusConflict, "no_stream"},
	}
	for _, tc := range cases {
		if tc.err.Status != tc.status || tc.err.Code != tc.code {
			t.Fatalf("got %d/%s, want %d/%s", tc.err.Status, tc.err.Code, tc.status, tc.code)
		}
	}
	if got := Unauthorized("missing token").Error(); got != "missing token" {
		t.Fatalf("message = %q", got)
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("subscribe: %w", Forbidden("nope"))
	ae, ok := As(wrapped)
	if !ok || ae.Status != http.StatusForbidden {
		t.Fatalf("As(%v) = %+v, %v", wrapped, ae, ok)
	}
	if _, ok := As(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no status")
	}
	if _, ok := As(New(0, "x", nil)); ok {
		t.Fatalf("zero status must not match")
	}
}
