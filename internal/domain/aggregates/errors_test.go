package aggregates

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeSurvivesWrapping(t *testing.T) {
	base := PolicyViolation("retry.RecordAttempt", "step %s is blocked", "step2")
	wrapped := fmt.Errorf("record attempt: %w", base)
	if !IsCode(wrapped, CodePolicyViolation) {
		t.Fatalf("expected policy violation, got %q", CodeOf(wrapped))
	}
	if got := base.Error(); got != "retry.RecordAttempt: step step2 is blocked (policy_violation)" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWrapNilAndCollaborator(t *testing.T) {
	if Wrap(CodeInternal, "op", nil) != nil {
		t.Fatalf("wrap(nil) must stay nil")
	}
	cause := errors.New("dial tcp: timeout")
	err := Collaborator("storage.SignedURL", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("collaborator error must unwrap to cause")
	}
	if CodeOf(err) != CodeCollaborator {
		t.Fatalf("expected collaborator code, got %q", CodeOf(err))
	}
	if CodeOf(cause) != "" {
		t.Fatalf("plain errors carry no code")
	}
}
