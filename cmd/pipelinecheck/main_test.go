package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func runCheck(t *testing.T, input string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(input), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestValidSnapshot(t *testing.T) {
	code, out, _ := runCheck(t, `{"phase":"style_pending","current_step":2,"step_outputs":{"step1":{"output_upload_id":"u1","manual_approved":true}}}`)
	if code != exitValid {
		t.Fatalf("exit = %d, output:\n%s", code, out)
	}
	if !strings.HasPrefix(out, "phase=style_pending step=2 valid=true") {
		t.Fatalf("unexpected summary %q", out)
	}
}

func TestApprovedNotAdvancedWithFix(t *testing.T) {
	in := `{"phase":"style_review","current_step":2,"step_outputs":{"step2":{"output_upload_id":"u2","manual_approved":true}}}`
	code, out, _ := runCheck(t, in, "--fix")
	if code != exitIssues {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "APPROVED_NOT_ADVANCED") {
		t.Fatalf("missing issue code:\n%s", out)
	}
	if !strings.Contains(out, "recovery: phase=camera_angles_pending current_step=3") {
		t.Fatalf("missing recovery:\n%s", out)
	}
}

func TestJSONReportIncludesAttention(t *testing.T) {
	in := `{"phase":"camera_angles_pending","current_step":3,"step_retry_state":{"step3":{"status":"blocked_for_human","attempt_count":3}}}`
	code, out, _ := runCheck(t, in, "--json")
	if code != exitValid {
		t.Fatalf("blocked steps are not issues, exit = %d", code)
	}
	var rep report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if len(rep.NeedsAttention) != 1 || rep.NeedsAttention[0].AttemptCount != 3 {
		t.Fatalf("unexpected attention %+v", rep.NeedsAttention)
	}
	if !strings.Contains(rep.Summary, "blocked=step3") {
		t.Fatalf("summary should list blocked steps: %q", rep.Summary)
	}
}

func TestBadInput(t *testing.T) {
	for _, in := range []string{`not json`, `{"phase":"floorplan_magic"}`, `{"phase":"upload","current_step":-1}`} {
		if code, _, errOut := runCheck(t, in); code != exitBadData || errOut == "" {
			t.Fatalf("%s: exit = %d stderr=%q", in, code, errOut)
		}
	}
}
