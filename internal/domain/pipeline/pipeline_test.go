package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func TestSnapshotDecodesEmptyPhaseAsUpload(t *testing.T) {
	p := &Pipeline{}
	snap, err := p.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Phase != phases.PhaseUpload || snap.CurrentStep != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	p.Phase = "not_a_phase"
	if _, err := p.Snapshot(); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}

func TestStepOutputsUseStepKeys(t *testing.T) {
	var outs StepOutputs
	outs.Set(phases.StepStyle, &StepOutput{OutputUploadID: strPtr("up-2"), ManualApproved: true})
	raw, err := json.Marshal(outs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"step2":{"output_upload_id":"up-2","manual_approved":true}`) {
		t.Fatalf("unexpected json: %s", raw)
	}
	if outs.Get(phases.StepTopDown3D) != nil {
		t.Fatalf("step1 should be unset")
	}
	if !outs.Get(phases.StepStyle).Approved() {
		t.Fatalf("step2 should be approved")
	}
}

func TestHasOutputSingleOrMulti(t *testing.T) {
	var nilOut *StepOutput
	if nilOut.HasOutput() {
		t.Fatalf("nil output has no output")
	}
	if (&StepOutput{OutputUploadID: strPtr("  ")}).HasOutput() {
		t.Fatalf("blank id is not an output")
	}
	multi := &StepOutput{Outputs: []OutputVariant{{OutputUploadID: nil}, {OutputUploadID: strPtr("angle-3")}}}
	if !multi.HasOutput() {
		t.Fatalf("multi output with one id should count")
	}
	if got := multi.OutputIDs(); len(got) != 1 || got[0] != "angle-3" {
		t.Fatalf("unexpected ids %v", got)
	}
}

func TestRetryStatesDefaultPending(t *testing.T) {
	var rs RetryStates
	if st := rs.Get(phases.StepPanoramas); st.Status != RetryPending || st.AttemptCount != 0 {
		t.Fatalf("unexpected default %+v", st)
	}
	rs.Set(phases.StepCameraAngles, RetryState{Status: RetryBlockedForHuman, AttemptCount: 3})
	if b := rs.Blocked(); len(b) != 1 || b[0] != phases.StepCameraAngles {
		t.Fatalf("unexpected blocked steps %v", b)
	}
}

func TestNotificationHref(t *testing.T) {
	n := Notification{
		TargetRoute:  "/pipelines",
		TargetParams: datatypes.NewJSONType(map[string]string{"pipelineId": "p1", "autoOpenReview": "true"}),
	}
	if got := n.Href(); got != "/pipelines?autoOpenReview=true&pipelineId=p1" {
		t.Fatalf("unexpected href %q", got)
	}
	if (Notification{}).Href() != "" {
		t.Fatalf("no route means no href")
	}
}

func TestParseDecision(t *testing.T) {
	if d, ok := ParseDecision(" Rejected "); !ok || d != DecisionRejected {
		t.Fatalf("got %q %v", d, ok)
	}
	if d, ok := ParseDecision("null"); !ok || d != DecisionNone {
		t.Fatalf("got %q %v", d, ok)
	}
	if _, ok := ParseDecision("maybe"); ok {
		t.Fatalf("maybe is not a decision")
	}
}
