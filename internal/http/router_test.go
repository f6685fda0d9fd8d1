package http

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/data/repos/testutil"
	httpH "github.com/yungbote/tourforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tourforge-backend/internal/http/middleware"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/events"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/retry"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/realtime"
	"github.com/yungbote/tourforge-backend/internal/services"
)

type testAPI struct {
	t     *testing.T
	r     *gin.Engine
	owner uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	metrics := observability.New()
	hub := realtime.NewSSEHub(log)
	notifier := services.NewPipelineNotifier(&services.HubEmitter{Hub: hub})

	notifications := services.NewNotificationService(log, repos.NewNotificationRepo(db, log), notify.NewRouter(nil), notifier, metrics)
	pipelineRepo := repos.NewPipelineRepo(db, log)
	pipelines := services.NewPipelineService(log, pipelineRepo, retry.DefaultPolicy(), notifications, notifier, metrics)
	attempts := services.NewAttemptService(log, repos.NewAttemptRepo(db, log), pipelineRepo, notifications, notifier, metrics)
	jobEvents := services.NewJobEventService(log, repos.NewJobEventRepo(db, log), pipelineRepo, events.NewStream(), 500, notifications, notifier, metrics)
	artifacts := services.NewArtifactService(log, pipelines, nil, metrics)

	r := NewRouter(RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		AuthMiddleware:      httpMW.NewAuthMiddleware(log, nil, true),
		RealtimeHandler:     httpH.NewRealtimeHandler(log, hub, metrics),
		PipelineHandler:     httpH.NewPipelineHandler(pipelines, artifacts),
		AttemptHandler:      httpH.NewAttemptHandler(attempts),
		JobEventHandler:     httpH.NewJobEventHandler(log, jobEvents),
		NotificationHandler: httpH.NewNotificationHandler(notifications),
		HealthHandler:       httpH.NewHealthHandler(metrics),
	})
	return &testAPI{t: t, r: r, owner: uuid.New()}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		buf = bytes.NewBuffer(raw)
	}
	var req *nethttp.Request
	if buf != nil {
		req = httptest.NewRequest(method, path, buf)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-User-Id", a.owner.String())
	rec := httptest.NewRecorder()
	a.r.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) expect(rec *httptest.ResponseRecorder, status int, out any) {
	a.t.Helper()
	if rec.Code != status {
		a.t.Fatalf("status = %d, want %d, body=%s", rec.Code, status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
}

type pipelineEnvelope struct {
	Pipeline struct {
		Pipeline struct {
			ID          uuid.UUID `json:"id"`
			Phase       string    `json:"phase"`
			CurrentStep int       `json:"current_step"`
			Version     int       `json:"version"`
		} `json:"pipeline"`
		Validation struct {
			IsValid bool `json:"is_valid"`
			Issues  []struct {
				Code string `json:"code"`
			} `json:"issues"`
		} `json:"validation"`
		Summary string `json:"summary"`
	} `json:"pipeline"`
}

func TestHealthcheck(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(nethttp.MethodGet, "/healthcheck", nil)
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck = %d %q", rec.Code, rec.Body.String())
	}
}

func TestPipelineReviewFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	var created pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines", gin.H{"upload_id": "plan-1"}), nethttp.StatusCreated, &created)
	id := created.Pipeline.Pipeline.ID.String()
	if created.Pipeline.Pipeline.Phase != "upload" {
		t.Fatalf("new pipeline phase = %q", created.Pipeline.Pipeline.Phase)
	}

	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/phase", gin.H{"phase": "top_down_3d_pending"}), nethttp.StatusOK, nil)
	api.expect(api.do(nethttp.MethodPut, "/api/pipelines/"+id+"/steps/step1/output", gin.H{"output_upload_id": "render-1"}), nethttp.StatusOK, nil)

	var review pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/phase", gin.H{"phase": "top_down_3d_review"}), nethttp.StatusOK, &review)
	if !review.Pipeline.Validation.IsValid {
		t.Fatalf("review with output should validate: %+v", review.Pipeline.Validation)
	}

	var approved pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/steps/1/approve", nil), nethttp.StatusOK, &approved)
	if approved.Pipeline.Pipeline.Phase != "style_pending" || approved.Pipeline.Pipeline.CurrentStep != 2 {
		t.Fatalf("approve should advance to style_pending/2, got %s/%d", approved.Pipeline.Pipeline.Phase, approved.Pipeline.Pipeline.CurrentStep)
	}

	// Approving again is outside the review phase.
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/steps/1/approve", nil), nethttp.StatusConflict, nil)

	var validate struct {
		Validation struct {
			IsValid bool `json:"is_valid"`
		} `json:"validation"`
	}
	api.expect(api.do(nethttp.MethodGet, "/api/pipelines/"+id+"/validate", nil), nethttp.StatusOK, &validate)
	if !validate.Validation.IsValid {
		t.Fatalf("approved pipeline should validate")
	}

	var inbox struct {
		Notifications []struct {
			Type string `json:"type"`
		} `json:"notifications"`
		Unread int64 `json:"unread"`
	}
	api.expect(api.do(nethttp.MethodGet, "/api/notifications", nil), nethttp.StatusOK, &inbox)
	if inbox.Unread == 0 || len(inbox.Notifications) == 0 {
		t.Fatalf("expected notifications after the review flow, got %+v", inbox)
	}
	api.expect(api.do(nethttp.MethodPost, "/api/notifications/read-all", nil), nethttp.StatusOK, nil)
	api.expect(api.do(nethttp.MethodGet, "/api/notifications?unread=true", nil), nethttp.StatusOK, &inbox)
	if inbox.Unread != 0 || len(inbox.Notifications) != 0 {
		t.Fatalf("expected empty unread inbox, got %+v", inbox)
	}
}

func TestPipelineMismatchRecoveryOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	var created pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines", nil), nethttp.StatusCreated, &created)
	id := created.Pipeline.Pipeline.ID.String()

	var broken pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/phase", gin.H{"phase": "style_pending", "current_step": 1}), nethttp.StatusOK, &broken)
	if broken.Pipeline.Validation.IsValid || len(broken.Pipeline.Validation.Issues) == 0 {
		t.Fatalf("phase/step mismatch should be reported")
	}
	if broken.Pipeline.Validation.Issues[0].Code != "PHASE_STEP_MISMATCH" {
		t.Fatalf("unexpected issue code %q", broken.Pipeline.Validation.Issues[0].Code)
	}

	var fixed pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/recover", nil), nethttp.StatusOK, &fixed)
	if !fixed.Pipeline.Validation.IsValid || fixed.Pipeline.Pipeline.CurrentStep != 2 {
		t.Fatalf("recovery should restore step 2, got %+v", fixed.Pipeline)
	}
}

func TestPipelineRequestErrors(t *testing.T) {
	api := newTestAPI(t)
	api.expect(api.do(nethttp.MethodGet, "/api/pipelines/not-a-uuid", nil), nethttp.StatusBadRequest, nil)
	api.expect(api.do(nethttp.MethodGet, "/api/pipelines/"+uuid.NewString(), nil), nethttp.StatusNotFound, nil)

	var created pipelineEnvelope
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines", nil), nethttp.StatusCreated, &created)
	id := created.Pipeline.Pipeline.ID.String()
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/steps/step9/approve", nil), nethttp.StatusBadRequest, nil)
	api.expect(api.do(nethttp.MethodPost, "/api/pipelines/"+id+"/phase", gin.H{"phase": "render_pending"}), nethttp.StatusBadRequest, nil)

	// Artifact storage is not configured in tests; the pipeline has no outputs either.
	api.expect(api.do(nethttp.MethodGet, "/api/pipelines/"+id+"/artifacts", nil), nethttp.StatusOK, nil)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/pipelines", nil)
	rec := httptest.NewRecorder()
	api.r.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("missing identity should be 401, got %d", rec.Code)
	}
}

func TestAttemptLedgerOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	jobID := uuid.NewString() + ":step2"

	var appended struct {
		Attempt struct {
			ID            uuid.UUID `json:"id"`
			AttemptNumber int       `json:"attempt_number"`
		} `json:"attempt"`
	}
	api.expect(api.do(nethttp.MethodPost, "/api/jobs/"+jobID+"/attempts", gin.H{"output": "upload-a"}), nethttp.StatusCreated, &appended)
	if appended.Attempt.AttemptNumber != 1 {
		t.Fatalf("first attempt number = %d", appended.Attempt.AttemptNumber)
	}

	path := "/api/attempts/" + appended.Attempt.ID.String() + "/decision"
	api.expect(api.do(nethttp.MethodPost, path, gin.H{"decision": "pending"}), nethttp.StatusBadRequest, nil)
	api.expect(api.do(nethttp.MethodPost, path, gin.H{"decision": "rejected", "reason": "walls misaligned"}), nethttp.StatusOK, nil)
	api.expect(api.do(nethttp.MethodPost, "/api/attempts/"+uuid.NewString()+"/decision", gin.H{"decision": "approved"}), nethttp.StatusConflict, nil)

	var ledger struct {
		Attempts      []json.RawMessage `json:"attempts"`
		HasRejections bool              `json:"has_rejections"`
		AllRejected   bool              `json:"all_rejected"`
	}
	api.expect(api.do(nethttp.MethodGet, "/api/jobs/"+jobID+"/attempts", nil), nethttp.StatusOK, &ledger)
	if len(ledger.Attempts) != 1 || !ledger.HasRejections || !ledger.AllRejected {
		t.Fatalf("unexpected ledger: %+v", ledger)
	}
}

func TestJobEventsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	jobID := "render-" + uuid.NewString()

	for _, ev := range []gin.H{
		{"type": "started", "kind": "render"},
		{"type": "progress", "progress_int": 40},
		{"type": "completed", "progress_int": 100, "kind": "render"},
	} {
		api.expect(api.do(nethttp.MethodPost, "/api/jobs/"+jobID+"/events", ev), nethttp.StatusCreated, nil)
	}
	api.expect(api.do(nethttp.MethodPost, "/api/jobs/"+jobID+"/events", gin.H{"progress_int": 10}), nethttp.StatusBadRequest, nil)

	var hist struct {
		Events []struct {
			Seq  int64  `json:"seq"`
			Type string `json:"type"`
		} `json:"events"`
		Status struct {
			Progress int  `json:"progress"`
			Complete bool `json:"complete"`
		} `json:"status"`
	}
	api.expect(api.do(nethttp.MethodGet, "/api/jobs/"+jobID+"/events", nil), nethttp.StatusOK, &hist)
	if len(hist.Events) != 3 || !hist.Status.Complete || hist.Status.Progress != 100 {
		t.Fatalf("unexpected history: %+v", hist)
	}
	api.expect(api.do(nethttp.MethodGet, "/api/jobs/"+jobID+"/events?after_seq=2", nil), nethttp.StatusOK, &hist)
	if len(hist.Events) != 1 || hist.Events[0].Type != "completed" {
		t.Fatalf("after_seq=2 should return the last event, got %+v", hist.Events)
	}
	api.expect(api.do(nethttp.MethodGet, "/api/jobs/"+jobID+"/events?after_seq=-1", nil), nethttp.StatusBadRequest, nil)

	// The job is complete, so the stream replays history and closes.
	rec := api.do(nethttp.MethodGet, "/api/jobs/"+jobID+"/events/stream", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("stream status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("stream content type = %q", ct)
	}
	if n := strings.Count(rec.Body.String(), "event: message"); n != 3 {
		t.Fatalf("stream frames = %d, want 3: %s", n, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(nethttp.MethodGet, "/healthcheck", nil)
	rec := api.do(nethttp.MethodGet, "/metrics", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tf_api_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}

func TestSSESubscribeRequiresStream(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(nethttp.MethodPost, "/api/sse/subscribe", strings.NewReader(`{"channel":"job:abc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", api.owner.String())
	req.Header.Set("X-Session-Id", uuid.NewString())
	rec := httptest.NewRecorder()
	api.r.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusConflict {
		t.Fatalf("subscribe without stream = %d", rec.Code)
	}

	req = httptest.NewRequest(nethttp.MethodPost, "/api/sse/subscribe", strings.NewReader(`{"channel":"`+uuid.NewString()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", api.owner.String())
	req.Header.Set("X-Session-Id", uuid.NewString())
	rec = httptest.NewRecorder()
	api.r.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusForbidden {
		t.Fatalf("foreign user channel = %d", rec.Code)
	}
}
