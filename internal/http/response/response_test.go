package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	"github.com/yungbote/tourforge-backend/internal/platform/apierr"
)

func TestRespondDomainErrorMapsCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{aggregates.Validation("op", "bad"), http.StatusBadRequest, "validation"},
		{aggregates.NotFound("op", "gone"), http.StatusNotFound, "not_found"},
		{aggregates.PolicyViolation("op", "blocked"), http.StatusConflict, "policy_violation"},
		{aggregates.Wrap(aggregates.CodeConflict, "op", errors.New("stale")), http.StatusConflict, "conflict"},
		{aggregates.Collaborator("op", errors.New("gcs down")), http.StatusBadGateway, "collaborator_failure"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
		{apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("no token")), http.StatusUnauthorized, "unauthorized"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		RespondDomainError(c, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var env ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Error.Code != tc.code || env.Error.Message == "" {
			t.Fatalf("%v: envelope = %+v", tc.err, env)
		}
	}
}
