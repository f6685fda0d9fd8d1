package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/services"
)

func authRouter(am *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.GET("/me", am.RequireAuth(), func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": rd.UserID.String(), "session_id": rd.SessionID.String()})
	})
	return r
}

func TestRequireAuthBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService(logger.Nop(), "secret", time.Minute)
	r := authRouter(NewAuthMiddleware(logger.Nop(), auth, false))

	user := uuid.New()
	tok, err := auth.IssueAccessToken(user, uuid.Nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}
}

func TestRequireAuthTrustedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := authRouter(NewAuthMiddleware(logger.Nop(), nil, true))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-Id", uuid.NewString())
	req.Header.Set("X-Session-Id", uuid.NewString())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-Id", "not-a-uuid")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad header status = %d", rec.Code)
	}
}
