package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	"github.com/yungbote/tourforge-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondDomainError maps error codes onto HTTP statuses. An *apierr.Error
// keeps its own status and code.
func RespondDomainError(c *gin.Context, err error) {
	if ae, ok := apierr.As(err); ok {
		RespondError(c, ae.Status, ae.Code, ae)
		return
	}
	code := aggregates.CodeOf(err)
	RespondError(c, StatusFor(code), codeOrInternal(code), err)
}

// Abort writes the envelope for ae and stops the handler chain.
func Abort(c *gin.Context, ae *apierr.Error) {
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{
		Error: APIError{Message: ae.Error(), Code: ae.Code},
	})
}

func StatusFor(code aggregates.ErrorCode) int {
	switch code {
	case aggregates.CodeValidation:
		return http.StatusBadRequest
	case aggregates.CodeNotFound:
		return http.StatusNotFound
	case aggregates.CodeConflict, aggregates.CodePolicyViolation, aggregates.CodePreconditionFailed:
		return http.StatusConflict
	case aggregates.CodeCollaborator:
		return http.StatusBadGateway
	case aggregates.CodeRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeOrInternal(code aggregates.ErrorCode) string {
	if code == "" {
		return string(aggregates.CodeInternal)
	}
	return string(code)
}
