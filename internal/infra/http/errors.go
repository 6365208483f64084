package http

import (
	"errors"
	"log"
	"net/http"

	"seald/internal/config"
	"seald/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code          string              `json:"error_code"`
	Message       string              `json:"message"`
	CorrelationID string              `json:"correlation_id"`
	FieldErrors   []domain.FieldError `json:"field_errors,omitempty"`
	Retryable     bool                `json:"retryable"`
	UserFault     bool                `json:"user_fault"`
	Diagnostics   *diagnostics        `json:"diagnostics,omitempty"`
}

type diagnostics struct {
	Error           string `json:"error"`
	Environment     string `json:"environment"`
	BuildID         string `json:"build_id"`
	ContractVersion string `json:"contract_version"`
}

var statusByCode = map[string]int{
	domain.CodeDraftIDMissing:   http.StatusBadRequest,
	domain.CodeInvalidJSON:      http.StatusBadRequest,
	domain.CodeValidationFailed: http.StatusUnprocessableEntity,
	domain.CodePayloadRequired:  http.StatusUnprocessableEntity,
	domain.CodeDigestRequired:   http.StatusUnprocessableEntity,
	domain.CodeNotFound:         http.StatusNotFound,
	domain.CodeForbidden:        http.StatusForbidden,
	domain.CodeUnauthorized:     http.StatusUnauthorized,
	domain.CodeAlreadySealed:    http.StatusConflict,
	domain.CodeConflict:         http.StatusConflict,
	domain.CodeReviewDecided:    http.StatusConflict,
	domain.CodeRateLimited:      http.StatusTooManyRequests,
	domain.CodeRequestTimeout:   http.StatusGatewayTimeout,
	domain.CodeServerError:      http.StatusInternalServerError,
}

var messageByCode = map[string]string{
	domain.CodeDraftIDMissing:   "draft id is required",
	domain.CodeValidationFailed: "declaration or payload failed validation",
	domain.CodePayloadRequired:  "payload content is required for this ingestion method",
	domain.CodeDigestRequired:   "a valid sha-256 payload digest is required",
	domain.CodeNotFound:         "not found",
	domain.CodeForbidden:        "forbidden",
	domain.CodeUnauthorized:     "unauthorized",
	domain.CodeAlreadySealed:    "draft is already sealed",
	domain.CodeConflict:         "the draft changed concurrently; re-fetch and retry",
	domain.CodeReviewDecided:    "a review decision was already recorded",
	domain.CodeRateLimited:      "rate limit exceeded",
	domain.CodeRequestTimeout:   "the request timed out; its outcome is unknown, re-fetch the draft before retrying",
	domain.CodeServerError:      "internal error; this is not caused by your input",
}

// writeError maps err to the stable error envelope. Internal detail only
// leaves the process through diagnostics, which need a capability.
func (s *Server) writeError(c *gin.Context, err error) {
	code := domain.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if code == domain.CodeServerError {
		log.Printf("seald: correlation_id=%s %s %s: %v", correlationID(c), c.Request.Method, c.FullPath(), err)
	}
	s.writeErrorCode(c, status, code, messageByCode[code], err)
}

func (s *Server) writeErrorCode(c *gin.Context, status int, code, message string, err error) {
	if err == nil {
		err = codeError(code)
	}
	resp := errorResponse{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID(c),
		FieldErrors:   domain.FieldErrorsOf(err),
		Retryable:     domain.Retryable(err),
		UserFault:     domain.UserFault(err),
	}
	if principal, ok := getPrincipal(c); ok && s.caps.Allows(principal.Roles, config.CapDiagnostics) {
		resp.Diagnostics = &diagnostics{
			Error:           err.Error(),
			Environment:     s.caps.Environment(),
			BuildID:         s.build.BuildID,
			ContractVersion: s.build.ContractVersion,
		}
	}
	c.AbortWithStatusJSON(status, resp)
}

// codeError recovers a sentinel for codes raised outside the use cases,
// so retryable and user_fault stay consistent.
func codeError(code string) error {
	switch code {
	case domain.CodeUnauthorized:
		return domain.ErrUnauthorized
	case domain.CodeForbidden:
		return domain.ErrForbidden
	case domain.CodeNotFound:
		return domain.ErrNotFound
	case domain.CodeRateLimited:
		return domain.ErrRateLimited
	case domain.CodeDraftIDMissing:
		return domain.ErrDraftIDMissing
	case domain.CodeInvalidJSON:
		return domain.ErrInvalidJSON
	}
	return errors.New("internal error")
}
