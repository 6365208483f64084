package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrDraftIDMissing  = errors.New("draft id missing")
	ErrValidation      = errors.New("validation failed")
	ErrAlreadySealed   = errors.New("draft already sealed")
	ErrPayloadRequired = errors.New("payload required")
	ErrDigestRequired  = errors.New("digest required")
	ErrConflict        = errors.New("concurrent modification")
	ErrRequestTimeout  = errors.New("request timeout")
	ErrRateLimited     = errors.New("rate limited")
	ErrReviewDecided   = errors.New("review already decided")
	ErrInvalidJSON     = errors.New("invalid json")
)

// FieldError reports one failed declaration or payload rule.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// ValidationError carries field-level failures. It matches ErrValidation
// and, when Cause is set, that sentinel as well.
type ValidationError struct {
	Cause  error
	Fields []FieldError
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	base := ErrValidation.Error()
	if e.Cause != nil {
		base = e.Cause.Error()
	}
	if len(e.Fields) == 0 {
		return base
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return base + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return e.Cause != nil && target == e.Cause
}

// FieldErrorsOf extracts field errors from err, if any.
func FieldErrorsOf(err error) []FieldError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

// Stable error codes returned to clients.
const (
	CodeDraftIDMissing   = "DRAFT_ID_MISSING"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeAlreadySealed    = "ALREADY_SEALED"
	CodePayloadRequired  = "PAYLOAD_REQUIRED"
	CodeDigestRequired   = "DIGEST_REQUIRED"
	CodeConflict         = "CONFLICT"
	CodeRequestTimeout   = "REQUEST_TIMEOUT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeReviewDecided    = "REVIEW_ALREADY_DECIDED"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeServerError      = "SERVER_ERROR"
)

// Code maps err to its stable client error code. Unknown errors are
// SERVER_ERROR.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDraftIDMissing):
		return CodeDraftIDMissing
	case errors.Is(err, ErrPayloadRequired):
		return CodePayloadRequired
	case errors.Is(err, ErrDigestRequired):
		return CodeDigestRequired
	case errors.Is(err, ErrValidation):
		return CodeValidationFailed
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrAlreadySealed):
		return CodeAlreadySealed
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrRequestTimeout):
		return CodeRequestTimeout
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrReviewDecided):
		return CodeReviewDecided
	case errors.Is(err, ErrInvalidJSON):
		return CodeInvalidJSON
	default:
		return CodeServerError
	}
}

// Retryable reports whether the failure is transient and not caused by
// caller input.
func Retryable(err error) bool {
	switch Code(err) {
	case CodeConflict, CodeRequestTimeout, CodeRateLimited, CodeServerError:
		return true
	}
	return false
}

// UserFault reports whether the caller can fix the failure by changing
// the request.
func UserFault(err error) bool {
	switch Code(err) {
	case CodeConflict, CodeRequestTimeout, CodeServerError:
		return false
	}
	return err != nil
}
