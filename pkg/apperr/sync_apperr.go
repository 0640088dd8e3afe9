// Package apperr carries errors across the control API boundary with an
// HTTP status and a stable code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"
)

// Error codes
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeSyncFailed         = "SYNC_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeTimeout            = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

func Unavailable(message string) *AppError {
	return New(CodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

func Timeout(operation string) *AppError {
	return New(CodeTimeout, operation+" timed out", http.StatusGatewayTimeout)
}

func Internal(message string) *AppError {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

// FromSync converts a classified sync failure. The message is the one shown
// to users; kind and retryability travel as details.
func FromSync(se *syncerr.SyncError) *AppError {
	status := http.StatusBadGateway
	code := CodeSyncFailed
	switch se.Kind {
	case syncerr.KindRateLimited:
		status, code = http.StatusTooManyRequests, CodeRateLimited
	case syncerr.KindTimeout:
		status, code = http.StatusGatewayTimeout, CodeTimeout
	case syncerr.KindNoInternet, syncerr.KindConnectionLost, syncerr.KindNetworkError:
		status, code = http.StatusServiceUnavailable, CodeServiceUnavailable
	}
	return New(code, se.UserFacingMessage(), status).
		WithDetail("kind", string(se.Kind)).
		WithDetail("retryable", se.IsRetryable()).
		WithError(se)
}

// AsAppError unwraps an AppError or classifies err, falling back to a
// generic internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var se *syncerr.SyncError
	if errors.As(err, &se) {
		return FromSync(se)
	}
	return Internal("").WithError(err)
}

func GetHTTPStatus(err error) int {
	return AsAppError(err).Status
}
