// Package syncerr defines the error taxonomy used by every sync path.
package syncerr

import (
	"fmt"
	"net/http"
)

// Kind classifies a sync failure.
type Kind string

const (
	// Transient network conditions
	KindNoInternet     Kind = "NO_INTERNET"
	KindConnectionLost Kind = "CONNECTION_LOST"
	KindTimeout        Kind = "TIMEOUT"
	KindNetworkError   Kind = "NETWORK_ERROR"
	KindRateLimited    Kind = "RATE_LIMITED"

	// Data and authorisation problems that will not fix themselves
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindEncodingFailed   Kind = "ENCODING_FAILED"
	KindDecodingFailed   Kind = "DECODING_FAILED"
	KindInvalidData      Kind = "INVALID_DATA"

	KindServerError Kind = "SERVER_ERROR"
	KindUnknown     Kind = "UNKNOWN"
)

// SyncError is the only error type surfaced to records and callers.
type SyncError struct {
	Kind       Kind   `json:"kind"`
	Detail     string `json:"detail,omitempty"` // network message or invalid-data reason
	Table      string `json:"table,omitempty"`
	Entity     string `json:"entity,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *SyncError) Error() string {
	desc := e.description()
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, desc, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, desc)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can use errors.Is(err, syncerr.RateLimited()).
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsRetryable reports whether the same request may succeed later.
func (e *SyncError) IsRetryable() bool {
	switch e.Kind {
	case KindNoInternet, KindConnectionLost, KindTimeout, KindNetworkError, KindRateLimited:
		return true
	case KindPermissionDenied, KindEncodingFailed, KindDecodingFailed, KindInvalidData:
		return false
	case KindServerError:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	default:
		return true
	}
}

// UserFacingMessage is stored on failed records and shown in the UI.
// The strings are stable; tests pin them.
func (e *SyncError) UserFacingMessage() string {
	switch e.Kind {
	case KindNoInternet:
		return "No internet connection. Changes will sync when you're back online."
	case KindConnectionLost:
		return "Connection lost. Changes will sync when the connection is restored."
	case KindTimeout:
		return "The server took too long to respond. Will retry shortly."
	case KindNetworkError:
		return "Network error: " + e.Detail
	case KindRateLimited:
		return "Too many requests. Syncing will resume shortly."
	case KindPermissionDenied:
		return fmt.Sprintf("You don't have permission to modify %s.", e.Table)
	case KindEncodingFailed:
		return fmt.Sprintf("Couldn't prepare %s for upload.", e.Entity)
	case KindDecodingFailed:
		return fmt.Sprintf("Couldn't read %s from the server.", e.Entity)
	case KindInvalidData:
		return "Invalid data: " + e.Detail
	case KindServerError:
		return fmt.Sprintf("Server error (%d). Please try again later.", e.StatusCode)
	default:
		return "Something went wrong while syncing. Will retry shortly."
	}
}

func (e *SyncError) description() string {
	switch e.Kind {
	case KindNoInternet:
		return "no internet connection"
	case KindConnectionLost:
		return "connection lost"
	case KindTimeout:
		return "request timed out"
	case KindNetworkError:
		return "network error: " + e.Detail
	case KindRateLimited:
		return "rate limited"
	case KindPermissionDenied:
		return "permission denied for table " + e.Table
	case KindEncodingFailed:
		return "failed to encode " + e.Entity
	case KindDecodingFailed:
		return "failed to decode " + e.Entity
	case KindInvalidData:
		return "invalid data: " + e.Detail
	case KindServerError:
		return fmt.Sprintf("server error %d", e.StatusCode)
	default:
		return "unknown error"
	}
}

// Constructor functions
func NoInternet() *SyncError     { return &SyncError{Kind: KindNoInternet} }
func ConnectionLost() *SyncError { return &SyncError{Kind: KindConnectionLost} }
func Timeout() *SyncError        { return &SyncError{Kind: KindTimeout} }
func RateLimited() *SyncError    { return &SyncError{Kind: KindRateLimited} }

func NetworkError(message string) *SyncError {
	return &SyncError{Kind: KindNetworkError, Detail: message}
}

func PermissionDenied(table string) *SyncError {
	return &SyncError{Kind: KindPermissionDenied, Table: table}
}

func EncodingFailed(entity string, err error) *SyncError {
	return &SyncError{Kind: KindEncodingFailed, Entity: entity, Err: err}
}

func DecodingFailed(entity string, err error) *SyncError {
	return &SyncError{Kind: KindDecodingFailed, Entity: entity, Err: err}
}

func InvalidData(reason string) *SyncError {
	return &SyncError{Kind: KindInvalidData, Detail: reason}
}

func ServerError(statusCode int) *SyncError {
	return &SyncError{Kind: KindServerError, StatusCode: statusCode}
}

func Unknown(err error) *SyncError {
	return &SyncError{Kind: KindUnknown, Err: err}
}

// HTTPStatusError is returned by HTTP transports for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Table      string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d (%s): %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("http %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}
