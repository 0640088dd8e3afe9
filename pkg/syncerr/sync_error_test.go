package syncerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *SyncError
		want bool
	}{
		{"no internet", NoInternet(), true},
		{"connection lost", ConnectionLost(), true},
		{"timeout", Timeout(), true},
		{"network error", NetworkError("reset"), true},
		{"rate limited", RateLimited(), true},
		{"permission denied", PermissionDenied("tasks"), false},
		{"encoding failed", EncodingFailed("task", nil), false},
		{"decoding failed", DecodingFailed("task", nil), false},
		{"invalid data", InvalidData("bad"), false},
		{"server 500", ServerError(500), true},
		{"server 503", ServerError(503), true},
		{"server 599", ServerError(599), true},
		{"server 499", ServerError(499), false},
		{"server 404", ServerError(404), false},
		{"server 600", ServerError(600), false},
		{"unknown", Unknown(errors.New("boom")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserFacingMessage_Stable(t *testing.T) {
	tests := []struct {
		err  *SyncError
		want string
	}{
		{NoInternet(), "No internet connection. Changes will sync when you're back online."},
		{ConnectionLost(), "Connection lost. Changes will sync when the connection is restored."},
		{Timeout(), "The server took too long to respond. Will retry shortly."},
		{NetworkError("connection refused"), "Network error: connection refused"},
		{RateLimited(), "Too many requests. Syncing will resume shortly."},
		{PermissionDenied("listings"), "You don't have permission to modify listings."},
		{EncodingFailed("note", nil), "Couldn't prepare note for upload."},
		{DecodingFailed("task", nil), "Couldn't read task from the server."},
		{InvalidData("missing title"), "Invalid data: missing title"},
		{ServerError(502), "Server error (502). Please try again later."},
		{Unknown(nil), "Something went wrong while syncing. Will retry shortly."},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.UserFacingMessage())
			assert.Equal(t, tt.want, tt.err.UserFacingMessage(), "message must be deterministic")
		})
	}
}

func TestError_IncludesKindAndCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := wrap(ConnectionLost(), cause)

	assert.Equal(t, "[CONNECTION_LOST] connection lost: socket closed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ConnectionLost())
	assert.NotErrorIs(t, err, Timeout())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFrom(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  Kind
		wantTable string
		wantCode  int
	}{
		{"passthrough", fmt.Errorf("wrapped: %w", RateLimited()), KindRateLimited, "", 0},
		{"deadline", context.DeadlineExceeded, KindTimeout, "", 0},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, KindTimeout, "", 0},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.example.com"}, KindNoInternet, "", 0},
		{"unreachable", &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, KindNoInternet, "", 0},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, KindConnectionLost, "", 0},
		{"eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), KindConnectionLost, "", 0},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindNoInternet, "", 0},
		{"write op", &net.OpError{Op: "write", Err: errors.New("socket gone")}, KindNetworkError, "", 0},
		{"http 429", &HTTPStatusError{StatusCode: 429}, KindRateLimited, "", 0},
		{"http 403", &HTTPStatusError{StatusCode: 403, Table: "notes"}, KindPermissionDenied, "notes", 0},
		{"http 502", &HTTPStatusError{StatusCode: 502}, KindServerError, "", 502},
		{"http 404", &HTTPStatusError{StatusCode: 404}, KindServerError, "", 404},
		{"http 401", &HTTPStatusError{StatusCode: 401, Table: "tasks"}, KindPermissionDenied, "tasks", 0},
		{"http 408", &HTTPStatusError{StatusCode: 408}, KindTimeout, "", 0},
		{"http 504", &HTTPStatusError{StatusCode: 504}, KindTimeout, "", 0},
		{"http 400", &HTTPStatusError{StatusCode: 400}, KindInvalidData, "", 0},
		{"http 409", &HTTPStatusError{StatusCode: 409}, KindInvalidData, "", 0},
		{"http 422", &HTTPStatusError{StatusCode: 422}, KindInvalidData, "", 0},
		{"http 503", &HTTPStatusError{StatusCode: 503}, KindServerError, "", 503},
		{"pg 42501", &pgconn.PgError{Code: "42501", Message: "permission denied for table tasks"}, KindPermissionDenied, "tasks", 0},
		{"pg 23503", &pgconn.PgError{Code: "23503", Message: "violates foreign key"}, KindInvalidData, "", 0},
		{"pg 57P01", &pgconn.PgError{Code: "57P01", Message: "terminating connection"}, KindServerError, "", 503},
		{"pg 57014", &pgconn.PgError{Code: "57014", Message: "canceling statement"}, KindTimeout, "", 0},
		{"pg 08006", &pgconn.PgError{Code: "08006", Message: "connection failure"}, KindConnectionLost, "", 0},
		{"pq 42501", &pq.Error{Code: "42501", Message: "permission denied", Table: "listings"}, KindPermissionDenied, "listings", 0},
		{"breaker open", gobreaker.ErrOpenState, KindNetworkError, "", 0},
		{"text rate limit", errors.New("API rate limit exceeded"), KindRateLimited, "", 0},
		{"text permission", errors.New(`permission denied for table "activities"`), KindPermissionDenied, "activities", 0},
		{"tls", errors.New("tls: handshake failure"), KindNetworkError, "", 0},
		{"other", errors.New("kaboom"), KindUnknown, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantTable, got.Table)
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, got.StatusCode)
			}
		})
	}

	assert.Nil(t, From(nil))
}
