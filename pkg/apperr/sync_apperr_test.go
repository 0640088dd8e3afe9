package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"

	"github.com/stretchr/testify/assert"
)

func TestAsAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", fmt.Errorf("wrap: %w", BadRequest("bad kind")), http.StatusBadRequest, CodeBadRequest},
		{"rate limited", syncerr.RateLimited(), http.StatusTooManyRequests, CodeRateLimited},
		{"offline", fmt.Errorf("cycle: %w", syncerr.NoInternet()), http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"permission", syncerr.PermissionDenied("tasks"), http.StatusBadGateway, CodeSyncFailed},
		{"plain", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsAppError(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.status, GetHTTPStatus(tt.err))
		})
	}
}

func TestFromSync_Details(t *testing.T) {
	e := FromSync(syncerr.PermissionDenied("notes"))
	assert.Equal(t, "You don't have permission to modify notes.", e.Message)
	assert.Equal(t, "PERMISSION_DENIED", e.Details["kind"])
	assert.Equal(t, false, e.Details["retryable"])
	assert.ErrorIs(t, e, syncerr.PermissionDenied(""))
}
