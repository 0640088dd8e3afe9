package config

import (
	"testing"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SYNC_MODE", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeTest, cfg.Mode)
	assert.Equal(t, RemotePostgres, cfg.RemoteKind)
	assert.Equal(t, RealtimeNone, cfg.RealtimeKind)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.BreakerInitialCooldown)
	assert.Equal(t, 5*time.Minute, cfg.BreakerMaxCooldown)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.SchedulerEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYNC_MODE", "production")
	t.Setenv("REMOTE_KIND", "REST")
	t.Setenv("REST_URL", "https://api.example.com")
	t.Setenv("REALTIME_KIND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SYNC_INTERVAL", "90")
	t.Setenv("RETRY_INTERVAL", "2m")
	t.Setenv("DOWNLOAD_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RemoteREST, cfg.RemoteKind)
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.Equal(t, 2*time.Minute, cfg.RetryInterval)
	assert.Equal(t, 4, cfg.DownloadWorkers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad mode", map[string]string{"SYNC_MODE": "staging"}},
		{"bad remote", map[string]string{"SYNC_MODE": "test", "REMOTE_KIND": "mongo"}},
		{"postgres without url", map[string]string{"SYNC_MODE": "production", "REMOTE_KIND": "postgres", "DATABASE_URL": ""}},
		{"websocket without url", map[string]string{"SYNC_MODE": "production", "REMOTE_KIND": "none", "REALTIME_KIND": "websocket", "REALTIME_URL": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
