package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
)

// Remote facade kinds.
const (
	RemotePostgres = "postgres"
	RemoteREST     = "rest"
	RemoteNone     = "none"
)

// Realtime subscriber kinds.
const (
	RealtimePostgres  = "postgres"
	RealtimeRedis     = "redis"
	RealtimeWebSocket = "websocket"
	RealtimeNone      = "none"
)

type Config struct {
	Mode domain.Mode

	// Logging
	LogLevel  string
	LogFormat string

	// Control API
	Port string

	// Local store; empty keeps records in memory
	LocalDBPath string

	// Remote
	RemoteKind  string
	DatabaseURL string
	RESTURL     string
	RESTAPIKey  string

	// Realtime
	RealtimeKind        string
	RedisURL            string
	RealtimeURL         string
	RealtimeMaxAttempts int

	// Engine
	BreakerThreshold       int
	BreakerInitialCooldown time.Duration
	BreakerMaxCooldown     time.Duration
	MaxRetries             int
	DownloadWorkers        int

	// Scheduler
	SchedulerEnabled bool
	SyncInterval     time.Duration
	RetryInterval    time.Duration
}

func Load() (*Config, error) {
	mode, err := domain.ParseMode(getEnv("SYNC_MODE", string(domain.ModeProduction)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode: mode,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Port: getEnv("PORT", "8080"),

		LocalDBPath: getEnv("LOCAL_DB_PATH", "dispatch.db"),

		RemoteKind:  strings.ToLower(getEnv("REMOTE_KIND", RemotePostgres)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RESTURL:     getEnv("REST_URL", ""),
		RESTAPIKey:  getEnv("REST_API_KEY", ""),

		RealtimeKind:        strings.ToLower(getEnv("REALTIME_KIND", RealtimeNone)),
		RedisURL:            getEnv("REDIS_URL", ""),
		RealtimeURL:         getEnv("REALTIME_URL", ""),
		RealtimeMaxAttempts: getEnvInt("REALTIME_MAX_ATTEMPTS", 5),

		BreakerThreshold:       getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerInitialCooldown: getEnvDuration("BREAKER_INITIAL_COOLDOWN", 30*time.Second),
		BreakerMaxCooldown:     getEnvDuration("BREAKER_MAX_COOLDOWN", 300*time.Second),
		MaxRetries:             getEnvInt("MAX_RETRIES", 5),
		DownloadWorkers:        getEnvInt("DOWNLOAD_WORKERS", 4),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		SyncInterval:     getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		RetryInterval:    getEnvDuration("RETRY_INTERVAL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected transport has its endpoint. Test
// and preview modes never dial out, so they skip the check.
func (c *Config) Validate() error {
	switch c.RemoteKind {
	case RemotePostgres, RemoteREST, RemoteNone:
	default:
		return fmt.Errorf("unknown REMOTE_KIND %q", c.RemoteKind)
	}
	switch c.RealtimeKind {
	case RealtimePostgres, RealtimeRedis, RealtimeWebSocket, RealtimeNone:
	default:
		return fmt.Errorf("unknown REALTIME_KIND %q", c.RealtimeKind)
	}
	if !c.Mode.IsLive() {
		return nil
	}

	if c.RemoteKind == RemotePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("REMOTE_KIND=postgres requires DATABASE_URL")
	}
	if c.RemoteKind == RemoteREST && c.RESTURL == "" {
		return fmt.Errorf("REMOTE_KIND=rest requires REST_URL")
	}
	switch c.RealtimeKind {
	case RealtimePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("REALTIME_KIND=postgres requires DATABASE_URL")
		}
	case RealtimeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REALTIME_KIND=redis requires REDIS_URL")
		}
	case RealtimeWebSocket:
		if c.RealtimeURL == "" {
			return fmt.Errorf("REALTIME_KIND=websocket requires REALTIME_URL")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// IsProduction returns true if the engine talks to real services.
func (c *Config) IsProduction() bool {
	return c.Mode == domain.ModeProduction
}
