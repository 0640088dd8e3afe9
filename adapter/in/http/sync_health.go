package http

import (
	"context"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	local  *sqlx.DB
	remote *sqlx.DB
	redis  *redis.Client
	extra  map[string]HealthChecker
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{extra: make(map[string]HealthChecker)}
}

// NewHealthHandlerWithDeps checks whichever stores are configured. Any of
// them may be nil.
func NewHealthHandlerWithDeps(local, remote *sqlx.DB, redis *redis.Client) *HealthHandler {
	h := NewHealthHandler()
	h.local = local
	h.remote = remote
	h.redis = redis
	return h
}

// AddCheck registers a named readiness probe.
func (h *HealthHandler) AddCheck(name string, c HealthChecker) {
	h.extra[name] = c
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	pools := make(map[string]metrics.DBPoolStats)
	allHealthy := true

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	if h.local != nil {
		check("local", h.local.PingContext)
		pools["local"] = metrics.GetDBPoolStats(h.local.DB)
	} else {
		checks["local"] = "in memory"
	}

	if h.remote != nil {
		check("postgres", h.remote.PingContext)
		pools["postgres"] = metrics.GetDBPoolStats(h.remote.DB)
	} else {
		checks["postgres"] = "not configured"
	}

	if h.redis != nil {
		check("redis", func(ctx context.Context) error { return h.redis.Ping(ctx).Err() })
	} else {
		checks["redis"] = "not configured"
	}

	for name, probe := range h.extra {
		check(name, probe.Ping)
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"pools":     pools,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
