package bootstrap

import (
	"context"
	"errors"

	"github.com/ArchieOS-org/Dispatch-sub000/adapter/in/worker"
	"github.com/ArchieOS-org/Dispatch-sub000/config"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Engine is the running process: the sync manager, its cron triggers and
// optionally the control API.
type Engine struct {
	Deps      *Dependencies
	App       *fiber.App
	scheduler *worker.SyncScheduler
	cleanup   func()
	log       zerolog.Logger
}

// NewEngine wires dependencies. withAPI adds the fiber control API.
func NewEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger, withAPI bool) (*Engine, error) {
	deps, cleanup, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Deps:    deps,
		cleanup: cleanup,
		log:     log.With().Str("component", "engine").Logger(),
	}
	if cfg.SchedulerEnabled {
		e.scheduler = worker.NewSyncScheduler(deps.Manager, worker.SchedulerConfig{
			SyncInterval:  cfg.SyncInterval,
			RetryInterval: cfg.RetryInterval,
		}, log)
	}
	if withAPI {
		e.App = NewAPI(deps)
	}
	return e, nil
}

// Start opens the realtime channel, queues the first cycle and starts the
// scheduler. It does not start the HTTP listener.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Deps.Manager.Start(ctx); err != nil {
		return err
	}
	if e.scheduler != nil {
		if err := e.scheduler.Start(); err != nil {
			return err
		}
	}
	e.log.Info().
		Str("mode", string(e.Deps.Config.Mode)).
		Str("remote", e.Deps.Config.RemoteKind).
		Str("realtime", e.Deps.Config.RealtimeKind).
		Msg("engine started")
	return nil
}

// Shutdown stops triggers first, then the API, then the manager, and
// finally closes stores.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	if e.scheduler != nil {
		errs = append(errs, e.scheduler.Stop(ctx))
	}
	if e.App != nil {
		errs = append(errs, e.App.ShutdownWithContext(ctx))
	}
	errs = append(errs, e.Deps.Manager.Shutdown(ctx))
	e.cleanup()

	err := errors.Join(errs...)
	if err != nil {
		e.log.Warn().Err(err).Msg("shutdown finished with errors")
	} else {
		e.log.Info().Msg("engine stopped")
	}
	return err
}
