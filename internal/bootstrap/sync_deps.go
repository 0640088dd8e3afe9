package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArchieOS-org/Dispatch-sub000/adapter/out/local"
	"github.com/ArchieOS-org/Dispatch-sub000/adapter/out/realtime"
	"github.com/ArchieOS-org/Dispatch-sub000/adapter/out/remote"
	"github.com/ArchieOS-org/Dispatch-sub000/config"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	syncsvc "github.com/ArchieOS-org/Dispatch-sub000/core/service/sync"
	"github.com/ArchieOS-org/Dispatch-sub000/infra/database"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/metrics"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/resilience"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Dependencies holds every long-lived collaborator of the process.
type Dependencies struct {
	Config *config.Config
	Log    zerolog.Logger

	LocalDB  *sqlx.DB // nil when records live in memory
	RemoteDB *sqlx.DB // nil unless a Postgres transport is selected
	Redis    *redis.Client

	Store      out.LocalStore
	Metadata   out.SyncMetadataRepository
	Remote     out.RemoteFacade
	Subscriber out.Subscriber
	Metrics    *metrics.SyncMetrics
	Manager    *syncsvc.Manager
}

// NewDependencies opens stores and transports for cfg. Non-production modes
// never dial out: they use the noop facade, no realtime channel and an
// in-memory watermark.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	d := &Dependencies{Config: cfg, Log: log, Metrics: metrics.NewSyncMetrics()}
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
			}
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Local store
	if cfg.LocalDBPath == "" {
		d.Store = local.NewMemoryStore()
	} else {
		db, err := database.NewSQLite(ctx, cfg.LocalDBPath)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		store, err := local.NewSQLiteStore(ctx, db, log)
		if err != nil {
			return fail(err)
		}
		d.LocalDB = db
		d.Store = store
		if cfg.Mode.IsLive() {
			d.Metadata = local.NewSQLiteMetadata(db)
		}
	}

	if !cfg.Mode.IsLive() {
		d.Remote = remote.NewNoopFacade()
		log.Info().Str("mode", string(cfg.Mode)).Msg("network disabled")
	} else {
		if err := d.openRemote(ctx, &closers); err != nil {
			return fail(err)
		}
		if err := d.openRealtime(ctx, &closers); err != nil {
			return fail(err)
		}
	}

	breaker := resilience.DefaultCircuitBreakerConfig("sync")
	breaker.FailureThreshold = cfg.BreakerThreshold
	breaker.InitialCooldown = cfg.BreakerInitialCooldown
	breaker.MaxCooldown = cfg.BreakerMaxCooldown

	d.Manager = syncsvc.New(syncsvc.Deps{
		Store:      d.Store,
		Remote:     d.Remote,
		Metadata:   d.Metadata,
		Subscriber: d.Subscriber,
		Metrics:    d.Metrics,
		Log:        log,
	}, syncsvc.Options{
		Mode:                cfg.Mode,
		Breaker:             breaker,
		RealtimeMaxAttempts: cfg.RealtimeMaxAttempts,
		MaxRetries:          cfg.MaxRetries,
		DownloadWorkers:     cfg.DownloadWorkers,
	})
	return d, cleanup, nil
}

func (d *Dependencies) postgres(ctx context.Context, closers *[]func() error) (*sqlx.DB, error) {
	if d.RemoteDB != nil {
		return d.RemoteDB, nil
	}
	db, err := database.NewPostgres(ctx, d.Config.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, db.Close)
	d.RemoteDB = db
	return db, nil
}

func (d *Dependencies) openRemote(ctx context.Context, closers *[]func() error) error {
	switch d.Config.RemoteKind {
	case config.RemotePostgres:
		db, err := d.postgres(ctx, closers)
		if err != nil {
			return err
		}
		d.Remote = remote.NewPostgresFacade(db, d.Log)
	case config.RemoteREST:
		d.Remote = remote.NewRESTFacade(remote.RESTConfig{
			BaseURL: d.Config.RESTURL,
			APIKey:  d.Config.RESTAPIKey,
		}, d.Log)
	case config.RemoteNone:
		d.Remote = remote.NewNoopFacade()
	default:
		return fmt.Errorf("unknown remote kind %q", d.Config.RemoteKind)
	}
	return nil
}

func (d *Dependencies) openRealtime(ctx context.Context, closers *[]func() error) error {
	switch d.Config.RealtimeKind {
	case config.RealtimePostgres:
		d.Subscriber = realtime.NewPgNotifySubscriber(d.Config.DatabaseURL, d.Log)
	case config.RealtimeRedis:
		client, err := database.NewRedis(ctx, d.Config.RedisURL, nil)
		if err != nil {
			return err
		}
		*closers = append(*closers, client.Close)
		d.Redis = client
		d.Subscriber = realtime.NewRedisStreamSubscriber(client, d.Log)
	case config.RealtimeWebSocket:
		d.Subscriber = realtime.NewWebSocketSubscriber(d.Config.RealtimeURL, d.Config.RESTAPIKey, d.Log)
	case config.RealtimeNone:
	default:
		return errors.New("unknown realtime kind " + d.Config.RealtimeKind)
	}
	return nil
}
