package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// =============================================================================
// SyncScheduler - periodic sync and auto retry
// =============================================================================

// Engine is the part of the sync manager the scheduler drives.
type Engine interface {
	RequestSync()
	RetryFailed(ctx context.Context, fatalToo bool) (int, error)
}

type SchedulerConfig struct {
	SyncInterval  time.Duration // 0 disables the periodic sync
	RetryInterval time.Duration // 0 disables the automatic retry scan
	RetryTimeout  time.Duration
}

type SyncScheduler struct {
	engine Engine
	cfg    SchedulerConfig
	cron   *cron.Cron
	log    zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewSyncScheduler(engine Engine, cfg SchedulerConfig, log zerolog.Logger) *SyncScheduler {
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 2 * time.Minute
	}
	log = log.With().Str("component", "sync_scheduler").Logger()
	cl := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		engine: engine,
		cfg:    cfg,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the enabled jobs and starts the cron runner.
func (s *SyncScheduler) Start() error {
	if s.cfg.SyncInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.SyncInterval), s.syncJob); err != nil {
			return fmt.Errorf("schedule sync: %w", err)
		}
	}
	if s.cfg.RetryInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.RetryInterval), s.retryJob); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
	}

	s.log.Info().
		Dur("sync_interval", s.cfg.SyncInterval).
		Dur("retry_interval", s.cfg.RetryInterval).
		Int("jobs", len(s.cron.Entries())).
		Msg("starting")
	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		done := s.cron.Stop()
		select {
		case <-done.Done():
			s.log.Info().Msg("stopped")
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

func (s *SyncScheduler) syncJob() {
	s.log.Debug().Msg("scheduled sync")
	s.engine.RequestSync()
}

// retryJob re-arms retryable failures only; fatal ones wait for the user.
func (s *SyncScheduler) retryJob() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RetryTimeout)
	defer cancel()

	n, err := s.engine.RetryFailed(ctx, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("automatic retry failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("retried", n).Msg("re-armed failed records")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
