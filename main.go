package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/config"
	"github.com/ArchieOS-org/Dispatch-sub000/internal/bootstrap"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: all, engine, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.Init(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "dispatch-sync",
	})
	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	switch *mode {
	case "all":
		run(cfg, log, true)
	case "engine":
		run(cfg, log, false)
	case "once":
		runOnce(cfg, log)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

// run starts the engine and, when withAPI is set, the control API, then
// blocks until SIGINT or SIGTERM.
func run(cfg *config.Config, log zerolog.Logger, withAPI bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := bootstrap.NewEngine(ctx, cfg, log, withAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}

	// A realtime failure at startup is not fatal; the channel keeps retrying.
	if err := engine.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("engine started without realtime")
	}

	listenErr := make(chan error, 1)
	if engine.App != nil {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Msg("starting API server")
		go func() { listenErr <- engine.App.Listen(addr) }()
	}

	select {
	case <-ctx.Done():
		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")
	case err := <-listenErr:
		log.Error().Err(err).Msg("API server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		os.Exit(1)
	}
}

// runOnce performs a single blocking cycle and exits non-zero on failure.
func runOnce(cfg *config.Config, log zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.SchedulerEnabled = false
	engine, err := bootstrap.NewEngine(ctx, cfg, log, false)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}

	code := 0
	if err := engine.Deps.Manager.SyncNow(ctx); err != nil {
		log.Error().Err(err).Msg("sync failed")
		code = 1
	} else if st, err := engine.Deps.Manager.Status(ctx); err == nil && st.LastCycle != nil {
		log.Info().Interface("cycle", st.LastCycle).Msg("sync complete")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = engine.Shutdown(shutdownCtx)
	os.Exit(code)
}
