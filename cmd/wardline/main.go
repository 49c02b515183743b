package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/wardline/internal/api/ws"
	"github.com/gosuda/wardline/internal/app"
	"github.com/gosuda/wardline/internal/config"
	"github.com/gosuda/wardline/internal/server"
	"github.com/gosuda/wardline/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app.SetupLogging(cfg.Log)

	if err := postgres.Migrate(cfg.Database.DSN()); err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := app.OpenQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer jobs.Close()

	runner := a.Runner()
	svc := a.Service(jobs)

	srv := server.New(cfg, server.Deps{
		Reports:  svc,
		Hub:      ws.NewHub(a.PubSub),
		Gatherer: a.Registry,
		Checks: map[string]server.Pinger{
			"postgres": a.Store,
			"redis":    a.PubSub,
			"archives": a.Archives,
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("backend", cfg.Queue.Backend).Int("workers", cfg.Queue.Workers).Msg("starting report consumer")
		if err := jobs.Run(gctx, runner); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.Retention.Enabled {
		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		sched.Start(gctx)
		defer sched.Stop()
		log.Info().Str("schedule", cfg.Retention.Schedule).Msg("retention sweep scheduled")
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		return srv.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}
