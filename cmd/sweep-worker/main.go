package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sajilocms/scheduling-engine/internal/billing"
	"github.com/sajilocms/scheduling-engine/internal/config"
	"github.com/sajilocms/scheduling-engine/internal/db"
	"github.com/sajilocms/scheduling-engine/internal/redlock"
	"github.com/sajilocms/scheduling-engine/internal/schedule"
)

// The sweep worker is a freshness optimization only: the engine sweeps
// lazily on every read, so correctness never depends on this process.
func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "sweep-worker").Logger()
	log.Info().Str("env", cfg.Env).Str("schedule", cfg.SweepSchedule).Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	repo := schedule.NewPgRepository(pgPool)
	// The sweep never books, so an in-process locker is enough here.
	svc := schedule.NewService(repo, redlock.NewLocalDoctorLocker(), billing.Noop{}, cfg, log, nil)

	runOnce(rootCtx, svc, log)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		runOnce(rootCtx, svc, log)
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("invalid sweep schedule")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping sweep worker")

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func runOnce(ctx context.Context, svc *schedule.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	count, err := svc.SweepMissed(runCtx, nil)
	if err != nil {
		log.Error().Err(err).Msg("sweep run error")
		return
	}
	log.Info().Int64("marked_missed", count).Dur("took", time.Since(start)).Msg("sweep run complete")
}
