package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/config"
	"github.com/clinicflow/scheduling-agent/internal/db"
	"github.com/clinicflow/scheduling-agent/internal/logging"
	"github.com/clinicflow/scheduling-agent/internal/notify"
	"github.com/clinicflow/scheduling-agent/internal/patient"
	"github.com/clinicflow/scheduling-agent/internal/reminder"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

// The worker runs the two periodic sweeps: expired holds back to the pool,
// and due reminder tasks out the door. Both are idempotent so overlapping a
// second worker instance is safe.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New("worker", cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Dur("hold_sweep_interval", cfg.HoldSweepInterval).
		Dur("reminder_interval", cfg.ReminderInterval).
		Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	slotRepo := slot.NewPgRepository(pgPool)
	patients := patient.NewPgStore(pgPool)
	apptRepo := booking.NewPgRepository(pgPool)
	taskRepo := reminder.NewPgRepository(pgPool)

	composer := notify.Composer{ClinicName: cfg.ClinicName}
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SendGridAPIKey != "" {
		notifier = notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.SenderEmail, cfg.ClinicName, logger)
	}

	scheduler := reminder.NewScheduler(taskRepo, apptRepo, patients, notifier, composer, logger)

	// Run both sweeps once at startup so a restart never waits a full tick.
	expireHolds(rootCtx, slotRepo, logger)
	dispatchReminders(rootCtx, scheduler, logger)

	holdTicker := time.NewTicker(cfg.HoldSweepInterval)
	defer holdTicker.Stop()
	reminderTicker := time.NewTicker(cfg.ReminderInterval)
	defer reminderTicker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping worker")
			return
		case <-holdTicker.C:
			expireHolds(rootCtx, slotRepo, logger)
		case <-reminderTicker.C:
			dispatchReminders(rootCtx, scheduler, logger)
		}
	}
}

func expireHolds(ctx context.Context, repo slot.Repository, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := repo.ReleaseExpired(runCtx, start)
	if err != nil {
		logger.Error().Err(err).Msg("hold expiry run error")
		return
	}
	if n > 0 {
		logger.Info().Int("released", n).Dur("took", time.Since(start)).Msg("hold expiry run complete")
	}
}

func dispatchReminders(ctx context.Context, scheduler *reminder.Scheduler, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	n, err := scheduler.DispatchDue(runCtx, start)
	if err != nil {
		logger.Error().Err(err).Msg("reminder dispatch run error")
		return
	}
	if n > 0 {
		logger.Info().Int("sent", n).Dur("took", time.Since(start)).Msg("reminder dispatch run complete")
	}
}
