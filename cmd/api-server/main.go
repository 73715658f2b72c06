package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicflow/scheduling-agent/internal/api"
	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/config"
	"github.com/clinicflow/scheduling-agent/internal/conversation"
	"github.com/clinicflow/scheduling-agent/internal/db"
	"github.com/clinicflow/scheduling-agent/internal/logging"
	"github.com/clinicflow/scheduling-agent/internal/notify"
	"github.com/clinicflow/scheduling-agent/internal/patient"
	"github.com/clinicflow/scheduling-agent/internal/redisclient"
	"github.com/clinicflow/scheduling-agent/internal/reminder"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New("api-server", cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("starting up")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	patients := patient.NewPgStore(pgPool)
	slotRepo := slot.NewPgRepository(pgPool)
	apptRepo := booking.NewPgRepository(pgPool)
	taskRepo := reminder.NewPgRepository(pgPool)

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	slots := slot.NewManager(slotRepo, locker, cfg.HoldTTL, logger)

	classifier := patient.Classifier{
		NewPatientDuration:       cfg.NewPatientDuration,
		ReturningPatientDuration: cfg.ReturningPatientDuration,
	}

	composer := notify.Composer{ClinicName: cfg.ClinicName}
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SendGridAPIKey != "" {
		notifier = notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.SenderEmail, cfg.ClinicName, logger)
	}

	scheduler := reminder.NewScheduler(taskRepo, apptRepo, patients, notifier, composer, logger)
	coordinator := booking.NewCoordinator(patients, classifier, slots, apptRepo, scheduler, notifier, composer, logger)

	sessions := conversation.NewStore()
	machine := conversation.NewMachine(sessions, slots, coordinator, patients, classifier, cfg.SessionIdleTimeout, cfg.ClinicName, logger)

	// Abandon idle conversations in-process; their holds go back to the pool.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if _, err := machine.AbandonIdle(rootCtx, time.Now()); err != nil {
					logger.Error().Err(err).Msg("idle session sweep error")
				}
			}
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Machine:      machine,
		Coordinator:  coordinator,
		Slots:        slots,
		Appointments: apptRepo,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}

	logger.Info().Msg("api-server stopped")
}
