package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/conversation"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

type RouterConfig struct {
	Machine      *conversation.Machine
	Coordinator  *booking.Coordinator
	Slots        *slot.Manager
	Appointments booking.Repository
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/sessions", startSessionHandler(cfg.Machine))
	r.Post("/sessions/{id}/message", sessionMessageHandler(cfg.Machine))

	r.Get("/slots", listSlotsHandler(cfg.Slots))

	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Coordinator))

	return r
}
