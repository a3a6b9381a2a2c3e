package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sajilocms/scheduling-engine/internal/schedule"
)

type RouterConfig struct {
	Service  *schedule.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Location *time.Location
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(ActorMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/doctors/{doctorID}/slots", getSlotsHandler(cfg.Service, cfg.Location))
	r.Get("/doctors/{doctorID}/schedule", getScheduleHandler(cfg.Service))
	r.Put("/doctors/{doctorID}/schedule", setScheduleHandler(cfg.Service))
	r.Get("/doctors/{doctorID}/stats", doctorStatsHandler(cfg.Service))

	// Absences
	r.Post("/doctors/{doctorID}/absences", createAbsenceHandler(cfg.Service))
	r.Get("/absences/pending", pendingAbsencesHandler(cfg.Service))
	r.Post("/absences/{id}/approve", approveAbsenceHandler(cfg.Service))

	// Appointments
	r.Post("/appointments", createBookingHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Location))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/status", changeStatusHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))

	return r
}
