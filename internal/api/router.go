package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/appointment"
	"github.com/Inaralmeida/smilink-sub001/internal/intake"
	"github.com/Inaralmeida/smilink-sub001/internal/metrics"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Intake       *intake.Service
	Postgres     Pinger
	Redis        Pinger
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	JWTSecret    string
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		appts := cfg.Appointments
		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", listAppointmentsHandler(appts, logger))
			r.Post("/", createAppointmentHandler(appts, logger))
			r.Get("/{id}", getAppointmentHandler(appts, logger))
			r.Patch("/{id}", updateAppointmentHandler(appts, logger))
			r.Get("/{id}/actions", appointmentActionsHandler(appts, logger))
			r.Post("/{id}/begin", requireStaff(transitionHandler(appts, logger, appointment.ActionBegin)))
			r.Post("/{id}/finish", requireStaff(transitionHandler(appts, logger, appointment.ActionFinish)))
			r.Post("/{id}/cancel", transitionHandler(appts, logger, appointment.ActionCancel))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(appts, logger))
		})

		r.Get("/calendar", calendarHandler(appts, logger))
		r.Post("/calendar/draft", draftHandler(appts, logger))
		r.Delete("/calendar/colors", requireStaff(resetColorsHandler(appts)))
		r.Get("/procedures", proceduresHandler)
		r.Get("/professionals", listProfessionalsHandler(appts, logger))
		r.Get("/patients", requireStaff(listPatientsHandler(appts, logger)))

		r.Route("/intake", func(r chi.Router) {
			r.Post("/validate", validateIntakeHandler(cfg.Intake, logger))
			r.Post("/patients", registerPatientHandler(cfg.Intake, logger))
			r.Post("/address-lookup", addressLookupHandler(cfg.Intake, logger))
			r.Post("/autofill", autoFillHandler(cfg.Intake, logger))
		})
	})

	return r
}
