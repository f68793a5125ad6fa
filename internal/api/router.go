package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/healthconnect/healthconnect-server/internal/patient"
)

const (
	roleAdmin        = string(patient.RoleAdmin)
	roleHealthWorker = string(patient.RoleHealthWorker)
	rolePatient      = string(patient.RolePatient)
)

type RouterConfig struct {
	Patients     PatientService
	Appointments AppointmentService
	Records      RecordService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		// Public surface: registration and the booking calendar.
		r.Post("/patients/register", registerPatientHandler(cfg.Patients))
		r.Get("/availability/public", publicAvailabilityHandler(cfg.Appointments))
		r.Get("/availability/month", monthAvailabilityHandler(cfg.Appointments))
		r.Get("/availability/slots", freeSlotsHandler(cfg.Appointments))

		// Patient and staff surface.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(roleAdmin, roleHealthWorker, rolePatient))
			r.Post("/appointments", bookAppointmentHandler(cfg.Appointments))
			r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
			r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
			r.Post("/appointments/{id}/cancel", appointmentTransitionHandler(cfg.Appointments.Cancel))
		})

		// Staff-only surface.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(roleAdmin, roleHealthWorker))
			r.Post("/appointments/{id}/confirm", appointmentTransitionHandler(cfg.Appointments.Confirm))
			r.Post("/appointments/{id}/complete", appointmentTransitionHandler(cfg.Appointments.Complete))
			r.Post("/records/medical", addMedicalRecordHandler(cfg.Records))
			r.Post("/records/immunizations", addImmunizationRecordHandler(cfg.Records))
			r.Get("/patients/{id}/records", patientHistoryHandler(cfg.Records))
		})

		// Admin-only surface.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(roleAdmin))
			r.Get("/patients/pending", listPendingPatientsHandler(cfg.Patients))
			r.Get("/patients/{id}", getPatientHandler(cfg.Patients))
			r.Post("/patients/update_approval", updateApprovalHandler(cfg.Patients))
			r.Delete("/patients/delete", deletePatientHandler(cfg.Patients))
		})
	})

	return r
}
