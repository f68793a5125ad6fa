package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/healthconnect/healthconnect-server/internal/appointment"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

// AppointmentService is the slice of appointment.Service the handlers use.
type AppointmentService interface {
	Book(ctx context.Context, in appointment.BookingInput) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id int64) (*appointment.Appointment, error)
	Complete(ctx context.Context, id int64) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id int64) (*appointment.Appointment, error)
	Get(ctx context.Context, id int64) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]appointment.Appointment, error)
	MonthAvailability(ctx context.Context, healthWorkerID int64, year int, month time.Month) ([]schedule.DayAvailability, error)
	FreeSlots(ctx context.Context, healthWorkerID int64, date time.Time) ([]appointment.TimeSlotOption, error)
	PublicAvailability(ctx context.Context, healthWorkerID int64) (*appointment.PublicAvailability, error)
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "could not parse JSON body")
			return
		}
		if req.PatientID <= 0 || req.HealthWorkerID <= 0 {
			writeError(w, r, http.StatusBadRequest, "patient_id and health_worker_id are required")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		tod, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "time must be HH:MM")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookingInput{
			PatientID:      req.PatientID,
			HealthWorkerID: req.HealthWorkerID,
			Date:           date,
			Time:           tod,
			Reason:         req.Reason,
		})
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeData(w, r, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func appointmentTransitionHandler(transition func(ctx context.Context, id int64) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusBadRequest, "id must be a positive integer")
			return
		}

		appt, err := transition(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := strconv.ParseInt(r.URL.Query().Get("patient_id"), 10, 64)
		if err != nil || patientID <= 0 {
			writeError(w, r, http.StatusBadRequest, "patient_id query parameter is required")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeData(w, r, http.StatusOK, out)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusBadRequest, "id must be a positive integer")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, toAppointmentResponse(appt))
	}
}

func handleAppointmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, r, http.StatusNotFound, "patient not found")
	case errors.Is(err, appointment.ErrWorkerNotFound):
		writeError(w, r, http.StatusNotFound, "health worker not found")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, r, http.StatusNotFound, "appointment not found")
	case errors.Is(err, appointment.ErrPatientNotApproved):
		writeError(w, r, http.StatusForbidden, "patient registration is not approved")
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, r, http.StatusConflict, "the selected date is not available for booking")
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, r, http.StatusConflict, "that time slot was just taken, please pick another")
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, r, http.StatusConflict, "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, "appointment is not in a state that allows this action")
	default:
		log.Error().Str("request_id", GetRequestID(r.Context())).Err(err).Msg("appointment request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
