package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/healthconnect/healthconnect-server/internal/patient"
)

// PatientService is the slice of patient.Service the handlers use.
type PatientService interface {
	Register(ctx context.Context, in patient.RegisterInput) (*patient.Detail, error)
	Get(ctx context.Context, userID int64) (*patient.Detail, error)
	ListPending(ctx context.Context) ([]patient.Detail, error)
	UpdateApproval(ctx context.Context, userID int64, approved, deleteOnDisapprove bool) (*patient.ApprovalOutcome, error)
	Delete(ctx context.Context, userID int64) (*patient.CascadeResult, error)
}

func registerPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterPatientRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "could not parse JSON body")
			return
		}

		detail, err := svc.Register(r.Context(), patient.RegisterInput{
			FullName:         req.FullName,
			Email:            req.Email,
			Phone:            req.Phone,
			Password:         req.Password,
			BloodType:        req.BloodType,
			EmergencyContact: req.EmergencyContact,
		})
		if err != nil {
			handlePatientError(w, r, err)
			return
		}

		writeData(w, r, http.StatusCreated, toPatientResponse(detail))
	}
}

func getPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, r, http.StatusBadRequest, "id must be a positive integer")
			return
		}

		detail, err := svc.Get(r.Context(), userID)
		if err != nil {
			handlePatientError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, toPatientResponse(detail))
	}
}

func listPendingPatientsHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := svc.ListPending(r.Context())
		if err != nil {
			handlePatientError(w, r, err)
			return
		}

		out := make([]PatientResponse, 0, len(pending))
		for i := range pending {
			out = append(out, toPatientResponse(&pending[i]))
		}
		writeData(w, r, http.StatusOK, out)
	}
}

func updateApprovalHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateApprovalRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "could not parse JSON body")
			return
		}
		if req.UserID <= 0 {
			writeError(w, r, http.StatusBadRequest, "user_id is required")
			return
		}
		if req.IsApproved == nil {
			writeError(w, r, http.StatusBadRequest, "is_approved is required")
			return
		}

		outcome, err := svc.UpdateApproval(r.Context(), req.UserID, *req.IsApproved, req.DeleteOnDisapprove)
		if err != nil {
			handlePatientError(w, r, err)
			return
		}

		if outcome.Deleted != nil {
			writeUserMessage(w, r, http.StatusOK, "patient disapproved and deleted", outcome.Deleted.UserID)
			return
		}

		writeData(w, r, http.StatusOK, toPatientResponse(outcome.Detail))
	}
}

func deletePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := r.URL.Query().Get("id")
		if idStr == "" {
			writeError(w, r, http.StatusBadRequest, "id query parameter is required")
			return
		}
		userID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, r, http.StatusBadRequest, "id must be a positive integer")
			return
		}

		result, err := svc.Delete(r.Context(), userID)
		if err != nil {
			handlePatientError(w, r, err)
			return
		}

		writeUserMessage(w, r, http.StatusOK, "patient and all dependent records deleted", result.UserID)
	}
}

func handlePatientError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, r, http.StatusNotFound, "patient not found")
	case errors.Is(err, patient.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, patient.ErrMissingName), errors.Is(err, patient.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		// Database detail stays in the server log; the caller gets a
		// generic message.
		log.Error().Str("request_id", GetRequestID(r.Context())).Err(err).Msg("patient request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
