package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/healthconnect/healthconnect-server/internal/record"
)

// RecordService is the slice of record.Service the handlers use.
type RecordService interface {
	AddMedical(ctx context.Context, in record.NewMedicalRecord) (*record.MedicalRecord, error)
	AddImmunization(ctx context.Context, in record.NewImmunizationRecord) (*record.ImmunizationRecord, error)
	History(ctx context.Context, patientID int64) (*record.PatientHistory, error)
}

func addMedicalRecordHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MedicalRecordRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "could not parse JSON body")
			return
		}
		if req.PatientID <= 0 || req.HealthWorkerID <= 0 {
			writeError(w, r, http.StatusBadRequest, "patient_id and health_worker_id are required")
			return
		}

		rec, err := svc.AddMedical(r.Context(), record.NewMedicalRecord{
			PatientID:      req.PatientID,
			HealthWorkerID: req.HealthWorkerID,
			VisitDate:      req.VisitDate,
			Diagnosis:      req.Diagnosis,
			Treatment:      req.Treatment,
			Notes:          req.Notes,
		})
		if err != nil {
			handleRecordError(w, r, err)
			return
		}

		writeData(w, r, http.StatusCreated, toMedicalResponse(rec))
	}
}

func addImmunizationRecordHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImmunizationRecordRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "could not parse JSON body")
			return
		}
		if req.PatientID <= 0 || req.HealthWorkerID <= 0 {
			writeError(w, r, http.StatusBadRequest, "patient_id and health_worker_id are required")
			return
		}

		rec, err := svc.AddImmunization(r.Context(), record.NewImmunizationRecord{
			PatientID:      req.PatientID,
			HealthWorkerID: req.HealthWorkerID,
			Vaccine:        req.Vaccine,
			DoseNumber:     req.DoseNumber,
			AdministeredOn: req.AdministeredOn,
			NextDoseDue:    req.NextDoseDue,
		})
		if err != nil {
			handleRecordError(w, r, err)
			return
		}

		writeData(w, r, http.StatusCreated, toImmunizationResponse(rec))
	}
}

func patientHistoryHandler(svc RecordService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || patientID <= 0 {
			writeError(w, r, http.StatusBadRequest, "id must be a positive integer")
			return
		}

		history, err := svc.History(r.Context(), patientID)
		if err != nil {
			handleRecordError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, toHistoryResponse(history))
	}
}

func handleRecordError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, record.ErrPatientNotFound):
		writeError(w, r, http.StatusNotFound, "patient not found")
	case errors.Is(err, record.ErrWorkerNotFound):
		writeError(w, r, http.StatusNotFound, "health worker not found")
	case errors.Is(err, record.ErrMissingDiagnosis),
		errors.Is(err, record.ErrMissingVaccine),
		errors.Is(err, record.ErrBadDate):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		log.Error().Str("request_id", GetRequestID(r.Context())).Err(err).Msg("record request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
