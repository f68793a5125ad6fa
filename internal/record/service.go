package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrMissingDiagnosis = errors.New("diagnosis is required")
	ErrMissingVaccine   = errors.New("vaccine name is required")
	ErrBadDate          = errors.New("date must be YYYY-MM-DD")
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "record_service").Logger(),
	}
}

func (s *Service) AddMedical(ctx context.Context, in NewMedicalRecord) (*MedicalRecord, error) {
	if in.Diagnosis == "" {
		return nil, ErrMissingDiagnosis
	}
	if !validDate(in.VisitDate) {
		return nil, ErrBadDate
	}

	rec, err := s.repo.InsertMedical(ctx, in)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) || errors.Is(err, ErrWorkerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("insert medical record: %w", err)
	}

	s.log.Info().Int64("patient_id", in.PatientID).Int64("record_id", rec.ID).Msg("medical record added")
	return rec, nil
}

func (s *Service) AddImmunization(ctx context.Context, in NewImmunizationRecord) (*ImmunizationRecord, error) {
	if in.Vaccine == "" {
		return nil, ErrMissingVaccine
	}
	if !validDate(in.AdministeredOn) {
		return nil, ErrBadDate
	}
	if in.NextDoseDue != "" && !validDate(in.NextDoseDue) {
		return nil, ErrBadDate
	}
	if in.DoseNumber <= 0 {
		in.DoseNumber = 1
	}

	rec, err := s.repo.InsertImmunization(ctx, in)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) || errors.Is(err, ErrWorkerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("insert immunization record: %w", err)
	}

	s.log.Info().Int64("patient_id", in.PatientID).Int64("record_id", rec.ID).Msg("immunization record added")
	return rec, nil
}

func (s *Service) History(ctx context.Context, patientID int64) (*PatientHistory, error) {
	history, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient history: %w", err)
	}
	return history, nil
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
