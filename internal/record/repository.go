package record

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrWorkerNotFound  = errors.New("health worker not found")
)

type NewMedicalRecord struct {
	PatientID      int64
	HealthWorkerID int64
	VisitDate      string // YYYY-MM-DD
	Diagnosis      string
	Treatment      string
	Notes          string
}

type NewImmunizationRecord struct {
	PatientID      int64
	HealthWorkerID int64
	Vaccine        string
	DoseNumber     int
	AdministeredOn string // YYYY-MM-DD
	NextDoseDue    string // YYYY-MM-DD, optional
}

type Repository interface {
	InsertMedical(ctx context.Context, in NewMedicalRecord) (*MedicalRecord, error)
	InsertImmunization(ctx context.Context, in NewImmunizationRecord) (*ImmunizationRecord, error)
	ListByPatient(ctx context.Context, patientID int64) (*PatientHistory, error)
}
