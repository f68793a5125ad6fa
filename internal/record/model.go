package record

import "time"

// MedicalRecord is an append-only clinical entry; it is never updated and
// only removed by the patient deletion cascade.
type MedicalRecord struct {
	ID             int64
	PatientID      int64
	HealthWorkerID int64
	VisitDate      time.Time
	Diagnosis      string
	Treatment      *string
	Notes          *string
	CreatedAt      time.Time
}

type ImmunizationRecord struct {
	ID             int64
	PatientID      int64
	HealthWorkerID int64
	Vaccine        string
	DoseNumber     int
	AdministeredOn time.Time
	NextDoseDue    *time.Time
	CreatedAt      time.Time
}

// PatientHistory bundles both record kinds for the per-patient listing.
type PatientHistory struct {
	Medical       []MedicalRecord
	Immunizations []ImmunizationRecord
}
