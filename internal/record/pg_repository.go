package record

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) InsertMedical(ctx context.Context, in NewMedicalRecord) (*MedicalRecord, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO medical_records (patient_id, health_worker_id, visit_date, diagnosis, treatment, notes, created_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, now())
		RETURNING id, patient_id, health_worker_id, visit_date, diagnosis, treatment, notes, created_at
	`, in.PatientID, in.HealthWorkerID, in.VisitDate, in.Diagnosis, nullable(in.Treatment), nullable(in.Notes))

	var m MedicalRecord
	err := row.Scan(&m.ID, &m.PatientID, &m.HealthWorkerID, &m.VisitDate, &m.Diagnosis, &m.Treatment, &m.Notes, &m.CreatedAt)
	if err != nil {
		return nil, mapFKError(err)
	}

	return &m, nil
}

func (r *PgRepository) InsertImmunization(ctx context.Context, in NewImmunizationRecord) (*ImmunizationRecord, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO immunization_records (patient_id, health_worker_id, vaccine, dose_number, administered_on, next_dose_due, created_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::date, now())
		RETURNING id, patient_id, health_worker_id, vaccine, dose_number, administered_on, next_dose_due, created_at
	`, in.PatientID, in.HealthWorkerID, in.Vaccine, in.DoseNumber, in.AdministeredOn, nullable(in.NextDoseDue))

	var rec ImmunizationRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.HealthWorkerID, &rec.Vaccine, &rec.DoseNumber, &rec.AdministeredOn, &rec.NextDoseDue, &rec.CreatedAt)
	if err != nil {
		return nil, mapFKError(err)
	}

	return &rec, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID int64) (*PatientHistory, error) {
	// Verify the patient exists so the caller can distinguish "no records"
	// from "no such patient".
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)
	`, patientID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPatientNotFound
	}

	history := &PatientHistory{}

	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, health_worker_id, visit_date, diagnosis, treatment, notes, created_at
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY visit_date DESC, id DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m MedicalRecord
		if err := rows.Scan(&m.ID, &m.PatientID, &m.HealthWorkerID, &m.VisitDate, &m.Diagnosis, &m.Treatment, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		history.Medical = append(history.Medical, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	immRows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, health_worker_id, vaccine, dose_number, administered_on, next_dose_due, created_at
		FROM immunization_records
		WHERE patient_id = $1
		ORDER BY administered_on DESC, id DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer immRows.Close()

	for immRows.Next() {
		var rec ImmunizationRecord
		if err := immRows.Scan(&rec.ID, &rec.PatientID, &rec.HealthWorkerID, &rec.Vaccine, &rec.DoseNumber, &rec.AdministeredOn, &rec.NextDoseDue, &rec.CreatedAt); err != nil {
			return nil, err
		}
		history.Immunizations = append(history.Immunizations, rec)
	}

	return history, immRows.Err()
}

// mapFKError turns foreign-key violations into the matching not-found error.
func mapFKError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		switch pgErr.ConstraintName {
		case "medical_records_health_worker_id_fkey", "immunization_records_health_worker_id_fkey":
			return ErrWorkerNotFound
		default:
			return ErrPatientNotFound
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
