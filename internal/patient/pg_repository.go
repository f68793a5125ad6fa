package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type PgRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPgRepository(pool *pgxpool.Pool, log zerolog.Logger) *PgRepository {
	return &PgRepository{
		pool: pool,
		log:  log.With().Str("component", "patient_repository").Logger(),
	}
}

const detailColumns = `
	p.id, p.user_id, p.blood_type, p.emergency_contact, p.approved_at, p.created_at, p.updated_at,
	u.id, u.role, u.full_name, u.email, u.phone, u.is_approved, u.created_at, u.updated_at
`

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail

	err := row.Scan(
		&d.Patient.ID,
		&d.Patient.UserID,
		&d.BloodType,
		&d.EmergencyContact,
		&d.ApprovedAt,
		&d.Patient.CreatedAt,
		&d.Patient.UpdatedAt,
		&d.User.ID,
		&d.User.Role,
		&d.User.FullName,
		&d.User.Email,
		&d.User.Phone,
		&d.User.IsApproved,
		&d.User.CreatedAt,
		&d.User.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, reg Registration) (*Detail, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO users (role, full_name, email, phone, password_hash, is_approved, created_at, updated_at)
		VALUES ('patient', $1, $2, $3, $4, FALSE, now(), now())
		RETURNING id
	`, reg.FullName, nullable(reg.Email), nullable(reg.Phone), reg.PasswordHash).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO patients (user_id, blood_type, emergency_contact, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, userID, nullable(reg.BloodType), nullable(reg.EmergencyContact))
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	detail, err := scanDetail(tx.QueryRow(ctx, `
		SELECT `+detailColumns+`
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("load created patient: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit registration tx: %w", err)
	}

	return detail, nil
}

func (r *PgRepository) GetByUserID(ctx context.Context, userID int64) (*Detail, error) {
	return scanDetail(r.pool.QueryRow(ctx, `
		SELECT `+detailColumns+`
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID))
}

func (r *PgRepository) ListPending(ctx context.Context) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+detailColumns+`
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE u.is_approved = FALSE
		ORDER BY p.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SetApproval(ctx context.Context, userID int64, approved bool) (*Detail, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin approval tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET is_approved = $2,
		    updated_at = now()
		WHERE id = $1 AND role = 'patient'
	`, userID, approved)
	if err != nil {
		return nil, fmt.Errorf("update user approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrPatientNotFound
	}

	if approved {
		_, err = tx.Exec(ctx, `
			UPDATE patients SET approved_at = now(), updated_at = now() WHERE user_id = $1
		`, userID)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE patients SET approved_at = NULL, updated_at = now() WHERE user_id = $1
		`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("update patient approval timestamp: %w", err)
	}

	detail, err := scanDetail(tx.QueryRow(ctx, `
		SELECT `+detailColumns+`
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("load patient after approval change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit approval tx: %w", err)
	}

	return detail, nil
}

// DeleteCascade removes the patient and everything keyed to it. Either every
// required row disappears or, on failure, none do.
func (r *PgRepository) DeleteCascade(ctx context.Context, userID int64) (*CascadeResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cascade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	keys := cascadeKeys{UserID: userID}

	err = tx.QueryRow(ctx, `SELECT id FROM patients WHERE user_id = $1`, userID).Scan(&keys.PatientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("resolve patient id: %w", err)
	}

	keys.AppointmentIDs, err = collectIDs(ctx, tx, `SELECT id FROM appointments WHERE patient_id = $1`, keys.PatientID)
	if err != nil {
		return nil, fmt.Errorf("collect appointment ids: %w", err)
	}

	keys.ImmunizationIDs, err = collectIDs(ctx, tx, `SELECT id FROM immunization_records WHERE patient_id = $1`, keys.PatientID)
	if err != nil {
		return nil, fmt.Errorf("collect immunization record ids: %w", err)
	}

	deleted, err := runDeletionPlan(ctx, tx, r.log, keys)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM patients WHERE id = $1`, keys.PatientID)
	if err != nil {
		return nil, fmt.Errorf("delete patient row: %w", err)
	}
	deleted["patients"] = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("delete user row: %w", err)
	}
	deleted["users"] = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cascade tx: %w", err)
	}

	return &CascadeResult{
		UserID:      userID,
		PatientID:   keys.PatientID,
		RowsDeleted: deleted,
	}, nil
}

func collectIDs(ctx context.Context, tx pgx.Tx, sql string, arg any) ([]int64, error) {
	rows, err := tx.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
