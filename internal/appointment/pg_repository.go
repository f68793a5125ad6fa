package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `
	id, patient_id, health_worker_id, appointment_date,
	to_char(appointment_time, 'HH24:MI'), status, reason, created_at, updated_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var timeStr string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.HealthWorkerID,
		&a.Date,
		&timeStr,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time, err = schedule.ParseTimeOfDay(timeStr)
	if err != nil {
		return nil, fmt.Errorf("parse appointment time: %w", err)
	}

	return &a, nil
}

func scanWorker(row pgx.Row) (*HealthWorker, error) {
	var w HealthWorker

	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.FullName,
		&w.Position,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, err
	}

	return &w, nil
}

// Interface methods

func (r *PgRepository) GetPatientForBooking(ctx context.Context, patientID int64) (*BookingPatient, error) {
	var p BookingPatient
	var phone *string

	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.user_id, u.full_name, u.phone, u.is_approved
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`, patientID).Scan(&p.ID, &p.UserID, &p.FullName, &phone, &p.Approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}

func (r *PgRepository) GetWorkerByID(ctx context.Context, id int64) (*HealthWorker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `
		SELECT w.id, w.user_id, u.full_name, w.position, w.created_at, w.updated_at
		FROM health_workers w
		JOIN users u ON u.id = w.user_id
		WHERE w.id = $1
	`, id))
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, appointment_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, health_worker_id, appointment_date, appointment_time, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4::time, 'scheduled', $5, now(), now())
		RETURNING `+appointmentColumns+`
	`, in.PatientID, in.HealthWorkerID, in.Date, in.Time.String(), nullable(in.Reason))

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return appt, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id int64, from []Status, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, to, statusStrings(from))

	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	// Distinguish "no such row" from "row in a different status".
	var exists bool
	if qErr := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
	`, id).Scan(&exists); qErr != nil {
		return nil, qErr
	}
	if exists {
		return nil, ErrInvalidTransition
	}
	return nil, ErrAppointmentNotFound
}

func (r *PgRepository) ScheduleSettings(ctx context.Context, fallback schedule.Settings) (schedule.Settings, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key, value FROM settings
		WHERE key IN ('workday_start', 'workday_end', 'slot_interval_minutes', 'default_daily_capacity')
	`)
	if err != nil {
		return schedule.Settings{}, err
	}
	defer rows.Close()

	out := fallback
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return schedule.Settings{}, err
		}

		switch key {
		case "workday_start":
			if t, err := schedule.ParseTimeOfDay(value); err == nil {
				out.WorkdayStart = t
			}
		case "workday_end":
			if t, err := schedule.ParseTimeOfDay(value); err == nil {
				out.WorkdayEnd = t
			}
		case "slot_interval_minutes":
			if n, err := atoiPositive(value); err == nil {
				out.SlotInterval = n
			}
		case "default_daily_capacity":
			if n, err := atoiPositive(value); err == nil {
				out.DefaultCapacity = n
			}
		}
	}

	return out, rows.Err()
}

func (r *PgRepository) BlockedDates(ctx context.Context, from, to time.Time) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(blocked_date, 'YYYY-MM-DD')
		FROM unavailable_dates
		WHERE blocked_date BETWEEN $1 AND $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[d] = struct{}{}
	}

	return out, rows.Err()
}

func (r *PgRepository) SlotOverrides(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(override_date, 'YYYY-MM-DD'), capacity
		FROM slot_overrides
		WHERE override_date BETWEEN $1 AND $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var d string
		var capacity int
		if err := rows.Scan(&d, &capacity); err != nil {
			return nil, err
		}
		out[d] = capacity
	}

	return out, rows.Err()
}

func (r *PgRepository) BookedCounts(ctx context.Context, healthWorkerID int64, from, to time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(appointment_date, 'YYYY-MM-DD'), count(*)
		FROM appointments
		WHERE health_worker_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
		GROUP BY appointment_date
	`, healthWorkerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}

	return out, rows.Err()
}

func (r *PgRepository) BookedTimes(ctx context.Context, healthWorkerID int64, from, to time.Time) (map[string][]schedule.TimeOfDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE health_worker_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
		ORDER BY appointment_date, appointment_time
	`, healthWorkerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]schedule.TimeOfDay)
	for rows.Next() {
		var d, t string
		if err := rows.Scan(&d, &t); err != nil {
			return nil, err
		}
		tod, err := schedule.ParseTimeOfDay(t)
		if err != nil {
			return nil, fmt.Errorf("parse booked time: %w", err)
		}
		out[d] = append(out[d], tod)
	}

	return out, rows.Err()
}

func (r *PgRepository) FindReminderCandidates(ctx context.Context, date time.Time) ([]ReminderCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, pu.id, pu.full_name, COALESCE(pu.phone, ''),
		       a.appointment_date, to_char(a.appointment_time, 'HH24:MI'), wu.full_name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN users pu ON pu.id = p.user_id
		JOIN health_workers w ON w.id = a.health_worker_id
		JOIN users wu ON wu.id = w.user_id
		WHERE a.appointment_date = $1
		  AND a.status IN ('scheduled', 'confirmed')
		  AND NOT EXISTS (
			SELECT 1 FROM appointment_reminders r WHERE r.appointment_id = a.id
		  )
		ORDER BY a.appointment_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderCandidate
	for rows.Next() {
		var c ReminderCandidate
		var timeStr string
		if err := rows.Scan(&c.AppointmentID, &c.PatientUserID, &c.PatientName, &c.PatientPhone,
			&c.Date, &timeStr, &c.WorkerName); err != nil {
			return nil, err
		}
		c.Time, err = schedule.ParseTimeOfDay(timeStr)
		if err != nil {
			return nil, fmt.Errorf("parse reminder time: %w", err)
		}
		result = append(result, c)
	}

	return result, rows.Err()
}

func (r *PgRepository) MarkReminded(ctx context.Context, appointmentID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_reminders (appointment_id, sent_at)
		VALUES ($1, now())
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("insert appointment reminder: %w", err)
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func atoiPositive(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value %d is not positive", n)
	}
	return n, nil
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
