package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// stepKey selects which identifier a deletion step filters on.
type stepKey int

const (
	byAppointment stepKey = iota
	byImmunization
	byUser
	byPatient
)

// deletionStep is one entry of the cascade plan. Required steps must succeed
// or the whole transaction rolls back. Optional steps are best-effort cleanup
// of tables that may not exist in every deployment: their failures are logged
// and skipped.
type deletionStep struct {
	Table     string
	KeyColumn string
	Key       stepKey
	Required  bool
}

// deletionPlan lists every dependent table in deletion order, children before
// parents. The patients and users rows themselves are deleted after the plan
// runs.
var deletionPlan = []deletionStep{
	{Table: "sms_logs", KeyColumn: "appointment_id", Key: byAppointment, Required: false},
	{Table: "appointment_reminders", KeyColumn: "appointment_id", Key: byAppointment, Required: false},
	{Table: "sms_logs", KeyColumn: "immunization_record_id", Key: byImmunization, Required: false},
	{Table: "notifications", KeyColumn: "user_id", Key: byUser, Required: false},
	{Table: "sessions", KeyColumn: "user_id", Key: byUser, Required: false},
	{Table: "medical_records", KeyColumn: "patient_id", Key: byPatient, Required: true},
	{Table: "immunization_records", KeyColumn: "patient_id", Key: byPatient, Required: true},
	{Table: "appointments", KeyColumn: "patient_id", Key: byPatient, Required: true},
}

// cascadeKeys holds the identifiers collected up front, before any deletion.
type cascadeKeys struct {
	UserID          int64
	PatientID       int64
	AppointmentIDs  []int64
	ImmunizationIDs []int64
}

// execer is satisfied by pgx.Tx; tests supply a fake.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// runDeletionPlan executes every step of the plan inside the caller's
// transaction. Optional steps run under a savepoint so a failure does not
// poison the surrounding transaction.
func runDeletionPlan(ctx context.Context, tx execer, log zerolog.Logger, keys cascadeKeys) (map[string]int64, error) {
	deleted := make(map[string]int64, len(deletionPlan))

	for _, step := range deletionPlan {
		arg := step.keyValue(keys)
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", step.Table, step.KeyColumn)
		if step.Key == byUser || step.Key == byPatient {
			sql = fmt.Sprintf("DELETE FROM %s WHERE %s = $1", step.Table, step.KeyColumn)
		}

		if step.Required {
			tag, err := tx.Exec(ctx, sql, arg)
			if err != nil {
				return nil, fmt.Errorf("delete from %s: %w", step.Table, err)
			}
			deleted[step.Table] += tag.RowsAffected()
			continue
		}

		if _, err := tx.Exec(ctx, "SAVEPOINT cleanup_step"); err != nil {
			return nil, fmt.Errorf("savepoint before %s cleanup: %w", step.Table, err)
		}

		tag, err := tx.Exec(ctx, sql, arg)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT cleanup_step"); rbErr != nil {
				return nil, fmt.Errorf("rollback to savepoint after %s cleanup: %w", step.Table, rbErr)
			}
			log.Warn().
				Str("table", step.Table).
				Str("key_column", step.KeyColumn).
				Bool("missing_schema", isMissingSchema(err)).
				Err(err).
				Msg("skipping optional cleanup step")
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT cleanup_step"); err != nil {
			return nil, fmt.Errorf("release savepoint after %s cleanup: %w", step.Table, err)
		}
		deleted[step.Table] += tag.RowsAffected()
	}

	return deleted, nil
}

func (s deletionStep) keyValue(keys cascadeKeys) any {
	switch s.Key {
	case byAppointment:
		return keys.AppointmentIDs
	case byImmunization:
		return keys.ImmunizationIDs
	case byUser:
		return keys.UserID
	default:
		return keys.PatientID
	}
}

// isMissingSchema reports whether err is Postgres undefined_table (42P01) or
// undefined_column (42703), the schema-drift cases optional steps tolerate.
func isMissingSchema(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42P01" || pgErr.Code == "42703"
}
