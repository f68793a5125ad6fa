package patient

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecer records every statement and fails those matching a configured
// substring.
type fakeExecer struct {
	executed []string
	failOn   map[string]error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.executed = append(f.executed, sql)
	for substr, err := range f.failOn {
		if strings.Contains(sql, substr) {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func (f *fakeExecer) statementsContaining(substr string) []string {
	var out []string
	for _, sql := range f.executed {
		if strings.Contains(sql, substr) {
			out = append(out, sql)
		}
	}
	return out
}

func testKeys() cascadeKeys {
	return cascadeKeys{
		UserID:          7,
		PatientID:       42,
		AppointmentIDs:  []int64{101, 102},
		ImmunizationIDs: []int64{201},
	}
}

func undefinedTableErr() error {
	return &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
}

func TestRunDeletionPlan_AllStepsExecute(t *testing.T) {
	tx := &fakeExecer{}

	deleted, err := runDeletionPlan(context.Background(), tx, zerolog.Nop(), testKeys())
	require.NoError(t, err)

	for _, table := range []string{"sms_logs", "appointment_reminders", "notifications", "sessions",
		"medical_records", "immunization_records", "appointments"} {
		assert.NotEmpty(t, tx.statementsContaining("DELETE FROM "+table), "expected delete against %s", table)
	}

	// sms_logs is hit twice (by appointment and by immunization record).
	assert.Equal(t, int64(4), deleted["sms_logs"])
	assert.Equal(t, int64(2), deleted["appointments"])
}

func TestRunDeletionPlan_RequiredStepsOrderedChildrenFirst(t *testing.T) {
	tx := &fakeExecer{}

	_, err := runDeletionPlan(context.Background(), tx, zerolog.Nop(), testKeys())
	require.NoError(t, err)

	idx := func(substr string) int {
		for i, sql := range tx.executed {
			if strings.Contains(sql, substr) {
				return i
			}
		}
		t.Fatalf("no statement containing %q", substr)
		return -1
	}

	assert.Less(t, idx("DELETE FROM medical_records"), idx("DELETE FROM appointments"))
	assert.Less(t, idx("DELETE FROM immunization_records"), idx("DELETE FROM appointments"))
}

func TestRunDeletionPlan_OptionalMissingTableIsSkipped(t *testing.T) {
	tx := &fakeExecer{
		failOn: map[string]error{"appointment_reminders": undefinedTableErr()},
	}

	deleted, err := runDeletionPlan(context.Background(), tx, zerolog.Nop(), testKeys())
	require.NoError(t, err)

	// Failed step rolled back to its savepoint and contributed no count.
	assert.NotEmpty(t, tx.statementsContaining("ROLLBACK TO SAVEPOINT cleanup_step"))
	assert.Zero(t, deleted["appointment_reminders"])

	// Later required steps still ran.
	assert.NotEmpty(t, tx.statementsContaining("DELETE FROM appointments"))
}

func TestRunDeletionPlan_OptionalGenericFailureIsSkipped(t *testing.T) {
	tx := &fakeExecer{
		failOn: map[string]error{"DELETE FROM sessions": errors.New("connection hiccup")},
	}

	_, err := runDeletionPlan(context.Background(), tx, zerolog.Nop(), testKeys())
	require.NoError(t, err)
	assert.NotEmpty(t, tx.statementsContaining("DELETE FROM medical_records"))
}

func TestRunDeletionPlan_RequiredFailureAborts(t *testing.T) {
	boom := &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}
	tx := &fakeExecer{
		failOn: map[string]error{"DELETE FROM immunization_records": boom},
	}

	_, err := runDeletionPlan(context.Background(), tx, zerolog.Nop(), testKeys())
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*pgconn.PgError))

	// The plan stops at the failed step; appointments are never touched.
	assert.Empty(t, tx.statementsContaining("DELETE FROM appointments"))
}

func TestIsMissingSchema(t *testing.T) {
	assert.True(t, isMissingSchema(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, isMissingSchema(&pgconn.PgError{Code: "42703"}))
	assert.False(t, isMissingSchema(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isMissingSchema(errors.New("plain error")))
}

func TestDeletionPlan_OptionalBeforeRequired(t *testing.T) {
	seenRequired := false
	for _, step := range deletionPlan {
		if step.Required {
			seenRequired = true
		} else {
			assert.False(t, seenRequired, "optional step %s listed after required steps", step.Table)
		}
	}
}
