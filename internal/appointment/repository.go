package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrWorkerNotFound      = errors.New("health worker not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken means the exact (worker, date, time) slot is already held
	// by a non-cancelled appointment, detected either by the write-time
	// re-check or by the unique index on commit.
	ErrSlotTaken = errors.New("slot already taken")
)

// NewAppointment is the insert payload for a booking.
type NewAppointment struct {
	PatientID      int64
	HealthWorkerID int64
	Date           time.Time
	Time           schedule.TimeOfDay
	Reason         string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientForBooking(ctx context.Context, patientID int64) (*BookingPatient, error)
	GetWorkerByID(ctx context.Context, id int64) (*HealthWorker, error)
	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error)

	// CreateAppointment inserts a scheduled appointment; a unique-index
	// violation on the slot maps to ErrSlotTaken.
	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)

	// UpdateStatus performs a conditional transition: the row must currently
	// be in one of the from statuses. A row in another status returns
	// ErrInvalidTransition; a missing row returns ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id int64, from []Status, to Status) (*Appointment, error)

	// ScheduleSettings loads working hours, interval, and default capacity
	// from the settings table, falling back to the given defaults for
	// missing keys.
	ScheduleSettings(ctx context.Context, fallback schedule.Settings) (schedule.Settings, error)

	// Calendar inputs over an inclusive date range; map keys are YYYY-MM-DD.
	BlockedDates(ctx context.Context, from, to time.Time) (map[string]struct{}, error)
	SlotOverrides(ctx context.Context, from, to time.Time) (map[string]int, error)
	BookedCounts(ctx context.Context, healthWorkerID int64, from, to time.Time) (map[string]int, error)
	BookedTimes(ctx context.Context, healthWorkerID int64, from, to time.Time) (map[string][]schedule.TimeOfDay, error)

	// Reminder worker support.
	FindReminderCandidates(ctx context.Context, date time.Time) ([]ReminderCandidate, error)
	MarkReminded(ctx context.Context, appointmentID int64) error
}
