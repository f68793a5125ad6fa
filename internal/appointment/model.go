package appointment

import (
	"time"

	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Appointment struct {
	ID             int64
	PatientID      int64
	HealthWorkerID int64
	Date           time.Time
	Time           schedule.TimeOfDay
	Status         Status
	Reason         *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type HealthWorker struct {
	ID        int64
	UserID    int64
	FullName  string
	Position  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookingPatient is the slice of patient data the booking path needs.
type BookingPatient struct {
	ID       int64
	UserID   int64
	FullName string
	Phone    string
	Approved bool
}

// ReminderCandidate is an upcoming appointment that has not been reminded yet.
type ReminderCandidate struct {
	AppointmentID int64
	PatientUserID int64
	PatientName   string
	PatientPhone  string
	Date          time.Time
	Time          schedule.TimeOfDay
	WorkerName    string
}

// TimeSlotOption is one entry of the booking form's time dropdown.
type TimeSlotOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type WorkingHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Interval int    `json:"interval"`
}

// PublicAvailability is the payload behind GET /api/availability/public, the
// data the booking calendar renders from. Map keys are YYYY-MM-DD dates.
type PublicAvailability struct {
	UnavailableDates []string            `json:"unavailableDates"`
	SlotLimits       map[string]int      `json:"slotLimits"`
	BookedSlots      map[string]int      `json:"bookedSlots"`
	BookedTimes      map[string][]string `json:"bookedTimes"`
	DefaultSlotLimit int                 `json:"defaultSlotLimit"`
	TimeSlots        []TimeSlotOption    `json:"timeSlots"`
	WorkingHours     WorkingHours        `json:"workingHours"`
}

// DateKey renders the canonical map-key form of a calendar date.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
