package patient

import "time"

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleHealthWorker Role = "health_worker"
	RolePatient      Role = "patient"
)

type User struct {
	ID         int64
	Role       Role
	FullName   string
	Email      *string
	Phone      *string
	IsApproved bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Patient extends a User with medical metadata. Its lifecycle is tied to the
// user row: deleting the patient removes both, plus all dependent records.
type Patient struct {
	ID               int64
	UserID           int64
	BloodType        *string
	EmergencyContact *string
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Detail struct {
	Patient
	User User
}

// Registration is the input for a self-service patient sign-up. The account
// starts unapproved and needs an admin decision before booking.
type Registration struct {
	FullName         string
	Email            string
	Phone            string
	PasswordHash     string
	BloodType        string
	EmergencyContact string
}

// CascadeResult reports what a cascading deletion removed, per table.
type CascadeResult struct {
	UserID      int64
	PatientID   int64
	RowsDeleted map[string]int64
}
