package patient

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreatePatient(ctx context.Context, reg Registration) (*Detail, error)
	GetByUserID(ctx context.Context, userID int64) (*Detail, error)
	ListPending(ctx context.Context) ([]Detail, error)

	// SetApproval flips the approval flag and stamps approved_at when the
	// patient is approved.
	SetApproval(ctx context.Context, userID int64, approved bool) (*Detail, error)

	// DeleteCascade removes the patient, the user, and every dependent row
	// in a single transaction. See cascade.go for the step plan.
	DeleteCascade(ctx context.Context, userID int64) (*CascadeResult, error)
}
