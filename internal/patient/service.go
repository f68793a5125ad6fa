package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthconnect/healthconnect-server/internal/notify"
)

var (
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	ErrMissingName  = errors.New("full name is required")
)

// Notifier is the slice of the dispatcher this service needs.
type Notifier interface {
	Notify(ctx context.Context, rcpt Recipient, message string)
}

type Recipient = notify.Recipient

type Service struct {
	repo     Repository
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log.With().Str("component", "patient_service").Logger(),
	}
}

// RegisterInput is the raw sign-up payload before hashing.
type RegisterInput struct {
	FullName         string
	Email            string
	Phone            string
	Password         string
	BloodType        string
	EmergencyContact string
}

// Register creates an unapproved patient account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Detail, error) {
	if in.FullName == "" {
		return nil, ErrMissingName
	}
	if len(in.Password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	detail, err := s.repo.CreatePatient(ctx, Registration{
		FullName:         in.FullName,
		Email:            in.Email,
		Phone:            in.Phone,
		PasswordHash:     string(hash),
		BloodType:        in.BloodType,
		EmergencyContact: in.EmergencyContact,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}

	s.log.Info().Int64("user_id", detail.User.ID).Msg("patient registered, pending approval")
	return detail, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (*Detail, error) {
	detail, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return detail, nil
}

func (s *Service) ListPending(ctx context.Context) ([]Detail, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending patients: %w", err)
	}
	return pending, nil
}

// ApprovalOutcome reports what an approval update did. Deleted is non-nil
// only when a disapproval cascaded into a full deletion.
type ApprovalOutcome struct {
	Detail  *Detail
	Deleted *CascadeResult
}

// UpdateApproval approves or disapproves a pending patient. Disapproval with
// deleteOnDisapprove removes the account entirely via the same cascade as
// Delete.
func (s *Service) UpdateApproval(ctx context.Context, userID int64, approved, deleteOnDisapprove bool) (*ApprovalOutcome, error) {
	if !approved && deleteOnDisapprove {
		result, err := s.Delete(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &ApprovalOutcome{Deleted: result}, nil
	}

	detail, err := s.repo.SetApproval(ctx, userID, approved)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set approval: %w", err)
	}

	if approved {
		s.notifier.Notify(ctx, recipientOf(detail),
			"Your HealthConnect registration has been approved. You may now book appointments.")
	}

	s.log.Info().Int64("user_id", userID).Bool("approved", approved).Msg("patient approval updated")
	return &ApprovalOutcome{Detail: detail}, nil
}

// Delete runs the cascading deletion for the patient owning userID. The
// removal is irreversible and covers all clinical history.
func (s *Service) Delete(ctx context.Context, userID int64) (*CascadeResult, error) {
	result, err := s.repo.DeleteCascade(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete patient cascade: %w", err)
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("patient_id", result.PatientID).
		Interface("rows_deleted", result.RowsDeleted).
		Msg("patient deleted")

	return result, nil
}

func recipientOf(d *Detail) Recipient {
	r := Recipient{UserID: d.User.ID, Name: d.User.FullName}
	if d.User.Phone != nil {
		r.Phone = *d.User.Phone
	}
	return r
}
