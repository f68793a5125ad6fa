package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthconnect/healthconnect-server/internal/notify"
	redisclient "github.com/healthconnect/healthconnect-server/internal/redis"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

// publicCalendarDays is how far ahead the public booking calendar reaches.
const publicCalendarDays = 60

var (
	// ErrSlotUnavailable means the requested day is not bookable at all:
	// past, weekend, admin-blocked, or out of capacity.
	ErrSlotUnavailable = errors.New("slot is not available for booking")
	// ErrSlotBeingBooked means another booking for the same slot holds the
	// lock right now; the caller should retry.
	ErrSlotBeingBooked    = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition  = errors.New("invalid appointment status transition")
	ErrPatientNotApproved = errors.New("patient registration is not approved")
)

// Notifier is the slice of the dispatcher this service needs.
type Notifier interface {
	NotifyAppointment(ctx context.Context, rcpt notify.Recipient, appointmentID int64, message string)
}

// SnapshotCache is satisfied by redisclient.SnapshotCache.
type SnapshotCache interface {
	GetAvailability(ctx context.Context, healthWorkerID int64) ([]byte, error)
	SetAvailability(ctx context.Context, healthWorkerID int64, payload []byte) error
	InvalidateAvailability(ctx context.Context, healthWorkerID int64) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	cache    SnapshotCache
	notifier Notifier
	defaults schedule.Settings
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cache SnapshotCache, notifier Notifier, defaults schedule.Settings, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		cache:    cache,
		notifier: notifier,
		defaults: defaults,
		now:      time.Now,
		log:      log.With().Str("component", "appointment_service").Logger(),
	}
}

type BookingInput struct {
	PatientID      int64
	HealthWorkerID int64
	Date           time.Time
	Time           schedule.TimeOfDay
	Reason         string
}

// Book reserves a slot for a patient. The availability shown at display time
// can go stale, so the whole classification is re-run here inside a
// per-slot distributed lock; the unique index on the appointments table is
// the final backstop if two bookers slip past the lock on different nodes.
func (s *Service) Book(ctx context.Context, in BookingInput) (*Appointment, error) {
	p, err := s.repo.GetPatientForBooking(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if !p.Approved {
		return nil, ErrPatientNotApproved
	}

	if _, err := s.repo.GetWorkerByID(ctx, in.HealthWorkerID); err != nil {
		if errors.Is(err, ErrWorkerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load health worker: %w", err)
	}

	settings, err := s.repo.ScheduleSettings(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("load schedule settings: %w", err)
	}

	if !validSlotTime(settings, in.Time) {
		return nil, ErrSlotUnavailable
	}

	var created *Appointment

	lockKey := redisclient.SlotLockKey(in.HealthWorkerID, DateKey(in.Date), in.Time.String())
	err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
		day, bookedTimes, err := s.classifyDate(lockCtx, in.HealthWorkerID, in.Date, settings)
		if err != nil {
			return err
		}
		if day.Status != schedule.DayAvailable && day.Status != schedule.DayLimited {
			return ErrSlotUnavailable
		}
		for _, t := range bookedTimes {
			if t == in.Time {
				return ErrSlotTaken
			}
		}

		created, err = s.repo.CreateAppointment(lockCtx, NewAppointment{
			PatientID:      in.PatientID,
			HealthWorkerID: in.HealthWorkerID,
			Date:           in.Date,
			Time:           in.Time,
			Reason:         in.Reason,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.invalidateSnapshot(ctx, in.HealthWorkerID)

	s.notifier.NotifyAppointment(ctx, notify.Recipient{
		UserID: p.UserID,
		Name:   p.FullName,
		Phone:  p.Phone,
	}, created.ID, fmt.Sprintf(
		"Your appointment on %s at %s has been booked.",
		DateKey(created.Date), created.Time.Label(),
	))

	return created, nil
}

// Confirm moves a scheduled appointment to confirmed (staff action).
func (s *Service) Confirm(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, []Status{StatusScheduled}, StatusConfirmed)
}

// Complete closes out a visit.
func (s *Service) Complete(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, []Status{StatusScheduled, StatusConfirmed}, StatusCompleted)
}

// Cancel frees the slot; both the patient and staff may cancel.
func (s *Service) Cancel(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, []Status{StatusScheduled, StatusConfirmed}, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id int64, from []Status, to Status) (*Appointment, error) {
	appt, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.invalidateSnapshot(ctx, appt.HealthWorkerID)

	s.log.Info().
		Int64("appointment_id", id).
		Str("status", string(to)).
		Msg("appointment status updated")

	return appt, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// MonthAvailability classifies every day of the given calendar month for one
// health worker.
func (s *Service) MonthAvailability(ctx context.Context, healthWorkerID int64, year int, month time.Month) ([]schedule.DayAvailability, error) {
	if _, err := s.repo.GetWorkerByID(ctx, healthWorkerID); err != nil {
		return nil, err
	}

	settings, err := s.repo.ScheduleSettings(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("load schedule settings: %w", err)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	blocked, err := s.repo.BlockedDates(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("load blocked dates: %w", err)
	}
	overrides, err := s.repo.SlotOverrides(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("load slot overrides: %w", err)
	}
	counts, err := s.repo.BookedCounts(ctx, healthWorkerID, first, last)
	if err != nil {
		return nil, fmt.Errorf("load booked counts: %w", err)
	}

	today := s.now()
	var days []schedule.DayAvailability
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := DateKey(d)

		in := schedule.DayInput{
			Date:   d,
			Today:  today,
			Booked: counts[key],
		}
		if _, ok := blocked[key]; ok {
			in.Blocked = true
		}
		if cap, ok := overrides[key]; ok {
			c := cap
			in.Override = &c
		}

		days = append(days, schedule.ClassifyDay(in, settings))
	}

	return days, nil
}

// FreeSlots lists the still-bookable times for one date, in ascending order.
// An unbookable day yields an empty list.
func (s *Service) FreeSlots(ctx context.Context, healthWorkerID int64, date time.Time) ([]TimeSlotOption, error) {
	if _, err := s.repo.GetWorkerByID(ctx, healthWorkerID); err != nil {
		return nil, err
	}

	settings, err := s.repo.ScheduleSettings(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("load schedule settings: %w", err)
	}

	day, bookedTimes, err := s.classifyDate(ctx, healthWorkerID, date, settings)
	if err != nil {
		return nil, err
	}
	if day.Status != schedule.DayAvailable && day.Status != schedule.DayLimited {
		return []TimeSlotOption{}, nil
	}

	free := schedule.FreeSlots(settings, bookedTimes)
	options := make([]TimeSlotOption, 0, len(free))
	for _, t := range free {
		options = append(options, TimeSlotOption{Value: t.String(), Label: t.Label()})
	}
	return options, nil
}

// PublicAvailability assembles the booking-calendar payload for one worker,
// served from the Redis snapshot cache when fresh.
func (s *Service) PublicAvailability(ctx context.Context, healthWorkerID int64) (*PublicAvailability, error) {
	if _, err := s.repo.GetWorkerByID(ctx, healthWorkerID); err != nil {
		return nil, err
	}

	if cached, err := s.cache.GetAvailability(ctx, healthWorkerID); err == nil {
		var out PublicAvailability
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
		// fall through and rebuild on a corrupt snapshot
	} else if !errors.Is(err, redisclient.ErrCacheMiss) {
		s.log.Warn().Err(err).Msg("availability cache read failed")
	}

	settings, err := s.repo.ScheduleSettings(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("load schedule settings: %w", err)
	}

	from := truncate(s.now())
	to := from.AddDate(0, 0, publicCalendarDays)

	blocked, err := s.repo.BlockedDates(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load blocked dates: %w", err)
	}
	overrides, err := s.repo.SlotOverrides(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load slot overrides: %w", err)
	}
	counts, err := s.repo.BookedCounts(ctx, healthWorkerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked counts: %w", err)
	}
	times, err := s.repo.BookedTimes(ctx, healthWorkerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	out := &PublicAvailability{
		UnavailableDates: make([]string, 0, len(blocked)),
		SlotLimits:       overrides,
		BookedSlots:      counts,
		BookedTimes:      make(map[string][]string, len(times)),
		DefaultSlotLimit: settings.DefaultCapacity,
		WorkingHours: WorkingHours{
			Start:    settings.WorkdayStart.String(),
			End:      settings.WorkdayEnd.String(),
			Interval: settings.SlotInterval,
		},
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if _, ok := blocked[DateKey(d)]; ok {
			out.UnavailableDates = append(out.UnavailableDates, DateKey(d))
		}
	}
	for date, tods := range times {
		rendered := make([]string, len(tods))
		for i, t := range tods {
			rendered[i] = t.String()
		}
		out.BookedTimes[date] = rendered
	}
	for _, t := range settings.SlotTimes() {
		out.TimeSlots = append(out.TimeSlots, TimeSlotOption{Value: t.String(), Label: t.Label()})
	}

	if payload, err := json.Marshal(out); err == nil {
		if err := s.cache.SetAvailability(ctx, healthWorkerID, payload); err != nil {
			s.log.Warn().Err(err).Msg("availability cache write failed")
		}
	}

	return out, nil
}

// SendReminders dispatches a reminder for every not-yet-reminded appointment
// scheduled for the day after now. Called periodically by the worker.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	tomorrow := truncate(s.now()).AddDate(0, 0, 1)

	candidates, err := s.repo.FindReminderCandidates(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("find reminder candidates: %w", err)
	}

	sent := 0
	for _, c := range candidates {
		s.notifier.NotifyAppointment(ctx, notify.Recipient{
			UserID: c.PatientUserID,
			Name:   c.PatientName,
			Phone:  c.PatientPhone,
		}, c.AppointmentID, fmt.Sprintf(
			"Reminder: you have an appointment with %s tomorrow (%s) at %s.",
			c.WorkerName, DateKey(c.Date), c.Time.Label(),
		))

		if err := s.repo.MarkReminded(ctx, c.AppointmentID); err != nil {
			s.log.Error().Int64("appointment_id", c.AppointmentID).Err(err).Msg("failed to mark reminder sent")
			continue
		}
		sent++
	}

	return sent, nil
}

// classifyDate classifies a single date and returns the booked times for it.
func (s *Service) classifyDate(ctx context.Context, healthWorkerID int64, date time.Time, settings schedule.Settings) (schedule.DayAvailability, []schedule.TimeOfDay, error) {
	key := DateKey(date)

	blocked, err := s.repo.BlockedDates(ctx, date, date)
	if err != nil {
		return schedule.DayAvailability{}, nil, fmt.Errorf("load blocked dates: %w", err)
	}
	overrides, err := s.repo.SlotOverrides(ctx, date, date)
	if err != nil {
		return schedule.DayAvailability{}, nil, fmt.Errorf("load slot overrides: %w", err)
	}
	times, err := s.repo.BookedTimes(ctx, healthWorkerID, date, date)
	if err != nil {
		return schedule.DayAvailability{}, nil, fmt.Errorf("load booked times: %w", err)
	}

	bookedTimes := times[key]

	in := schedule.DayInput{
		Date:   date,
		Today:  s.now(),
		Booked: len(bookedTimes),
	}
	if _, ok := blocked[key]; ok {
		in.Blocked = true
	}
	if cap, ok := overrides[key]; ok {
		c := cap
		in.Override = &c
	}

	return schedule.ClassifyDay(in, settings), bookedTimes, nil
}

func (s *Service) invalidateSnapshot(ctx context.Context, healthWorkerID int64) {
	if err := s.cache.InvalidateAvailability(ctx, healthWorkerID); err != nil {
		s.log.Warn().Int64("health_worker_id", healthWorkerID).Err(err).Msg("availability cache invalidation failed")
	}
}

func validSlotTime(s schedule.Settings, t schedule.TimeOfDay) bool {
	for _, slot := range s.SlotTimes() {
		if slot == t {
			return true
		}
	}
	return false
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
