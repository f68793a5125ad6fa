package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/healthconnect/healthconnect-server/internal/notify"
	redisclient "github.com/healthconnect/healthconnect-server/internal/redis"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

// Mocks

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetPatientForBooking(ctx context.Context, patientID int64) (*BookingPatient, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BookingPatient), args.Error(1)
}

func (m *MockRepository) GetWorkerByID(ctx context.Context, id int64) (*HealthWorker, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*HealthWorker), args.Error(1)
}

func (m *MockRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	args := m.Called(ctx, patientID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id int64, from []Status, to Status) (*Appointment, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) ScheduleSettings(ctx context.Context, fallback schedule.Settings) (schedule.Settings, error) {
	args := m.Called(ctx, fallback)
	return args.Get(0).(schedule.Settings), args.Error(1)
}

func (m *MockRepository) BlockedDates(ctx context.Context, from, to time.Time) (map[string]struct{}, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockRepository) SlotOverrides(ctx context.Context, from, to time.Time) (map[string]int, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockRepository) BookedCounts(ctx context.Context, healthWorkerID int64, from, to time.Time) (map[string]int, error) {
	args := m.Called(ctx, healthWorkerID, from, to)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockRepository) BookedTimes(ctx context.Context, healthWorkerID int64, from, to time.Time) (map[string][]schedule.TimeOfDay, error) {
	args := m.Called(ctx, healthWorkerID, from, to)
	return args.Get(0).(map[string][]schedule.TimeOfDay), args.Error(1)
}

func (m *MockRepository) FindReminderCandidates(ctx context.Context, date time.Time) ([]ReminderCandidate, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ReminderCandidate), args.Error(1)
}

func (m *MockRepository) MarkReminded(ctx context.Context, appointmentID int64) error {
	args := m.Called(ctx, appointmentID)
	return args.Error(0)
}

// fakeLocker runs the critical section inline, or refuses when busy is set.
type fakeLocker struct {
	busy bool
	keys []string
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type fakeCache struct {
	snapshots   map[int64][]byte
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[int64][]byte)}
}

func (c *fakeCache) GetAvailability(_ context.Context, id int64) ([]byte, error) {
	if data, ok := c.snapshots[id]; ok {
		return data, nil
	}
	return nil, redisclient.ErrCacheMiss
}

func (c *fakeCache) SetAvailability(_ context.Context, id int64, payload []byte) error {
	c.snapshots[id] = payload
	return nil
}

func (c *fakeCache) InvalidateAvailability(_ context.Context, id int64) error {
	c.invalidated = append(c.invalidated, id)
	delete(c.snapshots, id)
	return nil
}

type notification struct {
	appointmentID int64
	message       string
}

type recordingNotifier struct {
	sent []notification
}

func (n *recordingNotifier) NotifyAppointment(_ context.Context, _ notify.Recipient, appointmentID int64, message string) {
	n.sent = append(n.sent, notification{appointmentID: appointmentID, message: message})
}

// Fixtures

var testDefaults = schedule.Settings{
	WorkdayStart:    schedule.MustTimeOfDay("08:00"),
	WorkdayEnd:      schedule.MustTimeOfDay("17:00"),
	SlotInterval:    30,
	DefaultCapacity: 10,
}

type fixture struct {
	repo     *MockRepository
	locker   *fakeLocker
	cache    *fakeCache
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     new(MockRepository),
		locker:   &fakeLocker{},
		cache:    newFakeCache(),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.repo, f.locker, f.cache, f.notifier, testDefaults, zerolog.Nop())
	f.svc.now = func() time.Time {
		return time.Date(2026, time.March, 2, 9, 15, 0, 0, time.UTC) // a Monday morning
	}
	return f
}

func (f *fixture) expectBookingLookups(patientApproved bool) {
	phone := "09171234567"
	f.repo.On("GetPatientForBooking", mock.Anything, int64(5)).Return(&BookingPatient{
		ID: 5, UserID: 50, FullName: "Maria Santos", Phone: phone, Approved: patientApproved,
	}, nil)
	f.repo.On("GetWorkerByID", mock.Anything, int64(3)).Return(&HealthWorker{ID: 3, FullName: "Nurse Cruz"}, nil)
	f.repo.On("ScheduleSettings", mock.Anything, testDefaults).Return(testDefaults, nil)
}

func (f *fixture) expectEmptyDay(date time.Time) {
	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{}, nil)
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, nil)
	f.repo.On("BookedTimes", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string][]schedule.TimeOfDay{}, nil)
}

func wednesday() time.Time {
	return time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
}

// Tests

func TestBook_Success(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)
	f.expectEmptyDay(wednesday())

	created := &Appointment{
		ID: 77, PatientID: 5, HealthWorkerID: 3,
		Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"), Status: StatusScheduled,
	}
	f.repo.On("CreateAppointment", mock.Anything, mock.MatchedBy(func(in NewAppointment) bool {
		return in.PatientID == 5 && in.Time == schedule.MustTimeOfDay("09:30")
	})).Return(created, nil)

	appt, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(77), appt.ID)
	assert.Contains(t, f.locker.keys[0], "lock:slot:3:2026-03-04:09:30")
	assert.Equal(t, []int64{3}, f.cache.invalidated)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, int64(77), f.notifier.sent[0].appointmentID)
	f.repo.AssertExpectations(t)
}

func TestBook_UnapprovedPatient(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(false)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrPatientNotApproved)
	f.repo.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
}

func TestBook_WeekendRejected(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)
	saturday := time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)
	f.expectEmptyDay(saturday)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: saturday, Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	f.repo.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
}

func TestBook_PastDateRejected(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)
	friday := time.Date(2026, time.February, 27, 0, 0, 0, 0, time.UTC)
	f.expectEmptyDay(friday)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: friday, Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_FullDayRejected(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)

	// Capacity shrunk to 2 with 2 bookings already in place.
	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{}, nil)
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{
		"2026-03-04": 2,
	}, nil)
	f.repo.On("BookedTimes", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string][]schedule.TimeOfDay{
		"2026-03-04": {schedule.MustTimeOfDay("08:00"), schedule.MustTimeOfDay("08:30")},
	}, nil)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_ExactTimeAlreadyTaken(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)

	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{}, nil)
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, nil)
	f.repo.On("BookedTimes", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string][]schedule.TimeOfDay{
		"2026-03-04": {schedule.MustTimeOfDay("09:30")},
	}, nil)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	f.repo.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
}

func TestBook_UniqueIndexBackstop(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)
	f.expectEmptyDay(wednesday())

	// The display check and the lock both passed, but another node committed
	// first: the insert loses on the unique index.
	f.repo.On("CreateAppointment", mock.Anything, mock.Anything).Return(nil, ErrSlotTaken)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBook_LockBusy(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)
	f.locker.busy = true

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:30"),
	})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestBook_TimeOffTheSlotGrid(t *testing.T) {
	f := newFixture(t)
	f.expectBookingLookups(true)

	_, err := f.svc.Book(context.Background(), BookingInput{
		PatientID: 5, HealthWorkerID: 3, Date: wednesday(), Time: schedule.MustTimeOfDay("09:45"),
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Empty(t, f.locker.keys, "off-grid times are rejected before locking")
}

func TestCancel_InvalidTransition(t *testing.T) {
	f := newFixture(t)

	f.repo.On("UpdateStatus", mock.Anything, int64(9), []Status{StatusScheduled, StatusConfirmed}, StatusCancelled).
		Return(nil, ErrInvalidTransition)

	_, err := f.svc.Cancel(context.Background(), 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_InvalidatesSnapshot(t *testing.T) {
	f := newFixture(t)

	cancelled := &Appointment{ID: 9, HealthWorkerID: 3, Status: StatusCancelled}
	f.repo.On("UpdateStatus", mock.Anything, int64(9), mock.Anything, StatusCancelled).Return(cancelled, nil)

	_, err := f.svc.Cancel(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, f.cache.invalidated)
}

func TestMonthAvailability(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetWorkerByID", mock.Anything, int64(3)).Return(&HealthWorker{ID: 3}, nil)
	f.repo.On("ScheduleSettings", mock.Anything, testDefaults).Return(testDefaults, nil)
	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{
		"2026-03-18": {},
	}, nil)
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, nil)
	f.repo.On("BookedCounts", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string]int{
		"2026-03-11": 7,
	}, nil)

	days, err := f.svc.MonthAvailability(context.Background(), 3, 2026, time.March)
	require.NoError(t, err)
	require.Len(t, days, 31)

	byDate := make(map[string]schedule.DayAvailability, len(days))
	for _, d := range days {
		byDate[DateKey(d.Date)] = d
	}

	assert.Equal(t, schedule.DayPast, byDate["2026-03-01"].Status)
	assert.Equal(t, schedule.DayAvailable, byDate["2026-03-02"].Status) // today
	assert.Equal(t, schedule.DayUnavailable, byDate["2026-03-07"].Status)
	assert.Equal(t, schedule.DayUnavailable, byDate["2026-03-18"].Status) // blocked
	assert.Equal(t, schedule.DayLimited, byDate["2026-03-11"].Status)
	assert.Equal(t, 3, byDate["2026-03-11"].Remaining)
}

func TestFreeSlots_ExcludesBooked(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetWorkerByID", mock.Anything, int64(3)).Return(&HealthWorker{ID: 3}, nil)
	f.repo.On("ScheduleSettings", mock.Anything, testDefaults).Return(schedule.Settings{
		WorkdayStart:    schedule.MustTimeOfDay("09:00"),
		WorkdayEnd:      schedule.MustTimeOfDay("10:00"),
		SlotInterval:    30,
		DefaultCapacity: 10,
	}, nil)
	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{}, nil)
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, nil)
	f.repo.On("BookedTimes", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string][]schedule.TimeOfDay{
		"2026-03-04": {schedule.MustTimeOfDay("09:30")},
	}, nil)

	options, err := f.svc.FreeSlots(context.Background(), 3, wednesday())
	require.NoError(t, err)

	require.Len(t, options, 2)
	assert.Equal(t, "09:00", options[0].Value)
	assert.Equal(t, "10:00", options[1].Value)
	assert.Equal(t, "9:00 AM", options[0].Label)
}

func TestFreeSlots_UnbookableDayIsEmpty(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetWorkerByID", mock.Anything, int64(3)).Return(&HealthWorker{ID: 3}, nil)
	f.repo.On("ScheduleSettings", mock.Anything, testDefaults).Return(testDefaults, nil)
	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{
		"2026-03-04": {},
	}, nil)
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, nil)
	f.repo.On("BookedTimes", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string][]schedule.TimeOfDay{}, nil)

	options, err := f.svc.FreeSlots(context.Background(), 3, wednesday())
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestPublicAvailability_BuildsAndCaches(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetWorkerByID", mock.Anything, int64(3)).Return(&HealthWorker{ID: 3}, nil)
	f.repo.On("ScheduleSettings", mock.Anything, testDefaults).Return(testDefaults, nil).Once()
	f.repo.On("BlockedDates", mock.Anything, mock.Anything, mock.Anything).Return(map[string]struct{}{
		"2026-03-18": {},
	}, nil).Once()
	f.repo.On("SlotOverrides", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{
		"2026-03-10": 5,
	}, nil).Once()
	f.repo.On("BookedCounts", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string]int{
		"2026-03-04": 2,
	}, nil).Once()
	f.repo.On("BookedTimes", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(map[string][]schedule.TimeOfDay{
		"2026-03-04": {schedule.MustTimeOfDay("09:00"), schedule.MustTimeOfDay("09:30")},
	}, nil).Once()

	out, err := f.svc.PublicAvailability(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-03-18"}, out.UnavailableDates)
	assert.Equal(t, 5, out.SlotLimits["2026-03-10"])
	assert.Equal(t, 2, out.BookedSlots["2026-03-04"])
	assert.Equal(t, []string{"09:00", "09:30"}, out.BookedTimes["2026-03-04"])
	assert.Equal(t, 10, out.DefaultSlotLimit)
	assert.Equal(t, "08:00", out.WorkingHours.Start)
	assert.Equal(t, 30, out.WorkingHours.Interval)
	require.NotEmpty(t, out.TimeSlots)
	assert.Equal(t, "08:00", out.TimeSlots[0].Value)
	assert.Equal(t, "8:00 AM", out.TimeSlots[0].Label)

	// Second call is served from the snapshot cache; the Once expectations
	// above would fail if the repo were hit again.
	cached, err := f.svc.PublicAvailability(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, out.DefaultSlotLimit, cached.DefaultSlotLimit)
	f.repo.AssertExpectations(t)
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t)

	tomorrow := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	f.repo.On("FindReminderCandidates", mock.Anything, tomorrow).Return([]ReminderCandidate{
		{AppointmentID: 1, PatientUserID: 50, PatientName: "Maria", PatientPhone: "0917", Date: tomorrow, Time: schedule.MustTimeOfDay("09:00"), WorkerName: "Nurse Cruz"},
		{AppointmentID: 2, PatientUserID: 51, PatientName: "Jose", Date: tomorrow, Time: schedule.MustTimeOfDay("10:00"), WorkerName: "Nurse Cruz"},
	}, nil)
	f.repo.On("MarkReminded", mock.Anything, int64(1)).Return(nil)
	f.repo.On("MarkReminded", mock.Anything, int64(2)).Return(nil)

	sent, err := f.svc.SendReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	require.Len(t, f.notifier.sent, 2)
	assert.Contains(t, f.notifier.sent[0].message, "Nurse Cruz")
	f.repo.AssertExpectations(t)
}

func TestListByPatient_ClampsPaging(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ListByPatient", mock.Anything, int64(5), 20, 0).Return([]Appointment{}, nil).Once()
	_, err := f.svc.ListByPatient(context.Background(), 5, 0, -3)
	require.NoError(t, err)

	f.repo.On("ListByPatient", mock.Anything, int64(5), 100, 10).Return([]Appointment{}, nil).Once()
	_, err = f.svc.ListByPatient(context.Background(), 5, 500, 10)
	require.NoError(t, err)

	f.repo.AssertExpectations(t)
}
