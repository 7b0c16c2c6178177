package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository/repositorytest"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
)

// The fixed clock is 08:00 on a Monday; the doctor works 09:00 to 12:00.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func newService(store *repositorytest.Store, now time.Time) *Service {
	return NewService(
		store.AccountRepo(),
		store.AvailabilityRepo(),
		store.AppointmentRepo(),
		nil,
		zerolog.Nop(),
		Config{
			HorizonDays: 4,
			SlotMinutes: 30,
			Now:         func() time.Time { return now },
		},
	)
}

func addDoctor(t *testing.T, store *repositorytest.Store, status model.VerificationStatus) *model.Account {
	t.Helper()
	doctor := &model.Account{
		ExternalID:         uuid.New().String(),
		Email:              "doc@example.com",
		Name:               "Dr. Example",
		Role:               model.RoleDoctor,
		VerificationStatus: status,
	}
	require.NoError(t, store.AccountRepo().Create(context.Background(), doctor))
	return doctor
}

func setWindow(t *testing.T, store *repositorytest.Store, doctorID uuid.UUID, startHour, endHour int) {
	t.Helper()
	require.NoError(t, store.AvailabilityRepo().Replace(context.Background(), &model.AvailabilityWindow{
		DoctorID:  doctorID,
		StartTime: time.Date(2025, 3, 1, startHour, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, endHour, 0, 0, 0, time.UTC),
		Status:    model.AvailabilityStatusAvailable,
	}))
}

func addScheduled(t *testing.T, store *repositorytest.Store, doctorID uuid.UUID, start time.Time) {
	t.Helper()
	err := store.AppointmentRepo().CreateTx(context.Background(), nil, &model.Appointment{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
	})
	require.NoError(t, err)
}

func TestGetAvailableSlots(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationVerified)
	setWindow(t, store, doctor.ID, 9, 12)
	svc := newService(store, testNow)

	days, err := svc.GetAvailableSlots(context.Background(), doctor.ID)
	require.NoError(t, err)
	require.Len(t, days, 4, "every day in the horizon appears, even without slots")

	// 09:00 to 12:00 in 30 minute steps is six slots.
	assert.Len(t, days[0].Slots, 6)
	assert.Equal(t, "2025-03-10", days[0].Date)
	assert.Equal(t, "Monday, March 10", days[0].DisplayDate)

	first := days[0].Slots[0]
	assert.Equal(t, 9, first.StartTime.Hour())
	assert.Equal(t, "9:00 AM - 9:30 AM", first.Formatted)

	last := days[0].Slots[5]
	assert.Equal(t, 11, last.StartTime.Hour())
	assert.Equal(t, 30, last.StartTime.Minute())
}

func TestGetAvailableSlotsSubtractsBooked(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationVerified)
	setWindow(t, store, doctor.ID, 9, 12)
	addScheduled(t, store, doctor.ID, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	svc := newService(store, testNow)

	days, err := svc.GetAvailableSlots(context.Background(), doctor.ID)
	require.NoError(t, err)

	require.Len(t, days[0].Slots, 5)
	for _, slot := range days[0].Slots {
		assert.False(t, slot.StartTime.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))
	}

	// The booked slot's neighbors survive: 09:30-10:00 and 10:30-11:00
	// touch the booking at its edges without overlapping it.
	assert.Equal(t, 30, days[0].Slots[1].StartTime.Minute())
	assert.Equal(t, 10, days[0].Slots[2].StartTime.Hour())
	assert.Equal(t, 30, days[0].Slots[2].StartTime.Minute())

	// Other days are unaffected.
	assert.Len(t, days[1].Slots, 6)
}

func TestGetAvailableSlotsSkipsPast(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationVerified)
	setWindow(t, store, doctor.ID, 9, 12)

	// 10:15 on day one: 09:00, 09:30 and 10:00 have already started.
	svc := newService(store, time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC))

	days, err := svc.GetAvailableSlots(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Len(t, days[0].Slots, 3)
	assert.Equal(t, 30, days[0].Slots[0].StartTime.Minute())
	assert.Equal(t, 10, days[0].Slots[0].StartTime.Hour())
	assert.Len(t, days[1].Slots, 6)
}

func TestGetAvailableSlotsFullyBookedDayStillListed(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationVerified)
	setWindow(t, store, doctor.ID, 9, 10)
	addScheduled(t, store, doctor.ID, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	addScheduled(t, store, doctor.ID, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC))
	svc := newService(store, testNow)

	days, err := svc.GetAvailableSlots(context.Background(), doctor.ID)
	require.NoError(t, err)
	require.Len(t, days, 4)
	assert.Empty(t, days[0].Slots)
	assert.Equal(t, "2025-03-10", days[0].Date)
}

func TestGetAvailableSlotsUnverifiedDoctor(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationPending)
	setWindow(t, store, doctor.ID, 9, 12)
	svc := newService(store, testNow)

	_, err := svc.GetAvailableSlots(context.Background(), doctor.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestGetAvailableSlotsNoWindow(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationVerified)
	svc := newService(store, testNow)

	_, err := svc.GetAvailableSlots(context.Background(), doctor.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSetAvailabilityReplaces(t *testing.T) {
	store := repositorytest.NewStore()
	doctor := addDoctor(t, store, model.VerificationVerified)
	svc := newService(store, testNow)

	_, err := svc.SetAvailability(context.Background(), doctor.ID, &model.SetAvailabilityRequest{
		StartTime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = svc.SetAvailability(context.Background(), doctor.ID, &model.SetAvailabilityRequest{
		StartTime: time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	windows, err := svc.GetAvailability(context.Background(), doctor.ID)
	require.NoError(t, err)
	require.Len(t, windows, 1, "setting availability replaces the previous window")
	assert.Equal(t, 13, windows[0].StartTime.Hour())
}

func TestSetAvailabilityNotDoctor(t *testing.T) {
	store := repositorytest.NewStore()
	patient := &model.Account{Role: model.RolePatient}
	require.NoError(t, store.AccountRepo().Create(context.Background(), patient))
	svc := newService(store, testNow)

	_, err := svc.SetAvailability(context.Background(), patient.ID, &model.SetAvailabilityRequest{
		StartTime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
