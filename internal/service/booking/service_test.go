package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository/repositorytest"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/video"
)

type fakeVideo struct {
	createErr error
	created   int
}

func (f *fakeVideo) CreateSession(_ context.Context) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("session-%d", f.created), nil
}

func (f *fakeVideo) IssueToken(sessionID string, _ video.TokenOptions) (string, error) {
	return "token-for-" + sessionID, nil
}

type fixture struct {
	store     *repositorytest.Store
	svc       *Service
	videoFake *fakeVideo
	patient   *model.Account
	doctor    *model.Account
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repositorytest.NewStore()
	vf := &fakeVideo{}

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc := NewService(
		store,
		store.AccountRepo(),
		store.AppointmentRepo(),
		store.LedgerRepo(),
		store.OutboxRepo(),
		vf,
		nil,
		zerolog.Nop(),
	).WithClock(func() time.Time { return now })

	f := &fixture{store: store, svc: svc, videoFake: vf, now: now}
	f.patient = f.addAccount(t, model.RolePatient, model.VerificationPending, 10)
	f.doctor = f.addAccount(t, model.RoleDoctor, model.VerificationVerified, 0)
	return f
}

func (f *fixture) addAccount(t *testing.T, role model.Role, status model.VerificationStatus, credits int) *model.Account {
	t.Helper()
	account := &model.Account{
		ExternalID:         uuid.New().String(),
		Email:              uuid.New().String() + "@example.com",
		Name:               "Account " + uuid.New().String()[:8],
		Role:               role,
		Credits:            credits,
		VerificationStatus: status,
	}
	require.NoError(t, f.store.AccountRepo().Create(context.Background(), account))
	return account
}

func (f *fixture) bookRequest(start, end time.Time) *model.BookAppointmentRequest {
	return &model.BookAppointmentRequest{
		DoctorID:  f.doctor.ID,
		StartTime: start,
		EndTime:   end,
	}
}

func (f *fixture) slot(hour, min int) (time.Time, time.Time) {
	start := time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
	return start, start.Add(30 * time.Minute)
}

func TestBookAppointment(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)

	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, appt.Status)
	assert.Equal(t, AppointmentCost, appt.CreditCost)
	assert.Equal(t, "session-1", appt.VideoSessionID)

	patient := f.store.Accounts[f.patient.ID]
	doctor := f.store.Accounts[f.doctor.ID]
	assert.Equal(t, 8, patient.Credits)
	assert.Equal(t, 2, doctor.Credits)

	require.Len(t, f.store.Entries, 2)
	require.Len(t, f.store.Events, 1)
	assert.Equal(t, model.EventAppointmentBooked, f.store.Events[0].EventType)
}

func TestBookAppointmentInsufficientCredits(t *testing.T) {
	f := newFixture(t)
	f.store.Accounts[f.patient.ID].Credits = 1
	start, end := f.slot(10, 0)

	_, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientCredits))
	assert.Zero(t, f.videoFake.created, "no video session should be created for a doomed booking")
	assert.Empty(t, f.store.Appointments)
}

func TestBookAppointmentSlotTaken(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	_, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	other := f.addAccount(t, model.RolePatient, model.VerificationPending, 10)

	// Partial overlap is rejected.
	_, err = f.svc.BookAppointment(context.Background(), other.ID, f.bookRequest(start.Add(15*time.Minute), end.Add(15*time.Minute)))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotUnavailable))

	// Edge-touching is not an overlap: the next slot starts exactly at
	// the previous end.
	_, err = f.svc.BookAppointment(context.Background(), other.ID, f.bookRequest(end, end.Add(30*time.Minute)))
	assert.NoError(t, err)
}

// Two racing bookings for the same free slot both pass the advisory
// pre-check; the doctor row lock forces the second transaction to wait, and
// its in-transaction recheck must then see the first booking. Exactly one
// may win, with exactly one transfer in the ledger.
func TestBookAppointmentRaceSecondBookerLoses(t *testing.T) {
	f := newFixture(t)
	other := f.addAccount(t, model.RolePatient, model.VerificationPending, 10)
	start, end := f.slot(10, 0)

	// Both racers read "slot free" before either commits.
	f.store.StaleOverlapRead = true

	first, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	_, err = f.svc.BookAppointment(context.Background(), other.ID, f.bookRequest(start, end))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotUnavailable))

	// Both transactions serialized on the doctor's row.
	require.Len(t, f.store.LockedAccounts, 2)
	assert.Equal(t, f.doctor.ID, f.store.LockedAccounts[0])
	assert.Equal(t, f.doctor.ID, f.store.LockedAccounts[1])

	require.Len(t, f.store.Appointments, 1)
	assert.Contains(t, f.store.Appointments, first.ID)
	require.Len(t, f.store.Entries, 2)
	assert.Equal(t, 8, f.store.Accounts[f.patient.ID].Credits)
	assert.Equal(t, 10, f.store.Accounts[other.ID].Credits)
	assert.Equal(t, 2, f.store.Accounts[f.doctor.ID].Credits)
}

func TestBookAppointmentNonPatientBooker(t *testing.T) {
	f := newFixture(t)
	other := f.addAccount(t, model.RoleDoctor, model.VerificationVerified, 10)
	start, end := f.slot(10, 0)

	_, err := f.svc.BookAppointment(context.Background(), other.ID, f.bookRequest(start, end))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, f.store.Appointments)
	assert.Equal(t, 0, f.videoFake.created)
}

func TestBookAppointmentVideoFailure(t *testing.T) {
	f := newFixture(t)
	f.videoFake.createErr = errors.New("provider down")
	start, end := f.slot(10, 0)

	_, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrExternalDependency))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Retryable())

	assert.Empty(t, f.store.Appointments)
	assert.Empty(t, f.store.Entries)
	assert.Equal(t, 10, f.store.Accounts[f.patient.ID].Credits)
}

func TestBookAppointmentRollsBackOnLedgerFailure(t *testing.T) {
	f := newFixture(t)
	f.store.TransferErr = errors.New("deadlock detected")
	start, end := f.slot(10, 0)

	_, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.Error(t, err)

	assert.Empty(t, f.store.Appointments, "appointment insert must roll back with the failed transfer")
	assert.Empty(t, f.store.Events)
	assert.Equal(t, 10, f.store.Accounts[f.patient.ID].Credits)
	assert.Equal(t, 0, f.store.Accounts[f.doctor.ID].Credits)
}

func TestBookAppointmentUnverifiedDoctor(t *testing.T) {
	f := newFixture(t)
	pending := f.addAccount(t, model.RoleDoctor, model.VerificationPending, 0)
	start, end := f.slot(10, 0)

	req := f.bookRequest(start, end)
	req.DoctorID = pending.ID
	_, err := f.svc.BookAppointment(context.Background(), f.patient.ID, req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestBookAppointmentPastStart(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(-time.Hour)

	_, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, start.Add(30*time.Minute)))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestCancelAppointmentRefunds(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	cancelled, err := f.svc.CancelAppointment(context.Background(), f.patient.ID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	assert.Equal(t, 10, f.store.Accounts[f.patient.ID].Credits, "refund restores the patient balance")
	assert.Equal(t, 0, f.store.Accounts[f.doctor.ID].Credits)
	assert.Len(t, f.store.Entries, 4, "reversal writes its own ledger rows")
	assert.Equal(t, model.EventAppointmentCancelled, f.store.Events[1].EventType)
}

func TestCancelAppointmentByDoctor(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(context.Background(), f.doctor.ID, appt.ID)
	assert.NoError(t, err)
}

func TestCancelAppointmentUnauthorized(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	stranger := f.addAccount(t, model.RolePatient, model.VerificationPending, 10)
	_, err = f.svc.CancelAppointment(context.Background(), stranger.ID, appt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
	assert.Equal(t, 8, f.store.Accounts[f.patient.ID].Credits, "no refund on rejected cancel")
}

func TestCancelAppointmentTwice(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(context.Background(), f.patient.ID, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(context.Background(), f.patient.ID, appt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))
	assert.Equal(t, 10, f.store.Accounts[f.patient.ID].Credits, "second cancel must not refund again")
}

func TestMarkCompleted(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	// Too early: the appointment has not ended.
	_, err = f.svc.MarkCompleted(context.Background(), f.doctor.ID, appt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	// Patients cannot complete.
	f.svc.WithClock(func() time.Time { return end.Add(time.Minute) })
	_, err = f.svc.MarkCompleted(context.Background(), f.patient.ID, appt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	completed, err := f.svc.MarkCompleted(context.Background(), f.doctor.ID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)
	assert.Equal(t, 8, f.store.Accounts[f.patient.ID].Credits, "completion does not move credits")
}

func TestGenerateVideoToken(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(14, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	// More than 30 minutes before the start.
	_, err = f.svc.GenerateVideoToken(context.Background(), f.patient.ID, appt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	f.svc.WithClock(func() time.Time { return start.Add(-20 * time.Minute) })

	stranger := f.addAccount(t, model.RolePatient, model.VerificationPending, 10)
	_, err = f.svc.GenerateVideoToken(context.Background(), stranger.ID, appt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	token, err := f.svc.GenerateVideoToken(context.Background(), f.patient.ID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.VideoSessionID, token.VideoSessionID)
	assert.Equal(t, "token-for-"+appt.VideoSessionID, token.Token)
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture(t)
	start, end := f.slot(10, 0)
	appt, err := f.svc.BookAppointment(context.Background(), f.patient.ID, f.bookRequest(start, end))
	require.NoError(t, err)

	_, err = f.svc.UpdateNotes(context.Background(), f.patient.ID, appt.ID, "notes")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	updated, err := f.svc.UpdateNotes(context.Background(), f.doctor.ID, appt.ID, "follow up in two weeks")
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "follow up in two weeks", *updated.Notes)
}
