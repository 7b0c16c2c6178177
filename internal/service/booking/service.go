package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/metrics"
	"github.com/ankit50/mediMeet/pkg/video"
)

// AppointmentCost is the fixed price of one appointment in credits.
const AppointmentCost = 2

// Join window for video tokens: a token can be issued this long before
// the scheduled start, and stays valid this long after the scheduled end.
const (
	videoJoinLeadTime     = 30 * time.Minute
	videoTokenGracePeriod = time.Hour
)

type Service struct {
	tx           repository.Tx
	accounts     repository.AccountRepository
	appointments repository.AppointmentRepository
	ledger       repository.LedgerRepository
	outbox       repository.OutboxRepository
	video        video.Provider
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	tx repository.Tx,
	accounts repository.AccountRepository,
	appointments repository.AppointmentRepository,
	ledger repository.LedgerRepository,
	outbox repository.OutboxRepository,
	videoProvider video.Provider,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		tx:           tx,
		accounts:     accounts,
		appointments: appointments,
		ledger:       ledger,
		outbox:       outbox,
		video:        videoProvider,
		metrics:      m,
		logger:       logger.With().Str("component", "booking").Logger(),
		now:          time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// BookAppointment books a slot with a verified doctor and charges the
// patient. The video session is created before the transaction opens:
// if the provider is down we fail without having written anything, and
// an orphaned session on the provider side is harmless. Everything that
// mutates our own state happens in one transaction, with the overlap
// check re-run under row locks so two concurrent requests for the same
// slot cannot both commit.
func (s *Service) BookAppointment(ctx context.Context, patientID uuid.UUID, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	doctor, err := s.accounts.Get(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, apperrors.Internal("failed to load doctor", err)
	}
	if !doctor.IsVerifiedDoctor() {
		return nil, apperrors.NotFound("doctor", nil)
	}

	patient, err := s.accounts.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Internal("failed to load patient", err)
	}
	if patient.Role != model.RolePatient {
		return nil, apperrors.NotFound("patient", nil)
	}

	if req.StartTime.Before(s.now()) {
		return nil, apperrors.BadRequest("appointment start time is in the past", nil)
	}
	if patient.Credits < AppointmentCost {
		s.countBooking("insufficient_credits")
		return nil, apperrors.InsufficientCredits(
			fmt.Sprintf("booking requires %d credits, balance is %d", AppointmentCost, patient.Credits), nil)
	}

	// Advisory pre-check. The authoritative check runs again inside the
	// transaction; failing here just avoids creating a video session for
	// a request that cannot succeed.
	taken, err := s.appointments.HasOverlap(ctx, req.DoctorID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, apperrors.Internal("failed to check slot", err)
	}
	if taken {
		s.countBooking("slot_unavailable")
		return nil, apperrors.SlotUnavailable("slot is already booked", nil)
	}

	videoStart := time.Now()
	sessionID, err := s.video.CreateSession(ctx)
	if s.metrics != nil {
		s.metrics.VideoSessionLatency.Observe(time.Since(videoStart).Seconds())
	}
	if err != nil {
		s.countBooking("video_failure")
		return nil, apperrors.ExternalDependency("video", err)
	}

	appointment := &model.Appointment{
		PatientID:          patientID,
		DoctorID:           req.DoctorID,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		Status:             model.AppointmentStatusScheduled,
		PatientDescription: req.Description,
		VideoSessionID:     sessionID,
		CreditCost:         AppointmentCost,
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Serialize concurrent bookings for the same doctor on the doctor's
		// account row. Without this, two transactions booking a free slot
		// find no conflicting rows to lock and both insert.
		if err := s.accounts.LockTx(ctx, tx, req.DoctorID); err != nil {
			return fmt.Errorf("failed to lock doctor: %w", err)
		}

		stillTaken, err := s.appointments.HasOverlapForUpdateTx(ctx, tx, req.DoctorID, req.StartTime, req.EndTime)
		if err != nil {
			return fmt.Errorf("failed to recheck slot: %w", err)
		}
		if stillTaken {
			return apperrors.SlotUnavailable("slot is already booked", nil)
		}

		if err := s.appointments.CreateTx(ctx, tx, appointment); err != nil {
			return err
		}

		if err := s.ledger.TransferTx(ctx, tx, patientID, req.DoctorID, AppointmentCost, model.TransactionTypeDeduction, &appointment.ID); err != nil {
			return err
		}

		return s.writeEventTx(ctx, tx, model.EventAppointmentBooked, appointment, patient, doctor)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBalanceTooLow):
			s.countBooking("insufficient_credits")
			return nil, apperrors.InsufficientCredits("credit balance changed during booking", err)
		case apperrors.Is(err, apperrors.ErrSlotUnavailable):
			s.countBooking("slot_unavailable")
			return nil, err
		default:
			s.countBooking("error")
			return nil, apperrors.Internal("failed to book appointment", err)
		}
	}

	s.countBooking("success")
	s.logger.Info().
		Str("appointment_id", appointment.ID.String()).
		Str("patient_id", patientID.String()).
		Str("doctor_id", req.DoctorID.String()).
		Time("start_time", req.StartTime).
		Msg("appointment booked")
	return appointment, nil
}

// CancelAppointment cancels a scheduled appointment and refunds the
// credits that were charged when it was booked. Either party may
// cancel. The status transition is a guarded compare-and-set, so a
// second concurrent cancel loses the race and reports InvalidState
// instead of refunding twice.
func (s *Service) CancelAppointment(ctx context.Context, actorID, appointmentID uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actorID != appointment.PatientID && actorID != appointment.DoctorID {
		return nil, apperrors.Unauthorized("only a participant may cancel this appointment", nil)
	}

	patient, doctor, err := s.participants(ctx, appointment)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		moved, err := s.appointments.TransitionStatusTx(ctx, tx, appointmentID, model.AppointmentStatusScheduled, model.AppointmentStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return apperrors.InvalidState("only scheduled appointments can be cancelled", nil)
		}

		if err := s.ledger.ReverseTransferTx(ctx, tx, appointment.DoctorID, appointment.PatientID, appointment.CreditCost, &appointment.ID); err != nil {
			return err
		}

		return s.writeEventTx(ctx, tx, model.EventAppointmentCancelled, appointment, patient, doctor)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidState) {
			s.countCancellation("invalid_state")
			return nil, err
		}
		s.countCancellation("error")
		return nil, apperrors.Internal("failed to cancel appointment", err)
	}

	s.countCancellation("success")
	appointment.Status = model.AppointmentStatusCancelled
	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Str("cancelled_by", actorID.String()).
		Msg("appointment cancelled")
	return appointment, nil
}

// MarkCompleted transitions a scheduled appointment to COMPLETED. Only
// the doctor may complete, and only once the scheduled end has passed.
func (s *Service) MarkCompleted(ctx context.Context, actorID, appointmentID uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actorID != appointment.DoctorID {
		return nil, apperrors.Unauthorized("only the doctor may complete this appointment", nil)
	}
	if appointment.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.InvalidState("only scheduled appointments can be completed", nil)
	}
	if s.now().Before(appointment.EndTime) {
		return nil, apperrors.InvalidState("appointment has not ended yet", nil)
	}

	patient, doctor, err := s.participants(ctx, appointment)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		moved, err := s.appointments.TransitionStatusTx(ctx, tx, appointmentID, model.AppointmentStatusScheduled, model.AppointmentStatusCompleted)
		if err != nil {
			return err
		}
		if !moved {
			return apperrors.InvalidState("only scheduled appointments can be completed", nil)
		}
		return s.writeEventTx(ctx, tx, model.EventAppointmentCompleted, appointment, patient, doctor)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidState) {
			return nil, err
		}
		return nil, apperrors.Internal("failed to complete appointment", err)
	}

	appointment.Status = model.AppointmentStatusCompleted
	return appointment, nil
}

// UpdateNotes lets the doctor attach clinical notes to a scheduled
// appointment.
func (s *Service) UpdateNotes(ctx context.Context, actorID, appointmentID uuid.UUID, notes string) (*model.Appointment, error) {
	appointment, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actorID != appointment.DoctorID {
		return nil, apperrors.Unauthorized("only the doctor may update notes", nil)
	}

	if err := s.appointments.UpdateNotes(ctx, appointmentID, notes); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.InvalidState("notes can only be added to scheduled appointments", err)
		}
		return nil, apperrors.Internal("failed to update notes", err)
	}
	appointment.Notes = &notes
	return appointment, nil
}

// GenerateVideoToken mints a join token for the appointment's video
// session. Only participants can join, only for scheduled appointments,
// and no earlier than 30 minutes before the start. The token remains
// valid until an hour after the scheduled end.
func (s *Service) GenerateVideoToken(ctx context.Context, actorID, appointmentID uuid.UUID) (*model.VideoTokenResponse, error) {
	appointment, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actorID != appointment.PatientID && actorID != appointment.DoctorID {
		return nil, apperrors.Unauthorized("only a participant may join this appointment", nil)
	}
	if appointment.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.InvalidState("appointment is not scheduled", nil)
	}
	if s.now().Before(appointment.StartTime.Add(-videoJoinLeadTime)) {
		return nil, apperrors.InvalidState("the call can be joined at most 30 minutes before the start time", nil)
	}

	token, err := s.video.IssueToken(appointment.VideoSessionID, video.TokenOptions{
		ExpiresAt: appointment.EndTime.Add(videoTokenGracePeriod),
		Data:      fmt.Sprintf("account_id=%s", actorID),
	})
	if err != nil {
		return nil, apperrors.ExternalDependency("video", err)
	}

	return &model.VideoTokenResponse{
		VideoSessionID: appointment.VideoSessionID,
		Token:          token,
	}, nil
}

// GetAppointment returns an appointment to one of its participants.
func (s *Service) GetAppointment(ctx context.Context, actorID, appointmentID uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actorID != appointment.PatientID && actorID != appointment.DoctorID {
		return nil, apperrors.Unauthorized("only a participant may view this appointment", nil)
	}
	return appointment, nil
}

// ListAppointments returns the caller's appointments, as patient or as
// doctor depending on their role.
func (s *Service) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	appointments, err := s.appointments.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Internal("failed to list appointments", err)
	}
	return appointments, nil
}

func (s *Service) getAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.appointments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, apperrors.Internal("failed to load appointment", err)
	}
	return appointment, nil
}

func (s *Service) participants(ctx context.Context, appointment *model.Appointment) (patient, doctor *model.Account, err error) {
	patient, err = s.accounts.Get(ctx, appointment.PatientID)
	if err != nil {
		return nil, nil, apperrors.Internal("failed to load patient", err)
	}
	doctor, err = s.accounts.Get(ctx, appointment.DoctorID)
	if err != nil {
		return nil, nil, apperrors.Internal("failed to load doctor", err)
	}
	return patient, doctor, nil
}

func (s *Service) writeEventTx(ctx context.Context, tx *sqlx.Tx, eventType string, appointment *model.Appointment, patient, doctor *model.Account) error {
	payload, err := json.Marshal(model.AppointmentEventPayload{
		AppointmentID: appointment.ID,
		PatientID:     appointment.PatientID,
		DoctorID:      appointment.DoctorID,
		PatientEmail:  patient.Email,
		DoctorEmail:   doctor.Email,
		StartTime:     appointment.StartTime,
		EndTime:       appointment.EndTime,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   payload,
	})
}

func (s *Service) countBooking(outcome string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countCancellation(outcome string) {
	if s.metrics != nil {
		s.metrics.CancellationsTotal.WithLabelValues(outcome).Inc()
	}
}
