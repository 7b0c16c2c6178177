package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository"
)

const appointmentColumns = `
	id, patient_id, doctor_id, start_time, end_time, status,
	notes, patient_description, video_session_id, credit_cost,
	created_at, updated_at
`

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.PatientID != uuid.Nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, filters.PatientID)
		argCount++
	}
	if filters.DoctorID != uuid.Nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, filters.DoctorID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	query += " ORDER BY start_time ASC"

	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListScheduledInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		AND status = $2
		AND start_time < $3
		AND end_time > $4
		ORDER BY start_time ASC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, doctorID, model.AppointmentStatusScheduled, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled appointments: %w", err)
	}
	return appointments, nil
}

// Half-open overlap: an existing appointment conflicts iff it starts before
// the candidate ends and ends after the candidate starts. Edge-touching
// intervals pass.
const overlapCondition = `start_time < $3 AND end_time > $2`

func (r *appointmentRepository) HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			AND status = '` + string(model.AppointmentStatusScheduled) + `'
			AND ` + overlapCondition + `
		)
	`
	var hasOverlap bool
	err := r.db.GetContext(ctx, &hasOverlap, query, doctorID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return hasOverlap, nil
}

// HasOverlapForUpdateTx re-checks overlap inside the booking transaction.
// FOR UPDATE locks any conflicting scheduled rows so a concurrent booking
// for the same interval serializes behind this transaction and sees the
// freshly inserted appointment when it re-checks.
func (r *appointmentRepository) HasOverlapForUpdateTx(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		SELECT id FROM appointments
		WHERE doctor_id = $1
		AND status = '` + string(model.AppointmentStatusScheduled) + `'
		AND ` + overlapCondition + `
		FOR UPDATE
	`
	var ids []uuid.UUID
	err := tx.SelectContext(ctx, &ids, query, doctorID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return len(ids) > 0, nil
}

func (r *appointmentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, start_time, end_time, status,
			notes, patient_description, video_session_id, credit_cost,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	appointment.ID = uuid.New()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = time.Now()

	_, err := tx.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.Notes,
		appointment.PatientDescription,
		appointment.VideoSessionID,
		appointment.CreditCost,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// TransitionStatusTx performs a guarded status transition. It returns false
// without error when the appointment was not in the expected `from` state,
// which callers map to their InvalidState failure.
func (r *appointmentRepository) TransitionStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to model.AppointmentStatus) (bool, error) {
	query := `
		UPDATE appointments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := tx.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition appointment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *appointmentRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	query := `
		UPDATE appointments
		SET notes = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, notes, time.Now(), id, model.AppointmentStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
