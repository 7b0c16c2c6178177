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

const availabilityColumns = `id, doctor_id, start_time, end_time, status, created_at, updated_at`

// Replace is a destructive replace of the doctor's windows: windows that
// are not attached to an appointment (status AVAILABLE) are dropped and the
// new window installed, all in one transaction.
func (r *availabilityRepository) Replace(ctx context.Context, window *model.AvailabilityWindow) error {
	window.ID = uuid.New()
	window.Status = model.AvailabilityStatusAvailable
	window.CreatedAt = time.Now()
	window.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		deleteQuery := `
			DELETE FROM availability_windows
			WHERE doctor_id = $1 AND status = $2
		`
		if _, err := tx.ExecContext(ctx, deleteQuery, window.DoctorID, model.AvailabilityStatusAvailable); err != nil {
			return fmt.Errorf("failed to clear availability windows: %w", err)
		}

		insertQuery := `
			INSERT INTO availability_windows (
				id, doctor_id, start_time, end_time, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, insertQuery,
			window.ID,
			window.DoctorID,
			window.StartTime,
			window.EndTime,
			window.Status,
			window.CreatedAt,
			window.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create availability window: %w", err)
		}
		return nil
	})
}

func (r *availabilityRepository) GetActiveWindow(ctx context.Context, doctorID uuid.UUID) (*model.AvailabilityWindow, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_windows
		WHERE doctor_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var window model.AvailabilityWindow
	err := r.db.GetContext(ctx, &window, query, doctorID, model.AvailabilityStatusAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability window: %w", err)
	}
	return &window, nil
}

func (r *availabilityRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.AvailabilityWindow, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY start_time ASC
	`
	var windows []*model.AvailabilityWindow
	err := r.db.SelectContext(ctx, &windows, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability windows: %w", err)
	}
	return windows, nil
}
