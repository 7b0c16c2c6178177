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

const accountColumns = `
	id, external_id, email, name, image_url, role, credits,
	specialty, experience, credential_url, description, verification_status,
	created_at, updated_at
`

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (
			id, external_id, email, name, image_url, role, credits,
			specialty, experience, credential_url, description, verification_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	account.ID = uuid.New()
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.ExternalID,
		account.Email,
		account.Name,
		account.ImageURL,
		account.Role,
		account.Credits,
		account.Specialty,
		account.Experience,
		account.CredentialURL,
		account.Description,
		account.VerificationStatus,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var account model.Account
	err := r.db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = $1`

	var account model.Account
	err := r.db.GetContext(ctx, &account, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by external id: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) Update(ctx context.Context, account *model.Account) error {
	query := `
		UPDATE accounts
		SET email = $1, name = $2, image_url = $3, role = $4,
			specialty = $5, experience = $6, credential_url = $7,
			description = $8, verification_status = $9, updated_at = $10
		WHERE id = $11
	`
	account.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		account.Email,
		account.Name,
		account.ImageURL,
		account.Role,
		account.Specialty,
		account.Experience,
		account.CredentialURL,
		account.Description,
		account.VerificationStatus,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
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

func (r *accountRepository) ListDoctors(ctx context.Context, status model.VerificationStatus) ([]*model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE role = $1 AND verification_status = $2
		ORDER BY name ASC
	`
	var accounts []*model.Account
	err := r.db.SelectContext(ctx, &accounts, query, model.RoleDoctor, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return accounts, nil
}

// LockTx takes the account row lock. FOR UPDATE blocks until any other
// transaction holding the same row commits or rolls back, so everything the
// caller checks after this sees that transaction's writes.
func (r *accountRepository) LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.GetContext(ctx, &locked, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

func (r *accountRepository) SetVerificationStatus(ctx context.Context, id uuid.UUID, status model.VerificationStatus) error {
	query := `
		UPDATE accounts
		SET verification_status = $1, updated_at = $2
		WHERE id = $3 AND role = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id, model.RoleDoctor)
	if err != nil {
		return fmt.Errorf("failed to set verification status: %w", err)
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
