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

const ledgerColumns = `id, account_id, amount, type, appointment_id, package_id, created_at`

func (r *ledgerRepository) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*model.CreditTransaction, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`
	var txs []*model.CreditTransaction
	err := r.db.SelectContext(ctx, &txs, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	return txs, nil
}

func (r *ledgerRepository) LatestPurchase(ctx context.Context, accountID uuid.UUID) (*model.CreditTransaction, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM credit_transactions
		WHERE account_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var tx model.CreditTransaction
	err := r.db.GetContext(ctx, &tx, query, accountID, model.TransactionTypePurchase)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest purchase: %w", err)
	}
	return &tx, nil
}

func (r *ledgerRepository) LatestPurchaseTx(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID) (*model.CreditTransaction, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM credit_transactions
		WHERE account_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var entry model.CreditTransaction
	err := tx.GetContext(ctx, &entry, query, accountID, model.TransactionTypePurchase)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest purchase: %w", err)
	}
	return &entry, nil
}

func (r *ledgerRepository) SumForAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_transactions
		WHERE account_id = $1
	`
	var sum int
	err := r.db.GetContext(ctx, &sum, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum credit transactions: %w", err)
	}
	return sum, nil
}

// TransferTx moves credits between two accounts: two ledger rows plus two
// balance updates, all on the supplied transaction. The debit is guarded so
// the payer can never go negative; the guard firing at commit time (rather
// than the service's earlier read) is what makes concurrent double-spends
// impossible.
func (r *ledgerRepository) TransferTx(ctx context.Context, tx *sqlx.Tx, from, to uuid.UUID, amount int, txType model.TransactionType, appointmentID *uuid.UUID) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	if err := r.adjustBalanceTx(ctx, tx, from, -amount, true); err != nil {
		return err
	}
	if err := r.adjustBalanceTx(ctx, tx, to, amount, false); err != nil {
		return err
	}
	if err := r.insertEntryTx(ctx, tx, from, -amount, txType, appointmentID, nil); err != nil {
		return err
	}
	return r.insertEntryTx(ctx, tx, to, amount, txType, appointmentID, nil)
}

// ReverseTransferTx moves credits back from `from` to `to` without a balance
// guard: a reversal must always succeed even if the payee has already spent
// the credits, so `from` may go negative.
func (r *ledgerRepository) ReverseTransferTx(ctx context.Context, tx *sqlx.Tx, from, to uuid.UUID, amount int, appointmentID *uuid.UUID) error {
	if amount <= 0 {
		return fmt.Errorf("reversal amount must be positive, got %d", amount)
	}

	if err := r.adjustBalanceTx(ctx, tx, from, -amount, false); err != nil {
		return err
	}
	if err := r.adjustBalanceTx(ctx, tx, to, amount, false); err != nil {
		return err
	}
	if err := r.insertEntryTx(ctx, tx, from, -amount, model.TransactionTypeDeduction, appointmentID, nil); err != nil {
		return err
	}
	return r.insertEntryTx(ctx, tx, to, amount, model.TransactionTypeDeduction, appointmentID, nil)
}

func (r *ledgerRepository) GrantTx(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, amount int, txType model.TransactionType, packageID *string) error {
	if err := r.adjustBalanceTx(ctx, tx, accountID, amount, false); err != nil {
		return err
	}
	return r.insertEntryTx(ctx, tx, accountID, amount, txType, nil, packageID)
}

func (r *ledgerRepository) adjustBalanceTx(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, delta int, guarded bool) error {
	query := `UPDATE accounts SET credits = credits + $1, updated_at = $2 WHERE id = $3`
	args := []interface{}{delta, time.Now(), accountID}
	if guarded {
		query += ` AND credits + $1 >= 0`
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if guarded {
			return repository.ErrBalanceTooLow
		}
		return repository.ErrNotFound
	}
	return nil
}

func (r *ledgerRepository) insertEntryTx(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, amount int, txType model.TransactionType, appointmentID *uuid.UUID, packageID *string) error {
	query := `
		INSERT INTO credit_transactions (
			id, account_id, amount, type, appointment_id, package_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.New(),
		accountID,
		amount,
		txType,
		appointmentID,
		packageID,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}
