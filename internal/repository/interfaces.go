package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ankit50/mediMeet/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("record not found")
	// ErrBalanceTooLow is returned by guarded ledger debits when the payer
	// cannot cover the amount at commit time.
	ErrBalanceTooLow = errors.New("balance too low")
)

type (
	// Tx is the unit-of-work runner shared by all postgres repositories.
	// Every multi-write operation in the booking core runs inside exactly
	// one WithTx call.
	Tx interface {
		WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
	}

	AccountRepository interface {
		Create(ctx context.Context, account *model.Account) error
		Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
		GetByExternalID(ctx context.Context, externalID string) (*model.Account, error)
		Update(ctx context.Context, account *model.Account) error
		ListDoctors(ctx context.Context, status model.VerificationStatus) ([]*model.Account, error)
		SetVerificationStatus(ctx context.Context, id uuid.UUID, status model.VerificationStatus) error

		// LockTx takes a row lock on the account for the duration of the
		// transaction. Concurrent transactions locking the same account
		// serialize here, so checks made after the lock see each other's
		// committed writes. A plain FOR UPDATE on conflicting rows is not
		// enough for bookings: when the slot is free there are no rows to
		// lock, and two inserts can slip past each other.
		LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	}

	AvailabilityRepository interface {
		// Replace removes the doctor's unattached windows and installs the
		// new one as a single statement batch (destructive replace).
		Replace(ctx context.Context, window *model.AvailabilityWindow) error
		GetActiveWindow(ctx context.Context, doctorID uuid.UUID) (*model.AvailabilityWindow, error)
		ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.AvailabilityWindow, error)
	}

	AppointmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		ListScheduledInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.Appointment, error)
		HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
		UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error

		// Transactional variants used by the booking and cancellation
		// coordinators.
		CreateTx(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error
		HasOverlapForUpdateTx(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, start, end time.Time) (bool, error)
		TransitionStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to model.AppointmentStatus) (bool, error)
	}

	// LedgerRepository owns credit_transactions rows and the paired balance
	// mutations on accounts. Balance and ledger entry always change inside
	// the same transaction; there is deliberately no method to touch one
	// without the other.
	LedgerRepository interface {
		ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*model.CreditTransaction, error)
		LatestPurchase(ctx context.Context, accountID uuid.UUID) (*model.CreditTransaction, error)
		// LatestPurchaseTx is LatestPurchase on the supplied transaction,
		// for idempotency checks that must see writes serialized behind an
		// account row lock.
		LatestPurchaseTx(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID) (*model.CreditTransaction, error)
		SumForAccount(ctx context.Context, accountID uuid.UUID) (int, error)

		// TransferTx debits `from` and credits `to` by amount, writing both
		// ledger rows. The debit is guarded: it fails with ErrBalanceTooLow
		// when the payer cannot cover the amount.
		TransferTx(ctx context.Context, tx *sqlx.Tx, from, to uuid.UUID, amount int, txType model.TransactionType, appointmentID *uuid.UUID) error
		// ReverseTransferTx debits `from` and credits `to` with no balance
		// guard: reversing a charge may drive `from` negative.
		ReverseTransferTx(ctx context.Context, tx *sqlx.Tx, from, to uuid.UUID, amount int, appointmentID *uuid.UUID) error
		// GrantTx credits an account, e.g. a monthly plan allocation.
		GrantTx(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, amount int, txType model.TransactionType, packageID *string) error
	}

	OutboxRepository interface {
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
