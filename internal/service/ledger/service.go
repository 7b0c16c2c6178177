package ledger

import (
	"context"
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
)

// planCredits maps a subscription plan to its monthly credit allocation.
var planCredits = map[string]int{
	"free_user": 0,
	"standard":  10,
	"premium":   24,
}

const allocationMonthFormat = "2006-01"

type Service struct {
	tx       repository.Tx
	accounts repository.AccountRepository
	ledger   repository.LedgerRepository
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(
	tx repository.Tx,
	accounts repository.AccountRepository,
	ledger repository.LedgerRepository,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		tx:       tx,
		accounts: accounts,
		ledger:   ledger,
		metrics:  m,
		logger:   logger.With().Str("component", "ledger").Logger(),
		now:      time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AllocateMonthlyCredits grants the account its plan allocation, at most
// once per calendar month per plan. A repeated call in the same month is
// a no-op, so the billing webhook can be delivered more than once
// without double-granting.
func (s *Service) AllocateMonthlyCredits(ctx context.Context, accountID uuid.UUID, planID string) (*model.CreditBalance, error) {
	amount, ok := planCredits[planID]
	if !ok {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown plan %q", planID), nil)
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, apperrors.Internal("failed to load account", err)
	}

	if amount == 0 {
		return &model.CreditBalance{AccountID: accountID, Credits: account.Credits}, nil
	}

	// The idempotency check runs inside the transaction, behind the
	// account row lock. Two concurrent deliveries of the same billing
	// webhook serialize on the lock; the second sees the first's grant
	// and becomes a no-op.
	month := s.now().Format(allocationMonthFormat)
	granted := false
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.LockTx(ctx, tx, accountID); err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}

		latest, err := s.ledger.LatestPurchaseTx(ctx, tx, accountID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to load allocation history: %w", err)
		}
		if latest != nil && latest.PackageID != nil && *latest.PackageID == planID &&
			latest.CreatedAt.Format(allocationMonthFormat) == month {
			return nil
		}

		granted = true
		return s.ledger.GrantTx(ctx, tx, accountID, amount, model.TransactionTypePurchase, &planID)
	})
	if err != nil {
		return nil, apperrors.Internal("failed to allocate credits", err)
	}
	if !granted {
		return &model.CreditBalance{AccountID: accountID, Credits: account.Credits}, nil
	}

	if s.metrics != nil {
		s.metrics.CreditTransfersTotal.WithLabelValues(string(model.TransactionTypePurchase)).Inc()
	}
	s.logger.Info().
		Str("account_id", accountID.String()).
		Str("plan_id", planID).
		Int("amount", amount).
		Msg("monthly credits allocated")

	return &model.CreditBalance{AccountID: accountID, Credits: account.Credits + amount}, nil
}

// GetBalance returns the account's current credit balance.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*model.CreditBalance, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, apperrors.Internal("failed to load account", err)
	}
	return &model.CreditBalance{AccountID: accountID, Credits: account.Credits}, nil
}

// GetHistory returns the account's ledger entries, newest first, after
// verifying that the entries actually sum to the stored balance. A
// mismatch means a balance was mutated outside the ledger and is
// reported rather than papered over.
func (s *Service) GetHistory(ctx context.Context, accountID uuid.UUID) ([]*model.CreditTransaction, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, apperrors.Internal("failed to load account", err)
	}

	entries, err := s.ledger.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal("failed to load ledger", err)
	}

	sum, err := s.ledger.SumForAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal("failed to sum ledger", err)
	}
	if sum != account.Credits {
		s.logger.Error().
			Str("account_id", accountID.String()).
			Int("ledger_sum", sum).
			Int("balance", account.Credits).
			Msg("ledger sum does not match account balance")
		return nil, apperrors.Invariant("credit ledger does not reconcile with account balance", nil)
	}

	return entries, nil
}
