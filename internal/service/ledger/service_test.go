package ledger

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

func newFixture(t *testing.T) (*repositorytest.Store, *Service, *model.Account) {
	t.Helper()
	store := repositorytest.NewStore()
	store.Now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }
	svc := NewService(store, store.AccountRepo(), store.LedgerRepo(), nil, zerolog.Nop()).
		WithClock(store.Now)

	account := &model.Account{
		ExternalID: uuid.New().String(),
		Email:      "patient@example.com",
		Name:       "Patient",
		Role:       model.RolePatient,
	}
	require.NoError(t, store.AccountRepo().Create(context.Background(), account))
	return store, svc, account
}

func TestAllocateMonthlyCredits(t *testing.T) {
	store, svc, account := newFixture(t)

	balance, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "standard")
	require.NoError(t, err)
	assert.Equal(t, 10, balance.Credits)
	assert.Equal(t, 10, store.Accounts[account.ID].Credits)
	require.Len(t, store.Entries, 1)
	assert.Equal(t, model.TransactionTypePurchase, store.Entries[0].Type)
	require.NotNil(t, store.Entries[0].PackageID)
	assert.Equal(t, "standard", *store.Entries[0].PackageID)
}

func TestAllocateMonthlyCreditsIdempotentWithinMonth(t *testing.T) {
	store, svc, account := newFixture(t)

	_, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "premium")
	require.NoError(t, err)

	balance, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, 24, balance.Credits, "second call in the same month grants nothing")
	assert.Len(t, store.Entries, 1)
}

// The duplicate-delivery guard must run inside the grant transaction,
// behind the account row lock: a second webhook delivery serializes on the
// lock and only then checks the ledger, so it sees the first grant.
func TestAllocateMonthlyCreditsChecksBehindAccountLock(t *testing.T) {
	store, svc, account := newFixture(t)

	_, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "standard")
	require.NoError(t, err)
	_, err = svc.AllocateMonthlyCredits(context.Background(), account.ID, "standard")
	require.NoError(t, err)

	// Both deliveries took the lock, including the one that granted
	// nothing.
	require.Len(t, store.LockedAccounts, 2)
	assert.Equal(t, account.ID, store.LockedAccounts[0])
	assert.Equal(t, account.ID, store.LockedAccounts[1])
	assert.Len(t, store.Entries, 1)
	assert.Equal(t, 10, store.Accounts[account.ID].Credits)
}

func TestAllocateMonthlyCreditsNewMonth(t *testing.T) {
	store, svc, account := newFixture(t)

	_, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "standard")
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC) })
	balance, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "standard")
	require.NoError(t, err)
	assert.Equal(t, 20, balance.Credits)
	assert.Len(t, store.Entries, 2)
}

func TestAllocateMonthlyCreditsFreePlan(t *testing.T) {
	store, svc, account := newFixture(t)

	balance, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "free_user")
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Credits)
	assert.Empty(t, store.Entries, "free plan writes no ledger rows")
}

func TestAllocateMonthlyCreditsUnknownPlan(t *testing.T) {
	_, svc, account := newFixture(t)

	_, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "platinum")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestGetHistoryDetectsDrift(t *testing.T) {
	store, svc, account := newFixture(t)

	_, err := svc.AllocateMonthlyCredits(context.Background(), account.ID, "standard")
	require.NoError(t, err)

	_, err = svc.GetHistory(context.Background(), account.ID)
	require.NoError(t, err)

	// A balance mutated outside the ledger must be reported, not hidden.
	store.Accounts[account.ID].Credits = 99
	_, err = svc.GetHistory(context.Background(), account.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvariant))
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	_, svc, _ := newFixture(t)

	_, err := svc.GetBalance(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
