package account

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository/repositorytest"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
)

func newService(store *repositorytest.Store) *Service {
	return NewService(store, store.AccountRepo(), store.LedgerRepo(), zerolog.Nop())
}

func strptr(s string) *string { return &s }

func TestEnsureAccountCreatesWithBonus(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)

	account, err := svc.EnsureAccount(context.Background(), &model.CreateAccountRequest{
		ExternalID: "idp_123",
		Email:      "new@example.com",
		Name:       "New User",
	})
	require.NoError(t, err)

	assert.Equal(t, model.RoleUnassigned, account.Role)
	assert.Equal(t, signupBonus, account.Credits)
	require.Len(t, store.Entries, 1, "the signup bonus is on the ledger")
	assert.Equal(t, signupBonus, store.Entries[0].Amount)
}

func TestEnsureAccountIdempotent(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)

	req := &model.CreateAccountRequest{ExternalID: "idp_123", Email: "new@example.com", Name: "New User"}
	first, err := svc.EnsureAccount(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.EnsureAccount(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.Entries, 1, "no second bonus for an existing account")
}

func TestSetRolePatient(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)
	account, err := svc.EnsureAccount(context.Background(), &model.CreateAccountRequest{
		ExternalID: "idp_1", Email: "p@example.com", Name: "P",
	})
	require.NoError(t, err)

	updated, err := svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{Role: model.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, updated.Role)
}

func TestSetRoleDoctorRequiresCredentials(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)
	account, err := svc.EnsureAccount(context.Background(), &model.CreateAccountRequest{
		ExternalID: "idp_1", Email: "d@example.com", Name: "D",
	})
	require.NoError(t, err)

	_, err = svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{Role: model.RoleDoctor})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	updated, err := svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{
		Role:          model.RoleDoctor,
		Specialty:     strptr("Cardiology"),
		CredentialURL: strptr("https://example.com/credential.pdf"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, updated.Role)
	assert.Equal(t, model.VerificationPending, updated.VerificationStatus)
}

func TestSetRoleOnlyOnce(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)
	account, err := svc.EnsureAccount(context.Background(), &model.CreateAccountRequest{
		ExternalID: "idp_1", Email: "p@example.com", Name: "P",
	})
	require.NoError(t, err)

	_, err = svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{Role: model.RolePatient})
	require.NoError(t, err)

	_, err = svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{Role: model.RoleDoctor})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))
}

func TestVerificationFlow(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)
	account, err := svc.EnsureAccount(context.Background(), &model.CreateAccountRequest{
		ExternalID: "idp_1", Email: "d@example.com", Name: "D",
	})
	require.NoError(t, err)
	_, err = svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{
		Role:          model.RoleDoctor,
		Specialty:     strptr("Dermatology"),
		CredentialURL: strptr("https://example.com/cred.pdf"),
	})
	require.NoError(t, err)

	pending, err := svc.ListDoctors(context.Background(), model.VerificationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	verified, err := svc.SetVerificationStatus(context.Background(), account.ID, model.VerificationVerified)
	require.NoError(t, err)
	assert.True(t, verified.IsVerifiedDoctor())

	directory, err := svc.ListDoctors(context.Background(), model.VerificationVerified)
	require.NoError(t, err)
	assert.Len(t, directory, 1)
}

func TestSetVerificationStatusNonDoctor(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newService(store)
	account, err := svc.EnsureAccount(context.Background(), &model.CreateAccountRequest{
		ExternalID: "idp_1", Email: "p@example.com", Name: "P",
	})
	require.NoError(t, err)
	_, err = svc.SetRole(context.Background(), account.ID, &model.SetRoleRequest{Role: model.RolePatient})
	require.NoError(t, err)

	_, err = svc.SetVerificationStatus(context.Background(), account.ID, model.VerificationVerified)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
