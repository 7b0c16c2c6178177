package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
)

// signupBonus is granted once when an account is first created.
const signupBonus = 2

var signupBonusPackage = "signup_bonus"

type Service struct {
	tx       repository.Tx
	accounts repository.AccountRepository
	ledger   repository.LedgerRepository
	logger   zerolog.Logger
}

func NewService(tx repository.Tx, accounts repository.AccountRepository, ledger repository.LedgerRepository, logger zerolog.Logger) *Service {
	return &Service{
		tx:       tx,
		accounts: accounts,
		ledger:   ledger,
		logger:   logger.With().Str("component", "account").Logger(),
	}
}

// EnsureAccount resolves the identity provider's subject to a local
// account, creating one on first sight. New accounts start UNASSIGNED
// with the signup bonus on their ledger.
func (s *Service) EnsureAccount(ctx context.Context, req *model.CreateAccountRequest) (*model.Account, error) {
	existing, err := s.accounts.GetByExternalID(ctx, req.ExternalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("failed to load account", err)
	}

	account := &model.Account{
		ExternalID:         req.ExternalID,
		Email:              req.Email,
		Name:               req.Name,
		Role:               model.RoleUnassigned,
		VerificationStatus: model.VerificationPending,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperrors.Internal("failed to create account", err)
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.ledger.GrantTx(ctx, tx, account.ID, signupBonus, model.TransactionTypeAdjustment, &signupBonusPackage)
	})
	if err != nil {
		return nil, apperrors.Internal("failed to grant signup credits", err)
	}
	account.Credits = signupBonus

	s.logger.Info().
		Str("account_id", account.ID.String()).
		Str("external_id", req.ExternalID).
		Msg("account created")
	return account, nil
}

// SetRole completes onboarding for an UNASSIGNED account. Choosing
// DOCTOR requires credential fields and leaves the account PENDING
// verification; choosing PATIENT takes effect immediately.
func (s *Service) SetRole(ctx context.Context, accountID uuid.UUID, req *model.SetRoleRequest) (*model.Account, error) {
	account, err := s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Role != model.RoleUnassigned {
		return nil, apperrors.InvalidState("role has already been assigned", nil)
	}

	switch req.Role {
	case model.RolePatient:
		account.Role = model.RolePatient
	case model.RoleDoctor:
		if req.Specialty == nil || req.CredentialURL == nil {
			return nil, apperrors.BadRequest("doctor onboarding requires specialty and credential URL", nil)
		}
		account.Role = model.RoleDoctor
		account.Specialty = req.Specialty
		account.Experience = req.Experience
		account.CredentialURL = req.CredentialURL
		account.Description = req.Description
		account.VerificationStatus = model.VerificationPending
	default:
		return nil, apperrors.BadRequest("role must be PATIENT or DOCTOR", nil)
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, apperrors.Internal("failed to update account", err)
	}
	return account, nil
}

// Get returns a single account by id.
func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (*model.Account, error) {
	return s.get(ctx, accountID)
}

// GetByExternalID resolves an identity provider subject.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	account, err := s.accounts.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, apperrors.Internal("failed to load account", err)
	}
	return account, nil
}

// ListDoctors returns doctors with the given verification status,
// VERIFIED for the public directory, PENDING for the admin queue.
func (s *Service) ListDoctors(ctx context.Context, status model.VerificationStatus) ([]*model.Account, error) {
	doctors, err := s.accounts.ListDoctors(ctx, status)
	if err != nil {
		return nil, apperrors.Internal("failed to list doctors", err)
	}
	return doctors, nil
}

// GetDoctor returns a verified doctor for the public profile page.
func (s *Service) GetDoctor(ctx context.Context, doctorID uuid.UUID) (*model.Account, error) {
	account, err := s.get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !account.IsVerifiedDoctor() {
		return nil, apperrors.NotFound("doctor", nil)
	}
	return account, nil
}

// SetVerificationStatus approves or rejects a pending doctor. Admin
// only; enforcement happens in the middleware, the guard here is on the
// target account's role.
func (s *Service) SetVerificationStatus(ctx context.Context, doctorID uuid.UUID, status model.VerificationStatus) (*model.Account, error) {
	if err := s.accounts.SetVerificationStatus(ctx, doctorID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, apperrors.Internal("failed to update verification status", err)
	}
	return s.get(ctx, doctorID)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, apperrors.Internal("failed to load account", err)
	}
	return account, nil
}
