package model

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "CREDIT_PURCHASE"
	TransactionTypeDeduction  TransactionType = "APPOINTMENT_DEDUCTION"
	TransactionTypeAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

// CreditTransaction is an append-only ledger entry. Rows are never updated
// or deleted; corrections are recorded as new entries with the opposite
// sign. An account's credit balance always equals the sum of its entries.
type CreditTransaction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AccountID     uuid.UUID       `db:"account_id" json:"account_id"`
	Amount        int             `db:"amount" json:"amount"`
	Type          TransactionType `db:"type" json:"type"`
	AppointmentID *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	PackageID     *string         `db:"package_id" json:"package_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type AllocateCreditsRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type CreditBalance struct {
	AccountID uuid.UUID `json:"account_id"`
	Credits   int       `json:"credits"`
}
