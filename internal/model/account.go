package model

type Role string

const (
	RoleUnassigned Role = "UNASSIGNED"
	RolePatient    Role = "PATIENT"
	RoleDoctor     Role = "DOCTOR"
	RoleAdmin      Role = "ADMIN"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Account is a user acting as patient, doctor or admin. Credits are mutated
// only through ledger transactions; every change to Credits commits together
// with a matching CreditTransaction row.
type Account struct {
	Base
	ExternalID string  `db:"external_id" json:"external_id"`
	Email      string  `db:"email" json:"email"`
	Name       string  `db:"name" json:"name"`
	ImageURL   *string `db:"image_url" json:"image_url,omitempty"`
	Role       Role    `db:"role" json:"role"`
	Credits    int     `db:"credits" json:"credits"`

	// Doctor-specific fields
	Specialty          *string            `db:"specialty" json:"specialty,omitempty"`
	Experience         *int               `db:"experience" json:"experience,omitempty"`
	CredentialURL      *string            `db:"credential_url" json:"credential_url,omitempty"`
	Description        *string            `db:"description" json:"description,omitempty"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
}

// IsVerifiedDoctor reports whether the account may take bookings.
func (a *Account) IsVerifiedDoctor() bool {
	return a.Role == RoleDoctor && a.VerificationStatus == VerificationVerified
}

type CreateAccountRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Name       string `json:"name" binding:"required"`
}

// SetRoleRequest is the onboarding payload: an UNASSIGNED account picks a
// role. Doctor onboarding carries credential fields and lands in PENDING
// verification.
type SetRoleRequest struct {
	Role          Role    `json:"role" binding:"required,oneof=PATIENT DOCTOR"`
	Specialty     *string `json:"specialty"`
	Experience    *int    `json:"experience"`
	CredentialURL *string `json:"credential_url"`
	Description   *string `json:"description"`
}

type SetVerificationRequest struct {
	Status VerificationStatus `json:"status" binding:"required,oneof=VERIFIED REJECTED"`
}
