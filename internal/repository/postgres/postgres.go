package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/ankit50/mediMeet/internal/repository"
)

type accountRepository struct {
	BaseRepository
}

type availabilityRepository struct {
	BaseRepository
}

type appointmentRepository struct {
	BaseRepository
}

type ledgerRepository struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

func NewAccountRepository(db *sqlx.DB) repository.AccountRepository {
	return &accountRepository{NewBaseRepository(db)}
}

func NewAvailabilityRepository(db *sqlx.DB) repository.AvailabilityRepository {
	return &availabilityRepository{NewBaseRepository(db)}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

func NewLedgerRepository(db *sqlx.DB) repository.LedgerRepository {
	return &ledgerRepository{NewBaseRepository(db)}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}
