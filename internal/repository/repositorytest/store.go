// Package repositorytest provides in-memory implementations of the
// repository interfaces for service tests. WithTx snapshots the whole
// store and restores it when the callback fails, mirroring a rollback.
package repositorytest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository"
)

type Store struct {
	Accounts     map[uuid.UUID]*model.Account
	Windows      []*model.AvailabilityWindow
	Appointments map[uuid.UUID]*model.Appointment
	Entries      []*model.CreditTransaction
	Events       []*model.OutboxEvent

	// TransferErr, when set, is returned by the next TransferTx call.
	// Used to exercise rollback paths.
	TransferErr error

	// StaleOverlapRead, when set, makes the advisory HasOverlap report no
	// conflict even when one exists, emulating the pre-transaction read
	// both sides of a booking race observe. The transactional recheck is
	// unaffected.
	StaleOverlapRead bool

	// LockedAccounts records every LockTx call, in order.
	LockedAccounts []uuid.UUID

	// Now stamps ledger rows; defaults to time.Now. Tests that pin the
	// service clock should pin this too.
	Now func() time.Time
}

func (s *Store) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func NewStore() *Store {
	return &Store{
		Accounts:     make(map[uuid.UUID]*model.Account),
		Appointments: make(map[uuid.UUID]*model.Appointment),
	}
}

func (s *Store) AccountRepo() repository.AccountRepository           { return &accountRepo{s} }
func (s *Store) AvailabilityRepo() repository.AvailabilityRepository { return &availabilityRepo{s} }
func (s *Store) AppointmentRepo() repository.AppointmentRepository   { return &appointmentRepo{s} }
func (s *Store) LedgerRepo() repository.LedgerRepository             { return &ledgerRepo{s} }
func (s *Store) OutboxRepo() repository.OutboxRepository             { return &outboxRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	accounts     map[uuid.UUID]*model.Account
	windows      []*model.AvailabilityWindow
	appointments map[uuid.UUID]*model.Appointment
	entries      []*model.CreditTransaction
	events       []*model.OutboxEvent
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		accounts:     make(map[uuid.UUID]*model.Account, len(s.Accounts)),
		appointments: make(map[uuid.UUID]*model.Appointment, len(s.Appointments)),
	}
	for id, a := range s.Accounts {
		c := *a
		snap.accounts[id] = &c
	}
	for id, a := range s.Appointments {
		c := *a
		snap.appointments[id] = &c
	}
	for _, w := range s.Windows {
		c := *w
		snap.windows = append(snap.windows, &c)
	}
	for _, e := range s.Entries {
		c := *e
		snap.entries = append(snap.entries, &c)
	}
	for _, e := range s.Events {
		c := *e
		snap.events = append(snap.events, &c)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.Accounts = snap.accounts
	s.Appointments = snap.appointments
	s.Windows = snap.windows
	s.Entries = snap.entries
	s.Events = snap.events
}

// --- accounts ---

type accountRepo struct{ s *Store }

func (r *accountRepo) Create(_ context.Context, account *model.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	c := *account
	r.s.Accounts[account.ID] = &c
	return nil
}

func (r *accountRepo) Get(_ context.Context, id uuid.UUID) (*model.Account, error) {
	a, ok := r.s.Accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *accountRepo) GetByExternalID(_ context.Context, externalID string) (*model.Account, error) {
	for _, a := range r.s.Accounts {
		if a.ExternalID == externalID {
			c := *a
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *accountRepo) Update(_ context.Context, account *model.Account) error {
	if _, ok := r.s.Accounts[account.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *account
	c.UpdatedAt = time.Now()
	r.s.Accounts[account.ID] = &c
	return nil
}

func (r *accountRepo) ListDoctors(_ context.Context, status model.VerificationStatus) ([]*model.Account, error) {
	var out []*model.Account
	for _, a := range r.s.Accounts {
		if a.Role == model.RoleDoctor && a.VerificationStatus == status {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *accountRepo) SetVerificationStatus(_ context.Context, id uuid.UUID, status model.VerificationStatus) error {
	a, ok := r.s.Accounts[id]
	if !ok || a.Role != model.RoleDoctor {
		return repository.ErrNotFound
	}
	a.VerificationStatus = status
	return nil
}

func (r *accountRepo) LockTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	if _, ok := r.s.Accounts[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.LockedAccounts = append(r.s.LockedAccounts, id)
	return nil
}

// --- availability ---

type availabilityRepo struct{ s *Store }

func (r *availabilityRepo) Replace(_ context.Context, window *model.AvailabilityWindow) error {
	kept := r.s.Windows[:0]
	for _, w := range r.s.Windows {
		if !(w.DoctorID == window.DoctorID && w.Status == model.AvailabilityStatusAvailable) {
			kept = append(kept, w)
		}
	}
	r.s.Windows = kept

	if window.ID == uuid.Nil {
		window.ID = uuid.New()
	}
	window.CreatedAt = time.Now()
	c := *window
	r.s.Windows = append(r.s.Windows, &c)
	return nil
}

func (r *availabilityRepo) GetActiveWindow(_ context.Context, doctorID uuid.UUID) (*model.AvailabilityWindow, error) {
	for i := len(r.s.Windows) - 1; i >= 0; i-- {
		w := r.s.Windows[i]
		if w.DoctorID == doctorID && w.Status == model.AvailabilityStatusAvailable {
			c := *w
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *availabilityRepo) ListForDoctor(_ context.Context, doctorID uuid.UUID) ([]*model.AvailabilityWindow, error) {
	var out []*model.AvailabilityWindow
	for _, w := range r.s.Windows {
		if w.DoctorID == doctorID {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- appointments ---

type appointmentRepo struct{ s *Store }

func (r *appointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, ok := r.s.Appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *appointmentRepo) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range r.s.Appointments {
		if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
			continue
		}
		if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
			continue
		}
		if filters.Status != "" && a.Status != filters.Status {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *appointmentRepo) ListScheduledInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range r.s.Appointments {
		if a.DoctorID == doctorID && a.Status == model.AppointmentStatusScheduled &&
			a.StartTime.Before(to) && a.EndTime.After(from) {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *appointmentRepo) HasOverlap(_ context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	if r.s.StaleOverlapRead {
		return false, nil
	}
	return r.scanOverlap(doctorID, start, end), nil
}

func (r *appointmentRepo) scanOverlap(doctorID uuid.UUID, start, end time.Time) bool {
	for _, a := range r.s.Appointments {
		if a.DoctorID == doctorID && a.Status == model.AppointmentStatusScheduled && a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *appointmentRepo) UpdateNotes(_ context.Context, id uuid.UUID, notes string) error {
	a, ok := r.s.Appointments[id]
	if !ok || a.Status != model.AppointmentStatusScheduled {
		return repository.ErrNotFound
	}
	a.Notes = &notes
	return nil
}

func (r *appointmentRepo) CreateTx(_ context.Context, _ *sqlx.Tx, appointment *model.Appointment) error {
	appointment.ID = uuid.New()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = time.Now()
	c := *appointment
	r.s.Appointments[appointment.ID] = &c
	return nil
}

func (r *appointmentRepo) HasOverlapForUpdateTx(_ context.Context, _ *sqlx.Tx, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	return r.scanOverlap(doctorID, start, end), nil
}

func (r *appointmentRepo) TransitionStatusTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID, from, to model.AppointmentStatus) (bool, error) {
	a, ok := r.s.Appointments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return true, nil
}

// --- ledger ---

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) ListForAccount(_ context.Context, accountID uuid.UUID) ([]*model.CreditTransaction, error) {
	var out []*model.CreditTransaction
	for _, e := range r.s.Entries {
		if e.AccountID == accountID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ledgerRepo) LatestPurchase(_ context.Context, accountID uuid.UUID) (*model.CreditTransaction, error) {
	var latest *model.CreditTransaction
	for _, e := range r.s.Entries {
		if e.AccountID == accountID && e.Type == model.TransactionTypePurchase {
			if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
				latest = e
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (r *ledgerRepo) LatestPurchaseTx(ctx context.Context, _ *sqlx.Tx, accountID uuid.UUID) (*model.CreditTransaction, error) {
	return r.LatestPurchase(ctx, accountID)
}

func (r *ledgerRepo) SumForAccount(_ context.Context, accountID uuid.UUID) (int, error) {
	sum := 0
	for _, e := range r.s.Entries {
		if e.AccountID == accountID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (r *ledgerRepo) TransferTx(_ context.Context, _ *sqlx.Tx, from, to uuid.UUID, amount int, txType model.TransactionType, appointmentID *uuid.UUID) error {
	if r.s.TransferErr != nil {
		err := r.s.TransferErr
		r.s.TransferErr = nil
		return err
	}
	payer, ok := r.s.Accounts[from]
	if !ok {
		return repository.ErrNotFound
	}
	if payer.Credits < amount {
		return repository.ErrBalanceTooLow
	}
	payee, ok := r.s.Accounts[to]
	if !ok {
		return repository.ErrNotFound
	}
	payer.Credits -= amount
	payee.Credits += amount
	r.append(from, -amount, txType, appointmentID, nil)
	r.append(to, amount, txType, appointmentID, nil)
	return nil
}

func (r *ledgerRepo) ReverseTransferTx(_ context.Context, _ *sqlx.Tx, from, to uuid.UUID, amount int, appointmentID *uuid.UUID) error {
	payer, ok := r.s.Accounts[from]
	if !ok {
		return repository.ErrNotFound
	}
	payee, ok := r.s.Accounts[to]
	if !ok {
		return repository.ErrNotFound
	}
	payer.Credits -= amount
	payee.Credits += amount
	r.append(from, -amount, model.TransactionTypeDeduction, appointmentID, nil)
	r.append(to, amount, model.TransactionTypeDeduction, appointmentID, nil)
	return nil
}

func (r *ledgerRepo) GrantTx(_ context.Context, _ *sqlx.Tx, accountID uuid.UUID, amount int, txType model.TransactionType, packageID *string) error {
	a, ok := r.s.Accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	a.Credits += amount
	r.append(accountID, amount, txType, nil, packageID)
	return nil
}

func (r *ledgerRepo) append(accountID uuid.UUID, amount int, txType model.TransactionType, appointmentID *uuid.UUID, packageID *string) {
	r.s.Entries = append(r.s.Entries, &model.CreditTransaction{
		ID:            uuid.New(),
		AccountID:     accountID,
		Amount:        amount,
		Type:          txType,
		AppointmentID: appointmentID,
		PackageID:     packageID,
		CreatedAt:     r.s.clock(),
	})
}

// --- outbox ---

type outboxRepo struct{ s *Store }

func (r *outboxRepo) CreateTx(_ context.Context, _ *sqlx.Tx, event *model.OutboxEvent) error {
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	c := *event
	r.s.Events = append(r.s.Events, &c)
	return nil
}

func (r *outboxRepo) GetPendingWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	now := time.Now()
	for _, e := range r.s.Events {
		if len(out) >= limit {
			break
		}
		if e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusRetry && e.RetryAt != nil && e.RetryAt.Before(now)) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	for _, e := range r.s.Events {
		if e.ID == id {
			now := time.Now()
			e.Status = model.OutboxStatusProcessed
			e.ProcessedAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *outboxRepo) MarkRetry(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	for _, e := range r.s.Events {
		if e.ID == id {
			e.Status = model.OutboxStatusRetry
			e.ErrorMessage = &errMsg
			e.RetryAt = &retryAt
			e.RetryCount++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	for _, e := range r.s.Events {
		if e.ID == id {
			e.Status = model.OutboxStatusFailed
			e.ErrorMessage = &errMsg
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []*model.OutboxEvent
	var deleted int64
	for _, e := range r.s.Events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.Events = kept
	return deleted, nil
}
