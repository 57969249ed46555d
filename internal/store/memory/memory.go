// Package memory is an in-process implementation of store.Store. Units of
// work run behind a single mutex against a copy of the state, which replaces
// the live state only when the unit commits.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

type state struct {
	accounts       map[int64]models.Account
	emails         map[string]int64
	entries        []models.LedgerEntry
	activity       []models.ActivityLogEntry
	nextAccountID  int64
	nextEntryID    int64
	nextActivityID int64
}

func newState() *state {
	return &state{
		accounts: make(map[int64]models.Account),
		emails:   make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:       make(map[int64]models.Account, len(s.accounts)),
		emails:         make(map[string]int64, len(s.emails)),
		entries:        append([]models.LedgerEntry(nil), s.entries...),
		activity:       append([]models.ActivityLogEntry(nil), s.activity...),
		nextAccountID:  s.nextAccountID,
		nextEntryID:    s.nextEntryID,
		nextActivityID: s.nextActivityID,
	}
	for id, acc := range s.accounts {
		if acc.LockUntil != nil {
			until := *acc.LockUntil
			acc.LockUntil = &until
		}
		c.accounts[id] = acc
	}
	for email, id := range s.emails {
		c.emails[email] = id
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	// LedgerErr and ActivityErr, when set, are returned by every ledger or
	// activity append. Tests use them to force rollbacks and best-effort
	// failures.
	LedgerErr   error
	ActivityErr error
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock replaces the clock used to stamp created_at/updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Accounts() store.AccountStore { return &view{owner: s} }
func (s *Store) Ledger() store.LedgerLog      { return ledgerView{&view{owner: s}} }
func (s *Store) Activity() store.ActivityLog  { return activityView{&view{owner: s}} }

// WithTx runs fn against a private copy of the state and publishes the copy
// only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(&txStore{owner: s, st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// txStore is the Store handed to a unit of work. The owner's mutex is
// already held.
type txStore struct {
	owner *Store
	st    *state
}

func (t *txStore) Accounts() store.AccountStore { return &view{owner: t.owner, tx: t.st} }
func (t *txStore) Ledger() store.LedgerLog      { return ledgerView{&view{owner: t.owner, tx: t.st}} }
func (t *txStore) Activity() store.ActivityLog  { return activityView{&view{owner: t.owner, tx: t.st}} }

// WithTx joins the enclosing unit of work.
func (t *txStore) WithTx(_ context.Context, fn func(store.Store) error) error {
	return fn(t)
}

// view implements the three stores over either the live state (tx == nil,
// each call takes the mutex) or a unit-of-work copy.
type view struct {
	owner *Store
	tx    *state
}

func (v *view) acquire() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.owner.mu.Lock()
	return v.owner.st, v.owner.mu.Unlock
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (v *view) Get(ctx context.Context, id int64) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	st, release := v.acquire()
	defer release()

	acc, ok := st.accounts[id]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (v *view) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	st, release := v.acquire()
	defer release()

	id, ok := st.emails[emailKey(email)]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return st.accounts[id], nil
}

func (v *view) Create(ctx context.Context, account models.Account) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	st, release := v.acquire()
	defer release()

	key := emailKey(account.Email)
	if _, taken := st.emails[key]; taken {
		return models.Account{}, store.ErrAlreadyExists
	}

	st.nextAccountID++
	now := v.owner.now()
	account.ID = st.nextAccountID
	account.Email = key
	if account.Role == "" {
		account.Role = models.RoleStandard
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	st.accounts[account.ID] = account
	st.emails[key] = account.ID
	return account, nil
}

func (v *view) update(ctx context.Context, id int64, fn func(*models.Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, release := v.acquire()
	defer release()

	acc, ok := st.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&acc)
	acc.UpdatedAt = v.owner.now()
	st.accounts[id] = acc
	return nil
}

func (v *view) SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return v.update(ctx, id, func(a *models.Account) { a.Balance = balance })
}

func (v *view) RecordFailedAttempt(ctx context.Context, id int64) (int, error) {
	var count int
	err := v.update(ctx, id, func(a *models.Account) {
		a.FailedAttempts++
		count = a.FailedAttempts
	})
	return count, err
}

func (v *view) Lock(ctx context.Context, id int64, until time.Time) error {
	return v.update(ctx, id, func(a *models.Account) { a.LockUntil = &until })
}

func (v *view) ResetAuthState(ctx context.Context, id int64) error {
	return v.update(ctx, id, func(a *models.Account) {
		a.FailedAttempts = 0
		a.LockUntil = nil
	})
}

func (v *view) UpdatePinHash(ctx context.Context, id int64, hash string) error {
	return v.update(ctx, id, func(a *models.Account) { a.PinHash = hash })
}

// LockForUpdate returns the accounts in ascending ID order. The mutex
// already serializes units of work, so no per-row lock is taken.
func (v *view) LockForUpdate(ctx context.Context, ids ...int64) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, release := v.acquire()
	defer release()

	sorted := uniqueSorted(ids)
	out := make([]models.Account, 0, len(sorted))
	for _, id := range sorted {
		acc, ok := st.accounts[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		out = append(out, acc)
	}
	return out, nil
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
