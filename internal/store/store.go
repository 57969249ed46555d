// Package store defines the persistence boundary of the ledger: accounts,
// the append-only ledger and the activity log, plus the unit of work that
// binds them into one atomic mutation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AccountStore persists accounts. No delete operation exists.
type AccountStore interface {
	Get(ctx context.Context, id int64) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)
	Create(ctx context.Context, account models.Account) (models.Account, error)
	SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	// RecordFailedAttempt increments the failed-attempt counter atomically
	// and returns the new count.
	RecordFailedAttempt(ctx context.Context, id int64) (int, error)
	Lock(ctx context.Context, id int64, until time.Time) error
	// ResetAuthState clears the failed-attempt counter and any lock.
	ResetAuthState(ctx context.Context, id int64) error
	UpdatePinHash(ctx context.Context, id int64, hash string) error
	// LockForUpdate row-locks the given accounts in ascending ID order for
	// the enclosing unit of work and returns them in that order. Missing
	// accounts yield ErrNotFound.
	LockForUpdate(ctx context.Context, ids ...int64) ([]models.Account, error)
}

// LedgerLog is the append-only record of balance changes.
type LedgerLog interface {
	Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)
	// ListByAccount returns every entry of an account in creation order.
	ListByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error)
	// List returns one page of an account's entries, newest first.
	List(ctx context.Context, accountID int64, filter models.LedgerFilter) (models.LedgerPage, error)
	// SumSince returns the sum of |amount| over entries of the given type
	// created at or after since.
	SumSince(ctx context.Context, accountID int64, entryType models.EntryType, since time.Time) (decimal.Decimal, error)
	// CountTransfersTo counts transfer_out entries from sender to recipient
	// created at or after since.
	CountTransfersTo(ctx context.Context, senderID, recipientID int64, since time.Time) (int, error)
}

// ActivityLog is the write-only security and audit trail.
type ActivityLog interface {
	Append(ctx context.Context, entry models.ActivityLogEntry) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.ActivityLogEntry, error)
}

// Store groups the three stores. Inside WithTx, fn receives a Store bound to
// the unit of work; returning an error from fn rolls everything back.
type Store interface {
	Accounts() AccountStore
	Ledger() LedgerLog
	Activity() ActivityLog
	WithTx(ctx context.Context, fn func(Store) error) error
}

// NormalizeFilter applies paging defaults.
func NormalizeFilter(filter models.LedgerFilter) models.LedgerFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}
	return filter
}

// TotalPages returns the number of pages needed for total rows.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total == 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
