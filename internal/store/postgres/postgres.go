// Package postgres implements store.Store on PostgreSQL through database/sql
// and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db *sql.DB // nil when bound to a transaction
	q  querier
}

func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Accounts() store.AccountStore { return &accountStore{q: s.q} }
func (s *Store) Ledger() store.LedgerLog      { return &ledgerLog{q: s.q} }
func (s *Store) Activity() store.ActivityLog  { return &activityLog{q: s.q} }

// WithTx runs fn inside a READ COMMITTED transaction. Row locks taken with
// LockForUpdate are held until commit or rollback. A Store already bound to
// a transaction joins it.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return store.ErrAlreadyExists
	}
	return err
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
