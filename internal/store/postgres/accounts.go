package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, name, email, pin_hash, balance, role, failed_attempts, lock_until, created_at, updated_at`

type accountStore struct {
	q querier
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		acc       models.Account
		role      string
		lockUntil sql.NullTime
	)
	err := row.Scan(
		&acc.ID, &acc.Name, &acc.Email, &acc.PinHash, &acc.Balance, &role,
		&acc.FailedAttempts, &lockUntil, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return models.Account{}, err
	}
	acc.Role = models.Role(role)
	if lockUntil.Valid {
		until := lockUntil.Time
		acc.LockUntil = &until
	}
	return acc, nil
}

func (s *accountStore) Get(ctx context.Context, id int64) (models.Account, error) {
	acc, err := scanAccount(s.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	return acc, mapError(err)
}

func (s *accountStore) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	acc, err := scanAccount(s.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = LOWER($1)`, email))
	return acc, mapError(err)
}

func (s *accountStore) Create(ctx context.Context, account models.Account) (models.Account, error) {
	if account.Role == "" {
		account.Role = models.RoleStandard
	}
	created, err := scanAccount(s.q.QueryRowContext(ctx, `
		INSERT INTO accounts (name, email, pin_hash, balance, role)
		VALUES ($1, LOWER($2), $3, $4, $5)
		RETURNING `+accountColumns,
		account.Name, account.Email, account.PinHash, account.Balance, string(account.Role)))
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return created, nil
}

func (s *accountStore) SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *accountStore) RecordFailedAttempt(ctx context.Context, id int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		UPDATE accounts SET failed_attempts = failed_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts`, id).Scan(&count)
	return count, mapError(err)
}

func (s *accountStore) Lock(ctx context.Context, id int64, until time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET lock_until = $1, updated_at = NOW() WHERE id = $2`, until, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *accountStore) ResetAuthState(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts = 0, lock_until = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *accountStore) UpdatePinHash(ctx context.Context, id int64, hash string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET pin_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// LockForUpdate takes the row locks in a single statement ordered by id, so
// two transfers between the same pair of accounts always lock in the same
// order.
func (s *accountStore) LockForUpdate(ctx context.Context, ids ...int64) ([]models.Account, error) {
	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(accounts) != len(unique) {
		return nil, store.ErrNotFound
	}
	return accounts, nil
}
