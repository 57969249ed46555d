package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountRowColumns = []string{
	"id", "name", "email", "pin_hash", "balance", "role",
	"failed_attempts", "lock_until", "created_at", "updated_at",
}

func accountRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(accountRowColumns).
		AddRow(1, "Alice", "alice@example.com", "hash", "500.00", "standard", 0, nil, now, now)
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("get", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1").
			WithArgs(int64(1)).
			WillReturnRows(accountRows(now))

		acc, err := New(db).Accounts().Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Alice", acc.Name)
		assert.True(t, acc.Balance.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, models.RoleStandard, acc.Role)
		assert.Nil(t, acc.LockUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE email = LOWER\\(\\$1\\)").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows(accountRowColumns))

		_, err = New(db).Accounts().GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create duplicate email", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs("Alice", "alice@example.com", "hash", sqlmock.AnyArg(), "standard").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err = New(db).Accounts().Create(ctx, models.Account{
			Name: "Alice", Email: "alice@example.com", PinHash: "hash",
		})
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record failed attempt", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("UPDATE accounts SET failed_attempts = failed_attempts \\+ 1").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"failed_attempts"}).AddRow(3))

		count, err := New(db).Accounts().RecordFailedAttempt(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set balance on missing account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("UPDATE accounts SET balance = \\$1").
			WithArgs(decimal.NewFromInt(10), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = New(db).Accounts().SetBalance(ctx, 7, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock and reset", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		until := now.Add(10 * time.Second)
		mock.ExpectExec("UPDATE accounts SET lock_until = \\$1").
			WithArgs(until, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET failed_attempts = 0, lock_until = NULL").
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		accounts := New(db).Accounts()
		require.NoError(t, accounts.Lock(ctx, 1, until))
		require.NoError(t, accounts.ResetAuthState(ctx, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock for update", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows(accountRowColumns).
			AddRow(1, "Alice", "alice@example.com", "hash", "500.00", "standard", 0, nil, now, now).
			AddRow(2, "Bob", "bob@example.com", "hash", "0.00", "standard", 0, nil, now, now)
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = ANY\\(\\$1\\) ORDER BY id FOR UPDATE").
			WithArgs(pq.Array([]int64{2, 1})).
			WillReturnRows(rows)

		accounts, err := New(db).Accounts().LockForUpdate(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, int64(1), accounts[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock for update missing account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = ANY").
			WillReturnRows(accountRows(now))

		_, err = New(db).Accounts().LockForUpdate(ctx, 1, 9)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestLedgerLog(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	entryColumns := []string{"id", "account_id", "type", "amount", "balance_after", "counterparty_id", "reference", "created_at"}

	t.Run("append transfer leg", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		ref := uuid.New()
		recipient := int64(2)
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WithArgs(int64(1), "transfer_out", decimal.NewFromInt(-50), decimal.NewFromInt(450), int64(2), ref, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		entry, err := New(db).Ledger().Append(ctx, models.LedgerEntry{
			AccountID:      1,
			Type:           models.EntryTransferOut,
			Amount:         decimal.NewFromInt(-50),
			BalanceAfter:   decimal.NewFromInt(450),
			CounterpartyID: &recipient,
			Reference:      ref,
			CreatedAt:      now,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(11), entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("append rejects unknown type", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		_, err = New(db).Ledger().Append(ctx, models.LedgerEntry{AccountID: 1, Type: "transfer"})
		assert.Error(t, err)
	})

	t.Run("list by account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		ref := uuid.New()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE account_id = \\$1 ORDER BY created_at, id").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(entryColumns).
				AddRow(1, 1, "deposit", "500.00", "500.00", nil, ref.String(), now).
				AddRow(2, 1, "transfer_out", "-50.00", "450.00", 2, ref.String(), now))

		entries, err := New(db).Ledger().ListByAccount(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Nil(t, entries[0].CounterpartyID)
		require.NotNil(t, entries[1].CounterpartyID)
		assert.Equal(t, int64(2), *entries[1].CounterpartyID)
		assert.Equal(t, ref, entries[1].Reference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list with filters", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		from := now.Add(-24 * time.Hour)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ledger_entries WHERE account_id = \\$1 AND type = \\$2 AND created_at >= \\$3").
			WithArgs(int64(1), "withdraw", from).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
		mock.ExpectQuery("ORDER BY created_at DESC, id DESC LIMIT \\$4 OFFSET \\$5").
			WithArgs(int64(1), "withdraw", from, 10, 10).
			WillReturnRows(sqlmock.NewRows(entryColumns).
				AddRow(5, 1, "withdraw", "-20.00", "80.00", nil, uuid.NewString(), now))

		page, err := New(db).Ledger().List(ctx, 1, models.LedgerFilter{
			Type: models.EntryWithdraw, From: &from, Page: 2, PerPage: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 25, page.Total)
		assert.Equal(t, 3, page.TotalPages)
		assert.Len(t, page.Entries, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sum since", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		since := now.Add(-24 * time.Hour)
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(ABS\\(amount\\)\\), 0\\) FROM ledger_entries").
			WithArgs(int64(1), "withdraw", since).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("900.00"))

		total, err := New(db).Ledger().SumSince(ctx, 1, models.EntryWithdraw, since)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(900)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count transfers to", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		since := now.Add(-time.Hour)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ledger_entries").
			WithArgs(int64(1), "transfer_out", int64(2), since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		count, err := New(db).Ledger().CountTransfersTo(ctx, 1, 2, since)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestActivityLog(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO activity_log").
		WithArgs(int64(1), "login", "Successful login", "10.0.0.1", "curl/8.0", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT (.+) FROM activity_log WHERE account_id = \\$1").
		WithArgs(int64(1), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "activity_type", "description", "ip_address", "user_agent", "created_at"}).
			AddRow(1, 1, "login", "Successful login", "10.0.0.1", "curl/8.0", now))

	activity := New(db).Activity()
	require.NoError(t, activity.Append(ctx, models.ActivityLogEntry{
		AccountID:    1,
		ActivityType: models.ActivityLogin,
		Description:  "Successful login",
		IPAddress:    "10.0.0.1",
		UserAgent:    "curl/8.0",
		CreatedAt:    now,
	}))

	entries, err := activity.ListByAccount(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActivityLogin, entries[0].ActivityType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1").
			WithArgs(decimal.NewFromInt(700), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = New(db).WithTx(ctx, func(tx store.Store) error {
			return tx.Accounts().SetBalance(ctx, 1, decimal.NewFromInt(700))
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err = New(db).WithTx(ctx, func(tx store.Store) error {
			if err := tx.Accounts().SetBalance(ctx, 1, decimal.NewFromInt(700)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested joins outer transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		err = New(db).WithTx(ctx, func(tx store.Store) error {
			return tx.WithTx(ctx, func(store.Store) error { return nil })
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
