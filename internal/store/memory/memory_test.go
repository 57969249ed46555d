package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T, s *Store, email string, balance string) models.Account {
	t.Helper()
	acc, err := s.Accounts().Create(context.Background(), models.Account{
		Name:    "Test User",
		Email:   email,
		Balance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return acc
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		s := New()
		acc := newAccount(t, s, "Alice@Example.com", "10.00")

		assert.Equal(t, int64(1), acc.ID)
		assert.Equal(t, models.RoleStandard, acc.Role)

		byEmail, err := s.Accounts().GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byEmail.ID)

		_, err = s.Accounts().Get(ctx, 99)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		s := New()
		newAccount(t, s, "bob@example.com", "0")

		_, err := s.Accounts().Create(ctx, models.Account{Email: "BOB@example.com"})
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("auth state", func(t *testing.T) {
		s := New()
		acc := newAccount(t, s, "carol@example.com", "0")

		for want := 1; want <= 3; want++ {
			got, err := s.Accounts().RecordFailedAttempt(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		until := time.Now().Add(time.Minute)
		require.NoError(t, s.Accounts().Lock(ctx, acc.ID, until))
		locked, _ := s.Accounts().Get(ctx, acc.ID)
		assert.True(t, locked.IsLocked(time.Now()))

		require.NoError(t, s.Accounts().ResetAuthState(ctx, acc.ID))
		reset, _ := s.Accounts().Get(ctx, acc.ID)
		assert.Zero(t, reset.FailedAttempts)
		assert.Nil(t, reset.LockUntil)
	})

	t.Run("lock for update orders by id", func(t *testing.T) {
		s := New()
		a := newAccount(t, s, "a@example.com", "0")
		b := newAccount(t, s, "b@example.com", "0")

		accounts, err := s.Accounts().LockForUpdate(ctx, b.ID, a.ID, b.ID)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, a.ID, accounts[0].ID)
		assert.Equal(t, b.ID, accounts[1].ID)

		_, err = s.Accounts().LockForUpdate(ctx, a.ID, 42)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit publishes changes", func(t *testing.T) {
		s := New()
		acc := newAccount(t, s, "a@example.com", "0")

		err := s.WithTx(ctx, func(tx store.Store) error {
			if err := tx.Accounts().SetBalance(ctx, acc.ID, decimal.NewFromInt(50)); err != nil {
				return err
			}
			_, err := tx.Ledger().Append(ctx, models.LedgerEntry{
				AccountID:    acc.ID,
				Type:         models.EntryDeposit,
				Amount:       decimal.NewFromInt(50),
				BalanceAfter: decimal.NewFromInt(50),
			})
			return err
		})
		require.NoError(t, err)

		got, _ := s.Accounts().Get(ctx, acc.ID)
		assert.True(t, got.Balance.Equal(decimal.NewFromInt(50)))
		entries, _ := s.Ledger().ListByAccount(ctx, acc.ID)
		assert.Len(t, entries, 1)
	})

	t.Run("error rolls back", func(t *testing.T) {
		s := New()
		acc := newAccount(t, s, "a@example.com", "0")
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(tx store.Store) error {
			require.NoError(t, tx.Accounts().SetBalance(ctx, acc.ID, decimal.NewFromInt(50)))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, _ := s.Accounts().Get(ctx, acc.ID)
		assert.True(t, got.Balance.IsZero())
	})

	t.Run("injected ledger error", func(t *testing.T) {
		s := New()
		acc := newAccount(t, s, "a@example.com", "0")
		s.LedgerErr = errors.New("disk full")

		_, err := s.Ledger().Append(ctx, models.LedgerEntry{AccountID: acc.ID, Type: models.EntryDeposit})
		assert.EqualError(t, err, "disk full")
	})

	t.Run("cancelled context discards work", func(t *testing.T) {
		s := New()
		acc := newAccount(t, s, "a@example.com", "0")
		cctx, cancel := context.WithCancel(ctx)

		err := s.WithTx(cctx, func(tx store.Store) error {
			require.NoError(t, tx.Accounts().SetBalance(cctx, acc.ID, decimal.NewFromInt(5)))
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)

		got, _ := s.Accounts().Get(ctx, acc.ID)
		assert.True(t, got.Balance.IsZero())
	})
}

func TestLedgerQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })
	sender := newAccount(t, s, "sender@example.com", "0")
	recipient := newAccount(t, s, "recipient@example.com", "0")
	other := newAccount(t, s, "other@example.com", "0")

	appendEntry := func(accountID int64, typ models.EntryType, amount string, at time.Time, counterparty *int64) {
		_, err := s.Ledger().Append(ctx, models.LedgerEntry{
			AccountID:      accountID,
			Type:           typ,
			Amount:         decimal.RequireFromString(amount),
			CounterpartyID: counterparty,
			CreatedAt:      at,
		})
		require.NoError(t, err)
	}

	appendEntry(sender.ID, models.EntryDeposit, "1000", now.Add(-48*time.Hour), nil)
	appendEntry(sender.ID, models.EntryWithdraw, "-300", now.Add(-25*time.Hour), nil)
	appendEntry(sender.ID, models.EntryWithdraw, "-200", now.Add(-2*time.Hour), nil)
	appendEntry(sender.ID, models.EntryTransferOut, "-10", now.Add(-90*time.Minute), &recipient.ID)
	appendEntry(sender.ID, models.EntryTransferOut, "-10", now.Add(-30*time.Minute), &recipient.ID)
	appendEntry(sender.ID, models.EntryTransferOut, "-10", now.Add(-10*time.Minute), &other.ID)

	t.Run("sum since", func(t *testing.T) {
		total, err := s.Ledger().SumSince(ctx, sender.ID, models.EntryWithdraw, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "200", total.String())
	})

	t.Run("count transfers to recipient", func(t *testing.T) {
		count, err := s.Ledger().CountTransfersTo(ctx, sender.ID, recipient.ID, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("list pages newest first", func(t *testing.T) {
		page, err := s.Ledger().List(ctx, sender.ID, models.LedgerFilter{Page: 1, PerPage: 4})
		require.NoError(t, err)
		assert.Equal(t, 6, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Entries, 4)
		assert.Equal(t, other.ID, *page.Entries[0].CounterpartyID)

		second, err := s.Ledger().List(ctx, sender.ID, models.LedgerFilter{Page: 2, PerPage: 4})
		require.NoError(t, err)
		assert.Len(t, second.Entries, 2)
	})

	t.Run("list filters by type and date", func(t *testing.T) {
		from := now.Add(-3 * time.Hour)
		page, err := s.Ledger().List(ctx, sender.ID, models.LedgerFilter{Type: models.EntryWithdraw, From: &from})
		require.NoError(t, err)
		require.Len(t, page.Entries, 1)
		assert.Equal(t, "-200", page.Entries[0].Amount.String())
	})
}

func TestActivity(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := newAccount(t, s, "a@example.com", "0")

	for _, typ := range []models.ActivityType{models.ActivityLogin, models.ActivityDeposit, models.ActivityLogout} {
		require.NoError(t, s.Activity().Append(ctx, models.ActivityLogEntry{AccountID: acc.ID, ActivityType: typ}))
	}

	entries, err := s.Activity().ListByAccount(ctx, acc.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActivityLogout, entries[0].ActivityType)

	s.ActivityErr = errors.New("unavailable")
	assert.Error(t, s.Activity().Append(ctx, models.ActivityLogEntry{AccountID: acc.ID}))
}
