package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/hsm"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

// Result is returned by every balance mutation.
type Result struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	Reference  uuid.UUID       `json:"reference"`
}

// Engine performs deposits, withdrawals and transfers. Each mutation is one
// unit of work: the affected rows are locked in ascending ID order, balances
// are re-read under the lock, policy is checked, and the ledger entries and
// balances are written together.
type Engine struct {
	st       store.Store
	limiter  *RateLimiter
	activity *ActivityRecorder
	audit    *hsm.AuditLogger
	validate *validator.Validate
	policy   config.Policy
	now      func() time.Time
}

func NewEngine(st store.Store, limiter *RateLimiter, activity *ActivityRecorder, audit *hsm.AuditLogger, policy config.Policy, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		st:       st,
		limiter:  limiter,
		activity: activity,
		audit:    audit,
		validate: validator.New(),
		policy:   policy,
		now:      now,
	}
}

// MaxAmount is the largest value a NUMERIC(14,2) column holds. It bounds
// both single amounts and balances.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// ValidateAmount accepts strictly positive amounts with at most two
// fractional digits, up to MaxAmount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// Account returns the current state of an account.
func (e *Engine) Account(ctx context.Context, accountID int64) (models.Account, error) {
	acc, err := e.st.Accounts().Get(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	return acc, err
}

func (e *Engine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (Result, error) {
	if err := ValidateAmount(amount); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.policy.StoreTimeout)
	defer cancel()

	res := Result{Reference: uuid.New()}
	now := e.now()

	err := e.st.WithTx(ctx, func(tx store.Store) error {
		acc, err := lockOne(ctx, tx, accountID)
		if err != nil {
			return err
		}

		res.NewBalance = acc.Balance.Add(amount)
		if res.NewBalance.GreaterThan(MaxAmount) {
			return ErrBalanceCeiling
		}
		if _, err := tx.Ledger().Append(ctx, models.LedgerEntry{
			AccountID:    acc.ID,
			Type:         models.EntryDeposit,
			Amount:       amount,
			BalanceAfter: res.NewBalance,
			Reference:    res.Reference,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return tx.Accounts().SetBalance(ctx, acc.ID, res.NewBalance)
	})
	if err != nil {
		return Result{}, e.fail("deposit", accountID, err)
	}

	e.audit.LogOperation(res.Reference, accountID, "DEPOSIT", amount, "balance "+res.NewBalance.StringFixed(2))
	e.activity.Record(ctx, accountID, models.ActivityDeposit,
		fmt.Sprintf("Deposited $%s", amount.StringFixed(2)))
	return res, nil
}

func (e *Engine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (Result, error) {
	if err := ValidateAmount(amount); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.policy.StoreTimeout)
	defer cancel()

	res := Result{Reference: uuid.New()}
	now := e.now()

	err := e.st.WithTx(ctx, func(tx store.Store) error {
		acc, err := lockOne(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc.IsLocked(now) {
			return &LockedError{Until: *acc.LockUntil}
		}
		if acc.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if err := e.limiter.CheckWithdrawal(ctx, tx.Ledger(), acc.ID, amount, now); err != nil {
			return err
		}

		res.NewBalance = acc.Balance.Sub(amount)
		if _, err := tx.Ledger().Append(ctx, models.LedgerEntry{
			AccountID:    acc.ID,
			Type:         models.EntryWithdraw,
			Amount:       amount.Neg(),
			BalanceAfter: res.NewBalance,
			Reference:    res.Reference,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return tx.Accounts().SetBalance(ctx, acc.ID, res.NewBalance)
	})
	if err != nil {
		return Result{}, e.fail("withdraw", accountID, err)
	}

	e.audit.LogOperation(res.Reference, accountID, "WITHDRAW", amount, "balance "+res.NewBalance.StringFixed(2))
	e.activity.Record(ctx, accountID, models.ActivityWithdraw,
		fmt.Sprintf("Withdrew $%s", amount.StringFixed(2)))
	return res, nil
}

// Transfer moves amount from senderID to the account registered under
// recipientEmail. Both legs share one reference.
func (e *Engine) Transfer(ctx context.Context, senderID int64, recipientEmail string, amount decimal.Decimal) (Result, error) {
	if err := ValidateAmount(amount); err != nil {
		return Result{}, err
	}
	if err := e.validate.Var(recipientEmail, "required,email"); err != nil {
		return Result{}, ErrInvalidEmail
	}

	ctx, cancel := context.WithTimeout(ctx, e.policy.StoreTimeout)
	defer cancel()

	recipient, err := e.st.Accounts().GetByEmail(ctx, recipientEmail)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrRecipientNotFound
	}
	if err != nil {
		return Result{}, e.fail("transfer", senderID, err)
	}
	if recipient.ID == senderID {
		return Result{}, ErrSelfTransfer
	}

	res := Result{Reference: uuid.New()}
	now := e.now()
	var sender models.Account

	err = e.st.WithTx(ctx, func(tx store.Store) error {
		locked, err := tx.Accounts().LockForUpdate(ctx, senderID, recipient.ID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		var to models.Account
		for _, acc := range locked {
			if acc.ID == senderID {
				sender = acc
			} else {
				to = acc
			}
		}

		if sender.IsLocked(now) {
			return &LockedError{Until: *sender.LockUntil}
		}
		if sender.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if err := e.limiter.CheckTransfer(ctx, tx.Ledger(), sender.ID, amount, now); err != nil {
			return err
		}
		if err := e.limiter.CheckRecipientFrequency(ctx, tx.Ledger(), sender.ID, to.ID, now); err != nil {
			return err
		}

		senderBalance := sender.Balance.Sub(amount)
		recipientBalance := to.Balance.Add(amount)
		if recipientBalance.GreaterThan(MaxAmount) {
			return ErrBalanceCeiling
		}

		if _, err := tx.Ledger().Append(ctx, models.LedgerEntry{
			AccountID:      sender.ID,
			Type:           models.EntryTransferOut,
			Amount:         amount.Neg(),
			BalanceAfter:   senderBalance,
			CounterpartyID: &to.ID,
			Reference:      res.Reference,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		if _, err := tx.Ledger().Append(ctx, models.LedgerEntry{
			AccountID:      to.ID,
			Type:           models.EntryTransferIn,
			Amount:         amount,
			BalanceAfter:   recipientBalance,
			CounterpartyID: &sender.ID,
			Reference:      res.Reference,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		if err := tx.Accounts().SetBalance(ctx, sender.ID, senderBalance); err != nil {
			return err
		}
		if err := tx.Accounts().SetBalance(ctx, to.ID, recipientBalance); err != nil {
			return err
		}

		res.NewBalance = senderBalance
		return nil
	})
	if err != nil {
		return Result{}, e.fail("transfer", senderID, err)
	}

	e.audit.LogTransfer(res.Reference, senderID, recipient.ID, amount, "SUCCESS")
	e.activity.Record(ctx, senderID, models.ActivityTransferOut,
		fmt.Sprintf("Transferred $%s to %s", amount.StringFixed(2), recipient.Email))
	e.activity.Record(ctx, recipient.ID, models.ActivityTransferIn,
		fmt.Sprintf("Received $%s from %s", amount.StringFixed(2), sender.Email))
	return res, nil
}

// History returns one page of an account's ledger, newest first.
func (e *Engine) History(ctx context.Context, accountID int64, filter models.LedgerFilter) (models.LedgerPage, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return models.LedgerPage{}, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, filter.Type)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return models.LedgerPage{}, fmt.Errorf("%w: date range end precedes start", ErrValidation)
	}
	return e.st.Ledger().List(ctx, accountID, filter)
}

// VerifyLedger replays the account's entries from zero and checks every
// balance_after and the final balance.
func (e *Engine) VerifyLedger(ctx context.Context, accountID int64) error {
	var (
		acc     models.Account
		entries []models.LedgerEntry
	)
	err := e.st.WithTx(ctx, func(tx store.Store) error {
		var err error
		if acc, err = lockOne(ctx, tx, accountID); err != nil {
			return err
		}
		entries, err = tx.Ledger().ListByAccount(ctx, accountID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("load ledger: %w", err)
	}

	running := decimal.Zero
	for _, entry := range entries {
		running = running.Add(entry.Amount)
		if !running.Equal(entry.BalanceAfter) {
			return fmt.Errorf("%w: account %d entry %d expected %s, recorded %s",
				ErrLedgerMismatch, accountID, entry.ID, running.StringFixed(2), entry.BalanceAfter.StringFixed(2))
		}
	}
	if !running.Equal(acc.Balance) {
		return fmt.Errorf("%w: account %d ledger sums to %s, balance is %s",
			ErrLedgerMismatch, accountID, running.StringFixed(2), acc.Balance.StringFixed(2))
	}
	return nil
}

func lockOne(ctx context.Context, tx store.Store, accountID int64) (models.Account, error) {
	locked, err := tx.Accounts().LockForUpdate(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	return locked[0], nil
}

// fail passes domain errors through and hides everything else behind
// ErrTransactionFailed, keeping the cause in the audit log.
func (e *Engine) fail(operation string, accountID int64, err error) error {
	if IsDomainError(err) {
		log.Printf("[ENGINE] %s rejected for account %d: %v", operation, accountID, err)
		return err
	}
	e.audit.LogError(operation, accountID, err)
	log.Printf("[ENGINE] %s failed for account %d", operation, accountID)
	return ErrTransactionFailed
}
