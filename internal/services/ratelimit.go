package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

// RateLimiter enforces rolling spending caps and the per-recipient transfer
// frequency. It reads through whichever LedgerLog it is given; the engine
// passes the transaction-bound log after the account rows are locked.
type RateLimiter struct {
	policy config.Policy
}

func NewRateLimiter(policy config.Policy) *RateLimiter {
	return &RateLimiter{policy: policy}
}

// CheckWithdrawal rejects amount if it would push the trailing-window total
// of withdrawals past the daily ceiling.
func (r *RateLimiter) CheckWithdrawal(ctx context.Context, ledger store.LedgerLog, accountID int64, amount decimal.Decimal, now time.Time) error {
	return r.checkCap(ctx, ledger, accountID, models.EntryWithdraw, amount,
		now.Add(-r.policy.WithdrawalWindow), r.policy.DailyWithdrawalLimit, ErrDailyWithdrawalLimitExceeded)
}

// CheckTransfer is CheckWithdrawal for outgoing transfers.
func (r *RateLimiter) CheckTransfer(ctx context.Context, ledger store.LedgerLog, senderID int64, amount decimal.Decimal, now time.Time) error {
	return r.checkCap(ctx, ledger, senderID, models.EntryTransferOut, amount,
		now.Add(-r.policy.TransferWindow), r.policy.DailyTransferLimit, ErrDailyTransferLimitExceeded)
}

// CheckRecipientFrequency rejects a transfer once the sender has already
// sent RecipientHourlyLimit transfers to recipient inside the window.
func (r *RateLimiter) CheckRecipientFrequency(ctx context.Context, ledger store.LedgerLog, senderID, recipientID int64, now time.Time) error {
	count, err := ledger.CountTransfersTo(ctx, senderID, recipientID, now.Add(-r.policy.RecipientWindow))
	if err != nil {
		return fmt.Errorf("count recent transfers: %w", err)
	}
	if count >= r.policy.RecipientHourlyLimit {
		return &FrequencyError{Limit: r.policy.RecipientHourlyLimit, Window: r.policy.RecipientWindow}
	}
	return nil
}

func (r *RateLimiter) checkCap(ctx context.Context, ledger store.LedgerLog, accountID int64, entryType models.EntryType,
	amount decimal.Decimal, since time.Time, ceiling decimal.Decimal, kind error) error {
	used, err := ledger.SumSince(ctx, accountID, entryType, since)
	if err != nil {
		return fmt.Errorf("sum recent %s: %w", entryType, err)
	}
	if used.Add(amount).GreaterThan(ceiling) {
		remaining := ceiling.Sub(used)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		return &LimitError{Kind: kind, Limit: ceiling, Used: used, Remaining: remaining}
	}
	return nil
}
