package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = errors.New("amount must be greater than zero with at most two decimal places")
	ErrAmountTooLarge    = errors.New("amount exceeds the maximum of 999999999999.99")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrSelfTransfer      = errors.New("cannot transfer to your own account")
	ErrRecipientNotFound = errors.New("recipient account not found")
	ErrInvalidPIN        = errors.New("PIN must be 4 to 6 digits")
	ErrSamePIN           = errors.New("new PIN must be different from the current PIN")
)

// Policy errors.
var (
	ErrInsufficientFunds                  = errors.New("insufficient funds")
	ErrDailyWithdrawalLimitExceeded       = errors.New("daily withdrawal limit exceeded")
	ErrDailyTransferLimitExceeded         = errors.New("daily transfer limit exceeded")
	ErrRecipientTransferFrequencyExceeded = errors.New("too many transfers to this recipient")
	ErrAccountLocked                      = errors.New("account is locked")
	ErrAdministratorImmutable             = errors.New("administrator accounts cannot be frozen or unfrozen")
	ErrBalanceCeiling                     = errors.New("resulting balance exceeds the maximum supported balance")
)

// Authentication errors.
var (
	ErrWrongCredentials = errors.New("invalid email or PIN")
	ErrIncorrectPIN     = errors.New("current PIN is incorrect")
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrEmailTaken        = errors.New("email is already registered")
	ErrTransactionFailed = errors.New("transaction failed, please try again")
	ErrLedgerMismatch    = errors.New("ledger does not reconcile with balance")
)

// LimitError reports a rejected amount against a rolling cap.
type LimitError struct {
	Kind      error
	Limit     decimal.Decimal
	Used      decimal.Decimal
	Remaining decimal.Decimal
}

func (e *LimitError) Error() string {
	if e.Remaining.IsPositive() {
		return fmt.Sprintf("%s: only %s remaining of the %s daily limit",
			e.Kind, e.Remaining.StringFixed(2), e.Limit.StringFixed(2))
	}
	return fmt.Sprintf("%s: daily limit of %s already reached", e.Kind, e.Limit.StringFixed(2))
}

func (e *LimitError) Unwrap() error { return e.Kind }

// FrequencyError reports too many transfers to one recipient.
type FrequencyError struct {
	Limit  int
	Window time.Duration
}

func (e *FrequencyError) Error() string {
	return fmt.Sprintf("%s: at most %d transfers per %s", ErrRecipientTransferFrequencyExceeded, e.Limit, e.Window)
}

func (e *FrequencyError) Unwrap() error { return ErrRecipientTransferFrequencyExceeded }

// LockedError carries the instant the lock expires.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// RetryAfter returns the time left on the lock at now, rounded up to a second.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

var domainErrors = []error{
	ErrValidation, ErrInvalidAmount, ErrAmountTooLarge, ErrInvalidEmail, ErrSelfTransfer,
	ErrRecipientNotFound, ErrInvalidPIN, ErrSamePIN, ErrInsufficientFunds, ErrBalanceCeiling, ErrDailyWithdrawalLimitExceeded,
	ErrDailyTransferLimitExceeded, ErrRecipientTransferFrequencyExceeded, ErrAccountLocked,
	ErrAdministratorImmutable, ErrWrongCredentials, ErrIncorrectPIN, ErrAccountNotFound,
	ErrEmailTaken, ErrLedgerMismatch, ErrTransactionFailed,
}

// IsDomainError reports whether err is one of the errors callers are meant
// to see. Anything else is an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
