package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies a balance-affecting event.
type EntryType string

const (
	EntryDeposit     EntryType = "deposit"
	EntryWithdraw    EntryType = "withdraw"
	EntryTransferOut EntryType = "transfer_out"
	EntryTransferIn  EntryType = "transfer_in"
)

// Valid reports whether t is a ledger entry type the engine writes.
func (t EntryType) Valid() bool {
	switch t {
	case EntryDeposit, EntryWithdraw, EntryTransferOut, EntryTransferIn:
		return true
	}
	return false
}

// LedgerEntry is an immutable record of one balance change. Amount is signed:
// credits are positive, debits negative.
type LedgerEntry struct {
	ID             int64           `json:"id" db:"id"`
	AccountID      int64           `json:"account_id" db:"account_id"`
	Type           EntryType       `json:"type" db:"type"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter   decimal.Decimal `json:"balance_after" db:"balance_after"`
	CounterpartyID *int64          `json:"counterparty_id,omitempty" db:"counterparty_id"`
	Reference      uuid.UUID       `json:"reference" db:"reference"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// LedgerFilter narrows a ledger history query. Zero values mean "no filter".
type LedgerFilter struct {
	From    *time.Time
	To      *time.Time
	Type    EntryType
	Page    int
	PerPage int
}

// LedgerPage is one page of ledger history, newest first.
type LedgerPage struct {
	Entries    []LedgerEntry `json:"transactions"`
	Total      int           `json:"total"`
	Page       int           `json:"current_page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
}
