package models

import "time"

// ActivityType is drawn from a closed set of security and money events.
type ActivityType string

const (
	ActivityLogin           ActivityType = "login"
	ActivityLogout          ActivityType = "logout"
	ActivityFailedLogin     ActivityType = "failed_login"
	ActivityAccountLocked   ActivityType = "account_locked"
	ActivityAccountUnlocked ActivityType = "account_unlocked"
	ActivityDeposit         ActivityType = "deposit"
	ActivityWithdraw        ActivityType = "withdraw"
	ActivityTransferOut     ActivityType = "transfer_out"
	ActivityTransferIn      ActivityType = "transfer_in"
	ActivityPinChanged      ActivityType = "pin_changed"
	ActivityFailedPinChange ActivityType = "failed_pin_change"
	ActivityRegistration    ActivityType = "registration"
)

// ActivityLogEntry is a write-only record of a security-relevant event.
type ActivityLogEntry struct {
	ID           int64        `json:"id" db:"id"`
	AccountID    int64        `json:"account_id" db:"account_id"`
	ActivityType ActivityType `json:"activity_type" db:"activity_type"`
	Description  string       `json:"description" db:"description"`
	IPAddress    string       `json:"ip_address" db:"ip_address"`
	UserAgent    string       `json:"user_agent" db:"user_agent"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}
