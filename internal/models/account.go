package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the privilege level of an account holder.
type Role string

const (
	RoleStandard      Role = "standard"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdministrator
}

// Account is the authoritative balance and identity record of an account holder.
type Account struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Email          string          `json:"email" db:"email"`
	PinHash        string          `json:"-" db:"pin_hash"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	Role           Role            `json:"role" db:"role"`
	FailedAttempts int             `json:"failed_attempts" db:"failed_attempts"`
	LockUntil      *time.Time      `json:"lock_until,omitempty" db:"lock_until"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsLocked reports whether authentication must be refused at now.
func (a Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// IsAdministrator reports whether the account carries the administrator role.
func (a Account) IsAdministrator() bool {
	return a.Role == RoleAdministrator
}
