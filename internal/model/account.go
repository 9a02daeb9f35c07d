package model

import "time"

// AccountID uniquely identifies an account across the system
type AccountID string

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusInactive  AccountStatus = "inactive"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Valid reports whether s is one of the known statuses
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusSuspended:
		return true
	}
	return false
}

// Account is a persisted user account.
// Email and Identifier are each unique across all accounts.
type Account struct {
	ID           AccountID     `json:"id"`
	Name         string        `json:"name"`
	Nickname     string        `json:"nickname"`
	Identifier   string        `json:"identifier"` // 11-digit CPF, digits only
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"` // argon2id PHC string, never the plaintext
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// IsActive reports whether the account may log in
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
