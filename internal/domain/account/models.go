// Package account defines the local projection of a provider account.
package account

import (
	"errors"
	"time"
)

// ErrAccountNotFound is returned when an account does not exist
var ErrAccountNotFound = errors.New("account not found")

// Account is the local projection of a provider account, keyed by
// (user_id, external_id). Accounts are created on first sync observation and
// updated on every subsequent one; they are never deleted by the sync path.
type Account struct {
	ID           string
	UserID       int64
	ConnectionID string
	ExternalID   string

	Name     string
	Type     string
	Subtype  string
	Currency string // ISO 4217, upper-cased

	CurrentBalance   float64
	AvailableBalance float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertParams contains the fields written on every sync observation.
// Balances are overwritten, not accumulated.
type UpsertParams struct {
	UserID       int64
	ConnectionID string
	ExternalID   string

	Name     string
	Type     string
	Subtype  string
	Currency string

	CurrentBalance   float64
	AvailableBalance float64
}
