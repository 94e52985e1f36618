// Package transaction defines the local projection of a provider transaction.
package transaction

import (
	"errors"
	"time"
)

// ErrAmountConflict is returned when the provider reports a different amount
// for a transaction external id we have already stored. Transactions are
// immutable once posted, so this is a logic error to surface, not apply.
var ErrAmountConflict = errors.New("transaction amount conflict")

// ErrTransactionNotFound is returned when a transaction does not exist
var ErrTransactionNotFound = errors.New("transaction not found")

// Transaction is the local projection of a provider transaction, keyed by
// (account_id, external_id). Created once per external id; re-syncing the
// same record is a no-op.
type Transaction struct {
	ID         string
	AccountID  string
	ExternalID string

	Amount   float64 // signed; negative for debits
	Currency string

	PostedAt    time.Time
	Description string
	Status      string
	Type        string

	CreatedAt time.Time
}

// UpsertParams contains the fields stored on first observation.
type UpsertParams struct {
	AccountID  string
	ExternalID string

	Amount   float64
	Currency string

	PostedAt    time.Time
	Description string
	Status      string
	Type        string
}
