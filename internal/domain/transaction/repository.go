package transaction

import "context"

// Repository defines persistence operations for transactions
type Repository interface {
	// Upsert inserts the transaction if (account_id, external_id) is new and
	// reports whether a row was created. When the row already exists with
	// the same amount the call is a no-op; a differing amount returns
	// ErrAmountConflict.
	Upsert(ctx context.Context, params UpsertParams) (created bool, err error)

	GetByExternalID(ctx context.Context, accountID, externalID string) (*Transaction, error)
}
