package account

import "context"

// Repository defines persistence operations for accounts
type Repository interface {
	// Upsert inserts an account on first sight or overwrites its mutable
	// fields (name, type, subtype, currency, balances) on conflict with
	// (user_id, external_id).
	Upsert(ctx context.Context, params UpsertParams) (*Account, error)

	GetByExternalID(ctx context.Context, userID int64, externalID string) (*Account, error)

	// ListByConnectionID returns a connection's accounts ordered by
	// external_id so the transaction phase walks them deterministically.
	ListByConnectionID(ctx context.Context, connectionID string) ([]*Account, error)
}
