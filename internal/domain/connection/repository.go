package connection

import (
	"context"
	"time"
)

// SyncState is the set of fields a sync run is allowed to write back to a
// connection. Everything else (metadata, webhook secret, credentials) is
// owned by other writers and must not be clobbered by a sync commit.
type SyncState struct {
	AccountsCursor     *string
	TransactionCursors CursorMap
	LastSyncedAt       time.Time
}

// Repository defines persistence operations for connections
type Repository interface {
	GetByID(ctx context.Context, id string) (*Connection, error)

	// ListActive returns all connections whose metadata marks them active,
	// ordered by id. Used by the scheduler to fan out incremental syncs.
	ListActive(ctx context.Context) ([]*Connection, error)

	// UpdateCursors flushes pagination progress mid-run. Called after each
	// fully consumed page so an aborted run resumes from the last completed
	// boundary.
	UpdateCursors(ctx context.Context, id string, accountsCursor *string, txCursors CursorMap) error

	// CommitSyncState persists the outcome of a successful run in one
	// update: cursors, last_synced_at, and a cleared last_sync_error.
	CommitSyncState(ctx context.Context, id string, state SyncState) error

	// RecordSyncError durably records a typed failure without touching
	// cursors already flushed.
	RecordSyncError(ctx context.Context, id string, rec SyncErrorRecord, at time.Time) error

	// UpdateMetadata replaces the connection's metadata document (nonce
	// bookkeeping, revocation, last event name).
	UpdateMetadata(ctx context.Context, id string, md Metadata) error
}
