package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"moneta/internal/domain/connection"
)

// ConnectionRepository implements the connection.Repository interface for PostgreSQL
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `
	id, user_id, institution_id, credentials, accounts_cursor,
	transaction_cursors, last_synced_at, last_sync_error, last_sync_error_at,
	webhook_secret, metadata, created_at, updated_at
`

type connectionScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row connectionScanner) (*connection.Connection, error) {
	var conn connection.Connection
	var accountsCursor sql.NullString
	var lastSyncedAt, lastSyncErrorAt sql.NullTime
	var txCursors, lastSyncError, metadata []byte

	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.InstitutionID, &conn.Credentials,
		&accountsCursor, &txCursors, &lastSyncedAt, &lastSyncError,
		&lastSyncErrorAt, &conn.WebhookSecret, &metadata,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accountsCursor.Valid {
		conn.AccountsCursor = &accountsCursor.String
	}
	if lastSyncedAt.Valid {
		conn.LastSyncedAt = &lastSyncedAt.Time
	}
	if lastSyncErrorAt.Valid {
		conn.LastSyncErrorAt = &lastSyncErrorAt.Time
	}

	if err := json.Unmarshal(txCursors, &conn.TransactionCursors); err != nil {
		return nil, fmt.Errorf("failed to decode transaction cursors: %w", err)
	}
	if len(lastSyncError) > 0 {
		var rec connection.SyncErrorRecord
		if err := json.Unmarshal(lastSyncError, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode sync error record: %w", err)
		}
		conn.LastSyncError = &rec
	}
	if err := json.Unmarshal(metadata, &conn.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode connection metadata: %w", err)
	}

	return &conn, nil
}

// GetByID retrieves a connection by its ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return conn, nil
}

// ListActive retrieves all connections whose metadata marks them active
func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE metadata->>'status' = 'active'
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return conns, nil
}

// UpdateCursors flushes pagination progress mid-run
func (r *ConnectionRepository) UpdateCursors(ctx context.Context, id string, accountsCursor *string, txCursors connection.CursorMap) error {
	cursors, err := json.Marshal(txCursors)
	if err != nil {
		return fmt.Errorf("failed to encode transaction cursors: %w", err)
	}

	query := `
		UPDATE connections
		SET accounts_cursor = $1, transaction_cursors = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, nullStringPtr(accountsCursor), cursors, id)
	if err != nil {
		return fmt.Errorf("failed to update cursors: %w", err)
	}

	return requireConnection(result)
}

// CommitSyncState persists the outcome of a successful run in one update:
// cursors, last_synced_at, and a cleared last_sync_error.
func (r *ConnectionRepository) CommitSyncState(ctx context.Context, id string, state connection.SyncState) error {
	cursors, err := json.Marshal(state.TransactionCursors)
	if err != nil {
		return fmt.Errorf("failed to encode transaction cursors: %w", err)
	}

	query := `
		UPDATE connections
		SET accounts_cursor = $1,
		    transaction_cursors = $2,
		    last_synced_at = $3,
		    last_sync_error = NULL,
		    last_sync_error_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, nullStringPtr(state.AccountsCursor), cursors, state.LastSyncedAt, id)
	if err != nil {
		return fmt.Errorf("failed to commit sync state: %w", err)
	}

	return requireConnection(result)
}

// RecordSyncError durably records a typed failure without touching cursors
func (r *ConnectionRepository) RecordSyncError(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode sync error record: %w", err)
	}

	query := `
		UPDATE connections
		SET last_sync_error = $1, last_sync_error_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, encoded, at, id)
	if err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}

	return requireConnection(result)
}

// UpdateMetadata replaces the connection's metadata document
func (r *ConnectionRepository) UpdateMetadata(ctx context.Context, id string, md connection.Metadata) error {
	encoded, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode connection metadata: %w", err)
	}

	query := `
		UPDATE connections
		SET metadata = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to update connection metadata: %w", err)
	}

	return requireConnection(result)
}

func requireConnection(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return connection.ErrConnectionNotFound
	}
	return nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
