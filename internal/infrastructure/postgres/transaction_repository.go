package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	"moneta/internal/domain/transaction"
)

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Upsert inserts the transaction if (account_id, external_id) is new and
// reports whether a row was created. An existing row with the same amount is
// a no-op; a differing amount returns transaction.ErrAmountConflict.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	query := `
		INSERT INTO transactions (
			id, account_id, external_id, amount, currency,
			posted_at, description, status, tx_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, external_id) DO NOTHING
	`

	result, err := r.db.ExecContext(
		ctx, query,
		uuid.NewString(), params.AccountID, params.ExternalID,
		params.Amount, params.Currency, params.PostedAt,
		params.Description, params.Status, params.Type,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Row already existed; the stored amount must match what the provider
	// reports now. Transactions are immutable once posted.
	var stored float64
	err = r.db.QueryRowContext(
		ctx,
		`SELECT amount FROM transactions WHERE account_id = $1 AND external_id = $2`,
		params.AccountID, params.ExternalID,
	).Scan(&stored)
	if err != nil {
		return false, fmt.Errorf("failed to read stored transaction amount: %w", err)
	}

	if !sameAmount(stored, params.Amount) {
		return false, transaction.ErrAmountConflict
	}

	return false, nil
}

// GetByExternalID retrieves a transaction by its provider external id
func (r *TransactionRepository) GetByExternalID(ctx context.Context, accountID, externalID string) (*transaction.Transaction, error) {
	query := `
		SELECT id, account_id, external_id, amount, currency,
		       posted_at, description, status, tx_type, created_at
		FROM transactions
		WHERE account_id = $1 AND external_id = $2
	`

	var tx transaction.Transaction
	err := r.db.QueryRowContext(ctx, query, accountID, externalID).Scan(
		&tx.ID, &tx.AccountID, &tx.ExternalID, &tx.Amount, &tx.Currency,
		&tx.PostedAt, &tx.Description, &tx.Status, &tx.Type, &tx.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// sameAmount compares amounts at cent precision, the resolution the amounts
// are stored at.
func sameAmount(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}
