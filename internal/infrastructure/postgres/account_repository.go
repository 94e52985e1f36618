package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"moneta/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert creates an account on first observation or refreshes its mutable
// fields on conflict with (user_id, external_id).
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	query := `
		INSERT INTO accounts (
			id, user_id, connection_id, external_id, name, account_type,
			subtype, currency, current_balance, available_balance
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, external_id)
		DO UPDATE SET
			name = EXCLUDED.name,
			account_type = EXCLUDED.account_type,
			subtype = EXCLUDED.subtype,
			currency = EXCLUDED.currency,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, user_id, connection_id, external_id, name, account_type,
		          subtype, currency, current_balance, available_balance,
		          created_at, updated_at
	`

	var acc account.Account
	var subtype sql.NullString

	err := r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.UserID, params.ConnectionID, params.ExternalID,
		params.Name, params.Type, nullString(params.Subtype), params.Currency,
		params.CurrentBalance, params.AvailableBalance,
	).Scan(
		&acc.ID, &acc.UserID, &acc.ConnectionID, &acc.ExternalID,
		&acc.Name, &acc.Type, &subtype, &acc.Currency,
		&acc.CurrentBalance, &acc.AvailableBalance,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	if subtype.Valid {
		acc.Subtype = subtype.String
	}

	return &acc, nil
}

// GetByExternalID retrieves an account by its provider external id
func (r *AccountRepository) GetByExternalID(ctx context.Context, userID int64, externalID string) (*account.Account, error) {
	query := `
		SELECT id, user_id, connection_id, external_id, name, account_type,
		       subtype, currency, current_balance, available_balance,
		       created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND external_id = $2
	`

	var acc account.Account
	var subtype sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID, externalID).Scan(
		&acc.ID, &acc.UserID, &acc.ConnectionID, &acc.ExternalID,
		&acc.Name, &acc.Type, &subtype, &acc.Currency,
		&acc.CurrentBalance, &acc.AvailableBalance,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if subtype.Valid {
		acc.Subtype = subtype.String
	}

	return &acc, nil
}

// ListByConnectionID retrieves a connection's accounts ordered by external_id
func (r *AccountRepository) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.Account, error) {
	query := `
		SELECT id, user_id, connection_id, external_id, name, account_type,
		       subtype, currency, current_balance, available_balance,
		       created_at, updated_at
		FROM accounts
		WHERE connection_id = $1
		ORDER BY external_id
	`

	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		var acc account.Account
		var subtype sql.NullString

		err := rows.Scan(
			&acc.ID, &acc.UserID, &acc.ConnectionID, &acc.ExternalID,
			&acc.Name, &acc.Type, &subtype, &acc.Currency,
			&acc.CurrentBalance, &acc.AvailableBalance,
			&acc.CreatedAt, &acc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		if subtype.Valid {
			acc.Subtype = subtype.String
		}

		accounts = append(accounts, &acc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
