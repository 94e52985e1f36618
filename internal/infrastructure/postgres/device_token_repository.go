package postgres

import (
	"context"
	"fmt"

	"moneta/internal/domain/notification"
)

// DeviceTokenRepository implements the notification.Repository interface for PostgreSQL
type DeviceTokenRepository struct {
	db *DB
}

// NewDeviceTokenRepository creates a new PostgreSQL device token repository
func NewDeviceTokenRepository(db *DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// UpsertDeviceToken registers a token, reassigning it to the given user if
// another user registered it previously (device changed hands).
func (r *DeviceTokenRepository) UpsertDeviceToken(ctx context.Context, params notification.RegisterParams) (*notification.DeviceToken, error) {
	// A token is globally unique to a device, so an existing row for the
	// same token under a different user is stale and removed first.
	_, err := r.db.ExecContext(
		ctx,
		`DELETE FROM device_tokens WHERE token = $1 AND user_id <> $2`,
		params.Token, params.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign device token: %w", err)
	}

	query := `
		INSERT INTO device_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token)
		DO UPDATE SET platform = EXCLUDED.platform
		RETURNING id, user_id, token, platform, created_at
	`

	var tok notification.DeviceToken
	err = r.db.QueryRowContext(ctx, query, params.UserID, params.Token, params.Platform).Scan(
		&tok.ID, &tok.UserID, &tok.Token, &tok.Platform, &tok.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device token: %w", err)
	}

	return &tok, nil
}

// ListTokensByUserID retrieves all device tokens for a user
func (r *DeviceTokenRepository) ListTokensByUserID(ctx context.Context, userID int64) ([]*notification.DeviceToken, error) {
	query := `
		SELECT id, user_id, token, platform, created_at
		FROM device_tokens
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*notification.DeviceToken
	for rows.Next() {
		var tok notification.DeviceToken
		if err := rows.Scan(&tok.ID, &tok.UserID, &tok.Token, &tok.Platform, &tok.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, &tok)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}

	return tokens, nil
}

// DeleteToken removes a token FCM reported as unregistered
func (r *DeviceTokenRepository) DeleteToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return nil
}
