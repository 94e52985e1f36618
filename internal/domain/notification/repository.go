package notification

import "context"

// Repository defines persistence operations for device tokens
type Repository interface {
	// UpsertDeviceToken registers a token, reassigning it if it already
	// belongs to another user.
	UpsertDeviceToken(ctx context.Context, params RegisterParams) (*DeviceToken, error)

	ListTokensByUserID(ctx context.Context, userID int64) ([]*DeviceToken, error)

	// DeleteToken removes a token that FCM reported as unregistered.
	DeleteToken(ctx context.Context, token string) error
}
