// Package notification delivers sync-failure alerts to a user's devices.
package notification

import (
	"errors"
	"time"
)

// ErrInvalidToken is returned when a device token is empty
var ErrInvalidToken = errors.New("device token is required")

// DeviceToken is one registered push target for a user
type DeviceToken struct {
	ID        int64
	UserID    int64
	Token     string
	Platform  string
	CreatedAt time.Time
}

// RegisterParams contains the fields for registering a device token
type RegisterParams struct {
	UserID   int64
	Token    string
	Platform string
}

// Validate checks the registration parameters
func (p RegisterParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Token == "" {
		return ErrInvalidToken
	}
	return nil
}
