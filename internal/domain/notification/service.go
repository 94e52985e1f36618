package notification

import (
	"context"
	"fmt"
	"log"
)

// Titles and bodies for the sync-failure alert, keyed by error type.
// Unknown types fall through to a generic message.
var failureBodies = map[string]string{
	"rate_limited":    "Your bank is temporarily limiting requests. We'll retry shortly.",
	"provider_error":  "Your bank could not be reached. We'll retry shortly.",
	"invalid_amount":  "Your bank sent data we could not read. Our team is looking into it.",
	"amount_conflict": "Your bank reported conflicting data. Our team is looking into it.",
}

const defaultFailureBody = "We hit a problem refreshing your accounts. We'll retry shortly."

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	messenger Messenger
}

// NewService creates a new notification service. messenger may be nil, in
// which case sends are skipped and only logged.
func NewService(repo Repository, messenger Messenger) *Service {
	return &Service{repo: repo, messenger: messenger}
}

// RegisterDevice registers a device token for a user
func (s *Service) RegisterDevice(ctx context.Context, params RegisterParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// NotifySyncFailure pushes a sync-failure alert to all of the user's devices.
// Delivery is best effort; a push failure never fails the sync path that
// triggered it.
func (s *Service) NotifySyncFailure(ctx context.Context, userID int64, institutionName, errorType string) error {
	tokens, err := s.repo.ListTokensByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list device tokens: %w", err)
	}
	if len(tokens) == 0 || s.messenger == nil {
		return nil
	}

	body, ok := failureBodies[errorType]
	if !ok {
		body = defaultFailureBody
	}
	title := fmt.Sprintf("Trouble syncing %s", institutionName)

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	data := map[string]string{
		"route":      "connections",
		"error_type": errorType,
	}

	if err := s.messenger.SendMulticast(ctx, tokenStrings, title, body, data); err != nil {
		log.Printf("Error sending sync failure notification to user %d: %v", userID, err)
	}

	return nil
}
