package sync

import (
	"errors"
	"fmt"

	"moneta/internal/domain/connection"
	"moneta/internal/infrastructure/provider"
)

// defaultRetryAfterSeconds is the conservative fallback when the provider
// throttles without a Retry-After header.
const defaultRetryAfterSeconds = 60

// RateLimitedError reports provider throttling. Recoverable; the caller's
// backoff should honor RetryAfterSeconds.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider rate limited, retry after %ds", e.RetryAfterSeconds)
}

// InvalidTransactionAmountError reports a transaction record that failed
// structural validation (missing or non-numeric amount). Requires an
// upstream fix; retrying the same payload will fail again.
type InvalidTransactionAmountError struct {
	AccountExternalID string
	RecordExternalID  string
	Err               error
}

func (e *InvalidTransactionAmountError) Error() string {
	return fmt.Sprintf("invalid amount on transaction %s (account %s): %v",
		e.RecordExternalID, e.AccountExternalID, e.Err)
}

func (e *InvalidTransactionAmountError) Unwrap() error { return e.Err }

// AmountConflictError reports that the provider returned a changed amount
// for a transaction external id already stored. Transactions are immutable,
// so this surfaces instead of being applied.
type AmountConflictError struct {
	AccountExternalID string
	RecordExternalID  string
}

func (e *AmountConflictError) Error() string {
	return fmt.Sprintf("transaction %s (account %s) returned with a different amount",
		e.RecordExternalID, e.AccountExternalID)
}

// ProviderError wraps any other transport or HTTP failure from the provider.
// Recoverable; the caller decides whether and when to retry.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// classifyClientError maps a provider ClientError into the sync taxonomy.
func classifyClientError(err error) error {
	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) && httpErr.RateLimited() {
		seconds := httpErr.RetryAfter
		if seconds <= 0 {
			seconds = defaultRetryAfterSeconds
		}
		return &RateLimitedError{RetryAfterSeconds: seconds}
	}
	return &ProviderError{Err: err}
}

// ErrorType returns the durable type tag for a sync failure, e.g.
// "rate_limited". Used by callers that alert on failures without needing
// the full record.
func ErrorType(err error) string {
	return errorRecord(err).Type
}

// errorRecord builds the durable representation of a typed sync failure.
func errorRecord(err error) connection.SyncErrorRecord {
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return connection.SyncErrorRecord{
			Type:              "rate_limited",
			Message:           rateLimited.Error(),
			RetryAfterSeconds: rateLimited.RetryAfterSeconds,
		}
	}

	var invalidAmount *InvalidTransactionAmountError
	if errors.As(err, &invalidAmount) {
		return connection.SyncErrorRecord{
			Type:              "invalid_amount",
			Message:           invalidAmount.Error(),
			AccountExternalID: invalidAmount.AccountExternalID,
			RecordExternalID:  invalidAmount.RecordExternalID,
		}
	}

	var conflict *AmountConflictError
	if errors.As(err, &conflict) {
		return connection.SyncErrorRecord{
			Type:              "amount_conflict",
			Message:           conflict.Error(),
			AccountExternalID: conflict.AccountExternalID,
			RecordExternalID:  conflict.RecordExternalID,
		}
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return connection.SyncErrorRecord{
			Type:    "provider_error",
			Message: providerErr.Error(),
		}
	}

	// Storage and other unexpected failures.
	return connection.SyncErrorRecord{
		Type:    "internal",
		Message: err.Error(),
	}
}
