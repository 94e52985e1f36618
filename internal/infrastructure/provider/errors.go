package provider

import (
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the provider. RetryAfter carries the
// parsed Retry-After header in seconds for 429 responses (0 when absent).
type HTTPError struct {
	Status     int
	RetryAfter int
	Details    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider API error (status %d): %s", e.Status, e.Details)
}

// RateLimited reports whether the provider throttled the request.
func (e *HTTPError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// TransportError is a network-level failure or a malformed response body.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError is a provider call that exceeded the client timeout.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider call timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
