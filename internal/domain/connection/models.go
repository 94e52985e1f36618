// Package connection holds the persisted state of a user-institution link:
// pagination cursors, last sync outcome, lifecycle metadata, and the
// webhook secret issued during the provider handshake.
package connection

import (
	"errors"
	"time"
)

// ErrConnectionNotFound is returned when a connection does not exist
var ErrConnectionNotFound = errors.New("connection not found")

// Status is the lifecycle state of a connection
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

const (
	// nonceTTL matches the provider's maximum webhook redelivery window.
	nonceTTL = 24 * time.Hour

	// maxRetainedNonces bounds metadata growth for very chatty connections.
	maxRetainedNonces = 512
)

// SyncErrorRecord is the durable, typed record of the last failed sync run.
// It is stored on the connection so health surfaces can report degradation
// without parsing logs.
type SyncErrorRecord struct {
	Type              string `json:"type"` // rate_limited, invalid_amount, amount_conflict, provider_error, internal
	Message           string `json:"message,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	AccountExternalID string `json:"accountExternalId,omitempty"`
	RecordExternalID  string `json:"recordExternalId,omitempty"`
}

// Metadata is the free-form lifecycle state of a connection. It is stored as
// a single JSONB column and merged back whole, so metadata-only writes (e.g.
// a revoke action) never race with cursor updates, which live in their own
// columns.
type Metadata struct {
	Status        Status               `json:"status"`
	RevokedAt     *time.Time           `json:"revokedAt,omitempty"`
	RevokedReason string               `json:"revokedReason,omitempty"`
	LastEvent     string               `json:"lastEvent,omitempty"`
	Nonces        map[string]time.Time `json:"nonces,omitempty"`
}

// Revoked reports whether the connection has been revoked.
func (m *Metadata) Revoked() bool {
	return m.Status == StatusRevoked
}

// SeenNonce reports whether a webhook nonce was already recorded and is
// still within its retention window.
func (m *Metadata) SeenNonce(nonce string, now time.Time) bool {
	seenAt, ok := m.Nonces[nonce]
	if !ok {
		return false
	}
	return now.Sub(seenAt) < nonceTTL
}

// RecordNonce stores a nonce with its arrival time, pruning expired entries
// and enforcing the retention cap (oldest evicted first).
func (m *Metadata) RecordNonce(nonce string, now time.Time) {
	if m.Nonces == nil {
		m.Nonces = make(map[string]time.Time)
	}

	for n, seenAt := range m.Nonces {
		if now.Sub(seenAt) >= nonceTTL {
			delete(m.Nonces, n)
		}
	}

	m.Nonces[nonce] = now

	for len(m.Nonces) > maxRetainedNonces {
		oldest := ""
		var oldestAt time.Time
		for n, seenAt := range m.Nonces {
			if oldest == "" || seenAt.Before(oldestAt) {
				oldest = n
				oldestAt = seenAt
			}
		}
		delete(m.Nonces, oldest)
	}
}

// Connection is one user-institution link. It is the unit of sync
// concurrency: at most one sync run per connection at a time.
type Connection struct {
	ID            string
	UserID        int64
	InstitutionID string

	// Credentials is the encrypted blob created by the provider handshake.
	// The synchronizer treats it as write-once input to the client.
	Credentials string

	AccountsCursor     *string
	TransactionCursors CursorMap

	LastSyncedAt    *time.Time
	LastSyncError   *SyncErrorRecord
	LastSyncErrorAt *time.Time

	WebhookSecret string
	Metadata      Metadata

	CreatedAt time.Time
	UpdatedAt time.Time
}
