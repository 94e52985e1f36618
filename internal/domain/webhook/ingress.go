package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/sync"
)

// ErrInvalidPayload is returned when an authenticated request carries a body
// that cannot be decoded or is missing required fields.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Event is the decoded webhook body. Validated and then discarded; only the
// nonce is retained (in connection metadata) for replay detection.
type Event struct {
	ConnectionID string `json:"connection_id"`
	Event        string `json:"event"`
	Nonce        string `json:"nonce"`
}

// Outcome is the result of processing an authenticated webhook. Soft
// ignores are expected traffic, not failures, and carry a machine-readable
// reason.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

var (
	OutcomeOK                = Outcome{Status: "ok"}
	IgnoredDuplicate         = Outcome{Status: "ignored", Reason: "duplicate"}
	IgnoredUnknownConnection = Outcome{Status: "ignored", Reason: "unknown_connection"}
	IgnoredRevoked           = Outcome{Status: "ignored", Reason: "revoked"}
)

// Dispatcher is the narrow job-queue contract the ingress needs.
type Dispatcher interface {
	Enqueue(connectionID string, mode sync.Mode, metadata map[string]string, delay time.Duration) (bool, error)
}

// SecretSource supplies the ingress signing secret. Injected rather than
// read from ambient state so tests can pin it deterministically.
type SecretSource func() []byte

// Ingress processes inbound provider webhooks.
type Ingress struct {
	secret     SecretSource
	connRepo   connection.Repository
	dispatcher Dispatcher

	now func() time.Time
}

// NewIngress creates a webhook ingress.
func NewIngress(secret SecretSource, connRepo connection.Repository, dispatcher Dispatcher) *Ingress {
	return &Ingress{
		secret:     secret,
		connRepo:   connRepo,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Handle verifies and processes one webhook delivery. Signature verification
// runs before any database lookup so unauthenticated callers cannot probe
// for connection existence through timing or error-shape differences.
func (i *Ingress) Handle(ctx context.Context, body []byte, signatureHeader string) (Outcome, error) {
	if err := VerifySignature(i.secret(), signatureHeader, body); err != nil {
		return Outcome{}, err
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if evt.ConnectionID == "" || evt.Nonce == "" {
		return Outcome{}, fmt.Errorf("%w: connection_id and nonce are required", ErrInvalidPayload)
	}

	conn, err := i.connRepo.GetByID(ctx, evt.ConnectionID)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			log.Printf("Webhook for unknown connection %s ignored", evt.ConnectionID)
			return IgnoredUnknownConnection, nil
		}
		return Outcome{}, fmt.Errorf("failed to load connection: %w", err)
	}

	if conn.Metadata.Revoked() {
		log.Printf("Webhook for revoked connection %s ignored", conn.ID)
		return IgnoredRevoked, nil
	}

	now := i.now()
	if conn.Metadata.SeenNonce(evt.Nonce, now) {
		log.Printf("Webhook replay for connection %s (nonce %s) ignored", conn.ID, evt.Nonce)
		return IgnoredDuplicate, nil
	}

	md := conn.Metadata
	md.RecordNonce(evt.Nonce, now)
	md.LastEvent = evt.Event
	if err := i.connRepo.UpdateMetadata(ctx, conn.ID, md); err != nil {
		return Outcome{}, fmt.Errorf("failed to record webhook nonce: %w", err)
	}

	enqueued, err := i.dispatcher.Enqueue(conn.ID, sync.ModeIncremental, map[string]string{
		"trigger": "webhook",
		"event":   evt.Event,
		"nonce":   evt.Nonce,
	}, 0)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to enqueue sync job: %w", err)
	}
	if !enqueued {
		log.Printf("Webhook for connection %s collapsed into pending sync", conn.ID)
	}

	return OutcomeOK, nil
}
