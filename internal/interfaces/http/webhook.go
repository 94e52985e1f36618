// Package http holds the transport-layer handlers: the provider webhook
// ingress, connection status and refresh endpoints, and device registration.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"moneta/internal/domain/webhook"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Pierre-Signature"

// maxWebhookBody bounds how much of a webhook body is read. Provider events
// are small; anything larger is not one.
const maxWebhookBody = 64 * 1024

// WebhookHandler terminates provider webhook deliveries
type WebhookHandler struct {
	ingress *webhook.Ingress
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingress *webhook.Ingress) *WebhookHandler {
	return &WebhookHandler{ingress: ingress}
}

// HandleWebhook verifies and processes a provider webhook delivery.
// Authentication failures return 400; ignorable events (replays, unknown or
// revoked connections) return 200 so the provider stops redelivering them.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	outcome, err := h.ingress.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			writeJSONError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, webhook.ErrInvalidPayload):
			writeJSONError(w, http.StatusBadRequest, "invalid payload")
		default:
			log.Printf("Error processing webhook: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
