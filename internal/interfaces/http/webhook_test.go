package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/sync"
	"moneta/internal/domain/webhook"
)

var testSecret = []byte("test-webhook-secret")

type MockConnectionRepo struct {
	GetByIDFunc        func(ctx context.Context, id string) (*connection.Connection, error)
	UpdateMetadataFunc func(ctx context.Context, id string, md connection.Metadata) error
}

func (m *MockConnectionRepo) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, connection.ErrConnectionNotFound
}
func (m *MockConnectionRepo) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	return nil, nil
}
func (m *MockConnectionRepo) UpdateCursors(ctx context.Context, id string, accountsCursor *string, txCursors connection.CursorMap) error {
	return nil
}
func (m *MockConnectionRepo) CommitSyncState(ctx context.Context, id string, state connection.SyncState) error {
	return nil
}
func (m *MockConnectionRepo) RecordSyncError(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error {
	return nil
}
func (m *MockConnectionRepo) UpdateMetadata(ctx context.Context, id string, md connection.Metadata) error {
	if m.UpdateMetadataFunc != nil {
		return m.UpdateMetadataFunc(ctx, id, md)
	}
	return nil
}

type MockDispatcher struct {
	EnqueueFunc func(connectionID string, mode sync.Mode, metadata map[string]string, delay time.Duration) (bool, error)
}

func (m *MockDispatcher) Enqueue(connectionID string, mode sync.Mode, metadata map[string]string, delay time.Duration) (bool, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(connectionID, mode, metadata, delay)
	}
	return true, nil
}

func newWebhookHandler(connRepo *MockConnectionRepo, dispatcher *MockDispatcher) *WebhookHandler {
	ingress := webhook.NewIngress(func() []byte { return testSecret }, connRepo, dispatcher)
	return NewWebhookHandler(ingress)
}

func postWebhook(handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pierre", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, req)
	return rr
}

func TestHandleWebhook_OK(t *testing.T) {
	connRepo := &MockConnectionRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*connection.Connection, error) {
			return &connection.Connection{
				ID:       id,
				Metadata: connection.Metadata{Status: connection.StatusActive},
			}, nil
		},
	}
	handler := newWebhookHandler(connRepo, &MockDispatcher{})

	body := []byte(`{"connection_id":"conn-1","event":"transactions.updated","nonce":"n-1"}`)
	signature := webhook.ComputeSignature(testSecret, time.Now().Unix(), body)

	rr := postWebhook(handler, body, signature)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}

	var outcome webhook.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if outcome.Status != "ok" {
		t.Errorf("outcome status = %q, want ok", outcome.Status)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	handler := newWebhookHandler(&MockConnectionRepo{}, &MockDispatcher{})

	body := []byte(`{"connection_id":"conn-1","nonce":"n-1"}`)
	signature := webhook.ComputeSignature([]byte("wrong-secret"), time.Now().Unix(), body)

	rr := postWebhook(handler, body, signature)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "invalid signature" {
		t.Errorf("error = %q, want invalid signature", resp["error"])
	}
}

func TestHandleWebhook_InvalidPayload(t *testing.T) {
	handler := newWebhookHandler(&MockConnectionRepo{}, &MockDispatcher{})

	body := []byte(`{"event":"transactions.updated"}`)
	signature := webhook.ComputeSignature(testSecret, time.Now().Unix(), body)

	rr := postWebhook(handler, body, signature)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleWebhook_IgnoredOutcomesReturn200(t *testing.T) {
	revoked := &connection.Connection{
		ID:       "conn-1",
		Metadata: connection.Metadata{Status: connection.StatusRevoked},
	}

	tests := []struct {
		name       string
		repo       *MockConnectionRepo
		wantReason string
	}{
		{
			"unknown connection",
			&MockConnectionRepo{},
			"unknown_connection",
		},
		{
			"revoked connection",
			&MockConnectionRepo{
				GetByIDFunc: func(ctx context.Context, id string) (*connection.Connection, error) {
					return revoked, nil
				},
			},
			"revoked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newWebhookHandler(tt.repo, &MockDispatcher{})

			body := []byte(`{"connection_id":"conn-1","nonce":"n-1"}`)
			signature := webhook.ComputeSignature(testSecret, time.Now().Unix(), body)

			rr := postWebhook(handler, body, signature)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 so the provider stops redelivering", rr.Code)
			}

			var outcome webhook.Outcome
			if err := json.Unmarshal(rr.Body.Bytes(), &outcome); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if outcome.Status != "ignored" || outcome.Reason != tt.wantReason {
				t.Errorf("outcome = %+v, want ignored/%s", outcome, tt.wantReason)
			}
		})
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	handler := newWebhookHandler(&MockConnectionRepo{}, &MockDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/pierre", nil)
	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}
