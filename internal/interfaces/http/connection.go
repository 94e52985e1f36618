package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/sync"
	"moneta/internal/domain/webhook"
)

// ConnectionHandler exposes connection sync state and manual refresh
type ConnectionHandler struct {
	connRepo   connection.Repository
	dispatcher webhook.Dispatcher
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connRepo connection.Repository, dispatcher webhook.Dispatcher) *ConnectionHandler {
	return &ConnectionHandler{connRepo: connRepo, dispatcher: dispatcher}
}

// ConnectionStatusResponse is the sync health view of a connection
type ConnectionStatusResponse struct {
	ID              string                      `json:"id"`
	InstitutionID   string                      `json:"institutionId"`
	Status          string                      `json:"status"`
	LastSyncedAt    *time.Time                  `json:"lastSyncedAt"`
	LastSyncError   *connection.SyncErrorRecord `json:"lastSyncError"`
	LastSyncErrorAt *time.Time                  `json:"lastSyncErrorAt"`
}

// RefreshRequest optionally selects the sync mode for a manual refresh
type RefreshRequest struct {
	Mode string `json:"mode"`
}

// RefreshResponse reports whether a job was queued or collapsed into a
// pending one
type RefreshResponse struct {
	Queued bool `json:"queued"`
}

// HandleConnectionByID returns the sync status of a connection
func (h *ConnectionHandler) HandleConnectionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.connRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			writeJSONError(w, http.StatusNotFound, "connection not found")
			return
		}
		log.Printf("Error getting connection %s: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, ConnectionStatusResponse{
		ID:              conn.ID,
		InstitutionID:   conn.InstitutionID,
		Status:          string(conn.Metadata.Status),
		LastSyncedAt:    conn.LastSyncedAt,
		LastSyncError:   conn.LastSyncError,
		LastSyncErrorAt: conn.LastSyncErrorAt,
	})
}

// HandleRefresh enqueues a sync for a connection on demand. The default mode
// is incremental; {"mode":"initial"} forces a full re-import.
func (h *ConnectionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	mode := sync.ModeIncremental
	if r.Body != nil {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Mode == string(sync.ModeInitial) {
			mode = sync.ModeInitial
		}
	}

	conn, err := h.connRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			writeJSONError(w, http.StatusNotFound, "connection not found")
			return
		}
		log.Printf("Error getting connection %s: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if conn.Metadata.Revoked() {
		writeJSONError(w, http.StatusConflict, "connection revoked")
		return
	}

	queued, err := h.dispatcher.Enqueue(conn.ID, mode, map[string]string{"trigger": "manual"}, 0)
	if err != nil {
		log.Printf("Error enqueueing %s sync for connection %s: %v", mode, conn.ID, err)
		writeJSONError(w, http.StatusServiceUnavailable, "failed to queue sync")
		return
	}

	writeJSON(w, http.StatusAccepted, RefreshResponse{Queued: queued})
}
