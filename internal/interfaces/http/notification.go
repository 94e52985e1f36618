package http

import (
	"encoding/json"
	"log"
	"net/http"

	"moneta/internal/domain/notification"
)

// NotificationHandler registers device tokens for push alerts
type NotificationHandler struct {
	service *notification.Service
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(service *notification.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// RegisterDeviceRequest is the device registration payload
type RegisterDeviceRequest struct {
	UserID   int64  `json:"userId"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// HandleRegisterDevice registers a device token for sync-failure alerts
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := notification.RegisterParams{
		UserID:   req.UserID,
		Token:    req.Token,
		Platform: req.Platform,
	}
	if err := params.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.service.RegisterDevice(r.Context(), params)
	if err != nil {
		log.Printf("Error registering device for user %d: %v", req.UserID, err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       token.ID,
		"platform": token.Platform,
	})
}
