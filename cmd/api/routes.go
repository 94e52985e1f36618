package main

import (
	"net/http"

	httphandlers "moneta/internal/interfaces/http"
	"moneta/internal/shared/config"
	"moneta/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Provider webhook ingress (authenticated by signature, not session)
	mux.HandleFunc("/webhooks/pierre", deps.WebhookHandler.HandleWebhook)

	// Connection sync state and manual refresh
	mux.HandleFunc("/api/connections/{id}", deps.ConnectionHandler.HandleConnectionByID)
	mux.HandleFunc("/api/connections/{id}/sync", deps.ConnectionHandler.HandleRefresh)

	// Device registration for sync-failure alerts
	mux.HandleFunc("/api/notifications/register-device", deps.NotificationHandler.HandleRegisterDevice)

	// Apply global middleware
	var handler http.Handler = mux
	if cfg.Telemetry.Enabled {
		handler = middleware.Tracing(handler)
	}
	handler = middleware.Logging(handler)

	return handler
}
