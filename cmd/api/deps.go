package main

import (
	"context"
	"log"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/notification"
	syncdomain "moneta/internal/domain/sync"
	"moneta/internal/domain/webhook"
	"moneta/internal/infrastructure/crypto"
	"moneta/internal/infrastructure/firebase"
	"moneta/internal/infrastructure/postgres"
	"moneta/internal/infrastructure/provider"
	httphandlers "moneta/internal/interfaces/http"
	"moneta/internal/interfaces/scheduler"
	"moneta/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	WebhookHandler      *httphandlers.WebhookHandler
	ConnectionHandler   *httphandlers.ConnectionHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Job dispatch
	Dispatcher *scheduler.Dispatcher

	// Repositories (for the scheduler fan-out)
	ConnRepo connection.Repository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database and apply migrations
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize encryptor
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize repositories
	connRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	deviceTokenRepo := postgres.NewDeviceTokenRepository(db)

	// Initialize FCM messenger if configured
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcmClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, deviceTokenRepo.DeleteToken)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase messaging: %v", err)
		} else {
			messenger = fcmClient
		}
	}
	notifier := notification.NewService(deviceTokenRepo, messenger)

	// Initialize synchronizer
	synchronizer := syncdomain.NewSynchronizer(connRepo, accountRepo, transactionRepo)

	// Provider client factory: each connection's decrypted credential is its
	// API key; transport settings are shared.
	var certSource *provider.CertSource
	if cfg.Provider.CertPath != "" {
		certSource = provider.CertFromFiles(cfg.Provider.CertPath, cfg.Provider.KeyPath)
	}
	clientFactory := func(credentials string) (provider.Client, error) {
		return provider.NewHTTPClient(provider.Config{
			BaseURL:    cfg.Provider.BaseURL,
			APIKey:     credentials,
			Timeout:    cfg.Provider.Timeout,
			ClientCert: certSource,
		})
	}

	// Initialize the dispatcher; the job factory closes over everything a
	// sync run needs.
	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		IncrementalWindow: cfg.Dispatcher.IncrementalWindow,
		InitialWindow:     cfg.Dispatcher.InitialWindow,
		WorkerCount:       cfg.Dispatcher.WorkerCount,
		JobDelay:          cfg.Dispatcher.JobDelay,
		QueueSize:         cfg.Dispatcher.QueueSize,
	}, func(connectionID string, mode syncdomain.Mode, metadata map[string]string) scheduler.Job {
		return scheduler.NewConnectionSyncJob(connectionID, mode, metadata, connRepo, synchronizer, encryptor, clientFactory, notifier)
	})

	// Initialize webhook ingress
	webhookSecret := []byte(cfg.Webhook.Secret)
	ingress := webhook.NewIngress(func() []byte { return webhookSecret }, connRepo, dispatcher)

	return &Dependencies{
		DB:                  db,
		WebhookHandler:      httphandlers.NewWebhookHandler(ingress),
		ConnectionHandler:   httphandlers.NewConnectionHandler(connRepo, dispatcher),
		NotificationHandler: httphandlers.NewNotificationHandler(notifier),
		Dispatcher:          dispatcher,
		ConnRepo:            connRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
