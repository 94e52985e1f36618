package scheduler

import (
	"context"
	"fmt"
	"log"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/notification"
	syncdomain "moneta/internal/domain/sync"
	"moneta/internal/infrastructure/provider"
)

// Decryptor recovers provider credentials stored on a connection.
// Implemented by crypto.Encryptor.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// ClientFactory builds a provider client from a connection's decrypted
// credentials.
type ClientFactory func(credentials string) (provider.Client, error)

// ConnectionSyncJob implements the Job interface for syncing one connection
type ConnectionSyncJob struct {
	connectionID string
	mode         syncdomain.Mode
	metadata     map[string]string

	connRepo      connection.Repository
	synchronizer  *syncdomain.Synchronizer
	decryptor     Decryptor
	clientFactory ClientFactory
	notifier      *notification.Service
}

// NewConnectionSyncJob creates a sync job for a connection. notifier may be
// nil when push alerting is disabled.
func NewConnectionSyncJob(
	connectionID string,
	mode syncdomain.Mode,
	metadata map[string]string,
	connRepo connection.Repository,
	synchronizer *syncdomain.Synchronizer,
	decryptor Decryptor,
	clientFactory ClientFactory,
	notifier *notification.Service,
) *ConnectionSyncJob {
	return &ConnectionSyncJob{
		connectionID:  connectionID,
		mode:          mode,
		metadata:      metadata,
		connRepo:      connRepo,
		synchronizer:  synchronizer,
		decryptor:     decryptor,
		clientFactory: clientFactory,
		notifier:      notifier,
	}
}

// Execute loads the connection fresh (its state may have changed since the
// job was enqueued), builds a provider client from its credentials and runs
// the sync.
func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	conn, err := j.connRepo.GetByID(ctx, j.connectionID)
	if err != nil {
		return fmt.Errorf("failed to load connection: %w", err)
	}

	if conn.Metadata.Revoked() {
		log.Printf("Connection %s revoked since enqueue, skipping sync", conn.ID)
		return nil
	}

	credentials, err := j.decryptor.Decrypt(conn.Credentials)
	if err != nil {
		return fmt.Errorf("failed to decrypt connection credentials: %w", err)
	}

	client, err := j.clientFactory(credentials)
	if err != nil {
		return fmt.Errorf("failed to build provider client: %w", err)
	}

	result, err := j.synchronizer.Sync(ctx, conn, client, j.mode)
	if err != nil {
		j.notifyFailure(ctx, conn, err)
		return err
	}

	log.Printf("Connection %s: %s sync done - accounts=%d transactions=%d (trigger=%s)",
		conn.ID, j.mode, result.AccountsSynced, result.TransactionsSynced, j.metadata["trigger"])
	return nil
}

// notifyFailure pushes a best-effort alert to the connection's owner.
func (j *ConnectionSyncJob) notifyFailure(ctx context.Context, conn *connection.Connection, syncErr error) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.NotifySyncFailure(ctx, conn.UserID, conn.InstitutionID, syncdomain.ErrorType(syncErr)); err != nil {
		log.Printf("Connection %s: failed to notify sync failure: %v", conn.ID, err)
	}
}

// ConnectionID returns the connection this job operates on
func (j *ConnectionSyncJob) ConnectionID() string {
	return j.connectionID
}

// Description returns a human-readable description of the job
func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("%s sync for connection %s", j.mode, j.connectionID)
}
