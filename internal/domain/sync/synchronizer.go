// Package sync implements the incremental institution synchronizer: it pages
// through provider accounts and per-account transactions, upserts them
// idempotently, and tracks pagination cursors on the connection so an
// aborted or throttled run resumes from the last completed page.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/connection"
	"moneta/internal/domain/transaction"
	"moneta/internal/infrastructure/provider"
)

// Mode selects how a run treats previously stored cursors.
type Mode string

const (
	// ModeInitial re-lists all accounts from the start of the stream.
	// Transaction cursors are still honored so consumed pages are never
	// re-fetched.
	ModeInitial Mode = "initial"

	// ModeIncremental resumes every stream from its stored cursor.
	ModeIncremental Mode = "incremental"
)

// Result summarizes one sync run. It is ephemeral: callers use it for
// logging, health checks, and tests; durable state lives on the connection.
type Result struct {
	AccountsSynced     int
	TransactionsSynced int

	AccountsCursor     *string
	TransactionCursors connection.CursorMap
}

// Synchronizer orchestrates full or incremental sync runs for a connection.
// It never panics for expected provider failure modes; every failure is a
// typed, inspectable error recorded on the connection.
type Synchronizer struct {
	connRepo    connection.Repository
	accountRepo account.Repository
	txRepo      transaction.Repository

	now func() time.Time
}

// NewSynchronizer creates a synchronizer over the given stores.
func NewSynchronizer(connRepo connection.Repository, accountRepo account.Repository, txRepo transaction.Repository) *Synchronizer {
	return &Synchronizer{
		connRepo:    connRepo,
		accountRepo: accountRepo,
		txRepo:      txRepo,
		now:         time.Now,
	}
}

// Sync runs the account phase then the per-account transaction phase against
// the given client, committing cursors and counters on success. The caller
// (the job layer) guarantees at most one run per connection at a time.
func (s *Synchronizer) Sync(ctx context.Context, conn *connection.Connection, client provider.Client, mode Mode) (*Result, error) {
	result := &Result{}

	cursors := conn.TransactionCursors.Clone()
	if cursors == nil {
		cursors = make(connection.CursorMap)
	}

	accountsCursor := conn.AccountsCursor
	if mode == ModeInitial {
		accountsCursor = nil
	}

	log.Printf("Connection %s: starting %s sync", conn.ID, mode)

	accountsCursor, err := s.syncAccounts(ctx, conn, client, accountsCursor, cursors, result)
	if err != nil {
		return nil, s.fail(ctx, conn.ID, err)
	}

	if err := s.syncTransactions(ctx, conn, client, accountsCursor, cursors, result); err != nil {
		return nil, s.fail(ctx, conn.ID, err)
	}

	state := connection.SyncState{
		AccountsCursor:     accountsCursor,
		TransactionCursors: cursors,
		LastSyncedAt:       s.now(),
	}
	if err := s.connRepo.CommitSyncState(ctx, conn.ID, state); err != nil {
		return nil, fmt.Errorf("failed to commit sync state: %w", err)
	}

	result.AccountsCursor = accountsCursor
	result.TransactionCursors = cursors

	log.Printf("Connection %s: sync complete - accounts=%d transactions=%d",
		conn.ID, result.AccountsSynced, result.TransactionsSynced)

	return result, nil
}

// syncAccounts pages through the accounts stream, upserting each record and
// flushing the advancing cursor after every fully consumed page. It returns
// the final accounts cursor: the last non-nil next-cursor observed, which is
// the resume point for the next incremental run.
func (s *Synchronizer) syncAccounts(
	ctx context.Context,
	conn *connection.Connection,
	client provider.Client,
	cursor *string,
	txCursors connection.CursorMap,
	result *Result,
) (*string, error) {
	for {
		page, err := client.ListAccounts(ctx, provider.ListParams{Cursor: cursor})
		if err != nil {
			return cursor, classifyClientError(err)
		}

		for i := range page.Data {
			if err := s.upsertAccount(ctx, conn, &page.Data[i]); err != nil {
				return cursor, err
			}
			result.AccountsSynced++
		}

		if page.NextCursor == nil {
			return cursor, nil
		}
		cursor = page.NextCursor

		if err := s.connRepo.UpdateCursors(ctx, conn.ID, cursor, txCursors); err != nil {
			return cursor, fmt.Errorf("failed to flush accounts cursor: %w", err)
		}
	}
}

func (s *Synchronizer) upsertAccount(ctx context.Context, conn *connection.Connection, rec *provider.AccountRecord) error {
	currentBalance, err := rec.CurrentBalance()
	if err != nil {
		return &ProviderError{Err: fmt.Errorf("account %s: %w", rec.ExternalID, err)}
	}
	availableBalance, err := rec.AvailableBalance()
	if err != nil {
		return &ProviderError{Err: fmt.Errorf("account %s: %w", rec.ExternalID, err)}
	}

	params := account.UpsertParams{
		UserID:           conn.UserID,
		ConnectionID:     conn.ID,
		ExternalID:       rec.ExternalID,
		Name:             rec.Name,
		Type:             rec.Type,
		Subtype:          rec.Subtype,
		Currency:         strings.ToUpper(rec.CurrencyCode),
		CurrentBalance:   currentBalance,
		AvailableBalance: availableBalance,
	}

	if _, err := s.accountRepo.Upsert(ctx, params); err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", rec.ExternalID, err)
	}
	return nil
}

// syncTransactions walks the connection's accounts in sorted external-id
// order, paging each account's transaction stream from its own cursor. Each
// account's cursor write is independent: an abort on account N leaves the
// cursors of accounts 1..N-1 (and N's completed pages) committed.
func (s *Synchronizer) syncTransactions(
	ctx context.Context,
	conn *connection.Connection,
	client provider.Client,
	accountsCursor *string,
	txCursors connection.CursorMap,
	result *Result,
) error {
	accounts, err := s.accountRepo.ListByConnectionID(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("failed to list connection accounts: %w", err)
	}

	for _, acct := range accounts {
		stored, _ := txCursors.Get(acct.ExternalID)
		cursor := stored

		// final is the cursor to persist on exhaustion: the last non-nil
		// next-cursor, or an explicit null when the provider never handed
		// one out ("no further state").
		final := stored

		for {
			page, err := client.ListTransactions(ctx, acct.ExternalID, provider.ListParams{Cursor: cursor})
			if err != nil {
				return classifyClientError(err)
			}

			for i := range page.Data {
				created, err := s.upsertTransaction(ctx, acct, &page.Data[i])
				if err != nil {
					return err
				}
				if created {
					result.TransactionsSynced++
				}
			}

			if page.NextCursor == nil {
				break
			}
			cursor = page.NextCursor
			final = page.NextCursor

			txCursors.Set(acct.ExternalID, final)
			if err := s.connRepo.UpdateCursors(ctx, conn.ID, accountsCursor, txCursors); err != nil {
				return fmt.Errorf("failed to flush transaction cursor for account %s: %w", acct.ExternalID, err)
			}
		}

		txCursors.Set(acct.ExternalID, final)
		if err := s.connRepo.UpdateCursors(ctx, conn.ID, accountsCursor, txCursors); err != nil {
			return fmt.Errorf("failed to flush transaction cursor for account %s: %w", acct.ExternalID, err)
		}
	}

	return nil
}

func (s *Synchronizer) upsertTransaction(ctx context.Context, acct *account.Account, rec *provider.TransactionRecord) (bool, error) {
	amount, err := rec.Amount()
	if err != nil {
		return false, &InvalidTransactionAmountError{
			AccountExternalID: acct.ExternalID,
			RecordExternalID:  rec.ExternalID,
			Err:               err,
		}
	}

	postedAt, err := rec.PostedAt()
	if err != nil {
		return false, &ProviderError{Err: fmt.Errorf("transaction %s: %w", rec.ExternalID, err)}
	}
	if postedAt == nil {
		return false, &ProviderError{Err: fmt.Errorf("transaction %s has no posted timestamp", rec.ExternalID)}
	}

	params := transaction.UpsertParams{
		AccountID:   acct.ID,
		ExternalID:  rec.ExternalID,
		Amount:      amount,
		Currency:    strings.ToUpper(rec.CurrencyCode),
		PostedAt:    *postedAt,
		Description: rec.Description,
		Status:      rec.Status,
		Type:        rec.Type,
	}

	created, err := s.txRepo.Upsert(ctx, params)
	if err != nil {
		if errors.Is(err, transaction.ErrAmountConflict) {
			return false, &AmountConflictError{
				AccountExternalID: acct.ExternalID,
				RecordExternalID:  rec.ExternalID,
			}
		}
		return false, fmt.Errorf("failed to upsert transaction %s: %w", rec.ExternalID, err)
	}
	return created, nil
}

// fail records a typed failure on the connection and passes the error
// through. Cursors flushed before the failure stay committed.
func (s *Synchronizer) fail(ctx context.Context, connectionID string, err error) error {
	rec := errorRecord(err)
	if recordErr := s.connRepo.RecordSyncError(ctx, connectionID, rec, s.now()); recordErr != nil {
		log.Printf("Connection %s: failed to record sync error: %v", connectionID, recordErr)
	}
	return err
}
