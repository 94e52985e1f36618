package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/connection"
	"moneta/internal/domain/transaction"
	"moneta/internal/infrastructure/provider"
)

// Mocks

type MockConnectionRepo struct {
	GetByIDFunc         func(ctx context.Context, id string) (*connection.Connection, error)
	ListActiveFunc      func(ctx context.Context) ([]*connection.Connection, error)
	UpdateCursorsFunc   func(ctx context.Context, id string, accountsCursor *string, txCursors connection.CursorMap) error
	CommitSyncStateFunc func(ctx context.Context, id string, state connection.SyncState) error
	RecordSyncErrorFunc func(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error
	UpdateMetadataFunc  func(ctx context.Context, id string, md connection.Metadata) error
}

func (m *MockConnectionRepo) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, connection.ErrConnectionNotFound
}
func (m *MockConnectionRepo) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}
func (m *MockConnectionRepo) UpdateCursors(ctx context.Context, id string, accountsCursor *string, txCursors connection.CursorMap) error {
	if m.UpdateCursorsFunc != nil {
		return m.UpdateCursorsFunc(ctx, id, accountsCursor, txCursors)
	}
	return nil
}
func (m *MockConnectionRepo) CommitSyncState(ctx context.Context, id string, state connection.SyncState) error {
	if m.CommitSyncStateFunc != nil {
		return m.CommitSyncStateFunc(ctx, id, state)
	}
	return nil
}
func (m *MockConnectionRepo) RecordSyncError(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error {
	if m.RecordSyncErrorFunc != nil {
		return m.RecordSyncErrorFunc(ctx, id, rec, at)
	}
	return nil
}
func (m *MockConnectionRepo) UpdateMetadata(ctx context.Context, id string, md connection.Metadata) error {
	if m.UpdateMetadataFunc != nil {
		return m.UpdateMetadataFunc(ctx, id, md)
	}
	return nil
}

// MockAccountRepo keeps upserted accounts in memory so the transaction phase
// sees what the account phase stored.
type MockAccountRepo struct {
	accounts map[string]*account.Account // keyed by external id
	upserts  int
}

func NewMockAccountRepo() *MockAccountRepo {
	return &MockAccountRepo{accounts: make(map[string]*account.Account)}
}

func (m *MockAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	m.upserts++
	acc, ok := m.accounts[params.ExternalID]
	if !ok {
		acc = &account.Account{ID: "acct-id-" + params.ExternalID}
		m.accounts[params.ExternalID] = acc
	}
	acc.UserID = params.UserID
	acc.ConnectionID = params.ConnectionID
	acc.ExternalID = params.ExternalID
	acc.Name = params.Name
	acc.Type = params.Type
	acc.Subtype = params.Subtype
	acc.Currency = params.Currency
	acc.CurrentBalance = params.CurrentBalance
	acc.AvailableBalance = params.AvailableBalance
	return acc, nil
}

func (m *MockAccountRepo) GetByExternalID(ctx context.Context, userID int64, externalID string) (*account.Account, error) {
	if acc, ok := m.accounts[externalID]; ok {
		return acc, nil
	}
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.Account, error) {
	var out []*account.Account
	// sorted by external id, as the real repository queries it
	keys := make([]string, 0, len(m.accounts))
	for k := range m.accounts {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	for _, k := range keys {
		out = append(out, m.accounts[k])
	}
	return out, nil
}

// MockTransactionRepo stores transactions keyed by (account id, external id)
// and reproduces the insert-once contract.
type MockTransactionRepo struct {
	UpsertFunc func(ctx context.Context, params transaction.UpsertParams) (bool, error)

	amounts map[string]float64
	created int
}

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{amounts: make(map[string]float64)}
}

func (m *MockTransactionRepo) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	key := params.AccountID + "/" + params.ExternalID
	if stored, ok := m.amounts[key]; ok {
		if stored != params.Amount {
			return false, transaction.ErrAmountConflict
		}
		return false, nil
	}
	m.amounts[key] = params.Amount
	m.created++
	return true, nil
}

func (m *MockTransactionRepo) GetByExternalID(ctx context.Context, accountID, externalID string) (*transaction.Transaction, error) {
	return nil, transaction.ErrTransactionNotFound
}

type MockProviderClient struct {
	ListAccountsFunc     func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error)
	ListTransactionsFunc func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error)
}

func (m *MockProviderClient) ListAccounts(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, params)
	}
	return &provider.AccountPage{}, nil
}
func (m *MockProviderClient) ListTransactions(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, accountExternalID, params)
	}
	return &provider.TransactionPage{}, nil
}

// Helpers

func strPtr(s string) *string { return &s }

func testConnection() *connection.Connection {
	return &connection.Connection{
		ID:            "conn-1",
		UserID:        42,
		InstitutionID: "inst-1",
		Metadata:      connection.Metadata{Status: connection.StatusActive},
	}
}

func cursorValue(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

// Tests

func TestSync_SingleAccountSingleTransaction(t *testing.T) {
	conn := testConnection()
	accountRepo := NewMockAccountRepo()
	txRepo := NewMockTransactionRepo()

	var committed *connection.SyncState
	connRepo := &MockConnectionRepo{
		CommitSyncStateFunc: func(ctx context.Context, id string, state connection.SyncState) error {
			committed = &state
			return nil
		},
	}

	client := &MockProviderClient{
		ListAccountsFunc: func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
			if params.Cursor == nil {
				return &provider.AccountPage{
					Data: []provider.AccountRecord{{
						ExternalID:             "acct-1",
						Name:                   "Checking",
						Type:                   "depository",
						Subtype:                "checking",
						CurrencyCode:           "usd",
						CurrentBalanceString:   "100.00",
						AvailableBalanceString: "80.00",
					}},
					NextCursor: strPtr("acct-cursor"),
				}, nil
			}
			return &provider.AccountPage{}, nil
		},
		ListTransactionsFunc: func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
			return &provider.TransactionPage{
				Data: []provider.TransactionRecord{{
					ExternalID:   "txn-1",
					AmountString: "-25.50",
					CurrencyCode: "usd",
					PostedString: "2024-03-01T12:00:00Z",
					Description:  "Coffee",
					Status:       "POSTED",
					Type:         "DEBIT",
				}},
			}, nil
		},
	}

	result, err := NewSynchronizer(connRepo, accountRepo, txRepo).Sync(context.Background(), conn, client, ModeInitial)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.AccountsSynced != 1 {
		t.Errorf("AccountsSynced = %d, want 1", result.AccountsSynced)
	}
	if result.TransactionsSynced != 1 {
		t.Errorf("TransactionsSynced = %d, want 1", result.TransactionsSynced)
	}
	if result.AccountsCursor == nil || *result.AccountsCursor != "acct-cursor" {
		t.Errorf("AccountsCursor = %v, want acct-cursor", cursorValue(result.AccountsCursor))
	}
	if cursor, ok := result.TransactionCursors.Get("acct-1"); !ok || cursor != nil {
		t.Errorf("transaction cursor for acct-1 = %v (present=%v), want explicit nil", cursorValue(cursor), ok)
	}

	acc := accountRepo.accounts["acct-1"]
	if acc == nil {
		t.Fatal("account acct-1 was not stored")
	}
	if acc.Currency != "USD" {
		t.Errorf("account currency = %q, want USD (upper-cased)", acc.Currency)
	}
	if acc.CurrentBalance != 100.00 || acc.AvailableBalance != 80.00 {
		t.Errorf("account balances = %v/%v, want 100/80", acc.CurrentBalance, acc.AvailableBalance)
	}

	if committed == nil {
		t.Fatal("CommitSyncState was not called")
	}
	if committed.AccountsCursor == nil || *committed.AccountsCursor != "acct-cursor" {
		t.Errorf("committed accounts cursor = %v, want acct-cursor", cursorValue(committed.AccountsCursor))
	}
}

func TestSync_SecondRunCreatesNothing(t *testing.T) {
	conn := testConnection()
	accountRepo := NewMockAccountRepo()
	txRepo := NewMockTransactionRepo()

	connRepo := &MockConnectionRepo{
		CommitSyncStateFunc: func(ctx context.Context, id string, state connection.SyncState) error {
			conn.AccountsCursor = state.AccountsCursor
			conn.TransactionCursors = state.TransactionCursors
			return nil
		},
	}

	client := &MockProviderClient{
		ListAccountsFunc: func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
			if params.Cursor == nil {
				return &provider.AccountPage{
					Data: []provider.AccountRecord{{
						ExternalID:   "acct-1",
						Name:         "Checking",
						Type:         "depository",
						CurrencyCode: "USD",
					}},
					NextCursor: strPtr("acct-cursor"),
				}, nil
			}
			return &provider.AccountPage{}, nil
		},
		ListTransactionsFunc: func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
			return &provider.TransactionPage{
				Data: []provider.TransactionRecord{{
					ExternalID:   "txn-1",
					AmountString: "-25.50",
					CurrencyCode: "USD",
					PostedString: "2024-03-01T12:00:00Z",
				}},
			}, nil
		},
	}

	s := NewSynchronizer(connRepo, accountRepo, txRepo)

	if _, err := s.Sync(context.Background(), conn, client, ModeInitial); err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}
	if txRepo.created != 1 {
		t.Fatalf("created = %d after first run, want 1", txRepo.created)
	}

	result, err := s.Sync(context.Background(), conn, client, ModeIncremental)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}

	if txRepo.created != 1 {
		t.Errorf("created = %d after second run, want still 1", txRepo.created)
	}
	if result.TransactionsSynced != 0 {
		t.Errorf("TransactionsSynced = %d on second run, want 0", result.TransactionsSynced)
	}
}

func TestSync_ResumesFromStoredCursors(t *testing.T) {
	conn := testConnection()
	conn.AccountsCursor = strPtr("acct-cursor")
	conn.TransactionCursors = connection.CursorMap{"acct-1": strPtr("txn-cursor")}

	accountRepo := NewMockAccountRepo()
	accountRepo.accounts["acct-1"] = &account.Account{ID: "acct-id-acct-1", ExternalID: "acct-1"}
	txRepo := NewMockTransactionRepo()
	connRepo := &MockConnectionRepo{}

	var accountsRequested, txRequested []string
	client := &MockProviderClient{
		ListAccountsFunc: func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
			accountsRequested = append(accountsRequested, cursorValue(params.Cursor))
			return &provider.AccountPage{}, nil
		},
		ListTransactionsFunc: func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
			txRequested = append(txRequested, cursorValue(params.Cursor))
			return &provider.TransactionPage{}, nil
		},
	}

	if _, err := NewSynchronizer(connRepo, accountRepo, txRepo).Sync(context.Background(), conn, client, ModeIncremental); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if len(accountsRequested) != 1 || accountsRequested[0] != "acct-cursor" {
		t.Errorf("accounts requested with cursors %v, want [acct-cursor]", accountsRequested)
	}
	if len(txRequested) != 1 || txRequested[0] != "txn-cursor" {
		t.Errorf("transactions requested with cursors %v, want [txn-cursor]", txRequested)
	}
}

func TestSync_InitialModeRelistsAccounts(t *testing.T) {
	conn := testConnection()
	conn.AccountsCursor = strPtr("acct-cursor")

	var requested []string
	client := &MockProviderClient{
		ListAccountsFunc: func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
			requested = append(requested, cursorValue(params.Cursor))
			return &provider.AccountPage{}, nil
		},
	}

	s := NewSynchronizer(&MockConnectionRepo{}, NewMockAccountRepo(), NewMockTransactionRepo())
	if _, err := s.Sync(context.Background(), conn, client, ModeInitial); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if len(requested) != 1 || requested[0] != "<nil>" {
		t.Errorf("accounts requested with cursors %v, want [<nil>]", requested)
	}
}

func TestSync_RateLimited(t *testing.T) {
	tests := []struct {
		name        string
		retryAfter  int
		wantSeconds int
	}{
		{"with Retry-After header", 45, 45},
		{"without Retry-After header", 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testConnection()

			var recorded *connection.SyncErrorRecord
			committed := false
			connRepo := &MockConnectionRepo{
				RecordSyncErrorFunc: func(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error {
					recorded = &rec
					return nil
				},
				CommitSyncStateFunc: func(ctx context.Context, id string, state connection.SyncState) error {
					committed = true
					return nil
				},
			}

			client := &MockProviderClient{
				ListAccountsFunc: func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
					return nil, &provider.HTTPError{Status: 429, RetryAfter: tt.retryAfter}
				},
			}

			s := NewSynchronizer(connRepo, NewMockAccountRepo(), NewMockTransactionRepo())
			_, err := s.Sync(context.Background(), conn, client, ModeIncremental)

			var rateLimited *RateLimitedError
			if !errors.As(err, &rateLimited) {
				t.Fatalf("Sync() error = %v, want RateLimitedError", err)
			}
			if rateLimited.RetryAfterSeconds != tt.wantSeconds {
				t.Errorf("RetryAfterSeconds = %d, want %d", rateLimited.RetryAfterSeconds, tt.wantSeconds)
			}

			if recorded == nil {
				t.Fatal("RecordSyncError was not called")
			}
			if recorded.Type != "rate_limited" {
				t.Errorf("recorded error type = %q, want rate_limited", recorded.Type)
			}
			if recorded.RetryAfterSeconds != tt.wantSeconds {
				t.Errorf("recorded RetryAfterSeconds = %d, want %d", recorded.RetryAfterSeconds, tt.wantSeconds)
			}
			if committed {
				t.Error("CommitSyncState was called on a failed run")
			}
		})
	}
}

func TestSync_InvalidTransactionAmount(t *testing.T) {
	conn := testConnection()

	accountRepo := NewMockAccountRepo()
	accountRepo.accounts["acct-1"] = &account.Account{ID: "acct-id-acct-1", ExternalID: "acct-1"}

	var recorded *connection.SyncErrorRecord
	connRepo := &MockConnectionRepo{
		RecordSyncErrorFunc: func(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error {
			recorded = &rec
			return nil
		},
	}

	client := &MockProviderClient{
		ListTransactionsFunc: func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
			return &provider.TransactionPage{
				Data: []provider.TransactionRecord{{ExternalID: "txn-bad", PostedString: "2024-03-01T12:00:00Z"}},
			}, nil
		},
	}

	s := NewSynchronizer(connRepo, accountRepo, NewMockTransactionRepo())
	_, err := s.Sync(context.Background(), conn, client, ModeIncremental)

	var invalid *InvalidTransactionAmountError
	if !errors.As(err, &invalid) {
		t.Fatalf("Sync() error = %v, want InvalidTransactionAmountError", err)
	}
	if invalid.AccountExternalID != "acct-1" || invalid.RecordExternalID != "txn-bad" {
		t.Errorf("error identifies %s/%s, want acct-1/txn-bad", invalid.AccountExternalID, invalid.RecordExternalID)
	}

	if recorded == nil || recorded.Type != "invalid_amount" {
		t.Fatalf("recorded error = %+v, want type invalid_amount", recorded)
	}
	if recorded.AccountExternalID != "acct-1" || recorded.RecordExternalID != "txn-bad" {
		t.Errorf("recorded identifies %s/%s, want acct-1/txn-bad", recorded.AccountExternalID, recorded.RecordExternalID)
	}
}

func TestSync_AmountConflict(t *testing.T) {
	conn := testConnection()

	accountRepo := NewMockAccountRepo()
	accountRepo.accounts["acct-1"] = &account.Account{ID: "acct-id-acct-1", ExternalID: "acct-1"}

	txRepo := NewMockTransactionRepo()
	txRepo.UpsertFunc = func(ctx context.Context, params transaction.UpsertParams) (bool, error) {
		return false, transaction.ErrAmountConflict
	}

	var recorded *connection.SyncErrorRecord
	connRepo := &MockConnectionRepo{
		RecordSyncErrorFunc: func(ctx context.Context, id string, rec connection.SyncErrorRecord, at time.Time) error {
			recorded = &rec
			return nil
		},
	}

	client := &MockProviderClient{
		ListTransactionsFunc: func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
			return &provider.TransactionPage{
				Data: []provider.TransactionRecord{{
					ExternalID:   "txn-1",
					AmountString: "-99.00",
					PostedString: "2024-03-01T12:00:00Z",
				}},
			}, nil
		},
	}

	s := NewSynchronizer(connRepo, accountRepo, txRepo)
	_, err := s.Sync(context.Background(), conn, client, ModeIncremental)

	var conflict *AmountConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Sync() error = %v, want AmountConflictError", err)
	}
	if recorded == nil || recorded.Type != "amount_conflict" {
		t.Fatalf("recorded error = %+v, want type amount_conflict", recorded)
	}
}

func TestSync_FlushesCursorPerPage(t *testing.T) {
	conn := testConnection()

	var flushed []string
	connRepo := &MockConnectionRepo{
		UpdateCursorsFunc: func(ctx context.Context, id string, accountsCursor *string, txCursors connection.CursorMap) error {
			flushed = append(flushed, cursorValue(accountsCursor))
			return nil
		},
	}

	client := &MockProviderClient{
		ListAccountsFunc: func(ctx context.Context, params provider.ListParams) (*provider.AccountPage, error) {
			switch cursorValue(params.Cursor) {
			case "<nil>":
				return &provider.AccountPage{
					Data:       []provider.AccountRecord{{ExternalID: "acct-1", CurrencyCode: "USD"}},
					NextCursor: strPtr("page-2"),
				}, nil
			case "page-2":
				return &provider.AccountPage{
					Data:       []provider.AccountRecord{{ExternalID: "acct-2", CurrencyCode: "USD"}},
					NextCursor: strPtr("page-3"),
				}, nil
			default:
				return &provider.AccountPage{}, nil
			}
		},
	}

	s := NewSynchronizer(connRepo, NewMockAccountRepo(), NewMockTransactionRepo())
	result, err := s.Sync(context.Background(), conn, client, ModeInitial)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.AccountsSynced != 2 {
		t.Errorf("AccountsSynced = %d, want 2", result.AccountsSynced)
	}
	if len(flushed) < 2 || flushed[0] != "page-2" || flushed[1] != "page-3" {
		t.Errorf("flushed accounts cursors = %v, want page-2 then page-3 first", flushed)
	}
	if result.AccountsCursor == nil || *result.AccountsCursor != "page-3" {
		t.Errorf("final accounts cursor = %v, want page-3", cursorValue(result.AccountsCursor))
	}
}

func TestSync_KeepsStoredCursorWhenNoNewData(t *testing.T) {
	conn := testConnection()
	conn.TransactionCursors = connection.CursorMap{"acct-1": strPtr("txn-cursor")}

	accountRepo := NewMockAccountRepo()
	accountRepo.accounts["acct-1"] = &account.Account{ID: "acct-id-acct-1", ExternalID: "acct-1"}

	var committed *connection.SyncState
	connRepo := &MockConnectionRepo{
		CommitSyncStateFunc: func(ctx context.Context, id string, state connection.SyncState) error {
			committed = &state
			return nil
		},
	}

	client := &MockProviderClient{
		ListTransactionsFunc: func(ctx context.Context, accountExternalID string, params provider.ListParams) (*provider.TransactionPage, error) {
			return &provider.TransactionPage{}, nil
		},
	}

	s := NewSynchronizer(connRepo, accountRepo, NewMockTransactionRepo())
	if _, err := s.Sync(context.Background(), conn, client, ModeIncremental); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if committed == nil {
		t.Fatal("CommitSyncState was not called")
	}
	cursor, ok := committed.TransactionCursors.Get("acct-1")
	if !ok || cursor == nil || *cursor != "txn-cursor" {
		t.Errorf("committed cursor for acct-1 = %v, want txn-cursor retained", cursorValue(cursor))
	}
}
