// Package provider implements the HTTP client for the Pierre Finance data
// API: cursor-paginated account and transaction listing with bearer auth and
// optional mutual TLS.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.pierre.finance/v1"
	defaultTimeout = 30 * time.Second

	accountsPath     = "/accounts"
	transactionsPath = "/accounts/%s/transactions"
)

// ListParams carries pagination state for a list call. A nil Cursor starts
// from the beginning of the stream.
type ListParams struct {
	Cursor *string
}

// Client is the narrow contract the synchronizer needs from the provider.
type Client interface {
	ListAccounts(ctx context.Context, params ListParams) (*AccountPage, error)
	ListTransactions(ctx context.Context, accountExternalID string, params ListParams) (*TransactionPage, error)
}

// Config holds construction-time settings for the HTTP client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// ClientCert enables mutual TLS when set. The provider requires client
	// certificates in production; sandbox access works without them.
	ClientCert *CertSource
}

// HTTPClient is the production implementation of Client.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a provider client. Certificate material, when
// configured, is resolved once here rather than per request.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport, err := newTransport(cfg.ClientCert)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}, nil
}

// accountEnvelope mirrors the provider's list-accounts response body.
type accountEnvelope struct {
	Success    bool            `json:"success"`
	Data       []AccountRecord `json:"data"`
	NextCursor *string         `json:"nextCursor"`
}

type transactionEnvelope struct {
	Success    bool                `json:"success"`
	Data       []TransactionRecord `json:"data"`
	NextCursor *string             `json:"nextCursor"`
}

// ListAccounts fetches one page of accounts starting at params.Cursor.
func (c *HTTPClient) ListAccounts(ctx context.Context, params ListParams) (*AccountPage, error) {
	body, err := c.get(ctx, accountsPath, params.Cursor)
	if err != nil {
		return nil, err
	}

	var env accountEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to unmarshal accounts response: %w", err)}
	}
	if !env.Success {
		return nil, &TransportError{Err: fmt.Errorf("API returned success=false")}
	}

	return &AccountPage{Data: env.Data, NextCursor: env.NextCursor}, nil
}

// ListTransactions fetches one page of an account's transactions starting at
// params.Cursor.
func (c *HTTPClient) ListTransactions(ctx context.Context, accountExternalID string, params ListParams) (*TransactionPage, error) {
	path := fmt.Sprintf(transactionsPath, url.PathEscape(accountExternalID))

	body, err := c.get(ctx, path, params.Cursor)
	if err != nil {
		return nil, err
	}

	var env transactionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to unmarshal transactions response: %w", err)}
	}
	if !env.Success {
		return nil, &TransportError{Err: fmt.Errorf("API returned success=false")}
	}

	return &TransactionPage{Data: env.Data, NextCursor: env.NextCursor}, nil
}

// get issues an authenticated GET and returns the raw body, mapping failures
// into the typed ClientError taxonomy.
func (c *HTTPClient) get(ctx context.Context, path string, cursor *string) ([]byte, error) {
	reqURL := c.baseURL + path
	if cursor != nil {
		reqURL += "?cursor=" + url.QueryEscape(*cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Err: err}
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp, body)
	}

	return body, nil
}

func newHTTPError(resp *http.Response, body []byte) *HTTPError {
	httpErr := &HTTPError{
		Status:  resp.StatusCode,
		Details: string(body),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
				httpErr.RetryAfter = seconds
			}
		}
	}

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		httpErr.Details = errResp.Error + ": " + errResp.Message
	}

	return httpErr
}

func isTimeout(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
