package provider

import (
	"fmt"
	"strconv"
	"time"
)

// AccountRecord is one account as returned by the provider. Monetary fields
// arrive as strings on the wire.
type AccountRecord struct {
	ExternalID             string `json:"id"`
	Name                   string `json:"name"`
	Type                   string `json:"type"`
	Subtype                string `json:"subtype"`
	CurrencyCode           string `json:"currencyCode"`
	CurrentBalanceString   string `json:"currentBalance"`
	AvailableBalanceString string `json:"availableBalance"`
}

// CurrentBalance returns the current balance as a float64.
func (a *AccountRecord) CurrentBalance() (float64, error) {
	return parseBalance(a.CurrentBalanceString, "currentBalance")
}

// AvailableBalance returns the available balance as a float64.
func (a *AccountRecord) AvailableBalance() (float64, error) {
	return parseBalance(a.AvailableBalanceString, "availableBalance")
}

func parseBalance(s, field string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s '%s': %w", field, s, err)
	}
	return v, nil
}

// AccountPage is one page of the accounts stream. A nil NextCursor signals
// the final page.
type AccountPage struct {
	Data       []AccountRecord
	NextCursor *string
}

// TransactionRecord is one transaction as returned by the provider.
type TransactionRecord struct {
	ExternalID   string `json:"id"`
	AmountString string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
	PostedString string `json:"postedAt"` // RFC 3339
	Description  string `json:"description"`
	Status       string `json:"status"` // PENDING or POSTED
	Type         string `json:"type"`   // DEBIT or CREDIT
}

// Amount returns the signed amount as a float64. Unlike balances, a missing
// amount is a structural defect in the record, not a zero value.
func (t *TransactionRecord) Amount() (float64, error) {
	if t.AmountString == "" {
		return 0, fmt.Errorf("transaction %s has no amount", t.ExternalID)
	}
	amount, err := strconv.ParseFloat(t.AmountString, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", t.AmountString, err)
	}
	return amount, nil
}

// PostedAt parses and returns the posted timestamp.
func (t *TransactionRecord) PostedAt() (*time.Time, error) {
	if t.PostedString == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, t.PostedString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postedAt '%s': %w", t.PostedString, err)
	}
	return &parsed, nil
}

// TransactionPage is one page of an account's transaction stream.
type TransactionPage struct {
	Data       []TransactionRecord
	NextCursor *string
}
