package pluggy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// errNotObject is returned when a list entry is not a JSON object.
var errNotObject = errors.New("expected a JSON object")

// AuthRequest is the body of POST /auth.
type AuthRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// AuthResponse is the body returned by POST /auth.
type AuthResponse struct {
	APIKey string `json:"apiKey"`
}

// Page is the list envelope shared by the accounts and transactions endpoints.
type Page[T any] struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	Results    []T `json:"results"`
}

// Account is an account exposed under an item. Only the id is decoded; the
// provider's object is kept verbatim and marshaled back unchanged.
type Account struct {
	ID string

	raw json.RawMessage
}

func (a *Account) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return fmt.Errorf("account: %w", errNotObject)
	}
	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("account: %w", err)
	}
	a.ID = fields.ID
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the provider's object, or {"id":...} for an account
// built in code.
func (a Account) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	return json.Marshal(struct {
		ID string `json:"id"`
	}{a.ID})
}

// Transaction is a ledger entry of an account. ID, Description and Amount are
// the stored columns; every other provider field rides along in the raw object.
type Transaction struct {
	ID          string
	Description string
	Amount      decimal.Decimal

	raw json.RawMessage
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return fmt.Errorf("transaction: %w", errNotObject)
	}
	var fields struct {
		ID          string          `json:"id"`
		Description *string         `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	t.ID = fields.ID
	t.Amount = fields.Amount
	if fields.Description != nil {
		t.Description = *fields.Description
	}
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the provider's object. Transactions built in code are
// written with the amount as a JSON number, as the provider sends it.
func (t Transaction) MarshalJSON() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	return json.Marshal(struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      json.RawMessage `json:"amount"`
	}{t.ID, t.Description, json.RawMessage(t.Amount.String())})
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) >= 2 && data[0] == '{' && data[len(data)-1] == '}'
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Code            int    `json:"code"`
	Message         string `json:"message"`
	CodeDescription string `json:"codeDescription,omitempty"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}
