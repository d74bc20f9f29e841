// Package pluggy is a minimal client for the Pluggy open finance API:
// client-credential authentication plus account and transaction listing.
package pluggy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL   = "https://api.pluggy.ai"
	defaultTimeout   = 60 * time.Second
	authPath         = "/auth"
	accountsPath     = "/accounts"
	transactionsPath = "/transactions"
	apiKeyHeader     = "X-API-KEY"
)

// ErrMissingAPIKey is returned when /auth answers 2xx without an apiKey.
var ErrMissingAPIKey = errors.New("apiKey not found in auth response")

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client handles communication with the Pluggy API
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Pluggy API client
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     cfg.Logger.With().Str("component", "pluggy").Logger(),
	}
}

// Authenticate exchanges the client credentials for a short-lived API key.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) (string, error) {
	c.logger.Info().Msg("Requesting API key with client credentials")

	var authResp AuthResponse
	body := AuthRequest{ClientID: clientID, ClientSecret: clientSecret}
	if err := c.do(ctx, http.MethodPost, authPath, nil, "", body, &authResp); err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}

	if authResp.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	return authResp.APIKey, nil
}

// GetAccounts fetches the accounts that belong to an item.
func (c *Client) GetAccounts(ctx context.Context, apiKey, itemID string) (*Page[Account], error) {
	c.logger.Info().Str("item_id", itemID).Msg("Getting accounts for item")

	var page Page[Account]
	query := url.Values{"itemId": {itemID}}
	if err := c.do(ctx, http.MethodGet, accountsPath, query, apiKey, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to get accounts for item %s: %w", itemID, err)
	}

	c.warnIfPaginated("accounts", itemID, page.TotalPages)
	return &page, nil
}

// GetTransactions fetches the transactions of a single account.
func (c *Client) GetTransactions(ctx context.Context, apiKey, accountID string) (*Page[Transaction], error) {
	c.logger.Info().Str("account_id", accountID).Msg("Getting transactions for account")

	var page Page[Transaction]
	query := url.Values{"accountId": {accountID}}
	if err := c.do(ctx, http.MethodGet, transactionsPath, query, apiKey, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %s: %w", accountID, err)
	}

	c.warnIfPaginated("transactions", accountID, page.TotalPages)
	return &page, nil
}

// Only the first page is read.
func (c *Client) warnIfPaginated(resource, id string, totalPages int) {
	if totalPages > 1 {
		c.logger.Warn().
			Str("resource", resource).
			Str("id", id).
			Int("total_pages", totalPages).
			Msg("Response has more pages; only the first page is synced")
	}
}

// do sends a JSON request and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, apiKey string, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Pluggy response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
