// Package forwarder posts the synced item document to the downstream endpoint.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pluggysync/internal/domain/itemsync"
)

const (
	defaultTimeout = 60 * time.Second
	runIDHeader    = "X-Sync-Run-ID"
	maxErrorBody   = 1024
)

// Config configures a Client. HTTPClient overrides the instrumented default.
type Config struct {
	TargetEndpoint string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// Client sends ItemData to a single configured URL.
type Client struct {
	httpClient *http.Client
	target     string
	logger     zerolog.Logger
}

// Ensure Client implements itemsync.Forwarder
var _ itemsync.Forwarder = (*Client)(nil)

func NewClient(cfg Config) *Client {
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
		target:     cfg.TargetEndpoint,
		logger:     cfg.Logger.With().Str("component", "forwarder").Logger(),
	}
}

// Forward POSTs data as JSON. Any transport failure or non-2xx status is an error.
func (c *Client) Forward(ctx context.Context, runID string, data *itemsync.ItemData) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to marshal item data: %w", err)
	}
	payload := buf.Bytes()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if runID != "" {
		req.Header.Set(runIDHeader, runID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send data to endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	io.Copy(io.Discard, resp.Body)

	c.logger.Info().
		Int("status", resp.StatusCode).
		Int("bytes", len(payload)).
		Msg("Forwarded item data")

	return nil
}
