// Package provider contains outbound adapters for external settlement
// providers. Every provider is reached through the same JSON contract, so
// one HTTP adapter parameterized by name, base URL and credentials covers
// the whole fleet.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vtupay/config"
	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient abstracts the HTTP transport so tests can substitute it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPAdapter implements ports.ProviderAdapter over a JSON HTTP API.
type HTTPAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  HTTPClient
	log     zerolog.Logger
}

// NewHTTPAdapter creates an adapter for one configured provider.
func NewHTTPAdapter(cfg config.ProviderConfig, client HTTPClient, log zerolog.Logger) *HTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPAdapter{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		log:     log.With().Str("provider", cfg.Name).Logger(),
	}
}

// Name returns the provider's registry name.
func (a *HTTPAdapter) Name() string {
	return a.name
}

type fulfillRequest struct {
	Reference string          `json:"reference"`
	Service   string          `json:"service"`
	Amount    int64           `json:"amount"`
	Metadata  domain.Metadata `json:"metadata"`
}

type fulfillResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

// Fulfill submits the transaction to the provider and reports the outcome.
// A transport or decoding error is returned as err; a well-formed rejection
// comes back as a result with Success false. The caller's ctx bounds the
// whole call, expiry included.
func (a *HTTPAdapter) Fulfill(ctx context.Context, txn *domain.Transaction) (*ports.ProviderResult, error) {
	body, err := json.Marshal(fulfillRequest{
		Reference: txn.Reference,
		Service:   string(txn.Type),
		Amount:    txn.Amount,
		Metadata:  txn.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling fulfill request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/fulfill", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building fulfill request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading provider %s response: %w", a.name, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("provider %s returned status %d", a.name, resp.StatusCode)
	}

	var parsed fulfillResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding provider %s response: %w", a.name, err)
	}

	result := &ports.ProviderResult{
		Success:           parsed.Success && resp.StatusCode < http.StatusBadRequest,
		ProviderReference: parsed.Reference,
		Message:           parsed.Message,
		RawResponse:       json.RawMessage(raw),
	}

	a.log.Debug().
		Str("reference", txn.Reference).
		Bool("success", result.Success).
		Int("http_status", resp.StatusCode).
		Msg("provider fulfillment completed")

	return result, nil
}
