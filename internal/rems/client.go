// Copyright (c) 2026 Hilla. All rights reserved.

package rems

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hillalabs/hilla/internal/platform/config"
)

// Opinionated bounds for REMS API traffic.
const (
	// maxLoggedBody caps how much of an error response body is retained
	// for diagnostics.
	maxLoggedBody = 2048

	// redactedValue replaces sensitive field values in log output.
	redactedValue = "[REDACTED]"
)

// API is the outbound contract the decision engine and registration
// workflow depend on.
//
// # Why an interface?
//
// Separating the contract from [Client] lets service tests script REMS
// responses without a network listener, the same way repository interfaces
// isolate services from PostgreSQL.
type API interface {
	// Get performs a GET request against a relative API path, acting as
	// the given REMS identity.
	Get(ctx context.Context, path string, actingUserID string) (json.RawMessage, error)

	// Post performs a POST request with a JSON body, acting as the given
	// REMS identity. The decoded response must carry `"success": true`.
	Post(ctx context.Context, path string, body map[string]any, actingUserID string) (json.RawMessage, error)
}

// Client is a stateless JSON/HTTP wrapper around the REMS API.
//
// # Retry Policy
//
// None. REMS POST endpoints are not idempotent (a duplicated submit call
// double-submits an application), so retrying is the caller's decision and
// in practice is never done.
type Client struct {
	baseURL       string
	apiKey        string
	identityField string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient constructs a REMS API client from the deployment configuration.
//
// # Parameters
//   - cfg: The validated REMS configuration block.
//   - logger: Structured logger for failed-call diagnostics.
func NewClient(cfg config.REMSConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       cfg.APIURL,
		apiKey:        cfg.APIKey,
		identityField: cfg.FieldIdentity,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Get performs a GET request against a relative REMS API path.
//
// # Returns
//   - json.RawMessage: The raw response body on HTTP 200.
//   - error: An [*APIError] on transport failure or any non-200 status.
func (client *Client) Get(ctx context.Context, path string, actingUserID string) (json.RawMessage, error) {
	return client.send(ctx, http.MethodGet, path, nil, actingUserID)
}

// Post performs a POST request with a JSON body against a relative REMS API path.
//
// # Returns
//   - json.RawMessage: The raw response body on success.
//   - error: An [*APIError]. A 200 response whose body lacks
//     `"success": true` is a [KindRejected] failure — REMS reports
//     application-level errors this way.
func (client *Client) Post(ctx context.Context, path string, body map[string]any, actingUserID string) (json.RawMessage, error) {
	raw, err := client.send(ctx, http.MethodPost, path, body, actingUserID)
	if err != nil {
		return nil, err
	}

	// REMS wraps POST results in {"success": bool, ...}. Anything other
	// than an explicit true is an application-level rejection even though
	// the HTTP layer reported 200.
	var envelope struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || !envelope.Success {
		apiErr := &APIError{
			Kind: KindRejected,
			URL:  client.baseURL + "/" + path,
			Body: truncate(string(raw)),
		}
		client.logFailure(apiErr, body)
		return nil, apiErr
	}

	return raw, nil
}

// send builds, executes, and decodes a single REMS API call.
func (client *Client) send(ctx context.Context, method, path string, body map[string]any, actingUserID string) (json.RawMessage, error) {
	url := client.baseURL + "/" + path

	// ── 1. Request Construction ───────────────────────────────────────────

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			apiErr := &APIError{Kind: KindTransport, URL: url, Cause: err}
			client.logFailure(apiErr, body)
			return nil, apiErr
		}
		payload = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		apiErr := &APIError{Kind: KindTransport, URL: url, Cause: err}
		client.logFailure(apiErr, body)
		return nil, apiErr
	}

	// Every call authenticates with the API key and declares which REMS
	// identity it acts as.
	request.Header.Set("x-rems-api-key", client.apiKey)
	request.Header.Set("x-rems-user-id", actingUserID)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	// ── 2. Execution ──────────────────────────────────────────────────────

	started := time.Now()
	response, err := client.httpClient.Do(request)
	if err != nil {
		apiErr := &APIError{Kind: KindTransport, URL: url, Cause: err}
		client.logFailure(apiErr, body)
		return nil, apiErr
	}
	defer func() { _ = response.Body.Close() }()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		apiErr := &APIError{Kind: KindTransport, URL: url, Cause: err}
		client.logFailure(apiErr, body)
		return nil, apiErr
	}

	// ── 3. Status Validation ──────────────────────────────────────────────

	if response.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Kind:       KindHTTP,
			URL:        url,
			HTTPStatus: response.StatusCode,
			Body:       truncate(string(raw)),
		}
		client.logFailure(apiErr, body)
		return nil, apiErr
	}

	client.logger.Debug("rems_call_completed",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int64("latency_ms", time.Since(started).Milliseconds()),
	)

	return raw, nil
}

// logFailure records a failed call with its URL and serialized parameters.
// Identity tokens are masked before anything reaches the log stream.
func (client *Client) logFailure(apiErr *APIError, body map[string]any) {
	client.logger.Error("rems_call_failed",
		slog.String("kind", string(apiErr.Kind)),
		slog.String("url", apiErr.URL),
		slog.Int("status", apiErr.HTTPStatus),
		slog.String("params", client.serializeForLog(body)),
		slog.Any("error", apiErr.Cause),
	)
}

// serializeForLog renders request parameters for diagnostics with the
// configured identity field masked. The national-identity token must never
// be written to logs.
func (client *Client) serializeForLog(body map[string]any) string {
	if body == nil {
		return ""
	}

	encoded, err := json.Marshal(client.redact(body))
	if err != nil {
		return "unserializable"
	}
	return truncate(string(encoded))
}

// redact returns a copy of body with sensitive values masked.
//
// The only sensitive value REMS traffic carries is the identity token,
// which travels inside the "field-values" list keyed by the configured
// identity field id.
func (client *Client) redact(body map[string]any) map[string]any {
	masked := make(map[string]any, len(body))
	for key, value := range body {
		masked[key] = value
	}

	fieldValues, ok := masked["field-values"].([]map[string]any)
	if !ok {
		return masked
	}

	maskedFields := make([]map[string]any, 0, len(fieldValues))
	for _, entry := range fieldValues {
		if entry["field"] == client.identityField {
			copied := map[string]any{"field": entry["field"], "value": redactedValue}
			maskedFields = append(maskedFields, copied)
			continue
		}
		maskedFields = append(maskedFields, entry)
	}
	masked["field-values"] = maskedFields

	return masked
}

// truncate caps diagnostic payloads at maxLoggedBody bytes.
func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody]
	}
	return s
}
