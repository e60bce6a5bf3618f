// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the bridge
// supervisor's HTTP API.
//
// Create a client pointing to a running membridged instance:
//
//	c := client.New("http://localhost:8765")
//
// The client exposes the API's resources through sub-clients:
//
//	results, err := c.Memory.Retrieve(ctx, client.RetrievalRequest{Query: "what did we decide about auth"})
//	status, err := c.Memory.Ingest(ctx, client.IngestPayload{Content: "we decided to use Postgres"})
//	report, err := c.Diagnostics.Get(ctx)
//
// # Error Handling
//
// API errors are returned as *APIError values, which carry a
// machine-readable code and message:
//
//	_, err := c.Memory.Retrieve(ctx, req)
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) {
//	    fmt.Printf("API error: %s - %s\n", apiErr.Code, apiErr.Message)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a membridge API client.
//
// A Client provides access to the API through resource-specific
// sub-clients. Use [New] to create a Client instance. The Client is
// safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Memory provides access to retrieval and ingest operations, the
	// Gateway's actual callers (spec.md §1).
	Memory *MemoryClient

	// Diagnostics provides access to the supervisor's self-report.
	Diagnostics *DiagnosticsClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a client for the membridge API at baseURL (e.g.
// "http://localhost:8765"). Any trailing slash is removed.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Memory = &MemoryClient{c: c}
	c.Diagnostics = &DiagnosticsClient{c: c}

	return c
}

// WithHTTPClient sets a custom HTTP client, e.g. for TLS or proxy
// configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client's per-request timeout. The default
// is 30 seconds; a synchronous ingest call may need longer (spec.md
// §4.6.2's 120-second synchronous path).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiResponse is the standard response envelope internal/api/handlers
// writes.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// APIError is an error response from the membridge API.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}

	if apiResp.Error != nil {
		return nil, apiResp.Error
	}

	return apiResp.Data, nil
}
