// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// MemoryClient provides access to the retrieval and ingest operations
// a Gateway-backed bridge supervisor exposes.
type MemoryClient struct {
	c *Client
}

// Retrieve submits req to POST /api/v1/retrieve and returns the
// Gateway's shaped reply.
func (m *MemoryClient) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResponse, error) {
	raw, err := m.c.postJSON(ctx, "/api/v1/retrieve", req)
	if err != nil {
		return nil, err
	}

	var resp RetrievalResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retrieval response: %w", err)
	}
	return &resp, nil
}

// Ingest submits payload to POST /api/v1/ingest. The call returns as
// soon as the content is staged; cognification happens in the
// background on the server.
func (m *MemoryClient) Ingest(ctx context.Context, payload IngestPayload) (*IngestResult, error) {
	raw, err := m.c.postJSON(ctx, "/api/v1/ingest", payload)
	if err != nil {
		return nil, err
	}

	var result IngestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingest result: %w", err)
	}
	return &result, nil
}
