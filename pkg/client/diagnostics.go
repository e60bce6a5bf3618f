// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// DiagnosticsClient provides access to the supervisor's self-report.
type DiagnosticsClient struct {
	c *Client
}

// Get fetches a point-in-time diagnostics snapshot from GET
// /api/v1/diagnostics.
func (d *DiagnosticsClient) Get(ctx context.Context) (*DiagnosticsReport, error) {
	raw, err := d.c.get(ctx, "/api/v1/diagnostics")
	if err != nil {
		return nil, err
	}

	var report DiagnosticsReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diagnostics report: %w", err)
	}
	return &report, nil
}
