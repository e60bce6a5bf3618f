// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/groupsio/membridge/internal/supervisor"
)

// HealthHandler backs GET /api/v1/health.
type HealthHandler struct {
	sup *supervisor.Supervisor
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(sup *supervisor.Supervisor) *HealthHandler {
	return &HealthHandler{sup: sup}
}

type healthResponse struct {
	Status      string `json:"status"`
	DaemonState string `json:"daemonState,omitempty"`
}

// Get reports "ok" as long as the HTTP surface itself is reachable; the
// daemon's own lifecycle state rides along for convenience so callers
// don't need a second round trip to /diagnostics for the common case.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.sup != nil {
		report, err := h.sup.Diagnostics(r.Context())
		if err == nil {
			resp.DaemonState = string(report.State)
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
