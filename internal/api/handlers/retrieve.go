// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groupsio/membridge/internal/gateway"
	"github.com/groupsio/membridge/internal/reasoncode"
)

// RetrieveHandler backs POST /api/v1/retrieve.
type RetrieveHandler struct {
	gw *gateway.Gateway
}

// NewRetrieveHandler constructs a RetrieveHandler.
func NewRetrieveHandler(gw *gateway.Gateway) *RetrieveHandler {
	return &RetrieveHandler{gw: gw}
}

type retrieveRequestBody struct {
	Query   string                 `json:"query"`
	TopK    int                    `json:"topK"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// Retrieve decodes a RetrievalRequest, runs it through Gateway admission
// and dispatch, and writes the shaped response.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var body retrieveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}

	resp, err := h.gw.Retrieve(r.Context(), gateway.RetrievalRequest{
		Query:   body.Query,
		TopK:    body.TopK,
		Filters: body.Filters,
	})
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	var admErr *gateway.AdmissionError
	if !errors.As(err, &admErr) {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch admErr.Reason {
	case reasoncode.AccessDisabled:
		status = http.StatusServiceUnavailable
	case reasoncode.InvalidRequest:
		status = http.StatusBadRequest
	case reasoncode.RateLimitExceeded:
		status = http.StatusTooManyRequests
	case reasoncode.QueueFull:
		status = http.StatusServiceUnavailable
	case reasoncode.BridgeTimeout:
		status = http.StatusGatewayTimeout
	}
	WriteError(w, status, string(admErr.Reason), admErr.Message)
}
