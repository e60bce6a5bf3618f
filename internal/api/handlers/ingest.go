// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groupsio/membridge/internal/ingest"
	"github.com/groupsio/membridge/internal/reasoncode"
)

// IngestHandler backs POST /api/v1/ingest.
type IngestHandler struct {
	coord *ingest.Coordinator
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(coord *ingest.Coordinator) *IngestHandler {
	return &IngestHandler{coord: coord}
}

type ingestRequestBody struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Ingest decodes a Payload and runs it through the two-phase
// stage-then-cognify coordinator.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var body ingestRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}

	result, err := h.coord.Ingest(r.Context(), ingest.Payload{
		Content:  body.Content,
		Metadata: body.Metadata,
	})
	if err != nil {
		writeIngestError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, result)
}

func writeIngestError(w http.ResponseWriter, err error) {
	var ingestErr *ingest.IngestError
	if !errors.As(err, &ingestErr) {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch ingestErr.Reason {
	case reasoncode.PayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case reasoncode.Transient:
		status = http.StatusServiceUnavailable
	case reasoncode.NonRetryable:
		status = http.StatusBadGateway
	}
	WriteError(w, status, string(ingestErr.Reason), ingestErr.Message)
}
