// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ingest implements the AsyncIngestCoordinator: the two-phase
// stage-then-cognify ingestion pipeline with bounded retry and transient-
// error classification (spec.md §4.6).
package ingest

import "github.com/groupsio/membridge/internal/reasoncode"

// MaxPayloadChars is the serialized-payload size limit; anything over
// this fails fast with PayloadTooLarge rather than being attempted.
const MaxPayloadChars = 100_000

// StagingMaxRetries bounds the phase-1 staging retry loop.
const StagingMaxRetries = 2

// Payload is what a caller wants persisted and, eventually, cognified.
type Payload struct {
	Content  string
	Metadata map[string]interface{}
}

// StageResult is phase 1's outcome.
type StageResult struct {
	Staged bool
}

// IngestResult is the coordinator's reply to the caller (spec.md §4.6
// "return {operationId, staged:true}" or "{staged:true, success:false,
// error}").
type IngestResult struct {
	Staged      bool
	Success     bool
	OperationID string
	Error       string
}

// IngestError carries a reason code for a failed ingest attempt.
type IngestError struct {
	Reason  reasoncode.Code
	Message string
}

func (e *IngestError) Error() string { return e.Message }
