// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the concurrency-capped, rate-limited FIFO
// admission façade agent consumers call into (spec.md §4.5). It sits in
// front of the Supervisor: every retrieval request is admitted, queued,
// dispatched, and its bridge response reshaped before the caller ever
// sees it.
package gateway

import (
	"time"

	"github.com/groupsio/membridge/internal/reasoncode"
)

// RetrievalRequest is what a caller submits.
type RetrievalRequest struct {
	Query   string
	TopK    int
	Filters map[string]interface{}
}

// ConfidenceLabel mirrors spec.md §3's RetrievalResult.confidenceLabel.
type ConfidenceLabel string

const (
	ConfidenceSynthesizedHigh ConfidenceLabel = "synthesized_high"
	ConfidenceNormal          ConfidenceLabel = "normal"
)

// MemoryStatus mirrors spec.md §3's RetrievalResult.status.
type MemoryStatus string

const (
	StatusActive         MemoryStatus = "Active"
	StatusSuperseded     MemoryStatus = "Superseded"
	StatusDecisionRecord MemoryStatus = "DecisionRecord"
)

// RetrievalResult is the shaped record returned to callers (spec.md §3).
type RetrievalResult struct {
	SummaryText     string                 `json:"summaryText"`
	Text            string                 `json:"text,omitempty"`
	Topic           string                 `json:"topic,omitempty"`
	TopicID         string                 `json:"topicId,omitempty"`
	PlanID          string                 `json:"planId,omitempty"`
	SessionID       string                 `json:"sessionId,omitempty"`
	Status          MemoryStatus           `json:"status,omitempty"`
	CreatedAt       string                 `json:"createdAt,omitempty"`
	SourceCreatedAt string                 `json:"sourceCreatedAt,omitempty"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
	Score           float64                `json:"score"`
	FinalScore      *float64               `json:"finalScore,omitempty"`
	ConfidenceLabel ConfidenceLabel        `json:"confidenceLabel,omitempty"`
	Decisions       []string               `json:"decisions,omitempty"`
	Rationale       string                 `json:"rationale,omitempty"`
	OpenQuestions   []string               `json:"openQuestions,omitempty"`
	NextSteps       []string               `json:"nextSteps,omitempty"`
	References      []string        `json:"references,omitempty"`
	Tokens          int             `json:"tokens,omitempty"`
}

// RetrievalResponse is the Gateway's shaped reply.
type RetrievalResponse struct {
	Results    []RetrievalResult `json:"results"`
	TokensUsed int               `json:"tokensUsed"`
}

// AdmissionError carries a reason code and user-actionable text, per
// spec.md §4.5's error-mapping table.
type AdmissionError struct {
	Reason  reasoncode.Code
	Message string
}

func (e *AdmissionError) Error() string {
	return e.Message
}

// queueEntry is the internal FIFO entry (spec.md §3 "Gateway queue
// entry"), id monotonic for the Gateway's lifetime.
type queueEntry struct {
	id       uint64
	request  RetrievalRequest
	queuedAt time.Time
	reply    chan queueResult
}

type queueResult struct {
	response RetrievalResponse
	err      error
}
