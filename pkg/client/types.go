// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

// RetrievalRequest is what a caller submits to Memory.Retrieve. It
// mirrors internal/gateway.RetrievalRequest's wire shape.
type RetrievalRequest struct {
	Query   string                 `json:"query"`
	TopK    int                    `json:"topK,omitempty"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// RetrievalResult is one shaped memory record. It mirrors
// internal/gateway.RetrievalResult's wire shape.
type RetrievalResult struct {
	SummaryText     string                 `json:"summaryText"`
	Text            string                 `json:"text,omitempty"`
	Topic           string                 `json:"topic,omitempty"`
	TopicID         string                 `json:"topicId,omitempty"`
	PlanID          string                 `json:"planId,omitempty"`
	SessionID       string                 `json:"sessionId,omitempty"`
	Status          string                 `json:"status,omitempty"`
	CreatedAt       string                 `json:"createdAt,omitempty"`
	SourceCreatedAt string                 `json:"sourceCreatedAt,omitempty"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
	Score           float64                `json:"score"`
	FinalScore      *float64               `json:"finalScore,omitempty"`
	ConfidenceLabel string                 `json:"confidenceLabel,omitempty"`
	Decisions       []string               `json:"decisions,omitempty"`
	Rationale       string                 `json:"rationale,omitempty"`
	OpenQuestions   []string               `json:"openQuestions,omitempty"`
	NextSteps       []string               `json:"nextSteps,omitempty"`
	References      []string               `json:"references,omitempty"`
	Tokens          int                    `json:"tokens,omitempty"`
}

// RetrievalResponse is Memory.Retrieve's reply.
type RetrievalResponse struct {
	Results    []RetrievalResult `json:"results"`
	TokensUsed int               `json:"tokensUsed"`
}

// IngestPayload is what a caller submits to Memory.Ingest. It mirrors
// internal/ingest.Payload's wire shape.
type IngestPayload struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestResult is Memory.Ingest's reply. It mirrors
// internal/ingest.IngestResult's wire shape.
type IngestResult struct {
	Staged      bool   `json:"staged"`
	Success     bool   `json:"success"`
	OperationID string `json:"operationId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DiagnosticsReport is the supervisor's self-report. It mirrors
// internal/supervisor.DiagnosticsReport's wire shape.
type DiagnosticsReport struct {
	State            string                 `json:"state"`
	CurrentAttempt   map[string]interface{} `json:"currentAttempt,omitempty"`
	LastFailure      map[string]interface{} `json:"lastFailure,omitempty"`
	Recovery         map[string]interface{} `json:"recovery"`
	Lock             map[string]interface{} `json:"lock"`
	Runtime          map[string]interface{} `json:"runtime"`
	RemediationHints []string               `json:"remediationHints,omitempty"`
}
