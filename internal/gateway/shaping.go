// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// bridgeRecord is the bridge's on-wire shape before Gateway reshapes it:
// snake_case/internal field names and epoch-millisecond timestamps.
type bridgeRecord struct {
	SummaryText     string                 `json:"summary_text"`
	Text            string                 `json:"text"`
	Topic           string                 `json:"topic"`
	TopicID         string                 `json:"topic_id"`
	PlanID          string                 `json:"plan_id"`
	SessionID       string                 `json:"session_id"`
	Status          string                 `json:"status"`
	CreatedAt       int64                  `json:"created_at"`
	SourceCreatedAt int64                  `json:"source_created_at"`
	UpdatedAt       int64                  `json:"updated_at"`
	Score           float64                `json:"score"`
	FinalScore      *float64               `json:"final_score"`
	ConfidenceLabel string                 `json:"confidence_label"`
	Decisions       []string               `json:"decisions"`
	Rationale       string                 `json:"rationale"`
	OpenQuestions   []string               `json:"open_questions"`
	NextSteps       []string               `json:"next_steps"`
	References      []string `json:"references"`
	Tokens          int      `json:"tokens"`
}

type bridgeRetrieveResult struct {
	Results         []bridgeRecord `json:"results"`
	GraphContext    string         `json:"graph_context"`
	ContractVersion int            `json:"contract_version"`
}

// shapeResponse implements spec.md §4.5's shaping rule: filter
// score≤0.01 except the score===0.0 synthesized sentinel, convert
// timestamps to ISO-8601, project field names to the external contract,
// and sum token counts into tokensUsed. It also returns graphContext and
// contractVersion, unshaped, so the caller can decide whether to route
// through SynthesisAdapter (spec.md §4.7).
func shapeResponse(raw json.RawMessage) (RetrievalResponse, string, int, error) {
	var parsed bridgeRetrieveResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return RetrievalResponse{}, "", 0, fmt.Errorf("decode bridge response: %w", err)
	}

	resp := RetrievalResponse{Results: make([]RetrievalResult, 0, len(parsed.Results))}
	for _, rec := range parsed.Results {
		if rec.Score <= 0.01 && rec.Score != 0.0 {
			continue
		}

		result := RetrievalResult{
			SummaryText:     rec.SummaryText,
			Text:            rec.Text,
			Topic:           rec.Topic,
			TopicID:         rec.TopicID,
			PlanID:          rec.PlanID,
			SessionID:       rec.SessionID,
			Status:          MemoryStatus(rec.Status),
			CreatedAt:       epochMillisToISO(rec.CreatedAt),
			SourceCreatedAt: epochMillisToISO(rec.SourceCreatedAt),
			UpdatedAt:       epochMillisToISO(rec.UpdatedAt),
			Score:           rec.Score,
			FinalScore:      rec.FinalScore,
			ConfidenceLabel: ConfidenceLabel(rec.ConfidenceLabel),
			Decisions:       rec.Decisions,
			Rationale:       rec.Rationale,
			OpenQuestions:   rec.OpenQuestions,
			NextSteps:       rec.NextSteps,
			References:      rec.References,
			Tokens:          rec.Tokens,
		}
		resp.Results = append(resp.Results, result)
		resp.TokensUsed += rec.Tokens
	}
	return resp, parsed.GraphContext, parsed.ContractVersion, nil
}

func epochMillisToISO(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
