// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/gateway"
	"github.com/groupsio/membridge/internal/llm"
)

// charsPerToken approximates the rune-per-token ratio used to convert
// the configured token budget into a rune-count truncation threshold;
// see DESIGN.md for why a full tokenizer was declined.
const charsPerToken = 4

// Config wires the adapter's collaborators.
type Config struct {
	Model Model
	// MaxContextTokens bounds graphContext's size before synthesis; it
	// is converted to a rune budget via charsPerToken. Mirrors
	// internal/config.ContextConfig.MaxTokens.
	MaxContextTokens int
	Notifier         Notifier
	Bus              events.EventBus
	Log              *zap.Logger
}

// Model is the subset of llm.Model the adapter invokes; kept as its
// own alias so callers can substitute a fake without importing llm.
type Model = llm.Model

// Adapter implements SynthesisAdapter.
type Adapter struct {
	cfg     Config
	log     *zap.Logger
	runeCap int

	mu           sync.Mutex
	lastNotifyAt time.Time
}

// NotifyThrottle is the minimum interval between unavailable-model
// notifications, so a string of failed calls surfaces one message, not
// one per request.
const NotifyThrottle = 5 * time.Minute

// New constructs an Adapter from cfg.
func New(cfg Config) *Adapter {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	runeCap := cfg.MaxContextTokens * charsPerToken
	if runeCap <= 0 {
		runeCap = 32_000 * charsPerToken
	}
	return &Adapter{cfg: cfg, log: log, runeCap: runeCap}
}

// Synthesize runs the SynthesisAdapter contract. It never returns an
// error: every failure mode resolves to an empty result plus a
// notification or a diagnostic log, per spec.md §4.7.
func (a *Adapter) Synthesize(ctx context.Context, req Request) []gateway.RetrievalResult {
	if req.ContractVersion < MinContractVersion || strings.TrimSpace(req.GraphContext) == "" {
		return nil
	}
	if a.cfg.Model == nil {
		a.notifyUnavailable(ctx, "no language model configured")
		return nil
	}

	truncatedContext, truncated := a.truncate(req.GraphContext)
	if truncated {
		a.log.Debug("graphContext truncated to fit the model window", zap.Int("rune_cap", a.runeCap))
	}
	prompt := buildPrompt(req.Query, truncatedContext)

	answer, err := a.cfg.Model.Complete(ctx, prompt)
	if err != nil {
		if unavailable, ok := asUnavailable(err); ok {
			a.notifyUnavailable(ctx, unavailable.Error())
		} else {
			a.log.Warn("synthesis failed", zap.Error(err))
			a.emit(events.EventIngestFailed, map[string]interface{}{"stage": "synthesis", "error": err.Error()})
		}
		return nil
	}

	if isNoRelevantContext(answer) {
		return nil
	}

	score := 1.0
	return []gateway.RetrievalResult{{
		SummaryText:     strings.TrimSpace(answer),
		Score:           score,
		FinalScore:      &score,
		ConfidenceLabel: gateway.ConfidenceSynthesizedHigh,
		Status:          gateway.StatusActive,
		Tokens:          estimateTokens(answer),
	}}
}

// SynthesizeResults implements gateway.Synthesizer directly, sparing
// gateway an import of this package's Request type.
func (a *Adapter) SynthesizeResults(ctx context.Context, query, graphContext string, contractVersion int) []gateway.RetrievalResult {
	return a.Synthesize(ctx, Request{Query: query, GraphContext: graphContext, ContractVersion: contractVersion})
}

func buildPrompt(query, context string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer using only the context above. If nothing in the context answers the question, respond with exactly: %s",
		context, query, noRelevantContextSentinel)
}

// truncate clamps context to the adapter's rune budget, reporting
// whether truncation occurred (spec.md §4.7 "records whether
// truncation occurred").
func (a *Adapter) truncate(context string) (string, bool) {
	runes := []rune(context)
	if len(runes) <= a.runeCap {
		return context, false
	}
	return string(runes[:a.runeCap]), true
}

func isNoRelevantContext(answer string) bool {
	return strings.Contains(strings.ToLower(answer), noRelevantContextSentinel)
}

func estimateTokens(text string) int {
	return len([]rune(text)) / charsPerToken
}

func asUnavailable(err error) (*llm.ErrUnavailable, bool) {
	unavailable, ok := err.(*llm.ErrUnavailable)
	return unavailable, ok
}

func (a *Adapter) notifyUnavailable(ctx context.Context, reason string) {
	a.log.Warn("language model unavailable", zap.String("reason", reason))
	a.emit(events.EventIngestFailed, map[string]interface{}{"stage": "synthesis", "reason": reason})

	if a.cfg.Notifier == nil {
		return
	}

	a.mu.Lock()
	if time.Since(a.lastNotifyAt) < NotifyThrottle {
		a.mu.Unlock()
		return
	}
	a.lastNotifyAt = time.Now()
	a.mu.Unlock()

	_ = a.cfg.Notifier.Notify(ctx, "memory synthesis is unavailable: "+reason)
}

func (a *Adapter) emit(eventType string, payload map[string]interface{}) {
	if a.cfg.Bus == nil {
		return
	}
	a.cfg.Bus.Publish(context.Background(), events.Event{Type: eventType, Payload: payload})
}
