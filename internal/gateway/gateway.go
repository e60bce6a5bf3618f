// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/metrics"
	"github.com/groupsio/membridge/internal/reasoncode"
)

// Bridge is the collaborator Gateway dispatches admitted requests
// through. Supervisor satisfies this; tests substitute a fake.
type Bridge interface {
	Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
}

// CredentialChecker reports whether the credentials a retrieval call
// needs are currently available (spec.md §4.5 admission rule 1).
type CredentialChecker interface {
	Ready(ctx context.Context) bool
}

// Synthesizer is the collaborator backing the synthesized-answer path
// (spec.md §4.7): when the bridge reply carries a non-empty
// graphContext, Gateway hands it off instead of the legacy
// already-shaped results. Declared here with plain-value parameters
// (not a *synthesis.Request) so this package never needs to import
// internal/synthesis, which itself imports gateway for RetrievalResult;
// *synthesis.Adapter.SynthesizeResults implements this signature
// directly.
type Synthesizer interface {
	SynthesizeResults(ctx context.Context, query, graphContext string, contractVersion int) []RetrievalResult
}

// Config wires Gateway's admission bounds (spec.md §4.5/§6), already
// clamped to the architectural caps by internal/config.
type Config struct {
	MaxConcurrentRequests int
	RateLimitPerMinute    int
	MaxQueueSize          int
	RequestTimeout        time.Duration
	Bridge                Bridge
	Credentials           CredentialChecker
	Synthesizer           Synthesizer
	Metrics               *metrics.Registry
	Bus                   events.EventBus
	Log                   *zap.Logger
}

// Gateway enforces coarse concurrency and rate bounds for programmatic
// callers, normalizes bridge output, and surfaces readable error codes.
// Grounded on the teacher's pkg/client thin-façade pattern inverted into
// a server-side admission façade; FIFO order comes from Gateway's own
// mutex-guarded queue, drained by semaphore-bounded dispatch loops.
type Gateway struct {
	cfg Config
	log *zap.Logger

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu       sync.Mutex
	queue    []*queueEntry
	nextID   uint64
	inFlight int32
}

// New constructs a Gateway from an already-clamped Config.
func New(cfg Config) *Gateway {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	return &Gateway{
		cfg:     cfg,
		log:     log,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMinute)), cfg.RateLimitPerMinute),
	}
}

// Retrieve admits, queues, dispatches, and shapes a retrieval request.
// Admission rules are checked in the exact order spec.md §4.5 specifies.
func (g *Gateway) Retrieve(ctx context.Context, req RetrievalRequest) (RetrievalResponse, error) {
	if g.cfg.Credentials != nil && !g.cfg.Credentials.Ready(ctx) {
		g.emit(events.EventGatewayAccessBlocked, nil)
		g.count(metrics.OutcomeAccessDisabled)
		return RetrievalResponse{}, &AdmissionError{
			Reason:  reasoncode.AccessDisabled,
			Message: "no credentials configured; use the set-secret command to enable retrieval",
		}
	}

	if req.Query == "" {
		g.count(metrics.OutcomeInvalidRequest)
		return RetrievalResponse{}, &AdmissionError{
			Reason:  reasoncode.InvalidRequest,
			Message: "query must not be empty",
		}
	}

	if !g.limiter.Allow() {
		g.emit(events.EventGatewayRateLimited, nil)
		g.count(metrics.OutcomeRateLimited)
		return RetrievalResponse{}, &AdmissionError{
			Reason:  reasoncode.RateLimitExceeded,
			Message: fmt.Sprintf("rate limit of %d requests/minute exceeded", g.cfg.RateLimitPerMinute),
		}
	}

	entry, err := g.enqueue(req)
	if err != nil {
		return RetrievalResponse{}, err
	}

	go g.drain()

	select {
	case result := <-entry.reply:
		return result.response, result.err
	case <-ctx.Done():
		return RetrievalResponse{}, ctx.Err()
	}
}

func (g *Gateway) enqueue(req RetrievalRequest) (*queueEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) >= g.cfg.MaxQueueSize {
		g.emit(events.EventGatewayQueueFull, nil)
		g.count(metrics.OutcomeQueueFull)
		return nil, &AdmissionError{
			Reason:  reasoncode.QueueFull,
			Message: fmt.Sprintf("request queue full (max %d)", g.cfg.MaxQueueSize),
		}
	}

	g.nextID++
	entry := &queueEntry{
		id:       g.nextID,
		request:  req,
		queuedAt: time.Now(),
		reply:    make(chan queueResult, 1),
	}
	g.queue = append(g.queue, entry)
	g.emit(events.EventGatewayAdmitted, map[string]interface{}{"id": entry.id})
	g.count(metrics.OutcomeAdmitted)
	return entry, nil
}

// drain dispatches queued entries FIFO up to the concurrency cap. It is
// safe to call from multiple goroutines; the semaphore and queue mutex
// together ensure at most maxConcurrentRequests dispatch loops run.
func (g *Gateway) drain() {
	if !g.sem.TryAcquire(1) {
		return
	}
	defer g.sem.Release(1)

	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		entry := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()

		atomic.AddInt32(&g.inFlight, 1)
		response, err := g.dispatch(entry.request)
		atomic.AddInt32(&g.inFlight, -1)
		entry.reply <- queueResult{response: response, err: err}
	}
}

func (g *Gateway) dispatch(req RetrievalRequest) (RetrievalResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
	defer cancel()

	params := map[string]interface{}{
		"query":   req.Query,
		"topK":    req.TopK,
		"filters": req.Filters,
	}

	raw, err := g.cfg.Bridge.Call(ctx, "retrieve", params, g.cfg.RequestTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return RetrievalResponse{}, &AdmissionError{Reason: reasoncode.BridgeTimeout, Message: "bridge did not respond in time"}
		}
		return RetrievalResponse{}, &AdmissionError{Reason: reasoncode.InvalidRequest, Message: err.Error()}
	}

	resp, graphContext, contractVersion, err := shapeResponse(raw)
	if err != nil {
		return RetrievalResponse{}, &AdmissionError{Reason: reasoncode.InvalidRequest, Message: err.Error()}
	}

	// spec.md §4.7: a non-empty graphContext activates the synthesized-
	// answer path in place of the legacy already-shaped records.
	if g.cfg.Synthesizer != nil && graphContext != "" {
		if synthesized := g.cfg.Synthesizer.SynthesizeResults(ctx, req.Query, graphContext, contractVersion); synthesized != nil {
			resp.Results = synthesized
			resp.TokensUsed = 0
			for _, r := range synthesized {
				resp.TokensUsed += r.Tokens
			}
		}
	}

	return resp, nil
}

func (g *Gateway) emit(eventType string, payload map[string]interface{}) {
	if g.cfg.Bus == nil {
		return
	}
	g.cfg.Bus.Publish(context.Background(), events.Event{Type: eventType, Payload: payload})
}

func (g *Gateway) count(outcome string) {
	if g.cfg.Metrics == nil {
		return
	}
	g.cfg.Metrics.GatewayAdmission.WithLabelValues(outcome).Inc()
}
