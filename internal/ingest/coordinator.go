// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/metrics"
	"github.com/groupsio/membridge/internal/reasoncode"
)

// StageTimeout bounds a single phase-1 staging RPC (spec.md §4.6).
const StageTimeout = 30 * time.Second

// SyncTimeout bounds the synchronous ingest path (spec.md §4.6.2). A
// timeout here is not treated as failure: staging plus cognify may
// still complete in the background.
const SyncTimeout = 120 * time.Second

// Bridge is the collaborator the coordinator stages payloads through.
// Supervisor satisfies this with the same signature Gateway dispatches
// through, so both façades share one integration point.
type Bridge interface {
	Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
}

// Config wires the coordinator's collaborators.
type Config struct {
	Bridge  Bridge
	Queue   CognifyQueue
	Metrics *metrics.Registry
	Bus     events.EventBus
	Log     *zap.Logger
}

// Coordinator implements the AsyncIngestCoordinator: stage the payload
// with the worker synchronously (bounded retry on transient failure),
// then hand cognification off to the background job queue.
type Coordinator struct {
	cfg Config
	log *zap.Logger
}

// New constructs a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, log: log}
}

type stageReply struct {
	Staged bool   `json:"staged"`
	Code   string `json:"code"`
}

// Ingest runs the two-phase stage-then-cognify pipeline asynchronously:
// phase 1 blocks on staging (with bounded retry), phase 2 only enqueues
// the cognify job and returns without waiting for it to run.
func (c *Coordinator) Ingest(ctx context.Context, payload Payload) (IngestResult, error) {
	if len(payload.Content) > MaxPayloadChars {
		c.count(metrics.IngestOutcomeTooLarge)
		return IngestResult{}, &IngestError{Reason: reasoncode.PayloadTooLarge, Message: "payload exceeds the maximum ingest size"}
	}

	if err := c.stage(ctx, payload, StageTimeout); err != nil {
		c.count(metrics.IngestOutcomeFailed)
		c.emit(events.EventIngestFailed, map[string]interface{}{"error": err.Error()})
		return IngestResult{}, err
	}

	c.count(metrics.IngestOutcomeStaged)
	c.emit(events.EventIngestStaged, nil)

	operationID, err := c.cfg.Queue.Enqueue(ctx, payload)
	if err != nil {
		c.count(metrics.IngestOutcomeQueueFailed)
		return IngestResult{Staged: true, Success: false, Error: err.Error()}, nil
	}

	return IngestResult{Staged: true, Success: true, OperationID: operationID}, nil
}

// IngestSync runs the same staging step but with a longer deadline and
// treats a deadline overrun as "may still complete in background"
// rather than an outright failure, since the stage call has already
// been dispatched to the worker by the time the deadline trips.
func (c *Coordinator) IngestSync(ctx context.Context, payload Payload) (IngestResult, error) {
	if len(payload.Content) > MaxPayloadChars {
		c.count(metrics.IngestOutcomeTooLarge)
		return IngestResult{}, &IngestError{Reason: reasoncode.PayloadTooLarge, Message: "payload exceeds the maximum ingest size"}
	}

	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()

	err := c.stage(ctx, payload, SyncTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return IngestResult{Staged: true, Success: false, Error: "staging may still complete in the background"}, nil
		}
		c.count(metrics.IngestOutcomeFailed)
		c.emit(events.EventIngestFailed, map[string]interface{}{"error": err.Error()})
		return IngestResult{}, err
	}

	c.count(metrics.IngestOutcomeStaged)
	c.emit(events.EventIngestStaged, nil)

	operationID, err := c.cfg.Queue.Enqueue(ctx, payload)
	if err != nil {
		c.count(metrics.IngestOutcomeQueueFailed)
		return IngestResult{Staged: true, Success: false, Error: err.Error()}, nil
	}

	return IngestResult{Staged: true, Success: true, OperationID: operationID}, nil
}

// stage runs phase 1 with bounded retry: up to StagingMaxRetries
// additional attempts, exponential backoff doubling from 1s, only for
// failures classify.IsRetryable marks transient. A non-retryable
// failure short-circuits immediately.
func (c *Coordinator) stage(ctx context.Context, payload Payload, timeout time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = StageTimeout
	bo.MaxElapsedTime = 0

	var lastErr error
	for attempt := 0; attempt <= StagingMaxRetries; attempt++ {
		params := map[string]interface{}{
			"mode":     "add-only",
			"content":  payload.Content,
			"metadata": payload.Metadata,
		}

		raw, err := c.cfg.Bridge.Call(ctx, "ingest", params, timeout)
		if err == nil {
			var reply stageReply
			if jsonErr := json.Unmarshal(raw, &reply); jsonErr == nil && reply.Staged {
				return nil
			}
			return &IngestError{Reason: reasoncode.NonRetryable, Message: "worker rejected the staging request"}
		}

		code, message := errorParts(err)
		if !IsRetryable(code, message) {
			return &IngestError{Reason: reasoncode.NonRetryable, Message: message}
		}

		lastErr = &IngestError{Reason: reasoncode.Transient, Message: message}
		if attempt == StagingMaxRetries {
			break
		}

		delay := bo.NextBackOff()
		c.emit(events.EventIngestRetrying, map[string]interface{}{"attempt": attempt + 1, "delay_ms": delay.Milliseconds()})
		c.count(metrics.IngestOutcomeRetried)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}

// errorParts extracts a structured code and message from a bridge
// error. Bridge failures surface as plain errors today; this seam
// keeps classify.IsRetryable usable once a typed RPC error carries a
// code of its own.
func errorParts(err error) (code, message string) {
	return "", err.Error()
}

func (c *Coordinator) emit(eventType string, payload map[string]interface{}) {
	if c.cfg.Bus == nil {
		return
	}
	c.cfg.Bus.Publish(context.Background(), events.Event{Type: eventType, Payload: payload})
}

func (c *Coordinator) count(outcome string) {
	if c.cfg.Metrics == nil {
		return
	}
	c.cfg.Metrics.IngestOutcome.WithLabelValues(outcome).Inc()
}
