// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Enqueue when the background cognify queue
// has no room. The coordinator converts this into a {staged:true,
// success:false} reply rather than a failure, since the payload is
// already durably staged by the time this can happen.
var ErrQueueFull = errors.New("ingest: cognify queue full")

// CognifyQueue models the external "enqueue a long-running background
// job" collaborator from spec.md §4.6 as a small capability interface
// (spec.md §9's duck-typed-DI guidance), since the actual background
// cognify worker is out of scope.
type CognifyQueue interface {
	Enqueue(ctx context.Context, payload Payload) (operationID string, err error)
}

// Job is one queued cognify unit.
type Job struct {
	OperationID string
	Payload     Payload
}

// InProcessQueue is a bounded in-process channel-backed default
// implementation of CognifyQueue, used when no external job queue is
// configured. Grounded on the worker pool shape used throughout the
// pack for bounded background work.
type InProcessQueue struct {
	jobs chan Job
}

// NewInProcessQueue constructs a queue with the given channel capacity
// and spawns workerCount goroutines draining it with handler.
func NewInProcessQueue(capacity, workerCount int, handler func(Job)) *InProcessQueue {
	q := &InProcessQueue{jobs: make(chan Job, capacity)}
	for i := 0; i < workerCount; i++ {
		go q.worker(handler)
	}
	return q
}

func (q *InProcessQueue) worker(handler func(Job)) {
	for job := range q.jobs {
		handler(job)
	}
}

// Enqueue implements CognifyQueue.
func (q *InProcessQueue) Enqueue(ctx context.Context, payload Payload) (string, error) {
	operationID := uuid.NewString()
	select {
	case q.jobs <- Job{OperationID: operationID, Payload: payload}:
		return operationID, nil
	default:
		return "", ErrQueueFull
	}
}

// Len reports the number of jobs currently buffered, for diagnostics.
func (q *InProcessQueue) Len() int {
	return len(q.jobs)
}
