// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rpcmux frames newline-delimited JSON-RPC 2.0 requests over a
// worker's stdio, correlating responses by request id and enforcing
// per-call timeouts.
//
// Grounded on the teacher's internal/claude/manager.go readLoop (NDJSON
// scanner over stdout, bufio.Scanner with a 1MB buffer cap, per-line
// json.Unmarshal) and the MCP stdio-bridge example's per-method timeout
// table and serialized-stdout-write discipline.
package rpcmux

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxLineBytes = 1 << 20 // 1MB scanner buffer, mirrors the teacher's NDJSON reader.

// Request is an outbound JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError mirrors the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response is an inbound JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ErrProcessExited is the terminal error every pending request is
// rejected with when the worker process exits.
type ErrProcessExited struct {
	ExitCode int
	Signal   string
}

func (e *ErrProcessExited) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("worker process exited (signal %s)", e.Signal)
	}
	return fmt.Sprintf("worker process exited (code %d)", e.ExitCode)
}

// ErrTimeout is returned when a request's timer fires before a response
// arrives.
type ErrTimeout struct {
	Method string
	After  time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("rpc %s timed out after %s", e.Method, e.After)
}

// pendingRequest tracks one in-flight call, keyed by id.
type pendingRequest struct {
	method string
	timer  *time.Timer
	result chan callResult
}

type callResult struct {
	raw json.RawMessage
	err error
}

// Mux frames requests onto stdin and correlates responses read from
// stdout. One Mux belongs to exactly one WorkerProcess lifetime.
type Mux struct {
	stdin io.Writer
	log   *zap.Logger

	writeMu sync.Mutex // serializes stdin writes, mirrors the MCP bridge's mcpStdoutMu discipline.

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	closed   bool
	closeErr error
}

// New constructs a Mux writing requests to stdin. Call ReadLoop in its
// own goroutine to start consuming stdout.
func New(stdin io.Writer, log *zap.Logger) *Mux {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mux{
		stdin:   stdin,
		log:     log,
		pending: make(map[string]*pendingRequest),
	}
}

// SendRequest serializes method/params, writes the framed request, and
// blocks until a correlated response arrives, ctx is cancelled, or
// timeout elapses.
func (m *Mux) SendRequest(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	id := uuid.NewString()
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	pr := &pendingRequest{
		method: method,
		result: make(chan callResult, 1),
	}

	m.mu.Lock()
	if m.closed {
		err := m.closeErr
		m.mu.Unlock()
		return nil, err
	}
	pr.timer = time.AfterFunc(timeout, func() { m.timeoutRequest(id, method, timeout) })
	m.pending[id] = pr
	m.mu.Unlock()

	if err := m.writeLine(line); err != nil {
		m.removePending(id)
		pr.timer.Stop()
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case res := <-pr.result:
		return res.raw, res.err
	case <-ctx.Done():
		m.removePending(id)
		pr.timer.Stop()
		return nil, ctx.Err()
	}
}

func (m *Mux) writeLine(line []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := m.stdin.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (m *Mux) removePending(id string) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr := m.pending[id]
	delete(m.pending, id)
	return pr
}

func (m *Mux) timeoutRequest(id, method string, after time.Duration) {
	pr := m.removePending(id)
	if pr == nil {
		return // already resolved or removed.
	}
	pr.result <- callResult{err: &ErrTimeout{Method: method, After: after}}
}

// PendingCount reports the number of in-flight requests, used by the
// supervisor's idle-shutdown deferral check and diagnostics report.
func (m *Mux) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ReadLoop consumes newline-delimited JSON responses from stdout until
// EOF or a read error, dispatching each to its correlated pending
// request. It returns when the stream ends; the caller (WorkerProcess's
// owner) should then call InvalidateAll with the process exit info.
func (m *Mux) ReadLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			m.log.Debug("discarding unparseable stdout line", zap.ByteString("line", line))
			continue
		}
		m.dispatch(resp)
	}
}

func (m *Mux) dispatch(resp Response) {
	pr := m.removePending(resp.ID)
	if pr == nil {
		m.log.Warn("discarding response for unknown or already-resolved id", zap.String("id", resp.ID))
		return
	}
	pr.timer.Stop()

	if resp.Error != nil {
		pr.result <- callResult{err: resp.Error}
		return
	}
	pr.result <- callResult{raw: resp.Result}
}

// InvalidateAll rejects every outstanding pending request with a terminal
// process-exit error. Called exactly once, when the worker process exits.
func (m *Mux) InvalidateAll(exitErr error) {
	m.mu.Lock()
	m.closed = true
	m.closeErr = exitErr
	pending := m.pending
	m.pending = make(map[string]*pendingRequest)
	m.mu.Unlock()

	for _, pr := range pending {
		pr.timer.Stop()
		pr.result <- callResult{err: exitErr}
	}
}
