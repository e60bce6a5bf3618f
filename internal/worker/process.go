// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package worker spawns and supervises the out-of-process bridge binary:
// interpreter resolution, environment augmentation, stdio wiring, and
// process-exit signalling. It is the sole owner of the *exec.Cmd; the
// supervisor never reaches past it to touch the OS process directly.
//
// Grounded on the teacher's internal/service/process.go (process-group
// spawn, captureOutput/waitForExit goroutines, signal-based termination)
// and internal/claude/manager.go's ensureProcess (stdin/stdout pipe
// wiring, generation counters to avoid stale-goroutine cleanup races).
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// ExitInfo describes how the worker process terminated.
type ExitInfo struct {
	Code   int
	Signal string
	Err    error
}

// Config describes how to spawn the worker.
type Config struct {
	// BinaryPath is the resolved interpreter or executable path.
	BinaryPath string
	// Args are passed to BinaryPath (e.g. the bridge entry script).
	Args []string
	// WorkDir is the workspace root the worker is rooted at.
	WorkDir string
	// Env is the augmented environment (os.Environ() plus sentinels and
	// credentials); see BuildEnv.
	Env []string
	// StdoutCap bounds the pooled stdout capture buffer (bytes).
	StdoutCap int
}

const defaultStdoutCap = 1 << 20 // ~1MB, per spec.md §4.3.

// Process is a spawned worker instance. One Process corresponds to one
// live OS child; it is discarded (never restarted in place) on exit.
type Process struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stopped   bool
	exitOnce  sync.Once
	exitCh    chan ExitInfo
	stdoutBuf *bytebufferpool.ByteBuffer
}

// Stdout exposes the raw line-oriented reader RpcMux consumes. It is only
// valid between Spawn and process exit.
type Stdout struct {
	io.Reader
}

// Spawn starts the worker process rooted at cfg.WorkDir with the
// supplied environment, returning stdin/stdout/stderr pipes and a
// Process handle. ctx cancellation kills the worker process itself
// (exec.CommandContext); the rest of its process group is not signalled.
func Spawn(ctx context.Context, cfg Config, log *zap.Logger) (*Process, io.WriteCloser, io.Reader, io.Reader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StdoutCap <= 0 {
		cfg.StdoutCap = defaultStdoutCap
	}

	cmd := exec.CommandContext(ctx, cfg.BinaryPath, cfg.Args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.Env
	applyProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("start worker: %w", err)
	}

	p := &Process{
		cfg:    cfg,
		log:    log,
		cmd:    cmd,
		stdin:  stdin,
		exitCh: make(chan ExitInfo, 1),
	}

	go p.waitForExit()

	return p, stdin, stdout, stderr, nil
}

// PID returns the OS process id, or 0 if not running.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exit returns a channel that receives exactly one ExitInfo when the
// process terminates, regardless of cause.
func (p *Process) Exit() <-chan ExitInfo {
	return p.exitCh
}

// Terminate sends the OS-level graceful-termination signal (SIGTERM on
// POSIX, taskkill /T on Windows) to the whole process group.
func (p *Process) Terminate() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return terminateGroup(cmd)
}

// Kill force-kills the process group (SIGKILL / taskkill /F /T).
func (p *Process) Kill() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return killGroup(cmd)
}

func (p *Process) waitForExit() {
	err := p.cmd.Wait()

	info := ExitInfo{}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			info.Code = exitErr.ExitCode()
		} else {
			info.Code = -1
			info.Err = err
		}
	}
	info.Signal = describeSignal(err)

	p.mu.Lock()
	p.cmd = nil
	p.mu.Unlock()

	p.exitOnce.Do(func() {
		p.exitCh <- info
		close(p.exitCh)
	})
}

// CapturedReader wraps r with a bounded pooled buffer reader used for the
// stdout capture path; RpcMux reads lines directly from the pipe but a
// bounded mirror is kept for diagnostics tails.
func CapturedReader(r io.Reader, cap int) (*bufio.Reader, *bytebufferpool.ByteBuffer) {
	buf := bytebufferpool.Get()
	return bufio.NewReaderSize(io.TeeReader(r, boundedWriter{buf: buf, limit: cap}), 64*1024), buf
}

// boundedWriter discards writes once buf has grown past limit, which is
// how spec.md §4.3's "capped ~1MB" stdout capture is enforced without an
// unbounded append.
type boundedWriter struct {
	buf   *bytebufferpool.ByteBuffer
	limit int
}

func (w boundedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() >= w.limit {
		return len(p), nil
	}
	remaining := w.limit - w.buf.Len()
	if remaining < len(p) {
		p = p[:remaining]
	}
	_, _ = w.buf.Write(p)
	return len(p), nil
}

// WaitWithTimeout blocks until exitCh fires or timeout elapses, returning
// (info, true) on exit or (zero, false) on timeout. Used by the
// supervisor's shutdown escalation ladder.
func (p *Process) WaitWithTimeout(timeout time.Duration) (ExitInfo, bool) {
	select {
	case info, ok := <-p.exitCh:
		if !ok {
			return ExitInfo{}, true
		}
		return info, true
	case <-time.After(timeout):
		return ExitInfo{}, false
	}
}
