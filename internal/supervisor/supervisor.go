// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/lock"
	"github.com/groupsio/membridge/internal/reasoncode"
	"github.com/groupsio/membridge/internal/redact"
	"github.com/groupsio/membridge/internal/rpcmux"
	"github.com/groupsio/membridge/internal/worker"
)

// StartupDeadline bounds the lock→spawn→handshake sequence (spec.md
// §4.4.1 "bounded three-phase startup", default STARTUP_DEADLINE_MS).
const StartupDeadline = 30 * time.Second

// ErrMemoryDisabled is the sentinel a Spawner returns when the workspace
// has the memory bridge turned off (the `clear-memory`/`toggle-memory`
// editor commands, spec.md §6). doStart recognizes it and fails the
// attempt with reasoncode.DaemonDisabled instead of SpawnFailed, since
// this is an intentional user choice rather than an environment fault.
var ErrMemoryDisabled = errors.New("supervisor: memory bridge disabled for this workspace")

// Spawner resolves an interpreter and builds worker.Config; split out so
// tests can substitute a fake binary without touching interpreter
// resolution.
type Spawner interface {
	Resolve(ctx context.Context) (worker.Config, error)
}

// Handshaker performs the worker's startup handshake RPC call once stdio
// is wired, returning a non-nil error if the worker does not answer
// ready in time.
type Handshaker interface {
	Handshake(ctx context.Context, mux *rpcmux.Mux) error
}

// Config wires a Supervisor's collaborators.
type Config struct {
	WorkspaceRoot  string
	Namespace      string
	Spawner        Spawner
	Handshaker     Handshaker
	Bus            events.EventBus
	Log            *zap.Logger
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// Supervisor is the single authoritative owner of the worker's lifecycle.
// All mutable state is only ever touched from the actor loop goroutine
// (spec.md §5 "no in-process locking is needed... because all mutations
// happen on that loop"); external callers communicate through commands
// sent over cmdCh and block on the returned channel for a reply.
//
// Grounded on the teacher's ServiceManager (internal/service/manager.go)
// generalized from N named services to exactly one worker, with its
// mutex-protected state replaced by single-actor ownership and its
// capture-then-recurse dependency handling replaced by
// golang.org/x/sync/singleflight coalescing concurrent Start/Stop calls
// into one in-flight attempt.
type Supervisor struct {
	cfg Config
	log *zap.Logger

	keeper *lock.Keeper
	flight singleflight.Group

	cmdCh chan command
	quit  chan struct{}
	once  sync.Once

	// actor-owned state, touched only inside run()
	state          DaemonState
	proc           *worker.Process
	mux            *rpcmux.Mux
	startedAt      time.Time
	lastFailure    *LastFailure
	recovery       RecoveryState
	breaker        *gobreaker.CircuitBreaker
	attemptSeq     int
	currentAttempt *StartupAttempt
	idleTimer      *time.Timer
	stdinCloser    io.Closer
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdTouch
	cmdDiagnostics
	cmdCall
)

type command struct {
	kind  commandKind
	reply chan commandReply
}

type commandReply struct {
	err    error
	report DiagnosticsReport
	mux    *rpcmux.Mux
}

// New constructs a Supervisor and starts its actor goroutine. Call Close
// to stop the actor and release the workspace lock.
func New(cfg Config) *Supervisor {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	s := &Supervisor{
		cfg:    cfg,
		log:    log,
		keeper: lock.NewKeeper(cfg.WorkspaceRoot, cfg.Namespace, log),
		cmdCh:  make(chan command),
		quit:   make(chan struct{}),
		state:  StateStopped,
	}
	s.breaker = newForcedKillBreaker(func() {
		s.log.Warn("consecutive forced kills reached threshold, suspending auto-restart",
			zap.Int("threshold", ConsecutiveForcedKillsThreshold))
	})

	go s.run()
	return s
}

// EnsureRunning admits a retrieval/ingest request's need for a live
// worker: if already running it is a no-op; otherwise it performs the
// bounded startup sequence. Concurrent callers share one in-flight
// attempt via singleflight (spec.md §4.4.1 "concurrent start() calls
// ... share the same pending promise").
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	_, err, _ := s.flight.Do("start", func() (interface{}, error) {
		return nil, s.send(ctx, cmdStart)
	})
	return err
}

// Stop gracefully stops the worker if running, escalating per spec.md
// §4.4.3. Concurrent callers share one in-flight stop.
func (s *Supervisor) Stop(ctx context.Context) error {
	_, err, _ := s.flight.Do("stop", func() (interface{}, error) {
		return nil, s.send(ctx, cmdStop)
	})
	return err
}

// Touch resets the idle timer; called on every successfully admitted
// Gateway request (spec.md §4.4.2).
func (s *Supervisor) Touch() {
	select {
	case s.cmdCh <- command{kind: cmdTouch}:
	case <-s.quit:
	}
}

// Diagnostics returns a point-in-time self-report.
func (s *Supervisor) Diagnostics(ctx context.Context) (DiagnosticsReport, error) {
	reply := make(chan commandReply, 1)
	select {
	case s.cmdCh <- command{kind: cmdDiagnostics, reply: reply}:
	case <-s.quit:
		return DiagnosticsReport{}, fmt.Errorf("supervisor closed")
	case <-ctx.Done():
		return DiagnosticsReport{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.report, r.err
	case <-ctx.Done():
		return DiagnosticsReport{}, ctx.Err()
	}
}

// Call ensures the worker is running and forwards an RPC call to it,
// returning the raw result payload. This is the path Gateway and
// AsyncIngestCoordinator use to reach the worker; they never touch
// RpcMux directly. Only obtaining the current mux reference crosses the
// actor loop (a quick, non-blocking read of actor-owned state); the
// request/response exchange itself happens outside the loop via
// RpcMux's own concurrency-safe pending-request map, so one slow call
// never blocks Touch/Diagnostics/other concurrent calls (spec.md §5's
// cooperative-scheduling model: the loop is never held for the
// duration of an I/O wait).
func (s *Supervisor) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := s.EnsureRunning(ctx); err != nil {
		return nil, err
	}
	s.Touch()

	reply := make(chan commandReply, 1)
	select {
	case s.cmdCh <- command{kind: cmdCall, reply: reply}:
	case <-s.quit:
		return nil, fmt.Errorf("supervisor closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var mux *rpcmux.Mux
	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		mux = r.mux
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return mux.SendRequest(ctx, method, params, timeout)
}

// Close stops the actor loop and releases the lock. Idempotent.
func (s *Supervisor) Close() {
	s.once.Do(func() {
		close(s.quit)
	})
}

func (s *Supervisor) send(ctx context.Context, kind commandKind) error {
	reply := make(chan commandReply, 1)
	select {
	case s.cmdCh <- command{kind: kind, reply: reply}:
	case <-s.quit:
		return fmt.Errorf("supervisor closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case r := <-reply:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return fmt.Errorf("supervisor closed")
	}
}

// run is the single actor goroutine. Every field mutation in Supervisor
// below this point happens only here, which is why none of it is guarded
// by a mutex (spec.md §5).
func (s *Supervisor) run() {
	var workerExit <-chan worker.ExitInfo

	for {
		select {
		case <-s.quit:
			s.stopIdleTimer()
			if s.state == StateRunning || s.state == StateDegraded {
				s.doStop(context.Background())
			}
			s.keeper.Release()
			return

		case cmd := <-s.cmdCh:
			switch cmd.kind {
			case cmdStart:
				err := s.doStart(context.Background())
				if cmd.reply != nil {
					cmd.reply <- commandReply{err: err}
				}
				if s.proc != nil {
					workerExit = s.proc.Exit()
				}

			case cmdStop:
				s.stopIdleTimer()
				err := s.doStop(context.Background())
				if cmd.reply != nil {
					cmd.reply <- commandReply{err: err}
				}
				workerExit = nil

			case cmdTouch:
				s.resetIdleTimer()

			case cmdDiagnostics:
				if cmd.reply != nil {
					cmd.reply <- commandReply{report: s.report()}
				}

			case cmdCall:
				if cmd.reply != nil {
					if s.mux == nil {
						cmd.reply <- commandReply{err: fmt.Errorf("worker not running")}
					} else {
						cmd.reply <- commandReply{mux: s.mux}
					}
				}
			}

		case info, ok := <-workerExit:
			if !ok {
				workerExit = nil
				continue
			}
			s.handleWorkerExit(info)
			workerExit = nil

		case <-s.idleTimerFired():
			if s.mux != nil && s.mux.PendingCount() > 0 {
				s.log.Debug("idle timeout elapsed but requests are pending, deferring shutdown",
					zap.Int("pending", s.mux.PendingCount()))
				s.resetIdleTimer()
				continue
			}
			s.log.Info("idle timeout elapsed, stopping worker")
			s.doStop(context.Background())
		}
	}
}

// idleTimerFired returns the idle timer's channel, or a nil channel (which
// blocks forever in select) when no timer is armed.
func (s *Supervisor) idleTimerFired() <-chan time.Time {
	if s.idleTimer == nil {
		return nil
	}
	return s.idleTimer.C
}

func (s *Supervisor) resetIdleTimer() {
	s.stopIdleTimer()
	if s.state != StateRunning {
		return
	}
	s.idleTimer = time.NewTimer(s.cfg.IdleTimeout)
}

func (s *Supervisor) stopIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// doStart executes the bounded three-phase startup: lock, spawn,
// handshake. Grounded on the teacher's startInternal, generalized from
// "start a named child service" to the spec's lock→spawn→handshake
// checkpoint sequence, each phase recorded on a StartupAttempt for
// diagnostics.
func (s *Supervisor) doStart(parent context.Context) error {
	if s.state == StateRunning {
		return nil
	}
	if s.state == StateDegraded {
		return &DaemonUnavailableError{Reason: reasoncode.RecoveryBudgetExhausted,
			Details: "recovery budget exhausted; a manual restart command is required"}
	}
	if s.breaker.State() == gobreaker.StateOpen {
		s.state = StateSuspended
		return &DaemonUnavailableError{Reason: reasoncode.RecoveryBudgetExhausted,
			Details: "daemon mode suspended after repeated forced kills; a successful manual health check is required to resume"}
	}

	s.attemptSeq++
	ctx, cancel := context.WithTimeout(parent, StartupDeadline)
	defer cancel()

	attempt := &StartupAttempt{
		AttemptID: uuid.NewString(),
		StartedAt: time.Now(),
		Deadline:  time.Now().Add(StartupDeadline),
		Phase:     PhaseLock,
	}
	s.currentAttempt = attempt
	s.state = StateStarting

	result, err := s.keeper.Acquire(ctx)
	if err != nil {
		return s.failStartup(attempt, reasoncode.LockAcquisitionFailed, err.Error())
	}
	if result == lock.Held {
		return s.failStartup(attempt, reasoncode.LockHeld, "workspace lock held by another host")
	}

	if err := s.hygieneSweep(ctx); err != nil {
		s.log.Warn("startup hygiene sweep reported an issue", zap.Error(err))
	}

	attempt.Phase = PhaseSpawn
	wcfg, err := s.cfg.Spawner.Resolve(ctx)
	if errors.Is(err, ErrMemoryDisabled) {
		s.keeper.Release()
		return s.failStartup(attempt, reasoncode.DaemonDisabled, err.Error())
	}
	if err != nil {
		s.keeper.Release()
		return s.failStartup(attempt, reasoncode.SpawnFailed, err.Error())
	}

	proc, stdin, stdout, stderr, err := worker.Spawn(parent, wcfg, s.log)
	if err != nil {
		s.keeper.Release()
		return s.failStartup(attempt, reasoncode.SpawnFailed, err.Error())
	}

	mux := rpcmux.New(stdin, s.log)
	go mux.ReadLoop(stdout)
	go rpcmux.StreamStderr(stderr, s.log)

	attempt.Phase = PhaseHandshake
	if s.cfg.Handshaker != nil {
		if err := s.cfg.Handshaker.Handshake(ctx, mux); err != nil {
			proc.Kill()
			s.keeper.Release()
			return s.failStartup(attempt, reasoncode.HandshakeFailed, err.Error())
		}
	}

	if err := s.keeper.WritePidFile(proc.PID()); err != nil {
		s.log.Warn("failed to write daemon pid file", zap.Error(err))
	}

	attempt.Phase = PhaseComplete
	s.proc = proc
	s.mux = mux
	s.stdinCloser = stdin
	s.startedAt = time.Now()
	s.state = StateRunning
	s.lastFailure = nil
	s.recovery = RecoveryState{}
	s.resetIdleTimer()
	s.publish(events.EventSupervisorRunning, map[string]interface{}{
		"attemptId": attempt.AttemptID,
		"pid":       proc.PID(),
	})
	return nil
}

func (s *Supervisor) failStartup(attempt *StartupAttempt, code reasoncode.Code, details string) error {
	attempt.Phase = PhaseFailed
	attempt.Error = code
	attempt.ErrorDetails = redact.Log(details)
	s.state = StateFailedStartup
	s.lastFailure = &LastFailure{
		Timestamp: time.Now(),
		Reason:    code,
		AttemptID: attempt.AttemptID,
		Details:   attempt.ErrorDetails,
	}
	s.publish(events.EventSupervisorFailed, map[string]interface{}{
		"attemptId": attempt.AttemptID,
		"reason":    string(code),
	})
	return &DaemonUnavailableError{Reason: code, AttemptID: attempt.AttemptID, Details: attempt.ErrorDetails}
}

// doStop executes the graceful-first shutdown escalation ladder (spec.md
// §4.4.3): SIGTERM, wait, escalate to SIGKILL only if the process has not
// exited within the grace window.
func (s *Supervisor) doStop(ctx context.Context) error {
	if s.proc == nil {
		s.state = StateStopped
		return nil
	}
	s.state = StateStopping
	s.publish(events.EventSupervisorStopping, nil)

	proc := s.proc
	outcome := OutcomeGraceful

	if err := proc.Terminate(); err != nil {
		s.log.Warn("graceful terminate failed, escalating", zap.Error(err))
		outcome = OutcomeEscalated
	}

	const gracePeriod = 5 * time.Second
	if _, exited := proc.WaitWithTimeout(gracePeriod); !exited {
		outcome = OutcomeForced
		if err := proc.Kill(); err != nil {
			s.log.Error("force kill failed", zap.Error(err))
		}
		proc.WaitWithTimeout(5 * time.Second)
	}

	if outcome == OutcomeForced {
		recordForcedKill(s.breaker)
	} else {
		recordGracefulStop(s.breaker)
	}

	if s.mux != nil {
		s.mux.InvalidateAll(&rpcmux.ErrProcessExited{})
		s.mux = nil
	}
	if s.stdinCloser != nil {
		s.stdinCloser.Close()
		s.stdinCloser = nil
	}
	s.keeper.RemovePidFile()
	s.keeper.Release()

	s.proc = nil
	s.state = StateStopped
	s.publish(events.EventSupervisorStopped, map[string]interface{}{"outcome": string(outcome)})
	return nil
}

// handleWorkerExit processes an unrequested worker exit: a crash. It
// schedules a bounded recovery attempt via the exponential backoff
// schedule, or settles into StateDegraded once the recovery budget is
// exhausted. Grounded on the teacher's handleExit restart-policy
// switch, generalized from an always/on-failure/never policy string to
// the spec's unconditional bounded-recovery-then-give-up rule.
func (s *Supervisor) handleWorkerExit(info worker.ExitInfo) {
	if s.state == StateStopping || s.state == StateStopped {
		return
	}

	s.stopIdleTimer()
	s.proc = nil
	if s.mux != nil {
		s.mux.InvalidateAll(&rpcmux.ErrProcessExited{ExitCode: info.Code, Signal: info.Signal})
		s.mux = nil
	}
	s.keeper.RemovePidFile()
	s.keeper.Release()

	s.state = StateCrashed
	s.lastFailure = &LastFailure{
		Timestamp:       time.Now(),
		Reason:          reasoncode.ProcessExited,
		RecoveryAttempt: s.recovery.Attempts,
		Details:         fmt.Sprintf("exit code %d signal %s", info.Code, info.Signal),
	}
	s.publish(events.EventSupervisorCrashed, map[string]interface{}{
		"exitCode": info.Code,
		"signal":   info.Signal,
	})

	if s.recovery.Attempts >= MaxRecoveryAttempts {
		// spec.md §4.4.4: recovery budget exhaustion transitions to
		// degraded, not failed_startup; leaving degraded requires a manual
		// user action.
		s.state = StateDegraded
		s.lastFailure.Reason = reasoncode.RecoveryBudgetExhausted
		s.log.Warn("recovery budget exhausted, entering degraded mode",
			zap.Int("attempts", s.recovery.Attempts))
		return
	}

	s.recovery.Active = true
	s.recovery.Attempts++
	s.recovery.MaxAttempts = MaxRecoveryAttempts
	delay := newRecoveryBackoff()
	for i := 0; i < s.recovery.Attempts-1; i++ {
		delay.NextBackOff()
	}
	wait := delay.NextBackOff()
	s.recovery.Cooldown = wait
	s.recovery.NextAttemptAt = time.Now().Add(wait)

	go func(after time.Duration) {
		t := time.NewTimer(after)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.quit:
			return
		}
		_ = s.EnsureRunning(context.Background())
	}(wait)
}

func (s *Supervisor) report() DiagnosticsReport {
	var runtime RuntimeInfo
	if s.proc != nil {
		runtime.PID = s.proc.PID()
		runtime.UptimeSeconds = time.Since(s.startedAt).Seconds()
	}
	if s.mux != nil {
		runtime.PendingRequests = s.mux.PendingCount()
	}

	hints := remediationHints(s.state, s.lastFailure)

	var attempt *StartupAttempt
	if s.state == StateStarting {
		attempt = s.currentAttempt
	}

	return DiagnosticsReport{
		State:          s.state,
		CurrentAttempt: attempt,
		LastFailure:    s.lastFailure,
		Recovery:       s.recovery,
		Lock: LockInfo{
			Held: s.keeper.IsHeld(),
		},
		Runtime:          runtime,
		RemediationHints: hints,
	}
}

func remediationHints(state DaemonState, lf *LastFailure) []string {
	if lf == nil {
		return nil
	}
	switch lf.Reason {
	case reasoncode.LockHeld:
		return []string{"another editor window owns this workspace; close it or wait for it to release the lock"}
	case reasoncode.SpawnFailed:
		return []string{"verify the configured Python interpreter path is correct and executable"}
	case reasoncode.HandshakeFailed, reasoncode.StartupTimeout, reasoncode.StartupHung:
		return []string{"the worker did not respond in time; check its log output for startup errors"}
	case reasoncode.RecoveryBudgetExhausted:
		return []string{"the worker crashed repeatedly; inspect recent crash logs before retrying manually"}
	default:
		return nil
	}
}

func (s *Supervisor) publish(eventType string, payload map[string]interface{}) {
	if s.cfg.Bus == nil {
		return
	}
	s.cfg.Bus.Publish(context.Background(), events.Event{
		Type:      eventType,
		Workspace: s.cfg.WorkspaceRoot,
		Payload:   payload,
	})
}
