// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor combines LockKeeper, WorkerProcess, and RpcMux into
// the single authoritative owner of worker lifecycle: bounded startup,
// idle shutdown, graceful-first shutdown escalation, and crash recovery.
//
// Grounded on the teacher's internal/service/manager.go (startInternal/
// stopInternal single-flight-by-construction) generalized to
// golang.org/x/sync/singleflight, and its handleExit restart-policy
// pattern generalized to github.com/cenkalti/backoff/v4 plus
// github.com/sony/gobreaker for the consecutive-forced-kill threshold.
package supervisor

import (
	"time"

	"github.com/groupsio/membridge/internal/reasoncode"
)

// DaemonState is the Supervisor's externally observable state (spec.md §3).
type DaemonState string

const (
	StateStopped       DaemonState = "stopped"
	StateStarting      DaemonState = "starting"
	StateRunning       DaemonState = "running"
	StateStopping      DaemonState = "stopping"
	StateCrashed       DaemonState = "crashed"
	StateFailedStartup DaemonState = "failed_startup"
	StateDegraded      DaemonState = "degraded"
	StateSuspended     DaemonState = "daemon_mode_suspended"
)

// Phase is a bounded-startup phase checkpoint.
type Phase string

const (
	PhaseLock      Phase = "lock"
	PhaseSpawn     Phase = "spawn"
	PhaseHandshake Phase = "handshake"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

// StartupAttempt records one bounded-startup attempt's checkpoints.
type StartupAttempt struct {
	AttemptID    string          `json:"attemptId"`
	StartedAt    time.Time       `json:"startedAt"`
	Deadline     time.Time       `json:"deadline"`
	Phase        Phase           `json:"phase"`
	Error        reasoncode.Code `json:"error,omitempty"`
	ErrorDetails string          `json:"errorDetails,omitempty"`
}

// LastFailure records the most recent startup or runtime failure.
type LastFailure struct {
	Timestamp       time.Time       `json:"timestamp"`
	Reason          reasoncode.Code `json:"reason"`
	AttemptID       string          `json:"attemptId,omitempty"`
	StderrTail      string          `json:"stderrTail,omitempty"`
	RecoveryAttempt int             `json:"recoveryAttempt"`
	Details         string          `json:"details,omitempty"`
}

// ShutdownOutcome classifies how a stop() sequence concluded.
type ShutdownOutcome string

const (
	OutcomeGraceful  ShutdownOutcome = "graceful"
	OutcomeEscalated ShutdownOutcome = "escalated"
	OutcomeForced    ShutdownOutcome = "forced"
)

// DaemonUnavailableError is the converted form of every startup exception
// (spec.md §7 "Supervisor converts every startup exception to a
// DaemonUnavailableError").
type DaemonUnavailableError struct {
	Reason     reasoncode.Code
	AttemptID  string
	Details    string
	StderrTail string
}

func (e *DaemonUnavailableError) Error() string {
	if e.Details != "" {
		return string(e.Reason) + ": " + e.Details
	}
	return string(e.Reason)
}

// RecoveryState reports crash-recovery bookkeeping for diagnostics.
type RecoveryState struct {
	Active        bool          `json:"active"`
	Attempts      int           `json:"attempts"`
	MaxAttempts   int           `json:"maxAttempts"`
	Cooldown      time.Duration `json:"cooldown"`
	NextAttemptAt time.Time     `json:"nextAttemptAt,omitempty"`
}

// LockInfo reports lock status for diagnostics.
type LockInfo struct {
	Held  bool   `json:"held"`
	Path  string `json:"path,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// RuntimeInfo reports process status for diagnostics.
type RuntimeInfo struct {
	PID             int     `json:"pid,omitempty"`
	UptimeSeconds   float64 `json:"uptimeSeconds,omitempty"`
	PendingRequests int     `json:"pendingRequests"`
}

// DiagnosticsReport is the supervisor's self-report (spec.md §4.4.6).
type DiagnosticsReport struct {
	State            DaemonState     `json:"state"`
	CurrentAttempt   *StartupAttempt `json:"currentAttempt,omitempty"`
	LastFailure      *LastFailure    `json:"lastFailure,omitempty"`
	Recovery         RecoveryState   `json:"recovery"`
	Lock             LockInfo        `json:"lock"`
	Runtime          RuntimeInfo     `json:"runtime"`
	RemediationHints []string        `json:"remediationHints,omitempty"`
}
