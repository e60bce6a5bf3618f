// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	// RecoveryBackoffBase is the initial crash-restart delay, doubling on
	// each subsequent attempt (spec.md §4.4.4 "exponential backoff").
	RecoveryBackoffBase = 1 * time.Second
	// RecoveryBackoffCap bounds the doubling.
	RecoveryBackoffCap = 30 * time.Second
	// MaxRecoveryAttempts is the recovery budget per spec.md §4.4.4; once
	// exhausted the daemon settles into StateDegraded rather than
	// retrying forever.
	MaxRecoveryAttempts = 3
	// ConsecutiveForcedKillsThreshold trips the breaker into
	// daemon-mode-suspended (spec.md §4.4.3 "three consecutive forced
	// kills in a row suspend auto-restart until the user intervenes").
	ConsecutiveForcedKillsThreshold = 3
)

// newRecoveryBackoff builds the exponential-backoff schedule used between
// crash-triggered restart attempts. Grounded on the teacher's handleExit
// restartDelay (internal/service/manager.go), generalized from a fixed
// delay to github.com/cenkalti/backoff/v4's doubling ExponentialBackOff
// with MaxElapsedTime disabled (the recovery budget, not the backoff
// itself, bounds the number of attempts).
func newRecoveryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RecoveryBackoffBase
	b.Multiplier = 2
	b.MaxInterval = RecoveryBackoffCap
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// newForcedKillBreaker wraps the consecutive-forced-kill counter in a
// gobreaker.CircuitBreaker: every forced kill (the tail of the shutdown
// escalation ladder) is one "failure", and tripping the breaker is
// exactly the spec's daemon-mode-suspended transition. Grounded on
// jordigilh-kubernaut's gobreaker.Settings{ConsecutiveFailures} pattern.
func newForcedKillBreaker(onTrip func()) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "forced-kill",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= ConsecutiveForcedKillsThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen && onTrip != nil {
				onTrip()
			}
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// recordForcedKill reports a forced kill to the breaker. The breaker is
// never asked to gate a real call (Supervisor.stop already knows it must
// force-kill by the time this is called); it is used purely as a
// consecutive-failure counter with a trip callback, which is why the
// wrapped "request" always fails.
func recordForcedKill(cb *gobreaker.CircuitBreaker) {
	_, _ = cb.Execute(func() (interface{}, error) {
		return nil, errForcedKill
	})
}

// recordGracefulStop resets the forced-kill streak: any stop that did not
// need escalation clears the consecutive counter (spec.md's "three in a
// row").
func recordGracefulStop(cb *gobreaker.CircuitBreaker) {
	_, _ = cb.Execute(func() (interface{}, error) {
		return nil, nil
	})
}

var errForcedKill = forcedKillError{}

type forcedKillError struct{}

func (forcedKillError) Error() string { return "shutdown required a forced kill" }
