// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the Prometheus collectors for the bridge
// supervisor's startup, recovery, and gateway-admission behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors this service records into.
// internal/app constructs one with NewRegistry; it is not registered
// against any Prometheus registry unless a caller does so explicitly.
type Registry struct {
	StartupDuration  *prometheus.HistogramVec
	RecoveryAttempts prometheus.Counter
	GatewayAdmission *prometheus.CounterVec
	PendingRequests  prometheus.Gauge
	IngestOutcome    *prometheus.CounterVec
}

// NewRegistry constructs an unregistered Registry.
func NewRegistry() *Registry {
	return &Registry{
		StartupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "membridge_startup_duration_seconds",
			Help:    "Duration of each bounded-startup phase (lock, spawn, handshake).",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		RecoveryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membridge_recovery_attempts_total",
			Help: "Total number of crash-recovery restart attempts.",
		}),
		GatewayAdmission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membridge_gateway_admission_total",
			Help: "Total Gateway admission decisions, by outcome.",
		}, []string{"outcome"}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "membridge_pending_requests",
			Help: "Current number of pending RpcMux requests.",
		}),
		IngestOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membridge_ingest_outcome_total",
			Help: "Total ingest attempts, by outcome.",
		}, []string{"outcome"}),
	}
}

// MustRegister registers every collector against reg, panicking on
// duplicate registration (mirrors prometheus.MustRegister's contract).
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.StartupDuration, r.RecoveryAttempts, r.GatewayAdmission, r.PendingRequests, r.IngestOutcome)
}

// Admission outcome labels for GatewayAdmission.
const (
	OutcomeAdmitted       = "admitted"
	OutcomeRateLimited    = "rate_limited"
	OutcomeQueueFull      = "queue_full"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeAccessDisabled = "access_disabled"
)

// Ingest outcome labels for IngestOutcome.
const (
	IngestOutcomeStaged      = "staged"
	IngestOutcomeRetried     = "retried"
	IngestOutcomeFailed      = "failed"
	IngestOutcomeTooLarge    = "payload_too_large"
	IngestOutcomeQueueFailed = "cognify_enqueue_failed"
)
