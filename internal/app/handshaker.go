// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groupsio/membridge/internal/rpcmux"
)

// HandshakeTimeout bounds the worker's health round-trip at startup,
// within Supervisor's overall StartupDeadline (spec.md §4.4.1).
const HandshakeTimeout = 10 * time.Second

type healthReply struct {
	Status string `json:"status"`
}

// Handshaker implements supervisor.Handshaker: it calls the worker's
// "health" operation and requires a "ok" status before the startup
// sequence completes (spec.md §4.2's worker protocol, §4.4.1's
// lock→spawn→handshake phases).
type Handshaker struct{}

// NewHandshaker constructs a Handshaker.
func NewHandshaker() *Handshaker {
	return &Handshaker{}
}

// Handshake implements supervisor.Handshaker.
func (h *Handshaker) Handshake(ctx context.Context, mux *rpcmux.Mux) error {
	raw, err := mux.SendRequest(ctx, "health", nil, HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("health handshake: %w", err)
	}

	var reply healthReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("decode health reply: %w", err)
	}
	if reply.Status != "ok" {
		return fmt.Errorf("worker reported unhealthy status %q", reply.Status)
	}
	return nil
}
