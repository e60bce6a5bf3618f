// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/redact"
	"github.com/groupsio/membridge/internal/supervisor"
)

var diagnosticsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DiagnosticsHandler backs GET /api/v1/diagnostics and its streaming
// counterpart, the transport `open-debug-logs` tails.
type DiagnosticsHandler struct {
	sup *supervisor.Supervisor
	bus events.EventBus
}

// NewDiagnosticsHandler constructs a DiagnosticsHandler.
func NewDiagnosticsHandler(sup *supervisor.Supervisor, bus events.EventBus) *DiagnosticsHandler {
	return &DiagnosticsHandler{sup: sup, bus: bus}
}

// Get returns a point-in-time diagnostics snapshot.
func (h *DiagnosticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.sup.Diagnostics(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// Stream upgrades to a WebSocket and tails supervisor/gateway/ingest
// lifecycle events for `open-debug-logs`, with string payload values
// passed through redact.String. It does not tail
// raw worker stderr bytes directly — those already flow through the
// structured zap log sink; this stream surfaces the same lifecycle
// signal a log-tail would, without a second log-capture subsystem.
func (h *DiagnosticsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := diagnosticsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.bus == nil {
		return
	}

	eventCh := make(chan events.Event, 100)
	done := make(chan struct{})
	defer close(done)

	subID, err := h.bus.SubscribeAsync("*", func(_ context.Context, event events.Event) error {
		select {
		case eventCh <- event:
		case <-done:
		}
		return nil
	}, 100)
	if err != nil {
		return
	}
	defer h.bus.Unsubscribe(subID)

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case event := <-eventCh:
			if len(event.Payload) > 0 {
				payload := make(map[string]interface{}, len(event.Payload))
				for k, v := range event.Payload {
					if s, ok := v.(string); ok {
						v = redact.String(s)
					}
					payload[k] = v
				}
				event.Payload = payload
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
