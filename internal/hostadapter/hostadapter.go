// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hostadapter provides membridge.Host implementations: Memory
// for tests and embedding hosts that already hold their own config and
// secrets in-process, and Standalone for cmd/membridgectl, where there
// is no real editor host and configuration/secrets live on disk.
package hostadapter

import (
	"context"

	membridge "github.com/groupsio/membridge"
	"github.com/groupsio/membridge/internal/config"
	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/llm"
	"github.com/groupsio/membridge/internal/secretstore"
)

// EventNotifier adapts an events.EventBus into a membridge.Notifier,
// grounded on the teacher's NotifyHandler (internal/api/handlers/notify.go):
// a notification is an events.Event of type notify.done/blocked/error,
// published for whatever is listening (the diagnostics WebSocket tail,
// a CLI's own subscriber, or nothing at all).
type EventNotifier struct {
	bus       events.EventBus
	eventType string
}

// NewEventNotifier constructs an EventNotifier publishing eventType
// (one of events.EventNotifyDone/Blocked/Error) to bus.
func NewEventNotifier(bus events.EventBus, eventType string) *EventNotifier {
	if eventType == "" {
		eventType = events.EventNotifyDone
	}
	return &EventNotifier{bus: bus, eventType: eventType}
}

// Notify implements membridge.Notifier.
func (n *EventNotifier) Notify(ctx context.Context, message string) error {
	return n.bus.Publish(ctx, events.Event{
		Type:    n.eventType,
		Payload: map[string]interface{}{"message": message},
	})
}

// Memory is an in-process membridge.Host, the default for tests and
// for embedding hosts that already hold config/secrets in memory.
type Memory struct {
	workspaceRoot string
	secrets       secretstore.Store
	cfg           *config.Config
	model         llm.Model
	notifier      membridge.Notifier
}

// MemoryConfig configures a Memory host.
type MemoryConfig struct {
	WorkspaceRoot string
	Secrets       secretstore.Store
	Config        *config.Config
	Model         llm.Model
	Notifier      membridge.Notifier
}

// NewMemory constructs a Memory host. A nil Secrets defaults to
// secretstore.NewMemory(); a nil Config defaults to an empty,
// default-applied config.Config.
func NewMemory(cfg MemoryConfig) *Memory {
	secrets := cfg.Secrets
	if secrets == nil {
		secrets = secretstore.NewMemory()
	}
	c := cfg.Config
	if c == nil {
		c, _ = config.NewLoader("").Load()
	}
	return &Memory{
		workspaceRoot: cfg.WorkspaceRoot,
		secrets:       secrets,
		cfg:           c,
		model:         cfg.Model,
		notifier:      cfg.Notifier,
	}
}

func (m *Memory) WorkspaceRoot() string        { return m.workspaceRoot }
func (m *Memory) Secrets() secretstore.Store   { return m.secrets }
func (m *Memory) Config() *config.Config       { return m.cfg }
func (m *Memory) Model() llm.Model             { return m.model }
func (m *Memory) Notifier() membridge.Notifier { return m.notifier }

var _ membridge.Host = (*Memory)(nil)
