// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostadapter

import (
	"os"
	"path/filepath"

	membridge "github.com/groupsio/membridge"
	"github.com/groupsio/membridge/internal/config"
	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/llm"
	"github.com/groupsio/membridge/internal/secretstore"
)

// Standalone is the membridge.Host implementation cmd/membridgectl and
// cmd/membridged use when no real editor host is present: config comes
// from an HJSON file under the workspace's state directory, secrets
// from a sibling plain JSON file (secretstore.File, not a platform
// keychain), and the LLM capability from
// ANTHROPIC_API_KEY if set.
type Standalone struct {
	workspaceRoot string
	secrets       *secretstore.File
	cfg           *config.Config
	model         llm.Model
	notifier      membridge.Notifier
}

// StandaloneOptions configures NewStandalone.
type StandaloneOptions struct {
	// Namespace names the state directory, e.g. ".membridge".
	Namespace string
	// AnthropicAPIKey, when non-empty, wires llm.NewAnthropic as the
	// Model capability.
	AnthropicAPIKey string
	// Bus backs the Notifier; a nil Bus makes Notifier() return nil.
	Bus events.EventBus
}

// NewStandalone loads configuration and secrets from workspaceRoot's
// state directory and constructs a Standalone host. A missing config
// file is not an error: config.Loader applies defaults.
func NewStandalone(workspaceRoot string, opts StandaloneOptions) (*Standalone, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = ".membridge"
	}
	stateDir := filepath.Join(workspaceRoot, ns)
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}

	loader := config.NewLoader(filepath.Join(stateDir, "config.hjson"))
	cfg, _, err := loader.LoadWithDefaults()
	if err != nil {
		return nil, err
	}

	var model llm.Model
	if opts.AnthropicAPIKey != "" {
		model, err = llm.NewAnthropic(llm.AnthropicConfig{APIKey: opts.AnthropicAPIKey})
		if err != nil {
			model = nil
		}
	}

	var notifier membridge.Notifier
	if opts.Bus != nil {
		notifier = NewEventNotifier(opts.Bus, events.EventNotifyDone)
	}

	return &Standalone{
		workspaceRoot: workspaceRoot,
		secrets:       secretstore.NewFile(filepath.Join(stateDir, "secrets.json")),
		cfg:           cfg,
		model:         model,
		notifier:      notifier,
	}, nil
}

func (s *Standalone) WorkspaceRoot() string        { return s.workspaceRoot }
func (s *Standalone) Secrets() secretstore.Store   { return s.secrets }
func (s *Standalone) Config() *config.Config       { return s.cfg }
func (s *Standalone) Model() llm.Model             { return s.model }
func (s *Standalone) Notifier() membridge.Notifier { return s.notifier }

var _ membridge.Host = (*Standalone)(nil)
