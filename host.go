// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package membridge defines the editor host's collaborator contract
// (spec.md §6 "Editor host contract"): the boundary every other
// package in this module is built against rather than a concrete
// editor. internal/hostadapter provides implementations; every other
// package takes a membridge.Host (or a narrower slice of it) as a
// constructor argument.
package membridge

import (
	"context"

	"github.com/groupsio/membridge/internal/config"
	"github.com/groupsio/membridge/internal/llm"
	"github.com/groupsio/membridge/internal/secretstore"
)

// Notifier is the user-facing notification surface. Callers are
// expected to throttle repeated notifications themselves (see
// internal/synthesis.Adapter's five-minute throttle) since Host makes
// no throttling guarantee of its own.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Host is the editor host's collaborator surface. A real VS Code
// extension host supplies its own implementation backed by the
// extension API; internal/hostadapter.Memory and
// internal/hostadapter.Standalone are this repository's
// implementations for tests and for the CLI build respectively.
type Host interface {
	// WorkspaceRoot is the absolute path the on-disk layout (spec.md
	// §6) is rooted under.
	WorkspaceRoot() string

	// Secrets is the credential store (spec.md §6 "Secret storage").
	Secrets() secretstore.Store

	// Config is the current, defaulted-and-clamped configuration
	// (spec.md §6's enumerated configuration keys).
	Config() *config.Config

	// Model is the language-model invocation capability SynthesisAdapter
	// calls (spec.md §4.7). It may be nil; SynthesisAdapter treats a nil
	// Model the same as ErrUnavailable.
	Model() llm.Model

	// Notifier is the throttled user-message surface.
	Notifier() Notifier
}
