// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires membridge.Host, internal/config, and the component
// packages (supervisor, gateway, ingest, synthesis, api) into one
// runnable application, grounded on the teacher's internal/app.App
// construction/Initialize/Start/Run/Shutdown/Stop lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	membridge "github.com/groupsio/membridge"
	"github.com/groupsio/membridge/internal/credentials"
	"github.com/groupsio/membridge/internal/supervisor"
	"github.com/groupsio/membridge/internal/worker"
)

// BridgeEntryRelPath is where the worker's entry script lives relative
// to the workspace root. The script itself (and the worker's internal
// graph/vector search it runs) is out of scope, per spec.md §1 — the
// editor host's install step places it here the same way it places the
// managed virtualenv at worker.ResolveConfig.VenvRelPath.
const BridgeEntryRelPath = ".membridge/bridge/__main__.py"

// ManagedVenvRelPath is the managed in-workspace interpreter path
// worker.Resolve falls back to when no explicit pythonPath is
// configured (spec.md §4.2 step 2).
const ManagedVenvRelPath = ".membridge/venv/bin/python"

// RefreshMarkerRelPath marks the managed venv as mid-rebuild; its
// presence makes worker.Resolve wait rather than fail (spec.md §4.2).
const RefreshMarkerRelPath = ".membridge/venv/.refreshing"

// VersionRange is the interpreter version window worker.CheckVersion
// enforces before a spawned worker is trusted (spec.md §4.2, §9).
var VersionRange = worker.VersionRange{MinMajor: 3, MinMinor: 9, MaxMajor: 3, MaxMinor: 13}

// Spawner implements supervisor.Spawner: it resolves an interpreter per
// spec.md §4.2's three-step chain, verifies its version, and builds the
// worker's environment from the host's config and secret store.
// Grounded on the teacher's internal/app.App wiring together
// independently-testable collaborators (worktree.Manager, service.Manager)
// into one component a higher-level caller can treat opaquely.
type Spawner struct {
	host  membridge.Host
	creds *credentials.Provider
}

// NewSpawner constructs a Spawner for host, sourcing credentials from
// host.Secrets().
func NewSpawner(host membridge.Host) *Spawner {
	return &Spawner{host: host, creds: credentials.NewProvider(host.Secrets())}
}

// Resolve implements supervisor.Spawner.
func (s *Spawner) Resolve(ctx context.Context) (worker.Config, error) {
	workspaceRoot := s.host.WorkspaceRoot()
	cfg := s.host.Config()

	if cfg.Bridge.Disabled {
		return worker.Config{}, supervisor.ErrMemoryDisabled
	}

	interpreter, err := worker.Resolve(ctx, worker.ResolveConfig{
		ExplicitPath:      cfg.Bridge.PythonPath,
		WorkspaceRoot:     workspaceRoot,
		VenvRelPath:       ManagedVenvRelPath,
		RefreshMarkerPath: filepath.Join(workspaceRoot, RefreshMarkerRelPath),
	})
	if err != nil {
		return worker.Config{}, fmt.Errorf("resolve interpreter: %w", err)
	}

	if err := worker.CheckVersion(ctx, interpreter, VersionRange); err != nil {
		return worker.Config{}, fmt.Errorf("check interpreter version: %w", err)
	}

	credEnv, err := s.creds.Collect(ctx)
	if err != nil {
		return worker.Config{}, fmt.Errorf("collect provider credentials: %w", err)
	}

	env := worker.BuildEnv(os.Environ(), worker.EnvSentinels{
		WorkspacePath: workspaceRoot,
		DaemonMode:    cfg.Bridge.Mode == "daemon",
		DebugLogging:  cfg.Bridge.DebugLogging,
	}, credEnv)

	return worker.Config{
		BinaryPath: interpreter,
		Args:       []string{filepath.Join(workspaceRoot, BridgeEntryRelPath)},
		WorkDir:    workspaceRoot,
		Env:        env,
	}, nil
}
