// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/membridge/internal/config"
	"github.com/groupsio/membridge/internal/hostadapter"
	"github.com/groupsio/membridge/internal/secretstore"
)

func TestSpawnerResolveSurfacesInterpreterResolutionError(t *testing.T) {
	host := hostadapter.NewMemory(hostadapter.MemoryConfig{
		WorkspaceRoot: t.TempDir(),
		Config:        &config.Config{Bridge: config.BridgeConfig{PythonPath: "/no/such/interpreter"}},
	})

	_, err := NewSpawner(host).Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve interpreter")
}

func TestSpawnerResolveIncludesCollectedCredentials(t *testing.T) {
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available in this environment")
	}

	store := secretstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), "ANTHROPIC_API_KEY", "sk-ant-test"))

	workspace := t.TempDir()
	host := hostadapter.NewMemory(hostadapter.MemoryConfig{
		WorkspaceRoot: workspace,
		Secrets:       store,
		Config:        &config.Config{Bridge: config.BridgeConfig{PythonPath: path}},
	})

	wcfg, err := NewSpawner(host).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, wcfg.BinaryPath)
	assert.Equal(t, workspace, wcfg.WorkDir)
	assert.Contains(t, wcfg.Args, workspace+"/"+BridgeEntryRelPath)

	found := false
	for _, kv := range wcfg.Env {
		if kv == "ANTHROPIC_API_KEY=sk-ant-test" {
			found = true
		}
	}
	assert.True(t, found, "expected ANTHROPIC_API_KEY to be injected into the worker environment")
}
