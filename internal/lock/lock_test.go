// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenReleaseThenAcquireAgain(t *testing.T) {
	root := t.TempDir()
	k1 := NewKeeper(root, "membridge", nil)

	res, err := k1.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, res)
	assert.True(t, k1.IsHeld())

	require.NoError(t, k1.Release())
	assert.False(t, k1.IsHeld())

	k2 := NewKeeper(root, "membridge", nil)
	res2, err := k2.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, res2)
}

func TestSecondAcquireReturnsHeld(t *testing.T) {
	root := t.TempDir()
	k1 := NewKeeper(root, "membridge", nil)
	res, err := k1.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, Acquired, res)

	k2 := NewKeeper(root, "membridge", nil)
	res2, err := k2.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Held, res2)
}

func TestStaleLockWithDeadOwnerPidIsRecovered(t *testing.T) {
	root := t.TempDir()
	stateDir := filepath.Join(root, ".membridge")
	lockDirPath := filepath.Join(stateDir, lockDirName)
	require.NoError(t, os.MkdirAll(lockDirPath, 0o755))

	// A PID essentially guaranteed to be dead.
	const deadPid = 999999
	meta := OwnerMetadata{
		CreatedAt:           time.Now().Add(-time.Hour).UnixMilli(),
		ExtensionHostPid:    deadPid,
		InstanceID:          "previous-owner",
		WorkspaceIdentifier: filepath.Base(root),
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(lockDirPath, ownerFile), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, pidFileName), []byte("999999"), 0o644))

	k := NewKeeper(root, "membridge", nil)
	res, err := k.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, res)
	assert.True(t, k.IsHeld())
}

func TestStaleLockWithAbsentMetadataAndOldMtimeIsRecovered(t *testing.T) {
	root := t.TempDir()
	stateDir := filepath.Join(root, ".membridge")
	lockDirPath := filepath.Join(stateDir, lockDirName)
	require.NoError(t, os.MkdirAll(lockDirPath, 0o755))

	old := time.Now().Add(-StaleLockAgeThreshold - time.Minute)
	require.NoError(t, os.Chtimes(lockDirPath, old, old))

	k := NewKeeper(root, "membridge", nil)
	res, err := k.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, res)
}

func TestFreshLockWithAbsentMetadataIsHeld(t *testing.T) {
	root := t.TempDir()
	stateDir := filepath.Join(root, ".membridge")
	lockDirPath := filepath.Join(stateDir, lockDirName)
	require.NoError(t, os.MkdirAll(lockDirPath, 0o755))

	k := NewKeeper(root, "membridge", nil)
	res, err := k.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Held, res)
}

func TestReleaseIsIdempotent(t *testing.T) {
	root := t.TempDir()
	k := NewKeeper(root, "membridge", nil)
	require.NoError(t, k.Release())
	_, err := k.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, k.Release())
	require.NoError(t, k.Release())
}

func TestPidFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	k := NewKeeper(root, "membridge", nil)
	require.NoError(t, k.WritePidFile(4242))

	data, err := os.ReadFile(filepath.Join(root, ".membridge", pidFileName))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(data))

	require.NoError(t, k.RemovePidFile())
	require.NoError(t, k.RemovePidFile())
}
