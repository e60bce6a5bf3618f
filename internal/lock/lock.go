// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package lock implements workspace-exclusive mutual exclusion for the
// bridge supervisor via atomic directory creation, with stale-lock
// detection and recovery.
//
// Grounded on other_examples' ppiankov-chainwatch daemon.go PID-lock
// liveness probe, generalized from a single PID file to a directory plus
// owner-metadata file so concurrent editor hosts can both observe and
// recover from a crashed previous owner.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the outcome of an Acquire call.
type Result string

const (
	// Acquired means this call now owns the lock.
	Acquired Result = "acquired"
	// Held means another owner holds the lock and stale-lock recovery did
	// not free it.
	Held Result = "held"
)

// StaleLockAgeThreshold is the mtime age beyond which a lock directory
// with absent/corrupt owner metadata is considered stale (spec.md §4.1.1).
const StaleLockAgeThreshold = 10 * time.Minute

const (
	lockDirName = "daemon.lock"
	ownerFile   = "owner.json"
	pidFileName = "daemon.pid"
)

// OwnerMetadata is written atomically into the lock directory on a
// successful acquisition.
type OwnerMetadata struct {
	CreatedAt           int64  `json:"createdAt"`
	ExtensionHostPid    int    `json:"extensionHostPid"`
	InstanceID          string `json:"instanceId"`
	WorkspaceIdentifier string `json:"workspaceIdentifier"`
}

// Keeper owns the workspace-exclusive lock for one Supervisor instance.
type Keeper struct {
	root       string
	namespace  string
	instanceID string
	log        *zap.Logger

	held atomic.Bool
}

// NewKeeper constructs a Keeper rooted at workspaceRoot. namespace is the
// dotted state-directory name (e.g. "membridge", yielding ".membridge/").
func NewKeeper(workspaceRoot, namespace string, log *zap.Logger) *Keeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Keeper{
		root:       workspaceRoot,
		namespace:  namespace,
		instanceID: uuid.NewString(),
		log:        log,
	}
}

func (k *Keeper) stateDir() string  { return filepath.Join(k.root, "."+k.namespace) }
func (k *Keeper) lockDir() string   { return filepath.Join(k.stateDir(), lockDirName) }
func (k *Keeper) ownerPath() string { return filepath.Join(k.lockDir(), ownerFile) }
func (k *Keeper) pidPath() string   { return filepath.Join(k.stateDir(), pidFileName) }

// Acquire attempts atomic creation of the lock directory. On contention it
// performs bounded stale-lock recovery exactly once (§4.1.1).
func (k *Keeper) Acquire(ctx context.Context) (Result, error) {
	if err := os.MkdirAll(k.stateDir(), 0o755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}

	if err := os.Mkdir(k.lockDir(), 0o755); err == nil {
		return k.finishAcquire()
	} else if !os.IsExist(err) {
		return "", fmt.Errorf("create lock directory: %w", err)
	}

	stale, reason := k.isStale()
	if !stale {
		return Held, nil
	}

	k.log.Info("recovering stale lock",
		zap.String("instanceId", k.instanceID),
		zap.String("reason", reason))

	if err := os.RemoveAll(k.lockDir()); err != nil {
		return "", fmt.Errorf("remove stale lock: %w", err)
	}

	if err := os.Mkdir(k.lockDir(), 0o755); err != nil {
		if os.IsExist(err) {
			// A competing host won the retry race.
			return Held, nil
		}
		return "", fmt.Errorf("recreate lock directory: %w", err)
	}

	return k.finishAcquire()
}

func (k *Keeper) finishAcquire() (Result, error) {
	meta := OwnerMetadata{
		CreatedAt:           time.Now().UnixMilli(),
		ExtensionHostPid:    os.Getpid(),
		InstanceID:          k.instanceID,
		WorkspaceIdentifier: filepath.Base(k.root),
	}
	if err := k.writeOwnerMetadata(meta); err != nil {
		// Metadata-write failures do not invalidate the lock (spec.md §4.1:
		// "the lock is still correct; metadata is advisory").
		k.log.Warn("failed to write lock owner metadata", zap.Error(err))
	}
	k.held.Store(true)
	return Acquired, nil
}

func (k *Keeper) writeOwnerMetadata(meta OwnerMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(k.ownerPath(), data, 0o644)
}

// readOwnerMetadata returns (meta, true) on a well-formed file, or
// (zero, false) if absent or corrupt.
func (k *Keeper) readOwnerMetadata() (OwnerMetadata, bool) {
	data, err := os.ReadFile(k.ownerPath())
	if err != nil {
		return OwnerMetadata{}, false
	}
	var meta OwnerMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return OwnerMetadata{}, false
	}
	return meta, true
}

// isStale implements the §4.1.1 staleness predicate. It never reports
// stale for a lock this instance itself holds.
func (k *Keeper) isStale() (bool, string) {
	if k.held.Load() {
		return false, ""
	}

	pid, pidAlive := k.readPidFile()
	if pidAlive {
		return false, ""
	}

	meta, ok := k.readOwnerMetadata()
	if ok {
		if !isAlive(meta.ExtensionHostPid) {
			k.log.Info("stale lock detected",
				zap.Int("ownerPid", meta.ExtensionHostPid),
				zap.Int("daemonPid", pid),
				zap.Bool("ownerPidAlive", false))
			return true, "owner_pid_dead"
		}
		return false, ""
	}

	info, err := os.Stat(k.lockDir())
	if err != nil {
		// Lock directory vanished concurrently; treat as not stale, the
		// next Mkdir attempt will race honestly.
		return false, ""
	}
	if time.Since(info.ModTime()) > StaleLockAgeThreshold {
		return true, "metadata_absent_and_aged"
	}
	return false, ""
}

func (k *Keeper) readPidFile() (int, bool) {
	data, err := os.ReadFile(k.pidPath())
	if err != nil {
		return 0, false
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, false
	}
	return pid, isAlive(pid)
}

// Release best-effort removes the lock directory. Idempotent.
func (k *Keeper) Release() error {
	if !k.held.Swap(false) {
		return nil
	}
	if err := os.RemoveAll(k.lockDir()); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this instance currently holds the lock.
func (k *Keeper) IsHeld() bool {
	return k.held.Load()
}

// WritePidFile records the daemon PID at the well-known location, used by
// Supervisor once the worker is running.
func (k *Keeper) WritePidFile(pid int) error {
	return os.WriteFile(k.pidPath(), []byte(fmt.Sprintf("%d", pid)), 0o644)
}

// RemovePidFile removes the PID file; missing file is not an error.
func (k *Keeper) RemovePidFile() error {
	err := os.Remove(k.pidPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ErrNotHeld reports that this Keeper does not hold the lock. No Keeper
// method currently returns it.
var ErrNotHeld = errors.New("lock: not held by this instance")
