// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// legacyPidFileName is an older, pre-lock-directory PID file location some
// installs may still carry from before the owner-metadata lock scheme
// existed; hygieneSweep clears it the same way it clears the primary one.
const legacyPidFileName = "bridge.pid"

// hygieneSweep implements spec.md §4.4.5: before every spawn, reconcile
// primary and legacy PID file locations (stop a foreign live process
// gracefully, or remove a file pointing at a dead one), independent of
// the lock directory's own stale-lock recovery performed inside
// Keeper.Acquire.
func (s *Supervisor) hygieneSweep(ctx context.Context) error {
	stateDir := filepath.Join(s.cfg.WorkspaceRoot, "."+s.cfg.Namespace)
	candidates := []string{
		filepath.Join(stateDir, "daemon.pid"),
		filepath.Join(stateDir, legacyPidFileName),
	}

	var errs []error
	for _, path := range candidates {
		if err := reconcilePidFile(ctx, path, s.log); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("hygiene sweep: %v", errs)
	}
	return nil
}

func reconcilePidFile(ctx context.Context, path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		// Unparseable PID file; not worth failing hygiene over, just clear it.
		return os.Remove(path)
	}

	if !isAlive(pid) {
		log.Info("removing stale pid file for dead process",
			zap.String("path", path), zap.Int("pid", pid))
		return os.Remove(path)
	}

	log.Warn("found live foreign worker process, attempting graceful stop",
		zap.String("path", path), zap.Int("pid", pid))
	if err := gracefulStopForeign(ctx, pid); err != nil {
		log.Warn("graceful stop of foreign process failed", zap.Error(err))
	}
	return os.Remove(path)
}

// gracefulStopForeign sends a graceful termination signal to a foreign
// process discovered via a stale-looking PID file, waiting briefly for
// it to exit. On POSIX it only sends SIGTERM; on Windows, where no
// graceful signal exists, signalGraceful falls back to Process.Kill.
func gracefulStopForeign(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := signalGraceful(proc); err != nil {
		return err
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !isAlive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}
