// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const refreshPollInterval = 250 * time.Millisecond

// WaitForRefresh blocks until markerPath is removed (the environment
// manager finished rebuilding the venv) or timeout elapses. It watches
// the marker's directory with fsnotify, falling back to a plain poll
// loop if the watch cannot be established — mirroring the debounced
// fsnotify-with-poll-fallback shape the teacher uses for its binary
// watcher.
func WaitForRefresh(ctx context.Context, markerPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pollForRefresh(ctx, markerPath, deadline)
	}
	defer watcher.Close()

	dir := filepath.Dir(markerPath)
	if err := watcher.Add(dir); err != nil {
		return pollForRefresh(ctx, markerPath, deadline)
	}

	if !markerPresent(markerPath) {
		return nil
	}

	ticker := time.NewTicker(refreshPollInterval)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("timed out waiting for refresh marker %s to clear", markerPath)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return pollForRefresh(ctx, markerPath, deadline)
			}
			if event.Name == markerPath && !markerPresent(markerPath) {
				return nil
			}
		case <-watcher.Errors:
			return pollForRefresh(ctx, markerPath, deadline)
		case <-ticker.C:
			if !markerPresent(markerPath) {
				return nil
			}
		case <-time.After(remaining):
			return fmt.Errorf("timed out waiting for refresh marker %s to clear", markerPath)
		}
	}
}

func pollForRefresh(ctx context.Context, markerPath string, deadline time.Time) error {
	ticker := time.NewTicker(refreshPollInterval)
	defer ticker.Stop()

	for {
		if !markerPresent(markerPath) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for refresh marker %s to clear", markerPath)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
