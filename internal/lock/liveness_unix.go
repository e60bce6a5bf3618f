// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package lock

import (
	"os"
	"syscall"
)

// isAlive probes process liveness with a no-op "signal zero" send, the
// same technique ppiankov-chainwatch's acquirePIDLock uses.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
