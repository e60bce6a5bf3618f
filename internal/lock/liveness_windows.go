// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package lock

import (
	ps "github.com/mitchellh/go-ps"
)

// isAlive probes process liveness by walking the process table, since
// Windows has no signal-zero equivalent. Grounded on the teacher's
// Windows-vs-POSIX split for process termination in internal/service.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := ps.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc != nil
}
