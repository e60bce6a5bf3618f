// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package supervisor

import (
	"os"

	"github.com/mitchellh/go-ps"
)

func isAlive(pid int) bool {
	proc, err := ps.FindProcess(pid)
	return err == nil && proc != nil
}

func signalGraceful(proc *os.Process) error {
	// Windows has no graceful POSIX signal; os.Process.Kill is the closest
	// primitive available without shelling out to taskkill for a foreign,
	// not-self-owned process.
	return proc.Kill()
}
