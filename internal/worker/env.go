// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker

import "fmt"

// EnvSentinels are the fixed markers injected into the worker's
// environment regardless of provider credentials (spec.md §4.2/§6).
type EnvSentinels struct {
	WorkspacePath string
	DaemonMode    bool
	DebugLogging  bool
}

// BuildEnv unions the base process environment with the fixed sentinels
// and provider-supplied credential variables. Missing required
// credentials are the caller's concern (surfaced as typed errors per
// spec.md §7); BuildEnv only assembles what it is given.
func BuildEnv(base []string, sentinels EnvSentinels, credentials map[string]string) []string {
	env := make([]string, 0, len(base)+len(credentials)+4)
	env = append(env, base...)

	env = append(env, "UNBUFFERED=1")
	env = append(env, fmt.Sprintf("MEMBRIDGE_WORKSPACE=%s", sentinels.WorkspacePath))
	if sentinels.DaemonMode {
		env = append(env, "MEMBRIDGE_DAEMON_MODE=1")
	}
	if sentinels.DebugLogging {
		env = append(env, "MEMBRIDGE_DEBUG=1")
	}

	for k, v := range credentials {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	return env
}
