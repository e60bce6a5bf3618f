// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// VersionRange is the supported interpreter minor-version window,
// inclusive on both ends.
type VersionRange struct {
	MinMajor, MinMinor int
	MaxMajor, MaxMinor int
}

// ResolveConfig configures interpreter resolution (spec.md §4.2).
type ResolveConfig struct {
	// ExplicitPath is the user-configured interpreter override
	// (Config.Bridge.PythonPath), checked first.
	ExplicitPath string
	// WorkspaceRoot is used to locate a managed in-workspace virtual
	// environment.
	WorkspaceRoot string
	// VenvRelPath is the path to the managed venv's interpreter, relative
	// to WorkspaceRoot (e.g. ".membridge/venv/bin/python").
	VenvRelPath string
	// RefreshMarkerPath is the file whose presence indicates the
	// environment manager is mid-rebuild of the managed venv.
	RefreshMarkerPath string
}

// systemCandidates returns the fallback chain in priority order, platform
// aware: python3 → python on POSIX, python → py on Windows (spec.md §9).
func systemCandidates() []string {
	if runtime.GOOS == "windows" {
		return []string{"python", "py"}
	}
	return []string{"python3", "python"}
}

// Resolve implements the three-step interpreter resolution chain: (1)
// explicit configuration path, (2) managed in-workspace virtual
// environment, (3) system default with platform fallback. If the venv
// path is absent but RefreshMarkerPath exists, it waits for the refresh
// to complete (WaitForRefresh) before falling through to the system
// default.
func Resolve(ctx context.Context, cfg ResolveConfig) (string, error) {
	if cfg.ExplicitPath != "" {
		if _, err := exec.LookPath(cfg.ExplicitPath); err == nil {
			return cfg.ExplicitPath, nil
		}
		if fileExecutable(cfg.ExplicitPath) {
			return cfg.ExplicitPath, nil
		}
		return "", fmt.Errorf("configured interpreter %q is not executable", cfg.ExplicitPath)
	}

	if cfg.VenvRelPath != "" {
		venvPath := filepath.Join(cfg.WorkspaceRoot, cfg.VenvRelPath)
		if fileExecutable(venvPath) {
			return venvPath, nil
		}
		if cfg.RefreshMarkerPath != "" {
			if markerPresent(cfg.RefreshMarkerPath) {
				if err := WaitForRefresh(ctx, cfg.RefreshMarkerPath, 15*time.Second); err == nil {
					if fileExecutable(venvPath) {
						return venvPath, nil
					}
				}
			}
		}
	}

	for _, candidate := range systemCandidates() {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no interpreter found: tried explicit path, managed venv, and system candidates %v", systemCandidates())
}

func fileExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return true
}

func markerPresent(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// CheckVersion invokes binaryPath --version once and verifies the parsed
// version falls within rng. It is the single synchronous, blocking
// operation in the supervisor's otherwise-cooperative startup sequence
// (spec.md §5).
func CheckVersion(ctx context.Context, binaryPath string, rng VersionRange) error {
	cmd := exec.CommandContext(ctx, binaryPath, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("invoke %s --version: %w", binaryPath, err)
	}

	match := versionPattern.FindStringSubmatch(strings.TrimSpace(string(out)))
	if match == nil {
		return fmt.Errorf("could not parse interpreter version from output %q", string(out))
	}

	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])

	if versionBefore(major, minor, rng.MinMajor, rng.MinMinor) || versionBefore(rng.MaxMajor, rng.MaxMinor, major, minor) {
		return fmt.Errorf(
			"interpreter version %d.%d is outside the supported range %d.%d-%d.%d; install a supported interpreter or set pythonPath",
			major, minor, rng.MinMajor, rng.MinMinor, rng.MaxMajor, rng.MaxMinor)
	}

	return nil
}

func versionBefore(aMajor, aMinor, bMajor, bMinor int) bool {
	if aMajor != bMajor {
		return aMajor < bMajor
	}
	return aMinor < bMinor
}
