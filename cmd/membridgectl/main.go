// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// membridgectl is the thin CLI surface of the bridge supervisor
// (spec.md §6 "Editor commands"). Most of its commands are
// side-effectual on workspace state only (config.hjson, secrets.json)
// and do not require a running membridged; show-diagnostics,
// background-status, and open-debug-logs talk to a running instance's
// HTTP API through pkg/client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groupsio/membridge/internal/app"
	"github.com/groupsio/membridge/internal/config"
	"github.com/groupsio/membridge/internal/hostadapter"
	"github.com/groupsio/membridge/pkg/client"
)

var (
	version    = "0.1.0"
	apiURL     = "http://127.0.0.1:8765"
	jsonOutput = false
)

func main() {
	if env := os.Getenv("MEMBRIDGE_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}

	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	cmd := filteredArgs[0]
	args := filteredArgs[1:]

	var err error
	switch cmd {
	case "initialize":
		err = cmdInitialize(args)
	case "show-diagnostics":
		err = cmdShowDiagnostics(args)
	case "background-status":
		err = cmdBackgroundStatus(args)
	case "set-secret":
		err = cmdSetSecret(args)
	case "clear-secret":
		err = cmdClearSecret(args)
	case "set-memory":
		err = cmdSetMemory(args, false)
	case "clear-memory":
		err = cmdSetMemory(args, true)
	case "toggle-memory":
		err = cmdToggleMemory(args)
	case "refresh-dependencies":
		err = cmdRefreshDependencies(args)
	case "open-debug-logs":
		err = cmdOpenDebugLogs(args)
	case "version", "-v", "--version":
		fmt.Printf("membridgectl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`membridgectl - thin CLI surface of the bridge supervisor

Usage:
  membridgectl [-json] <command> [arguments]

Commands operating on workspace state (no running daemon required):
  initialize <workspace>                 create .membridge state under workspace
  set-secret <workspace> <key> <value>   store a provider credential
  clear-secret <workspace> <key>         remove a provider credential
  set-memory <workspace>                 enable the memory bridge
  clear-memory <workspace>                disable the memory bridge
  toggle-memory <workspace>              flip the memory bridge's enabled state
  refresh-dependencies <workspace>       rebuild the managed worker virtualenv

Commands requiring a running membridged (MEMBRIDGE_API or default 127.0.0.1:8765):
  show-diagnostics                       full diagnostics report
  background-status                      one-line state summary
  open-debug-logs                        tail the redacted lifecycle event stream

Global Flags:
  -json    print machine-readable JSON instead of a formatted summary
`)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func stateDir(workspace string) string {
	return filepath.Join(workspace, ".membridge")
}

// cmdInitialize creates the workspace state directory and materializes
// a defaulted config.hjson, so subsequent commands (and membridged
// itself) find a concrete file rather than relying on in-memory
// defaults alone.
func cmdInitialize(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: membridgectl initialize <workspace>")
	}
	workspace := args[0]

	if _, err := hostadapter.NewStandalone(workspace, hostadapter.StandaloneOptions{}); err != nil {
		return fmt.Errorf("initialize workspace: %w", err)
	}

	loader := config.NewLoader(filepath.Join(stateDir(workspace), "config.hjson"))
	cfg, _, err := loader.LoadWithDefaults()
	if err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("initialized %s\n", stateDir(workspace))
	return nil
}

func cmdSetSecret(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: membridgectl set-secret <workspace> <key> <value>")
	}
	workspace, key, value := args[0], args[1], args[2]

	host, err := hostadapter.NewStandalone(workspace, hostadapter.StandaloneOptions{})
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if err := host.Secrets().Set(context.Background(), key, value); err != nil {
		return fmt.Errorf("set secret %s: %w", key, err)
	}

	fmt.Printf("stored %s\n", key)
	return nil
}

func cmdClearSecret(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: membridgectl clear-secret <workspace> <key>")
	}
	workspace, key := args[0], args[1]

	host, err := hostadapter.NewStandalone(workspace, hostadapter.StandaloneOptions{})
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if err := host.Secrets().Delete(context.Background(), key); err != nil {
		return fmt.Errorf("clear secret %s: %w", key, err)
	}

	fmt.Printf("cleared %s\n", key)
	return nil
}

// cmdSetMemory sets the workspace's memory bridge enabled/disabled
// state directly (disabled=true means `clear-memory`).
func cmdSetMemory(args []string, disabled bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: membridgectl set-memory|clear-memory <workspace>")
	}
	return applyMemoryState(args[0], func(cfg *config.Config) { cfg.Bridge.Disabled = disabled })
}

func cmdToggleMemory(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: membridgectl toggle-memory <workspace>")
	}
	return applyMemoryState(args[0], func(cfg *config.Config) { cfg.Bridge.Disabled = !cfg.Bridge.Disabled })
}

func applyMemoryState(workspace string, mutate func(*config.Config)) error {
	loader := config.NewLoader(filepath.Join(stateDir(workspace), "config.hjson"))
	cfg, _, err := loader.LoadWithDefaults()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mutate(cfg)

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	state := "enabled"
	if cfg.Bridge.Disabled {
		state = "disabled"
	}
	fmt.Printf("memory bridge %s\n", state)
	return nil
}

// cmdRefreshDependencies rebuilds the managed interpreter virtualenv
// worker.Resolve falls back to, using the same marker file it waits on
// (internal/app.RefreshMarkerRelPath) so a concurrently-starting worker
// blocks rather than racing the rebuild.
func cmdRefreshDependencies(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: membridgectl refresh-dependencies <workspace>")
	}
	workspace := args[0]

	venvDir := filepath.Join(workspace, ".membridge", "venv")
	markerPath := filepath.Join(workspace, app.RefreshMarkerRelPath)

	if err := os.MkdirAll(filepath.Dir(markerPath), 0o755); err != nil {
		return fmt.Errorf("prepare venv directory: %w", err)
	}
	if err := os.WriteFile(markerPath, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("write refresh marker: %w", err)
	}
	defer os.Remove(markerPath)

	python3, err := exec.LookPath("python3")
	if err != nil {
		return fmt.Errorf("python3 not found on PATH: %w", err)
	}

	fmt.Printf("rebuilding managed virtualenv at %s\n", venvDir)
	cmd := exec.Command(python3, "-m", "venv", venvDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rebuild virtualenv: %w", err)
	}

	fmt.Println("refresh complete")
	return nil
}

func cmdShowDiagnostics(args []string) error {
	c := client.New(apiURL)
	report, err := c.Diagnostics.Get(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(report)
		return nil
	}

	fmt.Printf("state:             %s\n", report.State)
	if report.LastFailure != nil {
		fmt.Printf("last failure:      %v\n", report.LastFailure)
	}
	if len(report.RemediationHints) > 0 {
		fmt.Println("remediation hints:")
		for _, hint := range report.RemediationHints {
			fmt.Printf("  - %s\n", hint)
		}
	}
	return nil
}

func cmdBackgroundStatus(args []string) error {
	c := client.New(apiURL)
	report, err := c.Diagnostics.Get(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]string{"state": report.State})
		return nil
	}

	fmt.Println(report.State)
	return nil
}

// cmdOpenDebugLogs tails the supervisor's redacted lifecycle event
// stream (GET /api/v1/diagnostics/stream), the transport the editor's
// own debug-log viewer would open. Runs until interrupted.
func cmdOpenDebugLogs(args []string) error {
	wsURL := strings.Replace(apiURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/api/v1/diagnostics/stream"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to debug log stream: %w", err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "tailing %s (ctrl-c to stop)\n", wsURL)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		fmt.Println(string(message))
	}
}
