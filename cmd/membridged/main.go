// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// membridged is the bridge supervisor's standalone daemon entrypoint.
// It wires internal/hostadapter.Standalone as the membridge.Host (no
// real editor host is present) and runs internal/app.App until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/groupsio/membridge/internal/app"
	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/hostadapter"
)

var version = "0.1.0"

func main() {
	var (
		workspace       string
		host            string
		port            int
		anthropicAPIKey string
		showVersion     bool
	)

	flag.StringVar(&workspace, "workspace", "", "Workspace root (default: current directory)")
	flag.StringVar(&workspace, "w", "", "Workspace root (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.StringVar(&anthropicAPIKey, "anthropic-api-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key for the default SynthesisAdapter model")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("membridged %s\n", version)
		os.Exit(0)
	}

	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("determine workspace root: %v", err)
		}
		workspace = wd
	}

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	hostImpl, err := hostadapter.NewStandalone(workspace, hostadapter.StandaloneOptions{
		AnthropicAPIKey: anthropicAPIKey,
		Bus:             bus,
	})
	if err != nil {
		log.Fatalf("initialize workspace host: %v", err)
	}

	cfg := hostImpl.Config()
	bindHost := cfg.Server.Host
	if host != "" {
		bindHost = host
	}
	bindPort := cfg.Server.Port
	if port != 0 {
		bindPort = port
	}

	application, err := app.New(app.Options{
		Host:    hostImpl,
		Bind:    bindHost,
		Port:    bindPort,
		Bus:     bus,
		Version: version,
	})
	if err != nil {
		log.Fatalf("construct app: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("app error: %v", err)
	}
}
