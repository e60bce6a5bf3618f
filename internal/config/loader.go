// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hjson/hjson-go/v4"
)

// Loader loads and defaults configuration from an HJSON file.
type Loader struct {
	path string
}

// NewLoader creates a Loader reading from path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads the HJSON file at the loader's path, applies defaults, and
// returns a typed Config. An empty path or a missing file is not an
// error: the returned Config then holds only the defaults. Load does not
// clamp values; LoadWithDefaults does.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if l.path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson %s: %w", l.path, err)
	}

	// Round-trip through encoding/json so the loosely-typed HJSON tree
	// lands in the typed Config struct with its usual unmarshal rules.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal config %s: %w", l.path, err)
	}

	loaded := &Config{}
	applyDefaults(loaded)
	if err := json.Unmarshal(jsonBytes, loaded); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", l.path, err)
	}

	return loaded, nil
}

// LoadWithDefaults loads the config and also clamps out-of-range values,
// returning the clamp warnings so the caller can log them.
func (l *Loader) LoadWithDefaults() (*Config, []string, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, nil, err
	}
	warnings := clamp(cfg)
	return cfg, warnings, nil
}

// Save writes cfg back to the loader's path as HJSON, used by
// cmd/membridgectl's `initialize` and `set/clear/toggle-memory` commands
// to mutate workspace state without a running daemon.
func (l *Loader) Save(cfg *Config) error {
	if l.path == "" {
		return fmt.Errorf("config: no path configured for this loader")
	}

	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &raw); err != nil {
		return fmt.Errorf("decode config for hjson re-encode: %w", err)
	}

	data, err := hjson.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode hjson: %w", err)
	}

	return os.WriteFile(l.path, data, 0o600)
}

// applyDefaults fills zero-valued fields with their documented defaults.
// It runs before the HJSON values are decoded over the struct, so fields
// a partially specified file (e.g. only "bridge.mode") omits keep their
// defaults.
func applyDefaults(cfg *Config) {
	if cfg.Bridge.Mode == "" {
		cfg.Bridge.Mode = DefaultBridgeMode
	}
	if cfg.Bridge.IdleTimeoutMinutes == 0 {
		cfg.Bridge.IdleTimeoutMinutes = DefaultIdleTimeoutMinutes
	}
	if cfg.Context.MaxResults == 0 {
		cfg.Context.MaxResults = DefaultMaxContextResults
	}
	if cfg.Context.MaxTokens == 0 {
		cfg.Context.MaxTokens = DefaultMaxContextTokens
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = DefaultSearchTopK
	}
	if cfg.Ranking.HalfLifeDays == 0 {
		cfg.Ranking.HalfLifeDays = DefaultHalfLifeDays
	}
	if cfg.Search.WideSearchTopK == 0 {
		cfg.Search.WideSearchTopK = DefaultWideSearchTopK
	}
	if cfg.Search.TripletDistancePenalty == 0 {
		cfg.Search.TripletDistancePenalty = DefaultTripletDistancePenalty
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Gateway.MaxConcurrentRequests == 0 {
		cfg.Gateway.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if cfg.Gateway.RateLimitPerMinute == 0 {
		cfg.Gateway.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if cfg.Gateway.MaxQueueSize == 0 {
		cfg.Gateway.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
}
