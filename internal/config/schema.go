// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading, defaulting, and
// clamping for the bridge supervisor.
package config

// Config is the root configuration structure for the bridge supervisor.
// It mirrors the "Editor host contract" configuration keys: in a real
// editor host these come from the extension's settings; membridgectl loads
// the same shape from an HJSON file for standalone use.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Bridge  BridgeConfig  `json:"bridge"`
	Context ContextConfig `json:"context"`
	Ranking RankingConfig `json:"ranking"`
	Search  SearchConfig  `json:"search"`
	Gateway GatewayConfig `json:"gateway"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig configures the supervisor's own HTTP surface (internal/api),
// the ambient transport third-party agent tools and membridgectl talk to.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// BridgeConfig configures worker lifecycle.
type BridgeConfig struct {
	// Disabled gates whether the supervisor will spawn a worker at all.
	// The `clear-memory`/`toggle-memory` editor commands flip this
	// directly in the on-disk config, independent of credential
	// availability (spec.md §6). Zero-value (false) means enabled, so a
	// config file that never mentions it behaves as if memory were on.
	Disabled bool `json:"disabled"`
	// Mode selects daemon (long-lived worker, idle-shutdown managed) or
	// spawn (one worker process per request, no idle timer).
	Mode string `json:"mode"`
	// IdleTimeoutMinutes is clamped to [1, 60].
	IdleTimeoutMinutes int `json:"daemon_idle_timeout_minutes"`
	// PythonPath overrides interpreter resolution (§4.2 step 1).
	PythonPath string `json:"python_path"`
	// DebugLogging toggles the sentinel passed into the worker's environment.
	DebugLogging bool `json:"debug_logging"`
}

// ContextConfig bounds retrieval result shaping.
type ContextConfig struct {
	MaxResults int `json:"max_context_results"`
	MaxTokens  int `json:"max_context_tokens"`
}

// RankingConfig configures graph-ranking parameters forwarded to the worker.
type RankingConfig struct {
	// HalfLifeDays is clamped to [0.5, 90].
	HalfLifeDays float64 `json:"half_life_days"`
}

// SearchConfig configures advanced-search parameters forwarded to the worker.
type SearchConfig struct {
	TopK                   int     `json:"search_top_k"`
	WideSearchTopK         int     `json:"wide_search_top_k"`
	TripletDistancePenalty float64 `json:"triplet_distance_penalty"`
}

// GatewayConfig bounds the agent-admission layer (§4.5).
type GatewayConfig struct {
	// MaxConcurrentRequests is clamped to the architectural cap of 5.
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
	// RateLimitPerMinute is clamped to the architectural cap of 30.
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	// MaxQueueSize is clamped to the architectural cap of 5.
	MaxQueueSize int `json:"max_queue_size"`
}

// LoggingConfig configures the structured logger (zap).
type LoggingConfig struct {
	// Level is one of error, warn, info, debug.
	Level string `json:"log_level"`
}

// Architectural caps and defaults, named per spec.md §4.4/§4.5/§6.
const (
	DefaultBridgeMode              = "daemon"
	DefaultIdleTimeoutMinutes      = 30
	MinIdleTimeoutMinutes          = 1
	MaxIdleTimeoutMinutes          = 60
	DefaultMaxContextResults       = 3
	DefaultMaxContextTokens        = 32000
	DefaultSearchTopK              = 10
	DefaultHalfLifeDays            = 7
	MinHalfLifeDays                = 0.5
	MaxHalfLifeDays                = 90.0
	DefaultWideSearchTopK          = 150
	DefaultTripletDistancePenalty  = 3.0
	DefaultLogLevel                = "info"
	DefaultMaxConcurrentRequests   = 2
	ArchitecturalMaxConcurrent     = 5
	DefaultRateLimitPerMinute      = 10
	ArchitecturalMaxRateLimit      = 30
	DefaultMaxQueueSize            = 5
	ArchitecturalMaxQueueSize      = 5
	DefaultServerHost              = "127.0.0.1"
	DefaultServerPort              = 0 // 0 == let the OS pick an ephemeral port
)

var validLogLevels = map[string]bool{
	"error": true, "warn": true, "info": true, "debug": true,
}

var validBridgeModes = map[string]bool{
	"daemon": true, "spawn": true,
}
