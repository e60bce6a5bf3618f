// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError accumulates FieldErrors from a single Validate call.
type ValidationError struct {
	Errors []FieldError
}

// Add appends a field error.
func (v *ValidationError) Add(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

// IsEmpty reports whether no errors were accumulated.
func (v *ValidationError) IsEmpty() bool {
	return len(v.Errors) == 0
}

// Error implements error.
func (v *ValidationError) Error() string {
	parts := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// Validator checks a Config for structurally invalid values that clamping
// cannot repair (e.g. an unrecognized enum). Out-of-range numeric values
// are not validation failures — clamp handles those with a warning.
type Validator struct{}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns a non-nil *ValidationError (with IsEmpty true) when cfg
// is well-formed, or one carrying FieldErrors otherwise.
func (val *Validator) Validate(cfg *Config) *ValidationError {
	verr := &ValidationError{}

	if !validBridgeModes[cfg.Bridge.Mode] {
		verr.Add("bridge.mode", fmt.Sprintf("must be one of daemon, spawn (got %q)", cfg.Bridge.Mode))
	}
	if !validLogLevels[cfg.Logging.Level] {
		verr.Add("logging.level", fmt.Sprintf("must be one of error, warn, info, debug (got %q)", cfg.Logging.Level))
	}
	if cfg.Context.MaxResults <= 0 {
		verr.Add("context.max_context_results", "must be positive")
	}
	if cfg.Context.MaxTokens <= 0 {
		verr.Add("context.max_context_tokens", "must be positive")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		verr.Add("server.port", "must be between 0 and 65535")
	}

	return verr
}

// clamp enforces the architectural caps from §4.4/§4.5 of the bridge
// supervisor design, returning one warning string per value it adjusted.
func clamp(cfg *Config) []string {
	var warnings []string

	if cfg.Bridge.IdleTimeoutMinutes < MinIdleTimeoutMinutes {
		warnings = append(warnings, fmt.Sprintf(
			"bridge.daemon_idle_timeout_minutes %d below minimum, clamped to %d",
			cfg.Bridge.IdleTimeoutMinutes, MinIdleTimeoutMinutes))
		cfg.Bridge.IdleTimeoutMinutes = MinIdleTimeoutMinutes
	} else if cfg.Bridge.IdleTimeoutMinutes > MaxIdleTimeoutMinutes {
		warnings = append(warnings, fmt.Sprintf(
			"bridge.daemon_idle_timeout_minutes %d above maximum, clamped to %d",
			cfg.Bridge.IdleTimeoutMinutes, MaxIdleTimeoutMinutes))
		cfg.Bridge.IdleTimeoutMinutes = MaxIdleTimeoutMinutes
	}

	if cfg.Ranking.HalfLifeDays < MinHalfLifeDays {
		warnings = append(warnings, fmt.Sprintf(
			"ranking.half_life_days %.2f below minimum, clamped to %.2f",
			cfg.Ranking.HalfLifeDays, MinHalfLifeDays))
		cfg.Ranking.HalfLifeDays = MinHalfLifeDays
	} else if cfg.Ranking.HalfLifeDays > MaxHalfLifeDays {
		warnings = append(warnings, fmt.Sprintf(
			"ranking.half_life_days %.2f above maximum, clamped to %.2f",
			cfg.Ranking.HalfLifeDays, MaxHalfLifeDays))
		cfg.Ranking.HalfLifeDays = MaxHalfLifeDays
	}

	if cfg.Gateway.MaxConcurrentRequests > ArchitecturalMaxConcurrent {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.max_concurrent_requests %d above architectural cap, clamped to %d",
			cfg.Gateway.MaxConcurrentRequests, ArchitecturalMaxConcurrent))
		cfg.Gateway.MaxConcurrentRequests = ArchitecturalMaxConcurrent
	} else if cfg.Gateway.MaxConcurrentRequests < 1 {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.max_concurrent_requests %d below minimum, clamped to 1",
			cfg.Gateway.MaxConcurrentRequests))
		cfg.Gateway.MaxConcurrentRequests = 1
	}

	if cfg.Gateway.RateLimitPerMinute > ArchitecturalMaxRateLimit {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.rate_limit_per_minute %d above architectural cap, clamped to %d",
			cfg.Gateway.RateLimitPerMinute, ArchitecturalMaxRateLimit))
		cfg.Gateway.RateLimitPerMinute = ArchitecturalMaxRateLimit
	} else if cfg.Gateway.RateLimitPerMinute < 1 {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.rate_limit_per_minute %d below minimum, clamped to 1",
			cfg.Gateway.RateLimitPerMinute))
		cfg.Gateway.RateLimitPerMinute = 1
	}

	if cfg.Gateway.MaxQueueSize > ArchitecturalMaxQueueSize {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.max_queue_size %d above architectural cap, clamped to %d",
			cfg.Gateway.MaxQueueSize, ArchitecturalMaxQueueSize))
		cfg.Gateway.MaxQueueSize = ArchitecturalMaxQueueSize
	} else if cfg.Gateway.MaxQueueSize < 0 {
		cfg.Gateway.MaxQueueSize = 0
	}

	return warnings
}
