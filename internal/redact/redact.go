// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package redact strips sensitive data from log lines and error messages
// before they reach any sink. It is shared by the zap logger and the
// error formatter, per spec.md §9.
package redact

import "regexp"

const (
	// MaxLogLength is the truncation bound for redacted log strings.
	MaxLogLength = 1024
	// MaxCaptureLength is the truncation bound for raw process captures
	// (stderr tails, etc.), larger than log strings per spec.md §9.
	MaxCaptureLength = 8192

	redactedPlaceholder = "[REDACTED]"
	truncatedSuffix     = "...[TRUNCATED]"
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)LLM_API_KEY=\S+`),
	regexp.MustCompile(`(?i)OPENAI_API_KEY=\S+`),
	regexp.MustCompile(`(?i)AWS_SECRET_ACCESS_KEY=\S+`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]+`),
	regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`),
}

// String replaces every recognized sensitive-data pattern in s with a
// placeholder, without truncating.
func String(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

// Log redacts s and truncates it to MaxLogLength, the bound spec.md §9
// specifies for log strings.
func Log(s string) string {
	return truncate(String(s), MaxLogLength)
}

// Capture redacts s and truncates it to MaxCaptureLength, the larger bound
// spec.md §9 allows for raw process captures (e.g. a stderr tail).
func Capture(s string) string {
	return truncate(String(s), MaxCaptureLength)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(truncatedSuffix)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncatedSuffix
}
