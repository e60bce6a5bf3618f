// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ingest

import "regexp"

// retryableCodes is the structured-error-code allowlist (spec.md
// §4.6.1).
var retryableCodes = map[string]bool{
	"EBUSY":             true,
	"EAGAIN":            true,
	"ETIMEDOUT":         true,
	"ECONNRESET":        true,
	"LOCK_ERROR":        true,
	"TEMPORARY_FAILURE": true,
}

// retryablePatterns is the case-insensitive message allowlist (spec.md
// §4.6.1), grounded on other_examples' ppiankov-chainwatch
// retryCachedObservations sweep, which classifies retry-worthiness by
// matching on error text/code rather than a typed taxonomy.
var retryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)database is locked`),
	regexp.MustCompile(`(?i)lock already held`),
	regexp.MustCompile(`(?i)resource busy`),
	regexp.MustCompile(`(?i)connection reset`),
	regexp.MustCompile(`(?i)timeout exceeded`),
	regexp.MustCompile(`(?i)temporarily unavailable`),
}

// IsRetryable classifies a staging failure. code is the bridge's
// structured error code, if any; message is the human-readable text.
func IsRetryable(code, message string) bool {
	if retryableCodes[code] {
		return true
	}
	for _, pattern := range retryablePatterns {
		if pattern.MatchString(message) {
			return true
		}
	}
	return false
}
