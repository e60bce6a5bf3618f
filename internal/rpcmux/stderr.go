// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package rpcmux

import (
	"bufio"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal escape sequences from a line, per spec.md
// §4.3.
func StripANSI(line string) string {
	return ansiPattern.ReplaceAllString(line, "")
}

var legacyMarkerPattern = regexp.MustCompile(`^\[(ERROR|WARNING|PROGRESS)\](.*)$`)

type structuredLogLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// StderrLevel classifies one stderr line into a zap log level and the
// text to log, implementing spec.md §4.3's stderr parsing rules:
// structured JSON lines are forwarded at mapped levels (WARNING→warn,
// CRITICAL→error), legacy bracket markers are decoded, everything else is
// DEBUG.
func StderrLevel(rawLine string) (level string, message string) {
	line := StripANSI(rawLine)

	var structured structuredLogLine
	if err := json.Unmarshal([]byte(line), &structured); err == nil && structured.Message != "" {
		return mapStructuredLevel(structured.Level), structured.Message
	}

	if m := legacyMarkerPattern.FindStringSubmatch(line); m != nil {
		marker, rest := m[1], strings.TrimSpace(m[2])
		switch marker {
		case "ERROR":
			return "error", rest
		case "WARNING":
			return "warn", rest
		case "PROGRESS":
			return "debug", rest
		}
	}

	return "debug", line
}

func mapStructuredLevel(level string) string {
	switch strings.ToUpper(level) {
	case "CRITICAL":
		return "error"
	case "ERROR":
		return "error"
	case "WARNING", "WARN":
		return "warn"
	case "INFO":
		return "info"
	default:
		return "debug"
	}
}

// StreamStderr reads rawStderr line by line and logs each at its mapped
// level. It returns when the stream ends.
func StreamStderr(rawStderr io.Reader, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	scanner := bufio.NewScanner(rawStderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		level, message := StderrLevel(scanner.Text())
		switch level {
		case "error":
			log.Error(message, zap.String("source", "worker-stderr"))
		case "warn":
			log.Warn(message, zap.String("source", "worker-stderr"))
		case "info":
			log.Info(message, zap.String("source", "worker-stderr"))
		default:
			log.Debug(message, zap.String("source", "worker-stderr"))
		}
	}
}
