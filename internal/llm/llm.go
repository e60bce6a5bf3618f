// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the language-model capability interface
// SynthesisAdapter invokes (spec.md §4.7/§6 "Language-model invocation
// capability"), plus a default implementation backed by the Anthropic
// API.
package llm

import "context"

// Model is the editor-provided language-model collaborator. A real VS
// Code host supplies its own implementation (the actual Language Model
// API); Anthropic is this repository's default so the adapter is
// exercisable end-to-end without one.
type Model interface {
	// Complete sends a single-turn prompt and returns the model's text
	// response. ctx cancellation must abort the in-flight call.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrUnavailable is returned when no Model is configured or the
// configured Model's backing service cannot be reached. SynthesisAdapter
// maps this to a throttled user notification plus an empty result
// (spec.md §4.7).
type ErrUnavailable struct {
	Reason string
}

func (e *ErrUnavailable) Error() string {
	return "language model unavailable: " + e.Reason
}
