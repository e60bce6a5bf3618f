// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package synthesis implements the SynthesisAdapter: an optional
// post-processor that turns a retrieval response's graphContext into a
// single synthesized answer via an editor-provided language model
// (spec.md §4.7).
package synthesis

import "context"

// MinContractVersion is the lowest graphContext contract version the
// adapter activates on; earlier versions take the legacy path, where
// Gateway reshapes already-synthesized records directly.
const MinContractVersion = 2

// noRelevantContextSentinel is the exact phrase the model emits to
// signal that graphContext held nothing worth synthesizing.
const noRelevantContextSentinel = "no relevant context"

// Request is the input to Adapter.Synthesize.
type Request struct {
	Query           string
	GraphContext    string
	ContractVersion int
}

// Notifier delivers a throttled, user-facing message when the
// configured language model is unavailable (spec.md §4.7 failure mode
// (a)). A real editor host rate-limits these itself; Adapter's
// notifyUnavailable adds a NotifyThrottle minimum-interval guard so a
// string of failed calls doesn't spam the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
