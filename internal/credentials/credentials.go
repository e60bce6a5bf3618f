// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package credentials bridges the editor host's SecretStore (spec.md §6
// "secret storage with get/set/delete") to the worker's environment:
// it enumerates the fixed set of provider credential keys the bridge
// recognizes, reports readiness for Gateway's admission check
// (spec.md §4.5 rule 1), and assembles the env-var map worker.BuildEnv
// injects (spec.md §4.2 "provider-supplied credential env").
package credentials

import (
	"context"
	"errors"

	"github.com/groupsio/membridge/internal/secretstore"
)

// Keys are the provider credential env var names the worker recognizes,
// named after the redaction patterns spec.md §9 lists for them
// (LLM_API_KEY, OPENAI_API_KEY) plus ANTHROPIC_API_KEY for this
// repository's default SynthesisAdapter model (internal/llm.Anthropic).
var Keys = []string{"LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"}

// Provider checks and collects provider credentials out of a
// secretstore.Store, keyed by the fixed Keys list. It implements
// gateway.CredentialChecker.
type Provider struct {
	store secretstore.Store
}

// NewProvider constructs a Provider backed by store.
func NewProvider(store secretstore.Store) *Provider {
	return &Provider{store: store}
}

// Ready implements gateway.CredentialChecker: true once at least one
// recognized provider key is present, per spec.md §4.5 rule 1.
func (p *Provider) Ready(ctx context.Context) bool {
	for _, key := range Keys {
		if _, err := p.store.Get(ctx, key); err == nil {
			return true
		} else if !errors.Is(err, secretstore.ErrNotFound) {
			// Credential-vend errors preserve the store's own error type
			// end-to-end (spec.md §7); a non-ErrNotFound failure here is
			// not a verdict on readiness, so it is not treated as absent.
			return true
		}
	}
	return false
}

// Collect reads every configured provider key present in the store and
// returns them as an env-var map for worker.BuildEnv. Absent keys
// (secretstore.ErrNotFound) are skipped; any other error is returned so
// the caller can surface it as a typed credential-vend failure rather
// than silently omitting the variable.
func (p *Provider) Collect(ctx context.Context) (map[string]string, error) {
	env := make(map[string]string, len(Keys))
	for _, key := range Keys {
		value, err := p.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, secretstore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		env[key] = value
	}
	return env, nil
}
