// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/membridge/internal/secretstore"
)

func TestReadyFalseWhenNoKeysPresent(t *testing.T) {
	p := NewProvider(secretstore.NewMemory())
	assert.False(t, p.Ready(context.Background()))
}

func TestReadyTrueWhenAnyKeyPresent(t *testing.T) {
	store := secretstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), "OPENAI_API_KEY", "sk-test"))

	p := NewProvider(store)
	assert.True(t, p.Ready(context.Background()))
}

func TestCollectReturnsOnlyPresentKeys(t *testing.T) {
	store := secretstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), "ANTHROPIC_API_KEY", "sk-ant-test"))

	p := NewProvider(store)
	env, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ANTHROPIC_API_KEY": "sk-ant-test"}, env)
}

func TestCollectSkipsAbsentKeysEntirely(t *testing.T) {
	p := NewProvider(secretstore.NewMemory())
	env, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, env)
}
