// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package synthesis

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/membridge/internal/gateway"
	"github.com/groupsio/membridge/internal/llm"
)

type fakeModel struct {
	answer string
	err    error
	prompt string
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.answer, m.err
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func TestSynthesizeReturnsSynthesizedHighResult(t *testing.T) {
	model := &fakeModel{answer: "We decided to use Postgres."}
	a := New(Config{Model: model, MaxContextTokens: 1000})

	results := a.Synthesize(context.Background(), Request{
		Query:           "what database did we pick",
		GraphContext:    "decision: use Postgres for storage",
		ContractVersion: 2,
	})

	require.Len(t, results, 1)
	assert.Equal(t, "We decided to use Postgres.", results[0].SummaryText)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "synthesized_high", string(results[0].ConfidenceLabel))
}

func TestSynthesizeSkipsBelowMinContractVersion(t *testing.T) {
	model := &fakeModel{answer: "irrelevant"}
	a := New(Config{Model: model, MaxContextTokens: 1000})

	results := a.Synthesize(context.Background(), Request{
		Query:           "q",
		GraphContext:    "some context",
		ContractVersion: 1,
	})

	assert.Empty(t, results)
	assert.Empty(t, model.prompt)
}

func TestSynthesizeReturnsEmptyOnNoRelevantContextSentinel(t *testing.T) {
	model := &fakeModel{answer: "No relevant context found in the provided notes."}
	a := New(Config{Model: model, MaxContextTokens: 1000})

	results := a.Synthesize(context.Background(), Request{
		Query:           "q",
		GraphContext:    "unrelated context",
		ContractVersion: 2,
	})

	assert.Empty(t, results)
}

func TestSynthesizeNotifiesOnModelUnavailable(t *testing.T) {
	model := &fakeModel{err: &llm.ErrUnavailable{Reason: "rate limited"}}
	notifier := &fakeNotifier{}
	a := New(Config{Model: model, MaxContextTokens: 1000, Notifier: notifier})

	results := a.Synthesize(context.Background(), Request{
		Query: "q", GraphContext: "context", ContractVersion: 2,
	})

	assert.Empty(t, results)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "rate limited")
}

func TestSynthesizeDoesNotNotifyOnOtherErrors(t *testing.T) {
	model := &fakeModel{err: assertError("boom")}
	notifier := &fakeNotifier{}
	a := New(Config{Model: model, MaxContextTokens: 1000, Notifier: notifier})

	results := a.Synthesize(context.Background(), Request{
		Query: "q", GraphContext: "context", ContractVersion: 2,
	})

	assert.Empty(t, results)
	assert.Empty(t, notifier.messages)
}

func TestSynthesizeTruncatesOversizedContext(t *testing.T) {
	model := &fakeModel{answer: "fine"}
	a := New(Config{Model: model, MaxContextTokens: 1})

	longContext := strings.Repeat("x", 1000)
	_ = a.Synthesize(context.Background(), Request{
		Query: "q", GraphContext: longContext, ContractVersion: 2,
	})

	assert.Less(t, len(model.prompt), len(longContext))
}

func TestSynthesizeReturnsEmptyWhenNoModelConfigured(t *testing.T) {
	notifier := &fakeNotifier{}
	a := New(Config{MaxContextTokens: 1000, Notifier: notifier})

	results := a.Synthesize(context.Background(), Request{
		Query: "q", GraphContext: "context", ContractVersion: 2,
	})

	assert.Empty(t, results)
	require.Len(t, notifier.messages, 1)
}

func TestSynthesizeResultsDelegatesToSynthesize(t *testing.T) {
	a := New(Config{Model: &fakeModel{answer: "Postgres, per Alice's decision"}})

	results := a.SynthesizeResults(context.Background(), "what did we decide", "Alice decided to use Postgres.", MinContractVersion)

	require.Len(t, results, 1)
	assert.Equal(t, "Postgres, per Alice's decision", results[0].SummaryText)
	assert.Equal(t, gateway.ConfidenceSynthesizedHigh, results[0].ConfidenceLabel)
}

type assertError string

func (e assertError) Error() string { return string(e) }
