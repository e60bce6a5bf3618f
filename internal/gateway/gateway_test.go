// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/membridge/internal/reasoncode"
)

type fakeBridge struct {
	response json.RawMessage
	err      error
	delay    time.Duration
	calls    int
}

func (b *fakeBridge) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	b.calls++
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.response, b.err
}

type alwaysReady struct{}

func (alwaysReady) Ready(context.Context) bool { return true }

type neverReady struct{}

func (neverReady) Ready(context.Context) bool { return false }

type fakeSynthesizer struct {
	results         []RetrievalResult
	gotQuery        string
	gotGraphContext string
	gotVersion      int
}

func (s *fakeSynthesizer) SynthesizeResults(ctx context.Context, query, graphContext string, contractVersion int) []RetrievalResult {
	s.gotQuery = query
	s.gotGraphContext = graphContext
	s.gotVersion = contractVersion
	return s.results
}

func sampleResponseWithGraphContext() json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"results":          []map[string]interface{}{{"summary_text": "legacy", "score": 0.9}},
		"graph_context":    "Alice decided to use Postgres.",
		"contract_version": 2,
	})
	return data
}

func sampleResponse() json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"results": []map[string]interface{}{
			{"summary_text": "a decision", "score": 0.9, "topic_id": "t1", "tokens": 10},
			{"summary_text": "noise", "score": 0.005, "tokens": 3},
			{"summary_text": "synthesized", "score": 0.0, "tokens": 7},
		},
	})
	return data
}

func TestRetrieveShapesAndFiltersResults(t *testing.T) {
	g := New(Config{
		MaxConcurrentRequests: 2,
		RateLimitPerMinute:    10,
		MaxQueueSize:          5,
		RequestTimeout:        time.Second,
		Bridge:                &fakeBridge{response: sampleResponse()},
		Credentials:           alwaysReady{},
	})

	resp, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "what did we decide"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a decision", resp.Results[0].SummaryText)
	assert.Equal(t, "synthesized", resp.Results[1].SummaryText)
	assert.Equal(t, 17, resp.TokensUsed)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 10, MaxQueueSize: 1,
		Bridge: &fakeBridge{}, Credentials: alwaysReady{}})

	_, err := g.Retrieve(context.Background(), RetrievalRequest{Query: ""})
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
}

func TestRetrieveBlocksWhenCredentialsNotReady(t *testing.T) {
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 10, MaxQueueSize: 1,
		Bridge: &fakeBridge{}, Credentials: neverReady{}})

	_, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "x"})
	require.Error(t, err)
}

func TestRetrieveEnforcesRateLimit(t *testing.T) {
	g := New(Config{MaxConcurrentRequests: 5, RateLimitPerMinute: 1, MaxQueueSize: 5,
		Bridge: &fakeBridge{response: sampleResponse()}, Credentials: alwaysReady{}})

	_, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "first"})
	require.NoError(t, err)

	_, err = g.Retrieve(context.Background(), RetrievalRequest{Query: "second"})
	require.Error(t, err)
}

func TestRetrieveQueueFullRejectsExtraRequests(t *testing.T) {
	bridge := &fakeBridge{response: sampleResponse(), delay: 200 * time.Millisecond}
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 100, MaxQueueSize: 1,
		Bridge: bridge, Credentials: alwaysReady{}})

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "q"})
			errs <- err
		}()
	}
	// One dispatches, one queues, the third should see queue_full at some point.
	queueFull := 0
	for i := 0; i < 3; i++ {
		var admErr *AdmissionError
		if err := <-errs; errors.As(err, &admErr) && admErr.Reason == reasoncode.QueueFull {
			queueFull++
		}
	}
	assert.GreaterOrEqual(t, queueFull, 1)
}

func TestRetrieveMapsBridgeErrorToInvalidRequest(t *testing.T) {
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 10, MaxQueueSize: 1,
		Bridge: &fakeBridge{err: errors.New("boom")}, Credentials: alwaysReady{}})

	_, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "q"})
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
}

func TestRetrieveRoutesThroughSynthesizerWhenGraphContextPresent(t *testing.T) {
	synth := &fakeSynthesizer{results: []RetrievalResult{{
		SummaryText:     "Postgres, per Alice's decision",
		Score:           1.0,
		ConfidenceLabel: ConfidenceSynthesizedHigh,
		Tokens:          5,
	}}}
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 10, MaxQueueSize: 1,
		Bridge: &fakeBridge{response: sampleResponseWithGraphContext()}, Credentials: alwaysReady{}, Synthesizer: synth})

	resp, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "what did we decide"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Postgres, per Alice's decision", resp.Results[0].SummaryText)
	assert.Equal(t, 5, resp.TokensUsed)
	assert.Equal(t, "what did we decide", synth.gotQuery)
	assert.Equal(t, "Alice decided to use Postgres.", synth.gotGraphContext)
	assert.Equal(t, 2, synth.gotVersion)
}

func TestRetrieveKeepsLegacyResultsWhenSynthesizerReturnsNil(t *testing.T) {
	synth := &fakeSynthesizer{results: nil}
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 10, MaxQueueSize: 1,
		Bridge: &fakeBridge{response: sampleResponseWithGraphContext()}, Credentials: alwaysReady{}, Synthesizer: synth})

	resp, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "x"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "legacy", resp.Results[0].SummaryText)
}

func TestRetrieveSkipsSynthesizerWithoutGraphContext(t *testing.T) {
	synth := &fakeSynthesizer{results: []RetrievalResult{{SummaryText: "should not be used"}}}
	g := New(Config{MaxConcurrentRequests: 1, RateLimitPerMinute: 10, MaxQueueSize: 1,
		Bridge: &fakeBridge{response: sampleResponse()}, Credentials: alwaysReady{}, Synthesizer: synth})

	resp, err := g.Retrieve(context.Background(), RetrievalRequest{Query: "x"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "", synth.gotQuery)
}
