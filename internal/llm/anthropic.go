// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the default Model implementation.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

const defaultAnthropicModel = anthropic.ModelClaude3_5SonnetLatest

// Anthropic is the default Model implementation, backing SynthesisAdapter
// with github.com/anthropics/anthropic-sdk-go so the adapter is
// exercisable without a real editor-supplied language model. Grounded on
// jordigilh-kubernaut's direct dependency on the same SDK.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic constructs an Anthropic-backed Model. It returns
// ErrUnavailable if cfg.APIKey is empty, since SynthesisAdapter treats a
// misconfigured model the same as an unreachable one.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, &ErrUnavailable{Reason: "no API key configured"}
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}

	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
	}, nil
}

// Complete implements Model.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &ErrUnavailable{Reason: apiErr.Error()}
		}
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
