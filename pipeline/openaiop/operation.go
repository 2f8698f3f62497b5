// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package openaiop implements the pipeline's external operation against the
// OpenAI chat completion API.
//
// The operation is strict: each resource class is pinned to one model, the
// response must come back from that model, and there is no fallback chain.
// A backend failure is surfaced to the pipeline, which owns the routing
// decision.
package openaiop

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/pipeline"
)

// Default model pins per resource class.
const (
	DefaultLightModel     = "gpt-4o-mini"
	DefaultStandardModel  = "gpt-4o"
	DefaultReasoningModel = "o1"
)

// DefaultSystemPrompt is used when none is configured.
const DefaultSystemPrompt = "You are a helpful assistant."

// Config configures the operation.
type Config struct {
	// APIKey authenticates against the API. When empty, the constructor
	// falls back to OPENAI_API_KEY and then the container secret path.
	APIKey string

	// Models pins a model per resource class. Missing classes take the
	// defaults; an unknown class at invoke time is an error, never a
	// silent fallback.
	Models map[string]string

	// SystemPrompt is prepended to every call.
	SystemPrompt string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Models: map[string]string{
			budget.ClassLight:     DefaultLightModel,
			budget.ClassStandard:  DefaultStandardModel,
			budget.ClassReasoning: DefaultReasoningModel,
		},
		SystemPrompt: DefaultSystemPrompt,
	}
}

// secretPath is where container runtimes mount the API key secret.
const secretPath = "/run/secrets/openai_api_key"

// chatClient is the slice of the OpenAI client the operation uses,
// extracted for testing.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Operation issues one chat completion per invoke under the caller's
// deadline.
//
// Thread Safety: safe for concurrent use; the underlying client is
// stateless per call.
type Operation struct {
	client chatClient
	cfg    Config
}

// Compile-time interface check.
var _ pipeline.Operation = (*Operation)(nil)

// New creates the operation.
//
// Inputs:
//
//	cfg - Operation configuration. Missing model pins take defaults; a
//	      missing API key is resolved from the environment or the
//	      container secret.
//
// Outputs:
//
//	*Operation - Ready to invoke.
//	error      - Non-nil when no API key can be resolved.
func New(cfg Config) (*Operation, error) {
	def := DefaultConfig()
	if cfg.Models == nil {
		cfg.Models = def.Models
	} else {
		for class, model := range def.Models {
			if cfg.Models[class] == "" {
				cfg.Models[class] = model
			}
		}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		keyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("no API key: OPENAI_API_KEY unset and secret not found at %s", secretPath)
		}
		cfg.APIKey = strings.TrimSpace(string(keyBytes))
	}

	return &Operation{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
	}, nil
}

// Invoke issues one chat completion for the request's resource class.
//
// The call runs under ctx's deadline, which the pipeline derives from the
// run's remaining budget. No retries, no model fallback: a response from
// any model other than the pinned one is an error.
func (o *Operation) Invoke(ctx context.Context, req pipeline.OpRequest) (pipeline.OpResponse, error) {
	model, ok := o.cfg.Models[req.ResourceClass]
	if !ok || model == "" {
		return pipeline.OpResponse{}, fmt.Errorf("no model pinned for resource class %q", req.ResourceClass)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
	})
	if err != nil {
		return pipeline.OpResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pipeline.OpResponse{}, fmt.Errorf("chat completion returned no choices")
	}
	// Model lock: the API reports the concrete model that served the
	// call; it must be the pinned one, allowing only a dated version
	// suffix. A sibling model name is a substitution, not a version.
	if !modelMatches(resp.Model, model) {
		return pipeline.OpResponse{}, fmt.Errorf("unexpected model served request: got %q, pinned %q", resp.Model, model)
	}

	choice := resp.Choices[0]
	return pipeline.OpResponse{
		Content:    choice.Message.Content,
		ClearScore: scoreFor(choice),
		TokensUsed: int64(resp.Usage.TotalTokens),
	}, nil
}

// modelMatches reports whether the served model is the pinned model or a
// dated version of it. "gpt-4o-2024-08-06" matches pin "gpt-4o";
// "gpt-4o-mini" and "o1-mini" do not match pins "gpt-4o" and "o1".
func modelMatches(served, pinned string) bool {
	if served == pinned {
		return true
	}
	suffix, ok := strings.CutPrefix(served, pinned+"-")
	if !ok || suffix == "" {
		return false
	}
	return suffix[0] >= '0' && suffix[0] <= '9'
}

// scoreFor derives a quality score from completion metadata. The scale
// matches the escalation threshold range.
func scoreFor(choice openai.ChatCompletionChoice) float64 {
	switch choice.FinishReason {
	case openai.FinishReasonStop:
		if strings.TrimSpace(choice.Message.Content) == "" {
			return 2.0
		}
		return 5.0
	case openai.FinishReasonLength:
		// Truncated output is usable but degraded.
		return 3.0
	case openai.FinishReasonContentFilter:
		return 1.0
	default:
		return 2.5
	}
}
