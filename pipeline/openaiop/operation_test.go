// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package openaiop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/pipeline"
)

type fakeChatClient struct {
	gotReq openai.ChatCompletionRequest
	resp   openai.ChatCompletionResponse
	err    error
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

func newTestOp(client chatClient) *Operation {
	return &Operation{client: client, cfg: DefaultConfig()}
}

func chatResponse(model, content string, reason openai.FinishReason, tokens int) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Model: model,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}, FinishReason: reason},
		},
		Usage: openai.Usage{TotalTokens: tokens},
	}
}

func TestOperation_ModelPerClass(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{budget.ClassLight, DefaultLightModel},
		{budget.ClassStandard, DefaultStandardModel},
		{budget.ClassReasoning, DefaultReasoningModel},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			client := &fakeChatClient{resp: chatResponse(tt.want, "answer", openai.FinishReasonStop, 42)}
			op := newTestOp(client)

			resp, err := op.Invoke(context.Background(), pipeline.OpRequest{
				RunID: "r1", Text: "question", ResourceClass: tt.class,
			})
			if err != nil {
				t.Fatalf("Invoke() = %v", err)
			}
			if client.gotReq.Model != tt.want {
				t.Errorf("requested model = %q, want %q", client.gotReq.Model, tt.want)
			}
			if resp.Content != "answer" {
				t.Errorf("Content = %q, want answer", resp.Content)
			}
			if resp.TokensUsed != 42 {
				t.Errorf("TokensUsed = %d, want 42", resp.TokensUsed)
			}
		})
	}
}

func TestOperation_UnknownClassFails(t *testing.T) {
	op := newTestOp(&fakeChatClient{})

	_, err := op.Invoke(context.Background(), pipeline.OpRequest{ResourceClass: "mystery"})
	if err == nil {
		t.Error("Invoke(unknown class) = nil, want error")
	}
}

func TestOperation_ModelLockRejectsSubstitution(t *testing.T) {
	// The backend served a different model than pinned. A sibling model
	// sharing the pin as a name prefix is still a substitution.
	tests := []struct {
		name   string
		class  string
		served string
	}{
		{"unrelated model", budget.ClassStandard, "gpt-3.5-turbo"},
		{"cheaper sibling of reasoning pin", budget.ClassReasoning, "o1-mini"},
		{"preview sibling of reasoning pin", budget.ClassReasoning, "o1-preview"},
		{"mini sibling of standard pin", budget.ClassStandard, "gpt-4o-mini"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeChatClient{resp: chatResponse(tt.served, "answer", openai.FinishReasonStop, 10)}
			op := newTestOp(client)

			_, err := op.Invoke(context.Background(), pipeline.OpRequest{ResourceClass: tt.class})
			if err == nil {
				t.Fatalf("Invoke() with substituted model %q = nil, want error", tt.served)
			}
			if !strings.Contains(err.Error(), "unexpected model") {
				t.Errorf("error = %v, want model lock failure", err)
			}
		})
	}
}

func TestOperation_ModelLockAcceptsVersionSuffix(t *testing.T) {
	client := &fakeChatClient{resp: chatResponse(DefaultStandardModel+"-2024-08-06", "answer", openai.FinishReasonStop, 10)}
	op := newTestOp(client)

	if _, err := op.Invoke(context.Background(), pipeline.OpRequest{ResourceClass: budget.ClassStandard}); err != nil {
		t.Errorf("Invoke() with version-suffixed model = %v, want nil", err)
	}
}

func TestOperation_BackendErrorPropagates(t *testing.T) {
	backendErr := errors.New("rate limited")
	op := newTestOp(&fakeChatClient{err: backendErr})

	_, err := op.Invoke(context.Background(), pipeline.OpRequest{ResourceClass: budget.ClassLight})
	if !errors.Is(err, backendErr) {
		t.Errorf("Invoke() error = %v, want wrapped %v", err, backendErr)
	}
}

func TestOperation_NoChoices(t *testing.T) {
	client := &fakeChatClient{resp: openai.ChatCompletionResponse{Model: DefaultLightModel}}
	op := newTestOp(client)

	if _, err := op.Invoke(context.Background(), pipeline.OpRequest{ResourceClass: budget.ClassLight}); err == nil {
		t.Error("Invoke() with no choices = nil, want error")
	}
}

func TestScoreFor(t *testing.T) {
	tests := []struct {
		name   string
		choice openai.ChatCompletionChoice
		want   float64
	}{
		{
			"clean stop",
			openai.ChatCompletionChoice{Message: openai.ChatCompletionMessage{Content: "full answer"}, FinishReason: openai.FinishReasonStop},
			5.0,
		},
		{
			"empty stop",
			openai.ChatCompletionChoice{Message: openai.ChatCompletionMessage{Content: "  "}, FinishReason: openai.FinishReasonStop},
			2.0,
		},
		{
			"truncated",
			openai.ChatCompletionChoice{Message: openai.ChatCompletionMessage{Content: "partial"}, FinishReason: openai.FinishReasonLength},
			3.0,
		},
		{
			"filtered",
			openai.ChatCompletionChoice{FinishReason: openai.FinishReasonContentFilter},
			1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreFor(tt.choice); got != tt.want {
				t.Errorf("scoreFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_SystemPromptIncluded(t *testing.T) {
	client := &fakeChatClient{resp: chatResponse(DefaultLightModel, "ok", openai.FinishReasonStop, 1)}
	op := newTestOp(client)

	_, err := op.Invoke(context.Background(), pipeline.OpRequest{Text: "hi", ResourceClass: budget.ClassLight})
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	msgs := client.gotReq.Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != DefaultSystemPrompt {
		t.Errorf("system message = %+v, want default system prompt", msgs[0])
	}
	if msgs[1].Role != openai.ChatMessageRoleUser || msgs[1].Content != "hi" {
		t.Errorf("user message = %+v, want request text", msgs[1])
	}
}
