// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline drives a request through classification, admission,
// budget enforcement, the external operation, and the escalation decision,
// recording the outcome exactly once.
package pipeline

import (
	"context"
	"time"

	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/tier"
)

// Request is one unit of work submitted to the pipeline.
type Request struct {
	// SessionID groups runs into a conversation session for token
	// auditing.
	SessionID string `json:"session_id"`

	// Text is the request content fed to the classifier and the
	// external operation.
	Text string `json:"text"`

	// PriorityHint is optional caller-supplied routing metadata. It is
	// treated as untrusted and run through the same anti-injection
	// denylist as the text.
	PriorityHint string `json:"priority_hint,omitempty"`
}

// Result is the outcome of one completed run.
type Result struct {
	// RunID is the unique identifier assigned at admission.
	RunID string `json:"run_id"`

	// Tier the run executed under.
	Tier tier.Tier `json:"tier"`

	// Escalated is true when the run completed the escalated stage.
	Escalated bool `json:"escalated"`

	// ClearScoreInitial is the first-pass quality score.
	ClearScoreInitial float64 `json:"clear_score_initial"`

	// ClearScoreFinal is the score of the response actually returned.
	ClearScoreFinal float64 `json:"clear_score_final"`

	// Latency is the end-to-end run duration.
	Latency time.Duration `json:"latency"`

	// Invocations is the number of external calls the run issued.
	Invocations int `json:"invocations"`

	// TokensUsed is the total tokens the run consumed.
	TokensUsed int64 `json:"tokens_used"`

	// Content is the final response content.
	Content string `json:"content"`

	// SessionCapped is true when this run tipped its session over the
	// token cap. The content is still returned; subsequent runs on the
	// session are rejected.
	SessionCapped bool `json:"session_capped,omitempty"`
}

// OpRequest is the bounded unit of external work handed to an Operation.
type OpRequest struct {
	// RunID identifies the run issuing the call.
	RunID string

	// Text is the request content.
	Text string

	// ResourceClass selects the workload class (budget.ClassLight,
	// budget.ClassStandard, budget.ClassReasoning). Implementations map
	// it to a concrete backend or model.
	ResourceClass string

	// Escalated is true for the second-pass escalated call.
	Escalated bool
}

// OpResponse is the outcome of one external call.
type OpResponse struct {
	// Content is the produced response content.
	Content string

	// ClearScore is the self-assessed quality score of the response,
	// on the same scale as the escalation threshold.
	ClearScore float64

	// TokensUsed is the actual tokens the call consumed.
	TokensUsed int64
}

// Operation abstracts the external call a run performs.
//
// Implementations must honor ctx cancellation: the pipeline derives a
// deadline from the run's remaining budget and the call must not outlive
// it. Implementations must not retry internally; retry policy belongs to
// the caller of the pipeline, never inside a run.
type Operation interface {
	Invoke(ctx context.Context, req OpRequest) (OpResponse, error)
}

// classForTier maps a tier to its external resource class.
func classForTier(t tier.Tier) string {
	switch t {
	case tier.Critical:
		return budget.ClassReasoning
	case tier.Complex:
		return budget.ClassStandard
	default:
		return budget.ClassLight
	}
}
