// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcanos-ai/arbiter/admission"
	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/drift"
	"github.com/arcanos-ai/arbiter/escalation"
	"github.com/arcanos-ai/arbiter/pkg/logging"
	"github.com/arcanos-ai/arbiter/session"
	"github.com/arcanos-ai/arbiter/tier"
)

// Deps wires the pipeline's collaborators. All component fields are
// required except Logger, which falls back to the default logger.
type Deps struct {
	Classifier *tier.Classifier
	Admission  *admission.Controller
	Tuner      *escalation.Tuner
	Drift      *drift.Detector
	Auditor    *session.Auditor

	// BudgetConfig seeds a fresh Budget per run.
	BudgetConfig budget.Config

	// Operation performs the external work.
	Operation Operation

	Logger *logging.Logger
}

// Runner executes requests end to end.
//
// Description:
//
//	Execute runs the strict intra-run ordering: classify, admit, budget
//	creation, session pre-flight, first external stage, escalation
//	decision, optional escalated stage, outcome recording, slot release.
//	Every post-admission exit path records the outcome to the tuner and
//	the drift detector exactly once; pre-admission rejections are never
//	recorded so rejected traffic cannot move the threshold.
//
// Thread Safety: Execute is safe for concurrent use; all per-run state
// is local and the shared collaborators synchronize internally.
type Runner struct {
	deps   Deps
	tracer trace.Tracer
}

// NewRunner creates a pipeline runner.
//
// Inputs:
//
//	deps - Wired collaborators. Nil required fields are an error.
//
// Outputs:
//
//	*Runner - Ready to execute requests.
//	error   - Non-nil when a required dependency is missing.
func NewRunner(deps Deps) (*Runner, error) {
	switch {
	case deps.Classifier == nil:
		return nil, fmt.Errorf("pipeline: nil classifier")
	case deps.Admission == nil:
		return nil, fmt.Errorf("pipeline: nil admission controller")
	case deps.Tuner == nil:
		return nil, fmt.Errorf("pipeline: nil escalation tuner")
	case deps.Drift == nil:
		return nil, fmt.Errorf("pipeline: nil drift detector")
	case deps.Auditor == nil:
		return nil, fmt.Errorf("pipeline: nil session auditor")
	case deps.Operation == nil:
		return nil, fmt.Errorf("pipeline: nil operation")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Runner{
		deps:   deps,
		tracer: otel.Tracer("arbiter.pipeline"),
	}, nil
}

// Execute drives one request through the pipeline.
//
// Inputs:
//
//	ctx - Cancels the run. Stage deadlines are derived from the run's
//	      budget and layered on top.
//	req - The request. An empty SessionID is rejected before admission.
//
// Outputs:
//
//	*Result - The run outcome on success.
//	error   - Typed errors per the admission/budget/session taxonomy;
//	          callers dispatch with errors.As.
func (r *Runner) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("pipeline: empty session id")
	}

	runTier := r.deps.Classifier.Classify(tier.Signals{
		Text:         req.Text,
		PriorityHint: req.PriorityHint,
	})

	handle, err := r.deps.Admission.Admit(ctx, runTier)
	if err != nil {
		var rejected *admission.RejectedError
		if errors.As(err, &rejected) {
			r.deps.Logger.Warn("run rejected at admission",
				"session_id", req.SessionID,
				"tier", string(runTier),
				"capacity", rejected.Capacity,
			)
		}
		return nil, err
	}
	defer handle.Release()

	runID := uuid.NewString()
	b := budget.New(r.deps.BudgetConfig)
	invocations := budget.NewInvocationBudget(r.deps.BudgetConfig.MaxInvocations)
	logger := r.deps.Logger.With("run_id", runID, "session_id", req.SessionID, "tier", string(runTier))

	ctx, span := r.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.tier", string(runTier)),
		))
	defer span.End()

	result := &Result{RunID: runID, Tier: runTier}
	start := b.StartedAt()

	// Exactly-once outcome recording on every post-admission exit path.
	// A run that fails before or during escalation counts as
	// non-escalated; Escalated flips only after the escalated stage
	// completes.
	recorded := false
	record := func(outcome string) {
		if recorded {
			return
		}
		recorded = true
		result.Latency = time.Since(start)
		result.Invocations = invocations.Count()
		r.deps.Drift.RecordLatency(result.Latency)
		r.deps.Tuner.RecordRun(runTier, result.Escalated)
		recordOutcome(runTier, outcome, result.Latency)
	}

	// Session pre-flight: a session already over its cap must not spend
	// more tokens. A zero-delta Record surfaces the capped state without
	// changing the ledger.
	if err := r.deps.Auditor.Record(req.SessionID, 0); err != nil {
		record(outcomeSessionCapped)
		logger.Warn("session over token cap, run refused", "error", err)
		return nil, err
	}

	resp, err := r.invokeStage(ctx, logger, b, invocations, OpRequest{
		RunID:         runID,
		Text:          req.Text,
		ResourceClass: classForTier(runTier),
	})
	if err != nil {
		record(outcomeForError(err))
		logger.Error("first stage failed", "error", err)
		return nil, err
	}

	result.ClearScoreInitial = resp.ClearScore
	result.ClearScoreFinal = resp.ClearScore
	result.Content = resp.Content
	result.TokensUsed = resp.TokensUsed

	sessionOpen := true
	if err := r.deps.Auditor.Record(req.SessionID, resp.TokensUsed); err != nil {
		// The crossing run keeps its content; only further spending on
		// the session stops.
		sessionOpen = false
		result.SessionCapped = true
		logger.Warn("session crossed token cap", "error", err)
	}

	r.decideEscalation(ctx, logger, b, invocations, req, result, sessionOpen)

	record(outcomeSuccess)
	logger.Info("run complete",
		"escalated", result.Escalated,
		"clear_score", result.ClearScoreFinal,
		"latency_ms", result.Latency.Milliseconds(),
		"invocations", result.Invocations,
		"tokens_used", result.TokensUsed,
	)
	return result, nil
}

// decideEscalation applies the quality gate and, when it fires, runs the
// escalated stage. Escalation failures degrade to the first-pass response
// rather than failing the run; the first-pass content is already paid for.
func (r *Runner) decideEscalation(
	ctx context.Context,
	logger *logging.Logger,
	b *budget.Budget,
	invocations *budget.InvocationBudget,
	req Request,
	result *Result,
	sessionOpen bool,
) {
	threshold := r.deps.Tuner.Threshold()

	// Critical runs already execute on the reasoning path; re-issuing
	// them buys nothing. A capped session must not spend more tokens.
	eligible := result.Tier != tier.Critical && sessionOpen
	escalate := eligible && r.deps.Tuner.ShouldEscalate(result.ClearScoreInitial)

	// Every decision is logged with its inputs; decision logging must
	// never break routing.
	logger.Info("escalation decision",
		"clear_score", result.ClearScoreInitial,
		"threshold", threshold,
		"eligible", eligible,
		"escalate", escalate,
	)
	if !escalate {
		return
	}

	resp, err := r.invokeStage(ctx, logger, b, invocations, OpRequest{
		RunID:         result.RunID,
		Text:          req.Text,
		ResourceClass: budget.ClassReasoning,
		Escalated:     true,
	})
	if err != nil {
		logger.Warn("escalated stage failed, keeping first-pass response", "error", err)
		return
	}

	if err := r.deps.Auditor.Record(req.SessionID, resp.TokensUsed); err != nil {
		result.SessionCapped = true
		logger.Warn("session crossed token cap on escalated stage", "error", err)
	}

	result.Escalated = true
	result.ClearScoreFinal = resp.ClearScore
	result.Content = resp.Content
	result.TokensUsed += resp.TokensUsed
}

// invokeStage runs one external call under the run's budgets: watchdog
// check, invocation count, then the call with a deadline capped at the
// stage timeout.
func (r *Runner) invokeStage(
	ctx context.Context,
	logger *logging.Logger,
	b *budget.Budget,
	invocations *budget.InvocationBudget,
	opReq OpRequest,
) (OpResponse, error) {
	if err := b.Assert(); err != nil {
		return OpResponse{}, err
	}
	// Incremented before dispatch so attempted calls count against the
	// cap even when they fail.
	if err := invocations.Increment(); err != nil {
		return OpResponse{}, err
	}

	timeout := b.StageTimeout(opReq.ResourceClass)
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stageCtx, span := r.tracer.Start(stageCtx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("run.id", opReq.RunID),
			attribute.String("stage.class", opReq.ResourceClass),
			attribute.Bool("stage.escalated", opReq.Escalated),
		))
	defer span.End()

	logger.Debug("stage dispatch",
		"class", opReq.ResourceClass,
		"escalated", opReq.Escalated,
		"timeout_ms", timeout.Milliseconds(),
	)
	return r.deps.Operation.Invoke(stageCtx, opReq)
}

// outcomeForError maps a stage failure to its outcome label.
func outcomeForError(err error) string {
	var budgetErr *budget.ExceededError
	var invErr *budget.InvocationsExceededError
	switch {
	case errors.As(err, &budgetErr):
		return outcomeBudgetExceeded
	case errors.As(err, &invErr):
		return outcomeInvocationsExceeded
	default:
		return outcomeOperationError
	}
}
