// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arcanos-ai/arbiter/tier"
)

// Run outcome labels.
const (
	outcomeSuccess             = "success"
	outcomeBudgetExceeded      = "budget_exceeded"
	outcomeInvocationsExceeded = "invocations_exceeded"
	outcomeSessionCapped       = "session_capped"
	outcomeOperationError      = "operation_error"
)

var (
	meterOnce      sync.Once
	outcomeCounter metric.Int64Counter
	latencyHist    metric.Float64Histogram
)

func initMetrics() {
	meterOnce.Do(func() {
		meter := otel.Meter("arbiter.pipeline")

		var err error
		outcomeCounter, err = meter.Int64Counter(
			"arbiter_runs_completed_total",
			metric.WithDescription("Post-admission run outcomes"),
		)
		if err != nil {
			outcomeCounter = nil
		}

		latencyHist, err = meter.Float64Histogram(
			"arbiter_run_latency_seconds",
			metric.WithDescription("End-to-end run latency"),
			metric.WithUnit("s"),
		)
		if err != nil {
			latencyHist = nil
		}
	})
}

func recordOutcome(runTier tier.Tier, outcome string, latency time.Duration) {
	initMetrics()
	attrs := metric.WithAttributes(
		attribute.String("tier", string(runTier)),
		attribute.String("outcome", outcome),
	)
	if outcomeCounter != nil {
		outcomeCounter.Add(context.Background(), 1, attrs)
	}
	if latencyHist != nil {
		latencyHist.Record(context.Background(), latency.Seconds(), attrs)
	}
}
