// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package escalation

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arcanos-ai/arbiter/tier"
)

var (
	meterOnce      sync.Once
	runsCounter    metric.Int64Counter
	thresholdGauge metric.Float64Gauge
)

func initMetrics() {
	meterOnce.Do(func() {
		meter := otel.Meter("arbiter.escalation")

		var err error
		runsCounter, err = meter.Int64Counter(
			"arbiter_tuner_runs_total",
			metric.WithDescription("Completed runs recorded by the escalation tuner"),
		)
		if err != nil {
			runsCounter = nil
		}

		thresholdGauge, err = meter.Float64Gauge(
			"arbiter_escalation_threshold",
			metric.WithDescription("Current escalation quality threshold"),
		)
		if err != nil {
			thresholdGauge = nil
		}
	})
}

func recordRun(runTier tier.Tier, escalated bool) {
	initMetrics()
	if runsCounter == nil {
		return
	}
	runsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("tier", string(runTier)),
			attribute.Bool("escalated", escalated),
		))
}

func recordThresholdGauge(threshold float64) {
	initMetrics()
	if thresholdGauge == nil {
		return
	}
	thresholdGauge.Record(context.Background(), threshold)
}
