// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package drift

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce   sync.Once
	meanGauge     metric.Float64Gauge
	driftingGauge metric.Int64Gauge
)

func initMetrics() {
	meter := otel.Meter("arbiter.drift")

	var err error
	meanGauge, err = meter.Float64Gauge(
		"arbiter_drift_mean_latency_seconds",
		metric.WithDescription("Windowed mean run latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		meanGauge = nil
	}
	driftingGauge, err = meter.Int64Gauge(
		"arbiter_drift_detected",
		metric.WithDescription("1 while the latency window mean exceeds the ceiling"),
	)
	if err != nil {
		driftingGauge = nil
	}
}

// recordSample publishes the windowed mean and drift verdict after each
// latency sample.
func recordSample(mean time.Duration, drifting bool) {
	metricsOnce.Do(initMetrics)

	ctx := context.Background()
	if meanGauge != nil {
		meanGauge.Record(ctx, mean.Seconds())
	}
	if driftingGauge != nil {
		var v int64
		if drifting {
			v = 1
		}
		driftingGauge.Record(ctx, v)
	}
}
