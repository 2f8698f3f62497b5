// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package admission

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arcanos-ai/arbiter/tier"
)

// Package-level meter for admission metrics.
var admissionMeter = otel.Meter("arbiter.admission")

// Admission metrics.
var (
	admittedTotal metric.Int64Counter
	rejectedTotal metric.Int64Counter

	admissionMetricsOnce sync.Once
	admissionMetricsErr  error
)

// initAdmissionMetrics initializes metrics.
func initAdmissionMetrics() error {
	admissionMetricsOnce.Do(func() {
		var err error

		admittedTotal, err = admissionMeter.Int64Counter(
			"arbiter_runs_admitted_total",
			metric.WithDescription("Total runs admitted by tier"),
		)
		if err != nil {
			admissionMetricsErr = err
			return
		}

		rejectedTotal, err = admissionMeter.Int64Counter(
			"arbiter_runs_rejected_total",
			metric.WithDescription("Total admission rejections by tier"),
		)
		if err != nil {
			admissionMetricsErr = err
			return
		}
	})
	return admissionMetricsErr
}

// recordAdmission records a successful slot acquire.
func recordAdmission(t tier.Tier) {
	if err := initAdmissionMetrics(); err != nil {
		return
	}

	admittedTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("tier", string(t))),
	)
}

// recordRejection records a saturation rejection.
func recordRejection(t tier.Tier) {
	if err := initAdmissionMetrics(); err != nil {
		return
	}

	rejectedTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("tier", string(t))),
	)
}
