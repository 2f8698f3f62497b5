// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package drift watches run latencies for sustained degradation of the
// downstream model path.
package drift

import (
	"time"

	"github.com/arcanos-ai/arbiter/internal/util"
)

// Default detector values.
const (
	// DefaultSampleCapacity bounds the latency sample ring.
	DefaultSampleCapacity = 100

	// DefaultMinSamples is the floor below which no verdict is issued.
	DefaultMinSamples = 20

	// DefaultMeanCeiling is the mean latency above which drift is
	// reported.
	DefaultMeanCeiling = 20 * time.Second
)

// Config configures the detector.
type Config struct {
	// SampleCapacity bounds the latency ring (default: 100). Older
	// samples are evicted first.
	SampleCapacity int

	// MinSamples is the minimum sample count before a verdict
	// (default: 20).
	MinSamples int

	// MeanCeiling is the mean-latency drift threshold (default: 20s).
	MeanCeiling time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SampleCapacity: DefaultSampleCapacity,
		MinSamples:     DefaultMinSamples,
		MeanCeiling:    DefaultMeanCeiling,
	}
}

// Status is a point-in-time snapshot of the detector.
type Status struct {
	Samples     int           `json:"samples"`
	Mean        time.Duration `json:"mean"`
	MeanCeiling time.Duration `json:"mean_ceiling"`
	Drifting    bool          `json:"drifting"`
}

// Detector accumulates recent run latencies and reports sustained
// degradation.
//
// Description:
//
//	A bounded ring of the most recent latencies keeps memory flat under
//	unbounded traffic. DetectDrift withholds judgment until MinSamples
//	observations exist, then compares the windowed mean against the
//	ceiling. A single slow run cannot trip it; only a shifted window
//	mean can.
//
// Thread Safety: all methods are safe for concurrent use.
type Detector struct {
	cfg     Config
	samples *util.RingBuffer[time.Duration]
}

// NewDetector creates a detector. Zero config values take defaults.
func NewDetector(cfg Config) *Detector {
	if cfg.SampleCapacity <= 0 {
		cfg.SampleCapacity = DefaultSampleCapacity
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MeanCeiling <= 0 {
		cfg.MeanCeiling = DefaultMeanCeiling
	}
	return &Detector{
		cfg:     cfg,
		samples: util.NewRingBuffer[time.Duration](cfg.SampleCapacity),
	}
}

// RecordLatency adds one run's end-to-end latency to the sample window.
// Non-positive latencies are ignored.
func (d *Detector) RecordLatency(latency time.Duration) {
	if latency <= 0 {
		return
	}
	d.samples.Push(latency)
	recordSample(d.Mean(), d.DetectDrift())
}

// SampleCount returns the number of latencies currently in the window.
func (d *Detector) SampleCount() int {
	return d.samples.Size()
}

// Mean returns the windowed mean latency, or zero with no samples.
func (d *Detector) Mean() time.Duration {
	snapshot := d.samples.Snapshot()
	if len(snapshot) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range snapshot {
		total += s
	}
	return total / time.Duration(len(snapshot))
}

// DetectDrift reports whether the model path shows sustained latency
// degradation.
//
// Outputs:
//
//	bool - True when at least MinSamples exist and their mean exceeds
//	the ceiling. Always false below the sample floor.
func (d *Detector) DetectDrift() bool {
	if d.samples.Size() < d.cfg.MinSamples {
		return false
	}
	return d.Mean() > d.cfg.MeanCeiling
}

// Status returns a point-in-time snapshot for the status surface.
func (d *Detector) Status() Status {
	return Status{
		Samples:     d.SampleCount(),
		Mean:        d.Mean(),
		MeanCeiling: d.cfg.MeanCeiling,
		Drifting:    d.DetectDrift(),
	}
}
