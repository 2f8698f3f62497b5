// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package escalation maintains the adaptive quality threshold that decides
// when a run's initial response is re-issued on the expensive reasoning
// path.
//
// The tuner is a negative feedback loop over a sliding window of completed
// runs: when too many runs escalate the threshold is lowered so fewer
// first-pass responses fall below it, and when too few escalate it is
// raised. The threshold always stays inside a fixed clamp range so a burst
// of unusual traffic can never push escalation fully open or fully closed.
package escalation

import (
	"sync"
	"sync/atomic"

	"github.com/arcanos-ai/arbiter/tier"
)

// Default tuner values.
const (
	// DefaultInitialThreshold is the starting quality threshold.
	DefaultInitialThreshold = 3.4

	// DefaultMinThreshold is the lower clamp bound.
	DefaultMinThreshold = 3.0

	// DefaultMaxThreshold is the upper clamp bound.
	DefaultMaxThreshold = 3.8

	// DefaultStep is applied per window-boundary adjustment.
	DefaultStep = 0.1

	// DefaultWindowSize is the number of completed runs per tuning window.
	DefaultWindowSize = 500

	// DefaultMinRate is the escalation rate at or below which the threshold
	// is raised (escalation is too rare, quality gate too permissive).
	DefaultMinRate = 0.08

	// DefaultMaxRate is the escalation rate above which the threshold is
	// lowered (escalation is too frequent, quality gate too strict).
	DefaultMaxRate = 0.35
)

// Config configures the tuner.
type Config struct {
	// InitialThreshold is the starting quality threshold (default: 3.4).
	InitialThreshold float64

	// MinThreshold is the lower clamp bound (default: 3.0).
	MinThreshold float64

	// MaxThreshold is the upper clamp bound (default: 3.8).
	MaxThreshold float64

	// Step is the per-adjustment delta (default: 0.1).
	Step float64

	// WindowSize is the completed-run count per tuning window
	// (default: 500).
	WindowSize int

	// MinRate and MaxRate bound the target escalation-rate band
	// (defaults: 0.08 and 0.35).
	MinRate float64
	MaxRate float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		InitialThreshold: DefaultInitialThreshold,
		MinThreshold:     DefaultMinThreshold,
		MaxThreshold:     DefaultMaxThreshold,
		Step:             DefaultStep,
		WindowSize:       DefaultWindowSize,
		MinRate:          DefaultMinRate,
		MaxRate:          DefaultMaxRate,
	}
}

// Status is a point-in-time snapshot of the tuner.
type Status struct {
	Threshold       float64 `json:"threshold"`
	WindowRuns      int     `json:"window_runs"`
	WindowEscalated int     `json:"window_escalated"`
	WindowSize      int     `json:"window_size"`
	Adjustments     int64   `json:"adjustments"`
}

// Tuner adapts the escalation quality threshold from observed run outcomes.
//
// Description:
//
//	ShouldEscalate gates on the current threshold: a first-pass quality
//	score below it triggers escalation. RecordRun feeds each completed
//	run into the current window; at the window boundary the escalation
//	rate is compared against the target band, the threshold is adjusted
//	by one step and clamped, and the window counters reset. Adjustment
//	happens only at window boundaries, never per run.
//
// Thread Safety: all methods are safe for concurrent use. The threshold
// and the window counters are guarded independently so the hot
// ShouldEscalate read path never contends with outcome recording.
type Tuner struct {
	cfg Config

	thresholdMu sync.RWMutex
	threshold   float64

	windowMu  sync.Mutex
	runs      int
	escalated int

	// adjustments counts applied threshold steps, not window boundaries.
	adjustments atomic.Int64
}

// NewTuner creates a tuner. Zero config values take defaults.
func NewTuner(cfg Config) *Tuner {
	def := DefaultConfig()
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = def.InitialThreshold
	}
	if cfg.MinThreshold <= 0 {
		cfg.MinThreshold = def.MinThreshold
	}
	if cfg.MaxThreshold <= 0 {
		cfg.MaxThreshold = def.MaxThreshold
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinRate <= 0 {
		cfg.MinRate = def.MinRate
	}
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = def.MaxRate
	}

	t := &Tuner{
		cfg:       cfg,
		threshold: clamp(cfg.InitialThreshold, cfg.MinThreshold, cfg.MaxThreshold),
	}
	recordThresholdGauge(t.threshold)
	return t
}

// Threshold returns the current quality threshold.
func (t *Tuner) Threshold() float64 {
	t.thresholdMu.RLock()
	defer t.thresholdMu.RUnlock()
	return t.threshold
}

// ShouldEscalate reports whether a first-pass quality score falls below the
// current threshold and the run must be re-issued on the reasoning path.
func (t *Tuner) ShouldEscalate(score float64) bool {
	return score < t.Threshold()
}

// RecordRun feeds one completed run into the current tuning window.
//
// Description:
//
//	Every post-admission run outcome is recorded exactly once, including
//	failed runs (recorded as non-escalated), so the window reflects real
//	traffic. When the window fills, the escalation rate decides a single
//	clamped adjustment and the counters reset.
//
// Inputs:
//
//	runTier   - The tier the run executed under, for metrics attribution.
//	escalated - Whether the run took the escalation path.
func (t *Tuner) RecordRun(runTier tier.Tier, escalated bool) {
	recordRun(runTier, escalated)

	t.windowMu.Lock()
	t.runs++
	if escalated {
		t.escalated++
	}
	if t.runs < t.cfg.WindowSize {
		t.windowMu.Unlock()
		return
	}

	rate := float64(t.escalated) / float64(t.runs)
	t.runs = 0
	t.escalated = 0
	t.windowMu.Unlock()

	t.adjust(rate)
}

// adjust applies one window-boundary threshold step for the observed rate.
// A rate of exactly MinRate is already too rare and steps the threshold up;
// only rates strictly inside the band leave it unchanged.
func (t *Tuner) adjust(rate float64) {
	t.thresholdMu.Lock()
	defer t.thresholdMu.Unlock()

	switch {
	case rate > t.cfg.MaxRate:
		t.threshold -= t.cfg.Step
	case rate <= t.cfg.MinRate:
		t.threshold += t.cfg.Step
	default:
		return
	}
	t.adjustments.Add(1)
	t.threshold = clamp(t.threshold, t.cfg.MinThreshold, t.cfg.MaxThreshold)
	recordThresholdGauge(t.threshold)
}

// Status returns a point-in-time snapshot for the status surface.
func (t *Tuner) Status() Status {
	t.windowMu.Lock()
	runs, escalated := t.runs, t.escalated
	t.windowMu.Unlock()

	return Status{
		Threshold:       t.Threshold(),
		WindowRuns:      runs,
		WindowEscalated: escalated,
		WindowSize:      t.cfg.WindowSize,
		Adjustments:     t.adjustments.Load(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
