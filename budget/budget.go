// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package budget enforces per-run resource ceilings: a wall-clock watchdog
// with a fixed hard deadline, and an invocation counter bounding the number
// of external calls a single run may issue.
//
// The watchdog is the single time-enforcement point for a run: every
// pipeline stage calls Assert before starting non-trivial work and no stage
// tracks time independently.
package budget

import (
	"fmt"
	"time"

	"github.com/arcanos-ai/arbiter/internal/util"
)

// Default budget values.
const (
	// DefaultWatchdogLimit is the hard wall-clock ceiling for one run.
	DefaultWatchdogLimit = 120 * time.Second

	// DefaultSafetyBuffer is reserved at the end of the watchdog window so
	// the last usable stage still has time for orderly shutdown and
	// outcome recording instead of being cut off mid-operation.
	DefaultSafetyBuffer = 10 * time.Second

	// DefaultStageTimeout is the nominal per-stage timeout for resource
	// classes missing from the timeout table.
	DefaultStageTimeout = 30 * time.Second

	// DisabledRemaining is the sentinel SafeRemaining returns when budget
	// enforcement is disabled for trusted/offline execution.
	DisabledRemaining = 24 * time.Hour
)

// Resource classes for per-workload timeout resolution.
const (
	// ClassLight is the fast path for simple-tier runs.
	ClassLight = "light"

	// ClassStandard is the default path for complex-tier runs.
	ClassStandard = "standard"

	// ClassReasoning is the high-cost reasoning path used by critical-tier
	// and escalated runs.
	ClassReasoning = "reasoning"
)

// ExceededError reports that a run's safe time window is exhausted.
//
// Description:
//
//	Always fatal to the current run, never retried, and always recorded
//	as a (non-escalated, failed) outcome so the tuning statistics are not
//	skewed by timed-out runs disappearing from the sample. Maps to a
//	timeout response upstream.
type ExceededError struct {
	// Elapsed is how long the run had been executing at the failed check.
	Elapsed time.Duration

	// Limit is the run's watchdog limit.
	Limit time.Duration
}

// Error returns a formatted budget failure message.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("runtime budget exceeded: %s elapsed of %s limit", e.Elapsed.Round(time.Millisecond), e.Limit)
}

// Config configures run budgets.
type Config struct {
	// WatchdogLimit is the hard wall-clock ceiling (default: 120s).
	WatchdogLimit time.Duration

	// SafetyBuffer is reserved for orderly shutdown (default: 10s).
	SafetyBuffer time.Duration

	// StageTimeouts maps resource class to nominal per-stage timeout.
	// Every nominal value is clamped so it can never exceed
	// WatchdogLimit - SafetyBuffer.
	StageTimeouts map[string]time.Duration

	// MaxInvocations caps external calls per run (default: 8).
	MaxInvocations int

	// Disabled turns off time enforcement entirely for trusted/offline
	// execution: Assert never fails and SafeRemaining returns
	// DisabledRemaining.
	Disabled bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WatchdogLimit: DefaultWatchdogLimit,
		SafetyBuffer:  DefaultSafetyBuffer,
		StageTimeouts: map[string]time.Duration{
			ClassLight:     15 * time.Second,
			ClassStandard:  45 * time.Second,
			ClassReasoning: 90 * time.Second,
		},
		MaxInvocations: DefaultMaxInvocations,
	}
}

// Budget tracks one run's absolute deadline.
//
// Description:
//
//	The hard deadline is fixed at creation (startedAt + WatchdogLimit)
//	and never extended. SafeRemaining subtracts the safety buffer from
//	the raw remaining time; Assert fails the instant safe remaining time
//	is non-positive.
//
// Thread Safety: Budget is immutable after creation and safe for
// concurrent reads; a run is owned by one execution context at a time.
type Budget struct {
	startedAt    time.Time
	hardDeadline time.Time
	safetyBuffer time.Duration
	cfg          Config
}

// New creates a budget for a run starting now.
//
// Inputs:
//
//	cfg - Budget configuration. Uses defaults for zero values.
//
// Outputs:
//
//	*Budget - The run budget with its deadline fixed.
func New(cfg Config) *Budget {
	if cfg.WatchdogLimit <= 0 {
		cfg.WatchdogLimit = DefaultWatchdogLimit
	}
	if cfg.SafetyBuffer <= 0 {
		cfg.SafetyBuffer = DefaultSafetyBuffer
	}
	if cfg.SafetyBuffer >= cfg.WatchdogLimit {
		// A buffer that swallows the whole window would make every run
		// fail its first check.
		cfg.SafetyBuffer = cfg.WatchdogLimit / 10
	}

	now := time.Now()
	return &Budget{
		startedAt:    now,
		hardDeadline: now.Add(cfg.WatchdogLimit),
		safetyBuffer: cfg.SafetyBuffer,
		cfg:          cfg,
	}
}

// StartedAt returns when the budget was created.
func (b *Budget) StartedAt() time.Time {
	return b.startedAt
}

// HardDeadline returns the fixed absolute deadline.
func (b *Budget) HardDeadline() time.Time {
	return b.hardDeadline
}

// SafeRemaining returns the usable time left after reserving the safety
// buffer.
//
// Outputs:
//
//	time.Duration - Remaining safe time; non-positive once the run must
//	stop. DisabledRemaining when enforcement is disabled.
func (b *Budget) SafeRemaining() time.Duration {
	if b.cfg.Disabled {
		return DisabledRemaining
	}
	return time.Until(b.hardDeadline) - b.safetyBuffer
}

// Assert fails when safe remaining time is non-positive.
//
// Description:
//
//	The single time-enforcement point: every pipeline stage calls Assert
//	before beginning non-trivial work. When it fails the run must unwind
//	immediately; no further external calls may be issued.
//
// Outputs:
//
//	error - *ExceededError when the safe window is exhausted, nil
//	otherwise. Never fails when enforcement is disabled.
func (b *Budget) Assert() error {
	if b.cfg.Disabled {
		return nil
	}
	if b.SafeRemaining() <= 0 {
		return &ExceededError{
			Elapsed: time.Since(b.startedAt),
			Limit:   b.cfg.WatchdogLimit,
		}
	}
	return nil
}

// StageTimeout resolves the per-stage timeout for a resource class.
//
// Description:
//
//	Looks up the nominal timeout for the class (DefaultStageTimeout for
//	unknown classes), clamps it so it can never exceed
//	WatchdogLimit - SafetyBuffer, and finally caps it at the run's
//	current safe remaining time. No per-stage timeout can ever outlive
//	the run's hard ceiling.
//
// Inputs:
//
//	class - The external resource class requested (e.g. ClassReasoning).
//
// Outputs:
//
//	time.Duration - The effective timeout for the stage's external call.
func (b *Budget) StageTimeout(class string) time.Duration {
	nominal, ok := b.cfg.StageTimeouts[class]
	if !ok || nominal <= 0 {
		nominal = DefaultStageTimeout
	}

	ceiling := b.cfg.WatchdogLimit - b.safetyBuffer
	clamped := util.EnforceMaxTimeout(nominal, ceiling)

	if b.cfg.Disabled {
		return clamped
	}
	return util.MinDuration(clamped, b.SafeRemaining())
}
