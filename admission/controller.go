// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package admission bounds the number of concurrently in-flight runs per
// tier. Each tier owns an independent counting semaphore; saturation is
// reported as a typed rejection distinct from execution failures so the
// caller can apply backpressure instead of treating it as an error.
package admission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arcanos-ai/arbiter/tier"
)

// Default per-tier slot capacities.
const (
	// DefaultSimpleSlots bounds concurrent simple-tier runs.
	DefaultSimpleSlots = 100

	// DefaultComplexSlots bounds concurrent complex-tier runs.
	DefaultComplexSlots = 40

	// DefaultCriticalSlots bounds concurrent critical-tier runs.
	DefaultCriticalSlots = 10
)

// RejectedError reports that a tier's slot pool is saturated.
//
// Description:
//
//	RejectedError is recoverable by caller retry/backoff; it is never an
//	execution failure and is never retried inside this package. It maps
//	to a "too many concurrent runs" response upstream.
type RejectedError struct {
	// Tier is the saturated tier.
	Tier tier.Tier

	// Capacity is the tier's configured slot capacity.
	Capacity int64
}

// Error returns a formatted rejection message.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("admission rejected: %s tier saturated (capacity %d)", e.Tier, e.Capacity)
}

// Config configures the admission controller.
type Config struct {
	// SimpleSlots is the simple-tier capacity (default: 100).
	SimpleSlots int64

	// ComplexSlots is the complex-tier capacity (default: 40).
	ComplexSlots int64

	// CriticalSlots is the critical-tier capacity (default: 10).
	CriticalSlots int64

	// AcquireWait bounds how long Admit waits for a slot. Zero means
	// non-blocking: a saturated tier rejects immediately.
	AcquireWait time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SimpleSlots:   DefaultSimpleSlots,
		ComplexSlots:  DefaultComplexSlots,
		CriticalSlots: DefaultCriticalSlots,
	}
}

// Handle represents one held tier slot.
//
// Description:
//
//	Release is idempotent and mandatory: every admitted run must release
//	its handle on every exit path, including panics in the caller
//	(defer handle.Release() immediately after a successful Admit).
type Handle struct {
	tier    tier.Tier
	release func()
	once    sync.Once
}

// Tier returns the tier the slot was acquired for.
func (h *Handle) Tier() tier.Tier {
	return h.tier
}

// Release returns the slot to its pool. Safe to call more than once;
// only the first call has an effect.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

// pool is one tier's counting semaphore plus bookkeeping.
type pool struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
}

// PoolStatus is a snapshot of one tier's pool for logging and status
// endpoints.
type PoolStatus struct {
	// Tier is the pool's tier.
	Tier tier.Tier `json:"tier"`

	// Capacity is the configured slot capacity.
	Capacity int64 `json:"capacity"`

	// InFlight is the number of currently held slots.
	InFlight int64 `json:"in_flight"`
}

// Controller admits runs under per-tier concurrency caps.
//
// Description:
//
//	Holds one bounded counting semaphore per tier. Admit attempts a
//	non-blocking (or short bounded-wait) acquire; on success it returns a
//	Handle whose release is guaranteed-idempotent, on saturation it
//	returns *RejectedError. Slots are granted best-effort, not FIFO.
//
// Thread Safety: Safe for concurrent use from any number of goroutines.
type Controller struct {
	cfg   Config
	pools map[tier.Tier]*pool
}

// NewController creates a controller with the given configuration.
//
// Inputs:
//
//	cfg - Capacities and acquire wait. Uses defaults for zero capacities.
//
// Outputs:
//
//	*Controller - The configured controller.
func NewController(cfg Config) *Controller {
	if cfg.SimpleSlots <= 0 {
		cfg.SimpleSlots = DefaultSimpleSlots
	}
	if cfg.ComplexSlots <= 0 {
		cfg.ComplexSlots = DefaultComplexSlots
	}
	if cfg.CriticalSlots <= 0 {
		cfg.CriticalSlots = DefaultCriticalSlots
	}

	return &Controller{
		cfg: cfg,
		pools: map[tier.Tier]*pool{
			tier.Simple:   {sem: semaphore.NewWeighted(cfg.SimpleSlots), capacity: cfg.SimpleSlots},
			tier.Complex:  {sem: semaphore.NewWeighted(cfg.ComplexSlots), capacity: cfg.ComplexSlots},
			tier.Critical: {sem: semaphore.NewWeighted(cfg.CriticalSlots), capacity: cfg.CriticalSlots},
		},
	}
}

// Admit acquires a slot in the tier's pool.
//
// Description:
//
//	With AcquireWait zero the acquire is non-blocking: a saturated pool
//	rejects immediately. With AcquireWait positive, Admit blocks up to
//	that long (or until ctx is done) for a slot to free up. Rejection is
//	returned as *RejectedError and is never retried here; retry/backoff
//	policy belongs to the caller.
//
// Inputs:
//
//	ctx - Context bounding the wait. Ignored for non-blocking acquires.
//	t - The tier to admit into. Must be a valid tier.
//
// Outputs:
//
//	*Handle - The held slot on success. Release is mandatory.
//	error - *RejectedError on saturation, or a plain error for an
//	unknown tier.
//
// Thread Safety: Safe for concurrent use.
func (c *Controller) Admit(ctx context.Context, t tier.Tier) (*Handle, error) {
	p, ok := c.pools[t]
	if !ok {
		return nil, fmt.Errorf("admission: unknown tier %q", t)
	}

	if c.cfg.AcquireWait <= 0 {
		if !p.sem.TryAcquire(1) {
			recordRejection(t)
			return nil, &RejectedError{Tier: t, Capacity: p.capacity}
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, c.cfg.AcquireWait)
		err := p.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			recordRejection(t)
			return nil, &RejectedError{Tier: t, Capacity: p.capacity}
		}
	}

	p.inFlight.Add(1)
	recordAdmission(t)

	return &Handle{
		tier: t,
		release: func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		},
	}, nil
}

// InFlight returns the number of currently held slots for a tier.
func (c *Controller) InFlight(t tier.Tier) int64 {
	if p, ok := c.pools[t]; ok {
		return p.inFlight.Load()
	}
	return 0
}

// Status returns a snapshot of every pool, ordered simple, complex,
// critical.
func (c *Controller) Status() []PoolStatus {
	out := make([]PoolStatus, 0, len(c.pools))
	for _, t := range []tier.Tier{tier.Simple, tier.Complex, tier.Critical} {
		p := c.pools[t]
		out = append(out, PoolStatus{Tier: t, Capacity: p.capacity, InFlight: p.inFlight.Load()})
	}
	return out
}
