// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package budget

import (
	"fmt"
	"sync"
)

// DefaultMaxInvocations caps external calls issued by a single run.
const DefaultMaxInvocations = 8

// InvocationsExceededError reports that a run attempted more external calls
// than its cap allows. Fatal to the run, never retried within it.
type InvocationsExceededError struct {
	// Max is the run's invocation cap.
	Max int
}

// Error returns a formatted invocation cap failure message.
func (e *InvocationsExceededError) Error() string {
	return fmt.Sprintf("invocation budget exceeded: cap of %d external calls reached", e.Max)
}

// InvocationBudget counts external calls for one run against a fixed cap.
//
// Description:
//
//	Increment must be called before each external call. The call that
//	reaches the cap still succeeds; the first call past it fails. With
//	the default cap of 8, the 8th Increment returns nil and the 9th
//	returns *InvocationsExceededError.
//
// Thread Safety: all methods are safe for concurrent use.
type InvocationBudget struct {
	mu    sync.Mutex
	count int
	max   int
}

// NewInvocationBudget creates an invocation counter with the given cap.
// Non-positive caps fall back to DefaultMaxInvocations.
func NewInvocationBudget(max int) *InvocationBudget {
	if max <= 0 {
		max = DefaultMaxInvocations
	}
	return &InvocationBudget{max: max}
}

// Increment records an external call attempt.
//
// Outputs:
//
//	error - *InvocationsExceededError the instant the cap would be
//	crossed, nil otherwise. On failure the counter is not advanced and
//	the external call must not be issued.
func (ib *InvocationBudget) Increment() error {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if ib.count >= ib.max {
		return &InvocationsExceededError{Max: ib.max}
	}
	ib.count++
	return nil
}

// Count returns the number of external calls recorded so far.
func (ib *InvocationBudget) Count() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return ib.count
}

// Max returns the run's invocation cap.
func (ib *InvocationBudget) Max() int {
	return ib.max
}
