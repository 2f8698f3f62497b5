// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import "sync"

// =============================================================================
// Ring Buffer
// =============================================================================

// RingBuffer is a thread-safe, fixed-size circular buffer.
//
// # Description
//
// RingBuffer keeps the most recent `capacity` items, silently evicting
// the oldest item when full. Used for rolling-window calculations where
// only recent samples matter (e.g. latency windows).
//
// # Thread Safety
//
// RingBuffer is safe for concurrent use from multiple goroutines.
// All operations are protected by a mutex.
//
// # Limitations
//
//   - Fixed capacity (cannot grow)
//   - Evicts oldest items when full (no backpressure signal)
//   - Memory is pre-allocated for full capacity
type RingBuffer[T any] struct {
	buffer   []T
	head     int
	size     int
	capacity int
	evicted  int64
	mu       sync.Mutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
//
// # Inputs
//
//   - capacity: Maximum number of items to hold (must be > 0)
//
// # Outputs
//
//   - *RingBuffer[T]: New empty ring buffer
//
// # Panics
//
// Panics if capacity <= 0.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be positive")
	}

	return &RingBuffer[T]{
		buffer:   make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an item, evicting the oldest item if the buffer is full.
//
// # Outputs
//
//   - bool: true if an item was evicted to make room
func (r *RingBuffer[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := false

	if r.size == r.capacity {
		// Buffer is full, drop oldest
		r.head = (r.head + 1) % r.capacity
		r.size--
		r.evicted++
		evicted = true
	}

	tail := (r.head + r.size) % r.capacity
	r.buffer[tail] = item
	r.size++

	return evicted
}

// Snapshot returns a copy of the current contents, oldest first.
//
// # Description
//
// The returned slice is independent of the buffer; concurrent pushes
// after Snapshot returns do not affect it.
func (r *RingBuffer[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		result[i] = r.buffer[(r.head+i)%r.capacity]
	}
	return result
}

// Size returns the current number of items.
func (r *RingBuffer[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum capacity.
func (r *RingBuffer[T]) Capacity() int {
	return r.capacity
}

// IsFull returns true if the buffer is at capacity.
func (r *RingBuffer[T]) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == r.capacity
}

// EvictedCount returns the total number of items evicted due to capacity.
func (r *RingBuffer[T]) EvictedCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

// Clear removes all items and resets the evicted count.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.buffer {
		r.buffer[i] = zero
	}
	r.head = 0
	r.size = 0
	r.evicted = 0
}
