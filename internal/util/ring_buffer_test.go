// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"sync"
	"testing"
)

func TestRingBuffer_PushAndSnapshot(t *testing.T) {
	rb := NewRingBuffer[int](3)

	for i := 1; i <= 3; i++ {
		if evicted := rb.Push(i); evicted {
			t.Errorf("Push(%d) evicted = true, want false", i)
		}
	}

	got := rb.Snapshot()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingBuffer_EvictsOldest(t *testing.T) {
	rb := NewRingBuffer[int](3)

	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	if rb.Size() != 3 {
		t.Errorf("Size() = %d, want 3", rb.Size())
	}
	if rb.EvictedCount() != 2 {
		t.Errorf("EvictedCount() = %d, want 2", rb.EvictedCount())
	}

	got := rb.Snapshot()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer[string](2)
	rb.Push("a")
	rb.Push("b")
	rb.Push("c")

	rb.Clear()

	if rb.Size() != 0 {
		t.Errorf("After Clear(): Size() = %d, want 0", rb.Size())
	}
	if rb.EvictedCount() != 0 {
		t.Errorf("After Clear(): EvictedCount() = %d, want 0", rb.EvictedCount())
	}
	if rb.IsFull() {
		t.Error("After Clear(): IsFull() = true, want false")
	}
}

func TestRingBuffer_PanicsOnInvalidCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewRingBuffer(0) did not panic")
		}
	}()
	NewRingBuffer[int](0)
}

func TestRingBuffer_ConcurrentPush(t *testing.T) {
	rb := NewRingBuffer[int](50)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rb.Push(n)
			rb.Snapshot()
		}(i)
	}
	wg.Wait()

	if rb.Size() != 50 {
		t.Errorf("After 200 concurrent pushes: Size() = %d, want 50", rb.Size())
	}
	if rb.EvictedCount() != 150 {
		t.Errorf("EvictedCount() = %d, want 150", rb.EvictedCount())
	}
}
