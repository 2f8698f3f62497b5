// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package drift

import (
	"sync"
	"testing"
	"time"
)

func TestDetector_NoVerdictBelowSampleFloor(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// 19 samples, each wildly over the ceiling: still no verdict.
	for i := 0; i < 19; i++ {
		d.RecordLatency(90 * time.Second)
	}
	if d.DetectDrift() {
		t.Error("DetectDrift() with 19 samples = true, want false below floor")
	}
}

func TestDetector_DriftAtFloor(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for i := 0; i < 20; i++ {
		d.RecordLatency(25 * time.Second)
	}
	if !d.DetectDrift() {
		t.Error("DetectDrift() with mean 25s over 20 samples = false, want true")
	}
}

func TestDetector_HealthyMean(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for i := 0; i < 50; i++ {
		d.RecordLatency(2 * time.Second)
	}
	if d.DetectDrift() {
		t.Errorf("DetectDrift() with mean 2s = true, want false")
	}
	if got := d.Mean(); got != 2*time.Second {
		t.Errorf("Mean() = %v, want 2s", got)
	}
}

func TestDetector_SingleOutlierDoesNotTrip(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for i := 0; i < 40; i++ {
		d.RecordLatency(1 * time.Second)
	}
	d.RecordLatency(60 * time.Second)

	if d.DetectDrift() {
		t.Error("DetectDrift() after one outlier = true, want false")
	}
}

func TestDetector_EvictionRecovers(t *testing.T) {
	d := NewDetector(Config{SampleCapacity: 30, MinSamples: 10, MeanCeiling: 10 * time.Second})

	for i := 0; i < 30; i++ {
		d.RecordLatency(30 * time.Second)
	}
	if !d.DetectDrift() {
		t.Fatal("DetectDrift() with saturated slow window = false, want true")
	}

	// A full capacity of fast samples evicts every slow one.
	for i := 0; i < 30; i++ {
		d.RecordLatency(1 * time.Second)
	}
	if d.DetectDrift() {
		t.Error("DetectDrift() after slow samples evicted = true, want false")
	}
	if d.SampleCount() != 30 {
		t.Errorf("SampleCount() = %d, want 30", d.SampleCount())
	}
}

func TestDetector_IgnoresNonPositiveLatency(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.RecordLatency(0)
	d.RecordLatency(-time.Second)
	if d.SampleCount() != 0 {
		t.Errorf("SampleCount() = %d, want 0 after non-positive latencies", d.SampleCount())
	}
}

func TestDetector_MeanEmpty(t *testing.T) {
	d := NewDetector(DefaultConfig())

	if got := d.Mean(); got != 0 {
		t.Errorf("Mean() with no samples = %v, want 0", got)
	}
}

func TestDetector_ConcurrentRecording(t *testing.T) {
	d := NewDetector(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.RecordLatency(3 * time.Second)
			}
		}()
	}
	wg.Wait()

	if d.SampleCount() != DefaultSampleCapacity {
		t.Errorf("SampleCount() = %d, want %d", d.SampleCount(), DefaultSampleCapacity)
	}
	if got := d.Mean(); got != 3*time.Second {
		t.Errorf("Mean() = %v, want 3s", got)
	}
}
