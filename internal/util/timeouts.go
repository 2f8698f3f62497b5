// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import "time"

// EnforceMinTimeout returns at least the minimum timeout.
//
// # Description
//
// Ensures a timeout is never below the specified minimum. If the requested
// timeout is zero, negative, or below the minimum, returns the minimum
// instead. This prevents misconfiguration from causing infinite hangs.
//
// # Inputs
//
//   - requested: The timeout value requested by the caller
//   - minimum: The absolute minimum acceptable timeout
//
// # Outputs
//
//   - time.Duration: The requested timeout if valid, otherwise the minimum
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// EnforceMaxTimeout caps a timeout at the specified maximum.
//
// # Description
//
// The inverse of EnforceMinTimeout: no stage-level timeout may ever be
// configured larger than the run's overall ceiling. Non-positive requested
// values fall through to the maximum.
//
// # Inputs
//
//   - requested: The timeout value requested by the caller
//   - maximum: The hard ceiling the result must not exceed
//
// # Outputs
//
//   - time.Duration: The requested timeout, capped at maximum
func EnforceMaxTimeout(requested, maximum time.Duration) time.Duration {
	if requested <= 0 || requested > maximum {
		return maximum
	}
	return requested
}

// MinDuration returns the smaller of two durations.
func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
