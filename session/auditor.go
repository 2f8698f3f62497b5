// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session meters cumulative token consumption per conversation
// session against a hard cap.
package session

import (
	"fmt"
	"sync"
)

// DefaultTokenCap is the cumulative token ceiling per session.
const DefaultTokenCap = 250_000

// TokenCapError reports that a session crossed its cumulative token cap.
//
// The run whose tokens crossed the cap has already consumed them; the
// failure stops the session's subsequent runs, not retroactively the one
// that tipped it over.
type TokenCapError struct {
	// SessionID identifies the capped session.
	SessionID string

	// Used is the cumulative tokens recorded, including the crossing run.
	Used int64

	// Cap is the session's token ceiling.
	Cap int64
}

// Error returns a formatted token cap failure message.
func (e *TokenCapError) Error() string {
	return fmt.Sprintf("session %s exceeded token cap: %d used of %d", e.SessionID, e.Used, e.Cap)
}

// Config configures the auditor.
type Config struct {
	// TokenCap is the cumulative per-session ceiling (default: 250000).
	TokenCap int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{TokenCap: DefaultTokenCap}
}

// Auditor tracks cumulative token usage per session.
//
// Description:
//
//	Record follows accumulate-then-fail semantics: the delta is always
//	added first (the tokens were genuinely spent downstream), then the
//	total is checked against the cap. Usage over the cap is therefore
//	visible in the ledger rather than silently truncated.
//
// Thread Safety: all methods are safe for concurrent use.
type Auditor struct {
	mu    sync.Mutex
	usage map[string]int64
	cap   int64
}

// NewAuditor creates an auditor. A non-positive cap takes the default.
func NewAuditor(cfg Config) *Auditor {
	if cfg.TokenCap <= 0 {
		cfg.TokenCap = DefaultTokenCap
	}
	return &Auditor{
		usage: make(map[string]int64),
		cap:   cfg.TokenCap,
	}
}

// Record adds a run's actual token consumption to its session total.
//
// Inputs:
//
//	sessionID - The conversation session the run belongs to.
//	tokens    - Actual tokens consumed by the run. Negative deltas are
//	            rejected without touching the ledger.
//
// Outputs:
//
//	error - *TokenCapError once the cumulative total exceeds the cap,
//	nil otherwise. The delta is accumulated even on the crossing call.
func (a *Auditor) Record(sessionID string, tokens int64) error {
	if tokens < 0 {
		return fmt.Errorf("negative token delta %d for session %s", tokens, sessionID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.usage[sessionID] += tokens
	if used := a.usage[sessionID]; used > a.cap {
		return &TokenCapError{SessionID: sessionID, Used: used, Cap: a.cap}
	}
	return nil
}

// Usage returns a session's cumulative token total.
func (a *Auditor) Usage(sessionID string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage[sessionID]
}

// Remaining returns a session's headroom before the cap, never negative.
func (a *Auditor) Remaining(sessionID string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rem := a.cap - a.usage[sessionID]; rem > 0 {
		return rem
	}
	return 0
}

// Sessions returns a copy of the full usage ledger.
func (a *Auditor) Sessions() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int64, len(a.usage))
	for id, used := range a.usage {
		out[id] = used
	}
	return out
}

// Reset clears a session's usage, for explicit session expiry.
func (a *Auditor) Reset(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.usage, sessionID)
}
