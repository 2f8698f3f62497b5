// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tier classifies incoming runs into complexity tiers.
//
// Classification is a pure function of the request's textual signals:
// message length, domain keyword hits, and an override-phrase denylist.
// Declared priority hints are distrusted; any attempt by the input to
// self-declare a tier forces the lowest tier.
package tier

import "strings"

// Tier represents the complexity tier assigned to a run.
type Tier string

const (
	// Simple is for short, keyword-free requests.
	Simple Tier = "simple"

	// Complex is for long requests or requests hitting a domain keyword.
	Complex Tier = "complex"

	// Critical is for long requests with multiple domain keyword hits.
	Critical Tier = "critical"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case Simple, Complex, Critical:
		return true
	default:
		return false
	}
}

// Default classification thresholds.
const (
	// DefaultComplexLength is the minimum rune count for the complex tier.
	DefaultComplexLength = 400

	// DefaultCriticalLength is the minimum rune count for the critical tier.
	DefaultCriticalLength = 1200

	// DefaultCriticalKeywordHits is how many distinct keywords the critical
	// tier requires in addition to the length gate.
	DefaultCriticalKeywordHits = 2
)

// Package-level phrase lists for classification.
var (
	// defaultKeywords are domain signals that raise complexity.
	defaultKeywords = []string{
		"audit",
		"architecture",
		"failure mode",
		"threat",
		"compliance",
		"postmortem",
	}

	// defaultOverridePhrases is the denylist of phrases by which untrusted
	// input attempts to request its own resource class. Any hit forces
	// Simple regardless of every other signal.
	defaultOverridePhrases = []string{
		"set tier to",
		"override reasoning",
		"treat as critical",
		"treat as complex",
		"escalate this request",
	}
)

// Signals are the raw request inputs to classification.
type Signals struct {
	// Text is the request body.
	Text string

	// PriorityHint is the caller-declared priority. It is scanned for
	// override phrases but never trusted as a tier request.
	PriorityHint string
}

// Config configures classification thresholds and phrase lists.
type Config struct {
	// ComplexLength is the minimum rune count for the complex tier
	// (default: 400).
	ComplexLength int

	// CriticalLength is the minimum rune count for the critical tier
	// (default: 1200).
	CriticalLength int

	// CriticalKeywordHits is the distinct-keyword count the critical tier
	// requires (default: 2).
	CriticalKeywordHits int

	// Keywords are the domain keywords (default: audit, architecture,
	// failure mode, threat, compliance, postmortem).
	Keywords []string

	// OverridePhrases is the anti-injection denylist.
	OverridePhrases []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ComplexLength:       DefaultComplexLength,
		CriticalLength:      DefaultCriticalLength,
		CriticalKeywordHits: DefaultCriticalKeywordHits,
		Keywords:            defaultKeywords,
		OverridePhrases:     defaultOverridePhrases,
	}
}

// Classifier assigns tiers from request signals.
//
// Description:
//
//	Classifier is a deterministic, side-effect-free function object.
//	The same Signals always produce the same Tier. It holds no mutable
//	state and is safe for concurrent use without synchronization.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier, applying defaults for zero values.
//
// Inputs:
//
//	cfg - Threshold configuration. Uses defaults for any zero values.
//
// Outputs:
//
//	*Classifier - The configured classifier.
func NewClassifier(cfg Config) *Classifier {
	if cfg.ComplexLength <= 0 {
		cfg.ComplexLength = DefaultComplexLength
	}
	if cfg.CriticalLength <= 0 {
		cfg.CriticalLength = DefaultCriticalLength
	}
	if cfg.CriticalKeywordHits <= 0 {
		cfg.CriticalKeywordHits = DefaultCriticalKeywordHits
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = defaultKeywords
	}
	if len(cfg.OverridePhrases) == 0 {
		cfg.OverridePhrases = defaultOverridePhrases
	}

	return &Classifier{cfg: cfg}
}

// Classify assigns a tier from the given signals.
//
// Description:
//
//	Applies the anti-injection rule first: input containing any override
//	phrase classifies as Simple no matter how long it is or how many
//	keywords it hits. Untrusted input must never be able to request its
//	own elevated resource class. Otherwise:
//
//	  - critical: length >= CriticalLength AND >= CriticalKeywordHits
//	    distinct keyword hits
//	  - complex:  length >= ComplexLength OR >= 1 keyword hit
//	  - simple:   everything else, including empty input
//
// Inputs:
//
//	sig - The request signals. An empty Text classifies as Simple.
//
// Outputs:
//
//	Tier - The assigned tier.
//
// Thread Safety: Safe for concurrent use; Classify is pure.
func (c *Classifier) Classify(sig Signals) Tier {
	text := strings.ToLower(sig.Text)
	hint := strings.ToLower(sig.PriorityHint)
	if text == "" {
		return Simple
	}

	for _, phrase := range c.cfg.OverridePhrases {
		if strings.Contains(text, phrase) || strings.Contains(hint, phrase) {
			return Simple
		}
	}

	length := len([]rune(sig.Text))
	hits := c.keywordHits(text)

	if length >= c.cfg.CriticalLength && hits >= c.cfg.CriticalKeywordHits {
		return Critical
	}
	if length >= c.cfg.ComplexLength || hits >= 1 {
		return Complex
	}
	return Simple
}

// keywordHits counts distinct keyword matches in the lowercased text.
func (c *Classifier) keywordHits(text string) int {
	hits := 0
	for _, kw := range c.cfg.Keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}
