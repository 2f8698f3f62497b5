// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the arbiterd configuration surface.
package config

import (
	"time"

	"github.com/arcanos-ai/arbiter/admission"
	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/drift"
	"github.com/arcanos-ai/arbiter/escalation"
	"github.com/arcanos-ai/arbiter/pipeline/openaiop"
	"github.com/arcanos-ai/arbiter/session"
	"github.com/arcanos-ai/arbiter/tier"
)

// Config is the full arbiterd configuration surface.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tier       TierConfig       `yaml:"tier"`
	Admission  AdmissionConfig  `yaml:"admission"`
	Budget     BudgetConfig     `yaml:"budget"`
	Escalation EscalationConfig `yaml:"escalation"`
	Drift      DriftConfig      `yaml:"drift"`
	Session    SessionConfig    `yaml:"session"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the bind address for the HTTP server.
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// ShutdownGrace bounds graceful shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" validate:"gt=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// JSON forces JSON output on stderr. When unset, arbiterd picks
	// text for terminals and JSON otherwise.
	JSON *bool `yaml:"json,omitempty"`
}

// TierConfig configures the classifier.
type TierConfig struct {
	ComplexLength       int `yaml:"complex_length" validate:"gt=0"`
	CriticalLength      int `yaml:"critical_length" validate:"gt=0"`
	CriticalKeywordHits int `yaml:"critical_keyword_hits" validate:"gt=0"`
}

// AdmissionConfig configures the per-tier slot pools.
type AdmissionConfig struct {
	SimpleSlots   int64         `yaml:"simple_slots" validate:"gt=0"`
	ComplexSlots  int64         `yaml:"complex_slots" validate:"gt=0"`
	CriticalSlots int64         `yaml:"critical_slots" validate:"gt=0"`
	AcquireWait   time.Duration `yaml:"acquire_wait" validate:"gte=0"`
}

// BudgetConfig configures per-run budgets.
type BudgetConfig struct {
	WatchdogLimit  time.Duration            `yaml:"watchdog_limit" validate:"gt=0"`
	SafetyBuffer   time.Duration            `yaml:"safety_buffer" validate:"gt=0"`
	StageTimeouts  map[string]time.Duration `yaml:"stage_timeouts"`
	MaxInvocations int                      `yaml:"max_invocations" validate:"gt=0"`
	Disabled       bool                     `yaml:"disabled"`
}

// EscalationConfig configures the threshold tuner.
type EscalationConfig struct {
	InitialThreshold float64 `yaml:"initial_threshold" validate:"gt=0"`
	MinThreshold     float64 `yaml:"min_threshold" validate:"gt=0"`
	MaxThreshold     float64 `yaml:"max_threshold" validate:"gt=0"`
	Step             float64 `yaml:"step" validate:"gt=0"`
	WindowSize       int     `yaml:"window_size" validate:"gt=0"`
	MinRate          float64 `yaml:"min_rate" validate:"gt=0,lt=1"`
	MaxRate          float64 `yaml:"max_rate" validate:"gt=0,lt=1"`
}

// DriftConfig configures the latency drift detector.
type DriftConfig struct {
	SampleCapacity int           `yaml:"sample_capacity" validate:"gt=0"`
	MinSamples     int           `yaml:"min_samples" validate:"gt=0"`
	MeanCeiling    time.Duration `yaml:"mean_ceiling" validate:"gt=0"`
}

// SessionConfig configures the token auditor.
type SessionConfig struct {
	TokenCap int64 `yaml:"token_cap" validate:"gt=0"`
}

// OpenAIConfig configures the external operation.
type OpenAIConfig struct {
	// APIKey is usually left empty here and supplied via
	// ARBITER_OPENAI_API_KEY or the container secret.
	APIKey       string            `yaml:"api_key,omitempty"`
	Models       map[string]string `yaml:"models"`
	SystemPrompt string            `yaml:"system_prompt"`
}

// DefaultConfig returns the production defaults for the whole surface.
func DefaultConfig() Config {
	budgetDef := budget.DefaultConfig()
	escDef := escalation.DefaultConfig()
	driftDef := drift.DefaultConfig()
	openaiDef := openaiop.DefaultConfig()

	return Config{
		Server: ServerConfig{
			ListenAddr:    ":8090",
			ShutdownGrace: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tier: TierConfig{
			ComplexLength:       tier.DefaultComplexLength,
			CriticalLength:      tier.DefaultCriticalLength,
			CriticalKeywordHits: tier.DefaultCriticalKeywordHits,
		},
		Admission: AdmissionConfig{
			SimpleSlots:   admission.DefaultSimpleSlots,
			ComplexSlots:  admission.DefaultComplexSlots,
			CriticalSlots: admission.DefaultCriticalSlots,
		},
		Budget: BudgetConfig{
			WatchdogLimit:  budgetDef.WatchdogLimit,
			SafetyBuffer:   budgetDef.SafetyBuffer,
			StageTimeouts:  budgetDef.StageTimeouts,
			MaxInvocations: budgetDef.MaxInvocations,
		},
		Escalation: EscalationConfig{
			InitialThreshold: escDef.InitialThreshold,
			MinThreshold:     escDef.MinThreshold,
			MaxThreshold:     escDef.MaxThreshold,
			Step:             escDef.Step,
			WindowSize:       escDef.WindowSize,
			MinRate:          escDef.MinRate,
			MaxRate:          escDef.MaxRate,
		},
		Drift: DriftConfig{
			SampleCapacity: driftDef.SampleCapacity,
			MinSamples:     driftDef.MinSamples,
			MeanCeiling:    driftDef.MeanCeiling,
		},
		Session: SessionConfig{
			TokenCap: session.DefaultTokenCap,
		},
		OpenAI: OpenAIConfig{
			Models:       openaiDef.Models,
			SystemPrompt: openaiDef.SystemPrompt,
		},
	}
}

// TierConfig converts to the classifier's config type.
func (c Config) TierConfig() tier.Config {
	return tier.Config{
		ComplexLength:       c.Tier.ComplexLength,
		CriticalLength:      c.Tier.CriticalLength,
		CriticalKeywordHits: c.Tier.CriticalKeywordHits,
	}
}

// AdmissionConfig converts to the controller's config type.
func (c Config) AdmissionConfig() admission.Config {
	return admission.Config{
		SimpleSlots:   c.Admission.SimpleSlots,
		ComplexSlots:  c.Admission.ComplexSlots,
		CriticalSlots: c.Admission.CriticalSlots,
		AcquireWait:   c.Admission.AcquireWait,
	}
}

// BudgetConfig converts to the budget package's config type.
func (c Config) BudgetConfig() budget.Config {
	return budget.Config{
		WatchdogLimit:  c.Budget.WatchdogLimit,
		SafetyBuffer:   c.Budget.SafetyBuffer,
		StageTimeouts:  c.Budget.StageTimeouts,
		MaxInvocations: c.Budget.MaxInvocations,
		Disabled:       c.Budget.Disabled,
	}
}

// EscalationConfig converts to the tuner's config type.
func (c Config) EscalationConfig() escalation.Config {
	return escalation.Config{
		InitialThreshold: c.Escalation.InitialThreshold,
		MinThreshold:     c.Escalation.MinThreshold,
		MaxThreshold:     c.Escalation.MaxThreshold,
		Step:             c.Escalation.Step,
		WindowSize:       c.Escalation.WindowSize,
		MinRate:          c.Escalation.MinRate,
		MaxRate:          c.Escalation.MaxRate,
	}
}

// DriftConfig converts to the detector's config type.
func (c Config) DriftConfig() drift.Config {
	return drift.Config{
		SampleCapacity: c.Drift.SampleCapacity,
		MinSamples:     c.Drift.MinSamples,
		MeanCeiling:    c.Drift.MeanCeiling,
	}
}

// SessionConfig converts to the auditor's config type.
func (c Config) SessionConfig() session.Config {
	return session.Config{TokenCap: c.Session.TokenCap}
}

// OpenAIConfig converts to the operation's config type.
func (c Config) OpenAIConfig() openaiop.Config {
	return openaiop.Config{
		APIKey:       c.OpenAI.APIKey,
		Models:       c.OpenAI.Models,
		SystemPrompt: c.OpenAI.SystemPrompt,
	}
}
