// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath returns the default config file location,
// ~/.arbiter/arbiter.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".arbiter", "arbiter.yaml"), nil
}

// Load reads the config file at path, creating it with defaults on first
// run, then applies ARBITER_* environment overrides and validates.
//
// Inputs:
//
//	path - Config file location. Empty uses DefaultPath().
//
// Outputs:
//
//	Config - The validated configuration.
//	error  - Non-nil on read, parse, or validation failure.
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Config{}, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides layers ARBITER_* environment variables over the file.
// Only deployment-sensitive knobs are overridable; tuning parameters
// belong in the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARBITER_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("ARBITER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ARBITER_LOG_DIR"); v != "" {
		cfg.Logging.LogDir = v
	}
	if v := os.Getenv("ARBITER_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("ARBITER_BUDGET_DISABLED"); v != "" {
		if disabled, err := strconv.ParseBool(v); err == nil {
			cfg.Budget.Disabled = disabled
		}
	}
	if v := os.Getenv("ARBITER_SESSION_TOKEN_CAP"); v != "" {
		if tokenCap, err := strconv.ParseInt(v, 10, 64); err == nil && tokenCap > 0 {
			cfg.Session.TokenCap = tokenCap
		}
	}
}

// Validate checks field constraints and cross-field relationships.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Relationships the tag grammar cannot express.
	if cfg.Budget.SafetyBuffer >= cfg.Budget.WatchdogLimit {
		return fmt.Errorf("invalid config: safety_buffer (%s) must be below watchdog_limit (%s)",
			cfg.Budget.SafetyBuffer, cfg.Budget.WatchdogLimit)
	}
	esc := cfg.Escalation
	if esc.MinThreshold > esc.MaxThreshold {
		return fmt.Errorf("invalid config: min_threshold (%v) above max_threshold (%v)",
			esc.MinThreshold, esc.MaxThreshold)
	}
	if esc.InitialThreshold < esc.MinThreshold || esc.InitialThreshold > esc.MaxThreshold {
		return fmt.Errorf("invalid config: initial_threshold (%v) outside [%v, %v]",
			esc.InitialThreshold, esc.MinThreshold, esc.MaxThreshold)
	}
	if esc.MinRate >= esc.MaxRate {
		return fmt.Errorf("invalid config: min_rate (%v) must be below max_rate (%v)",
			esc.MinRate, esc.MaxRate)
	}
	if cfg.Drift.MinSamples > cfg.Drift.SampleCapacity {
		return fmt.Errorf("invalid config: drift min_samples (%d) above sample_capacity (%d)",
			cfg.Drift.MinSamples, cfg.Drift.SampleCapacity)
	}
	for class, timeout := range cfg.Budget.StageTimeouts {
		if timeout <= 0 {
			return fmt.Errorf("invalid config: non-positive stage timeout for class %q", class)
		}
	}
	return nil
}
