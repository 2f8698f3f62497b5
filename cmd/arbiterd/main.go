// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// arbiterd is the admission and escalation control daemon. It exposes the
// run pipeline over HTTP: POST /v1/runs executes a request, /v1/status
// reports the control surfaces, /metrics serves Prometheus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/arcanos-ai/arbiter/admission"
	"github.com/arcanos-ai/arbiter/drift"
	"github.com/arcanos-ai/arbiter/escalation"
	"github.com/arcanos-ai/arbiter/pipeline"
	"github.com/arcanos-ai/arbiter/pipeline/openaiop"
	"github.com/arcanos-ai/arbiter/pkg/config"
	"github.com/arcanos-ai/arbiter/pkg/logging"
	"github.com/arcanos-ai/arbiter/pkg/telemetry"
	"github.com/arcanos-ai/arbiter/session"
	"github.com/arcanos-ai/arbiter/tier"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var listenAddr string

	cmd := &cobra.Command{
		Use:     "arbiterd",
		Short:   "Tiered admission and escalation control daemon",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, listenAddr)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.arbiter/arbiter.yaml)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address override")
	return cmd
}

func run(ctx context.Context, configPath, listenAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	logger := newLogger(cfg.Logging)
	defer logger.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	operation, err := openaiop.New(cfg.OpenAIConfig())
	if err != nil {
		return fmt.Errorf("init operation: %w", err)
	}

	controller := admission.NewController(cfg.AdmissionConfig())
	tuner := escalation.NewTuner(cfg.EscalationConfig())
	detector := drift.NewDetector(cfg.DriftConfig())
	auditor := session.NewAuditor(cfg.SessionConfig())

	runner, err := pipeline.NewRunner(pipeline.Deps{
		Classifier:   tier.NewClassifier(cfg.TierConfig()),
		Admission:    controller,
		Tuner:        tuner,
		Drift:        detector,
		Auditor:      auditor,
		BudgetConfig: cfg.BudgetConfig(),
		Operation:    operation,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	handlers := NewHandlers(runner, StatusSources{
		Admission: controller,
		Tuner:     tuner,
		Drift:     detector,
		Auditor:   auditor,
	}, logger)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: newEngine(handlers),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("arbiterd listening", "addr", cfg.Server.ListenAddr, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.Server.ShutdownGrace.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the process logger. Output format follows the config
// when set; otherwise terminals get text and everything else gets JSON.
func newLogger(cfg config.LoggingConfig) *logging.Logger {
	useJSON := !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	if cfg.JSON != nil {
		useJSON = *cfg.JSON
	}
	return logging.New(logging.Config{
		Level:   levelFor(cfg.Level),
		LogDir:  cfg.LogDir,
		Service: "arbiterd",
		JSON:    useJSON,
	})
}

func levelFor(name string) logging.Level {
	switch name {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
