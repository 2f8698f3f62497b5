// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arcanos-ai/arbiter/admission"
	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/drift"
	"github.com/arcanos-ai/arbiter/escalation"
	"github.com/arcanos-ai/arbiter/pipeline"
	"github.com/arcanos-ai/arbiter/pkg/logging"
	"github.com/arcanos-ai/arbiter/pkg/telemetry"
	"github.com/arcanos-ai/arbiter/session"
)

// Executor is the slice of the pipeline the HTTP surface depends on,
// extracted for handler testing.
type Executor interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// StatusSources collects the components exposing snapshots for /v1/status.
type StatusSources struct {
	Admission *admission.Controller
	Tuner     *escalation.Tuner
	Drift     *drift.Detector
	Auditor   *session.Auditor
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code (optional).
	Code string `json:"code,omitempty"`
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	executor Executor
	sources  StatusSources
	logger   *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(executor Executor, sources StatusSources, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{executor: executor, sources: sources, logger: logger}
}

// newEngine builds the gin engine with all routes registered.
func newEngine(h *Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	v1 := engine.Group("/v1")
	{
		v1.POST("/runs", h.HandleRun)
		v1.GET("/status", h.HandleStatus)
	}
	engine.GET("/healthz", h.HandleHealth)
	if mh := telemetry.MetricsHandler(); mh != nil {
		engine.GET("/metrics", gin.WrapH(mh))
	}
	return engine
}

// runRequest is the POST /v1/runs body.
type runRequest struct {
	SessionID    string `json:"session_id" binding:"required"`
	Text         string `json:"text" binding:"required"`
	PriorityHint string `json:"priority_hint"`
}

// HandleRun drives one request through the pipeline.
//
// Error taxonomy mapping:
//
//	admission rejection  -> 429 tier_saturated
//	session token cap    -> 429 session_quota_exhausted
//	runtime budget       -> 504 budget_exceeded
//	invocation cap       -> 508 invocation_loop_guard
//	operation failure    -> 502 upstream_failed
func (h *Handlers) HandleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "bad_request",
		})
		return
	}

	result, err := h.executor.Execute(c.Request.Context(), pipeline.Request{
		SessionID:    req.SessionID,
		Text:         req.Text,
		PriorityHint: req.PriorityHint,
	})
	if err != nil {
		status, code := statusForError(err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, result)
}

// statusForError maps the typed error taxonomy to HTTP semantics.
func statusForError(err error) (int, string) {
	var rejected *admission.RejectedError
	var exceeded *budget.ExceededError
	var invocations *budget.InvocationsExceededError
	var capped *session.TokenCapError

	switch {
	case errors.As(err, &rejected):
		return http.StatusTooManyRequests, "tier_saturated"
	case errors.As(err, &capped):
		return http.StatusTooManyRequests, "session_quota_exhausted"
	case errors.As(err, &exceeded):
		return http.StatusGatewayTimeout, "budget_exceeded"
	case errors.As(err, &invocations):
		return http.StatusLoopDetected, "invocation_loop_guard"
	default:
		return http.StatusBadGateway, "upstream_failed"
	}
}

// statusResponse is the GET /v1/status body.
type statusResponse struct {
	Pools    []admission.PoolStatus `json:"pools"`
	Tuner    escalation.Status      `json:"tuner"`
	Drift    drift.Status           `json:"drift"`
	Sessions int                    `json:"sessions"`
}

// HandleStatus returns point-in-time snapshots of all control surfaces.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Pools:    h.sources.Admission.Status(),
		Tuner:    h.sources.Tuner.Status(),
		Drift:    h.sources.Drift.Status(),
		Sessions: len(h.sources.Auditor.Sessions()),
	})
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
