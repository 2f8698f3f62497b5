// Copyright (C) 2026 Arcanos Systems (eng@arcanos.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arcanos-ai/arbiter/admission"
	"github.com/arcanos-ai/arbiter/budget"
	"github.com/arcanos-ai/arbiter/drift"
	"github.com/arcanos-ai/arbiter/escalation"
	"github.com/arcanos-ai/arbiter/pkg/logging"
	"github.com/arcanos-ai/arbiter/session"
	"github.com/arcanos-ai/arbiter/tier"
)

// fakeOp records every call and replays scripted responses.
type fakeOp struct {
	mu        sync.Mutex
	calls     []OpRequest
	responses []OpResponse
	err       error
}

func (f *fakeOp) Invoke(ctx context.Context, req OpRequest) (OpResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return OpResponse{}, f.err
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeOp) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeOp) call(i int) OpRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type runnerFixture struct {
	runner    *Runner
	op        *fakeOp
	admission *admission.Controller
	tuner     *escalation.Tuner
	drift     *drift.Detector
	auditor   *session.Auditor
}

func newFixture(t *testing.T, mutate func(*Deps)) *runnerFixture {
	t.Helper()

	fx := &runnerFixture{
		op:        &fakeOp{responses: []OpResponse{{Content: "ok", ClearScore: 4.0, TokensUsed: 100}}},
		admission: admission.NewController(admission.DefaultConfig()),
		tuner:     escalation.NewTuner(escalation.Config{}),
		drift:     drift.NewDetector(drift.DefaultConfig()),
		auditor:   session.NewAuditor(session.DefaultConfig()),
	}
	deps := Deps{
		Classifier:   tier.NewClassifier(tier.DefaultConfig()),
		Admission:    fx.admission,
		Tuner:        fx.tuner,
		Drift:        fx.drift,
		Auditor:      fx.auditor,
		BudgetConfig: budget.DefaultConfig(),
		Operation:    fx.op,
		Logger:       logging.New(logging.Config{Quiet: true}),
	}
	if mutate != nil {
		mutate(&deps)
	}

	runner, err := NewRunner(deps)
	if err != nil {
		t.Fatalf("NewRunner() = %v", err)
	}
	fx.runner = runner
	return fx
}

func TestNewRunner_MissingDeps(t *testing.T) {
	_, err := NewRunner(Deps{})
	if err == nil {
		t.Error("NewRunner(empty deps) = nil error, want error")
	}
}

func TestRunner_SimpleRunNoEscalation(t *testing.T) {
	fx := newFixture(t, nil)

	res, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	if res.Tier != tier.Simple {
		t.Errorf("Tier = %v, want simple", res.Tier)
	}
	if res.Escalated {
		t.Error("Escalated = true, want false for score above threshold")
	}
	if res.Content != "ok" {
		t.Errorf("Content = %q, want ok", res.Content)
	}
	if res.Invocations != 1 {
		t.Errorf("Invocations = %d, want 1", res.Invocations)
	}
	if fx.op.callCount() != 1 {
		t.Fatalf("operation calls = %d, want 1", fx.op.callCount())
	}
	if got := fx.op.call(0).ResourceClass; got != budget.ClassLight {
		t.Errorf("ResourceClass = %q, want %q", got, budget.ClassLight)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRunner_LowScoreEscalates(t *testing.T) {
	op := &fakeOp{responses: []OpResponse{
		{Content: "weak", ClearScore: 2.5, TokensUsed: 100},
		{Content: "strong", ClearScore: 4.5, TokensUsed: 300},
	}}
	fx := newFixtureWithOp(t, op)

	// "audit" is a keyword hit, so the run classifies complex.
	res, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "run an audit of the deploy"})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	if res.Tier != tier.Complex {
		t.Fatalf("Tier = %v, want complex", res.Tier)
	}
	if !res.Escalated {
		t.Fatal("Escalated = false, want true for score below threshold")
	}
	if res.Content != "strong" {
		t.Errorf("Content = %q, want escalated response", res.Content)
	}
	if res.ClearScoreInitial != 2.5 || res.ClearScoreFinal != 4.5 {
		t.Errorf("scores = (%v, %v), want (2.5, 4.5)", res.ClearScoreInitial, res.ClearScoreFinal)
	}
	if res.TokensUsed != 400 {
		t.Errorf("TokensUsed = %d, want 400", res.TokensUsed)
	}
	if res.Invocations != 2 {
		t.Errorf("Invocations = %d, want 2", res.Invocations)
	}

	second := fx.op.call(1)
	if second.ResourceClass != budget.ClassReasoning {
		t.Errorf("escalated ResourceClass = %q, want %q", second.ResourceClass, budget.ClassReasoning)
	}
	if !second.Escalated {
		t.Error("escalated OpRequest.Escalated = false, want true")
	}
}

// newFixtureWithOp builds a fixture around a pre-scripted operation.
func newFixtureWithOp(t *testing.T, op *fakeOp) *runnerFixture {
	t.Helper()
	fx := newFixture(t, func(d *Deps) { d.Operation = op })
	fx.op = op
	return fx
}

func TestRunner_CriticalNeverEscalates(t *testing.T) {
	op := &fakeOp{responses: []OpResponse{{Content: "deep", ClearScore: 1.0, TokensUsed: 500}}}
	fx := newFixtureWithOp(t, op)

	// Length over the critical threshold plus two keyword hits.
	text := "threat and compliance review. " + strings.Repeat("x", 1300)
	res, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: text})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	if res.Tier != tier.Critical {
		t.Fatalf("Tier = %v, want critical", res.Tier)
	}
	if res.Escalated {
		t.Error("Escalated = true, want false: critical runs never re-issue")
	}
	if op.callCount() != 1 {
		t.Errorf("operation calls = %d, want 1", op.callCount())
	}
}

func TestRunner_BudgetExceededRecordedNonEscalated(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		// Safe window already elapsed at creation.
		d.BudgetConfig = budget.Config{
			WatchdogLimit: 10 * time.Millisecond,
			SafetyBuffer:  9 * time.Millisecond,
		}
	})
	time.Sleep(5 * time.Millisecond)

	_, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
	if err == nil {
		t.Fatal("Execute() = nil error, want budget failure")
	}
	var exceeded *budget.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("error = %T, want *budget.ExceededError", err)
	}

	// The failed run still lands in the tuning window, as non-escalated.
	st := fx.tuner.Status()
	if st.WindowRuns != 1 {
		t.Errorf("WindowRuns = %d, want 1", st.WindowRuns)
	}
	if st.WindowEscalated != 0 {
		t.Errorf("WindowEscalated = %d, want 0", st.WindowEscalated)
	}
	// And the slot is back.
	if got := fx.admission.InFlight(tier.Simple); got != 0 {
		t.Errorf("InFlight = %d, want 0 after failed run", got)
	}
}

func TestRunner_InvocationCapKeepsFirstPass(t *testing.T) {
	op := &fakeOp{responses: []OpResponse{{Content: "weak", ClearScore: 1.0, TokensUsed: 50}}}
	fx := newFixture(t, func(d *Deps) {
		d.Operation = op
		cfg := budget.DefaultConfig()
		cfg.MaxInvocations = 1
		d.BudgetConfig = cfg
	})

	res, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "audit this"})
	if err != nil {
		t.Fatalf("Execute() = %v, want degraded success", err)
	}
	if res.Escalated {
		t.Error("Escalated = true, want false with invocation cap 1")
	}
	if res.Content != "weak" {
		t.Errorf("Content = %q, want first-pass response", res.Content)
	}
	if op.callCount() != 1 {
		t.Errorf("operation calls = %d, want 1", op.callCount())
	}
}

func TestRunner_SessionPreflightRefusesCappedSession(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Auditor = session.NewAuditor(session.Config{TokenCap: 100})
	})
	// Tip the session over the cap out of band.
	_ = fx.runner.deps.Auditor.Record("s1", 150)

	_, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
	if err == nil {
		t.Fatal("Execute() on capped session = nil, want error")
	}
	var capped *session.TokenCapError
	if !errors.As(err, &capped) {
		t.Fatalf("error = %T, want *session.TokenCapError", err)
	}
	if fx.op.callCount() != 0 {
		t.Errorf("operation calls = %d, want 0: no spending on capped sessions", fx.op.callCount())
	}
}

func TestRunner_CrossingRunKeepsContent(t *testing.T) {
	op := &fakeOp{responses: []OpResponse{{Content: "ok", ClearScore: 4.0, TokensUsed: 200}}}
	fx := newFixture(t, func(d *Deps) {
		d.Operation = op
		d.Auditor = session.NewAuditor(session.Config{TokenCap: 150})
	})

	res, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
	if err != nil {
		t.Fatalf("Execute() crossing the cap = %v, want success", err)
	}
	if !res.SessionCapped {
		t.Error("SessionCapped = false, want true")
	}
	if res.Content != "ok" {
		t.Errorf("Content = %q, want the crossing run's content", res.Content)
	}

	// The next run on the session fails pre-flight.
	if _, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"}); err == nil {
		t.Error("second Execute() = nil, want token cap error")
	}
}

func TestRunner_CappedMidRunSkipsEscalation(t *testing.T) {
	op := &fakeOp{responses: []OpResponse{{Content: "weak", ClearScore: 1.0, TokensUsed: 200}}}
	fx := newFixture(t, func(d *Deps) {
		d.Operation = op
		d.Auditor = session.NewAuditor(session.Config{TokenCap: 150})
	})

	res, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "audit this"})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if res.Escalated {
		t.Error("Escalated = true, want false: capped sessions must not spend more")
	}
	if op.callCount() != 1 {
		t.Errorf("operation calls = %d, want 1", op.callCount())
	}
}

func TestRunner_AdmissionRejectionNotRecorded(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Admission = admission.NewController(admission.Config{
			SimpleSlots: 1, ComplexSlots: 1, CriticalSlots: 1,
		})
	})

	// Occupy the only simple slot.
	handle, err := fx.runner.deps.Admission.Admit(context.Background(), tier.Simple)
	if err != nil {
		t.Fatalf("Admit() = %v", err)
	}
	defer handle.Release()

	_, err = fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
	var rejected *admission.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %T, want *admission.RejectedError", err)
	}

	// Pre-admission rejections never reach the tuning window.
	if st := fx.tuner.Status(); st.WindowRuns != 0 {
		t.Errorf("WindowRuns = %d, want 0", st.WindowRuns)
	}
	if fx.op.callCount() != 0 {
		t.Errorf("operation calls = %d, want 0", fx.op.callCount())
	}
}

func TestRunner_EmptySessionID(t *testing.T) {
	fx := newFixture(t, nil)

	if _, err := fx.runner.Execute(context.Background(), Request{Text: "hello"}); err == nil {
		t.Error("Execute() with empty session id = nil, want error")
	}
}

func TestRunner_OperationErrorPropagates(t *testing.T) {
	opErr := errors.New("backend unavailable")
	op := &fakeOp{err: opErr}
	fx := newFixture(t, func(d *Deps) { d.Operation = op })

	_, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
	if !errors.Is(err, opErr) {
		t.Errorf("Execute() error = %v, want wrapped %v", err, opErr)
	}

	// Failed run recorded, slot released, latency sampled.
	if st := fx.tuner.Status(); st.WindowRuns != 1 {
		t.Errorf("WindowRuns = %d, want 1", st.WindowRuns)
	}
	if got := fx.admission.InFlight(tier.Simple); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
	if fx.drift.SampleCount() != 1 {
		t.Errorf("drift samples = %d, want 1", fx.drift.SampleCount())
	}
}

func TestRunner_ConcurrentExecutes(t *testing.T) {
	fx := newFixture(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.runner.Execute(context.Background(), Request{SessionID: "s1", Text: "hello"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Execute() = %v, want nil", err)
		}
	}
	if st := fx.tuner.Status(); st.WindowRuns != 50 {
		t.Errorf("WindowRuns = %d, want 50", st.WindowRuns)
	}
	if got := fx.admission.InFlight(tier.Simple); got != 0 {
		t.Errorf("InFlight = %d, want 0 after all runs complete", got)
	}
}
