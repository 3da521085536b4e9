package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/route"
	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/judge"
)

// fakeJudge returns a scripted completion or error.
type fakeJudge struct {
	out   string
	err   error
	calls int
}

func (f *fakeJudge) Complete(_ context.Context, _ judge.Request) (string, error) {
	f.calls++
	return f.out, f.err
}

func rejectedState(iteration int, reason classify.Reason, outcomes ...classify.Outcome) *classify.State {
	st := classify.NewState(classify.Request{ID: "req-1", ImageRef: "obj://x", Prompt: "p", MinConfidence: 0.7})
	st.Iteration = iteration
	for i := 1; i <= iteration; i++ {
		pass := classify.Pass{
			Iteration: i,
			Route:     route.Decision{Mode: route.ModeSingle, Domains: []worker.Domain{worker.DomainMedical}},
			Outcomes:  outcomes,
			Verdict:   classify.Verdict{Reason: reason},
		}
		st.History = append(st.History, pass)
	}
	return st
}

func TestCeilingForcesGiveUpWithoutJudge(t *testing.T) {
	j := &fakeJudge{out: `{"action":"replan"}`}
	r := NewReflector(j, time.Second, 3, discardLogger())

	st := rejectedState(3, classify.ReasonBelowThreshold)
	d := r.Decide(context.Background(), st)

	if d.Action != classify.ActionGiveUp {
		t.Fatalf("expected give_up at ceiling, got %+v", d)
	}
	if j.calls != 0 {
		t.Fatal("judge must not be consulted once the ceiling is reached")
	}
}

func TestJudgeReplanDecision(t *testing.T) {
	j := &fakeJudge{out: `{"action":"replan","force_ensemble":true,"adjusted_prompt":"a chest x-ray","reason":"confidence too low"}`}
	r := NewReflector(j, time.Second, 3, discardLogger())

	st := rejectedState(1, classify.ReasonBelowThreshold,
		outcome("w1", worker.DomainMedical, "pneumonia", 0.5))
	d := r.Decide(context.Background(), st)

	if d.Action != classify.ActionReplan {
		t.Fatalf("expected replan, got %+v", d)
	}
	if !d.Hint.ForceEnsemble || d.Hint.AdjustedPrompt != "a chest x-ray" {
		t.Fatalf("hint not carried: %+v", d.Hint)
	}
}

func TestJudgeSucceedDecision(t *testing.T) {
	j := &fakeJudge{out: `{"action":"succeed","reason":"prompt does not match the image"}`}
	r := NewReflector(j, time.Second, 3, discardLogger())

	st := rejectedState(1, classify.ReasonDisagreement,
		outcome("w1", worker.DomainMedical, "cat", 0.9))
	d := r.Decide(context.Background(), st)

	if d.Action != classify.ActionSucceed {
		t.Fatalf("expected succeed, got %+v", d)
	}
}

func TestHallucinatedExclusionsDropped(t *testing.T) {
	j := &fakeJudge{out: `{"action":"replan","exclude_workers":["w1","ghost-worker"]}`}
	r := NewReflector(j, time.Second, 3, discardLogger())

	st := rejectedState(1, classify.ReasonWorkerError,
		failedOutcome("w1", worker.DomainMedical, "connection refused"))
	d := r.Decide(context.Background(), st)

	if len(d.Hint.ExcludeWorkers) != 1 || d.Hint.ExcludeWorkers[0] != "w1" {
		t.Fatalf("expected only w1 excluded, got %v", d.Hint.ExcludeWorkers)
	}
}

func TestMalformedJudgmentFallsBackToRules(t *testing.T) {
	j := &fakeJudge{out: `try again with more feeling`}
	r := NewReflector(j, time.Second, 3, discardLogger())

	st := rejectedState(1, classify.ReasonBelowThreshold,
		outcome("w1", worker.DomainMedical, "pneumonia", 0.5))
	d := r.Decide(context.Background(), st)

	if d.Action != classify.ActionReplan || !d.Hint.ForceEnsemble {
		t.Fatalf("expected rule fallback forcing ensemble, got %+v", d)
	}
}

func TestJudgeErrorFallsBackToRules(t *testing.T) {
	j := &fakeJudge{err: errors.New("judge down")}
	r := NewReflector(j, time.Second, 3, discardLogger())

	st := rejectedState(1, classify.ReasonWorkerError,
		failedOutcome("w1", worker.DomainMedical, "connection refused"),
		failedOutcome("w2", worker.DomainGeneral, classify.ErrTimeout))
	d := r.Decide(context.Background(), st)

	if d.Action != classify.ActionReplan {
		t.Fatalf("expected replan, got %+v", d)
	}
	// Hard failures are excluded, timeouts get another chance.
	if len(d.Hint.ExcludeWorkers) != 1 || d.Hint.ExcludeWorkers[0] != "w1" {
		t.Fatalf("unexpected exclusions: %v", d.Hint.ExcludeWorkers)
	}
}
