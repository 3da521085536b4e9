package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/percept-io/percept/internal/adapter/memstore"
	"github.com/percept-io/percept/internal/config"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/dispatch"
)

// nopCache satisfies the cache port without storing anything.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool, error)            { return nil, false, nil }
func (nopCache) Set(context.Context, string, []byte, time.Duration) error     { return nil }
func (nopCache) Delete(context.Context, string) error                         { return nil }

// nopHub satisfies the broadcast port.
type nopHub struct{}

func (nopHub) BroadcastEvent(context.Context, string, any) {}

// fakeRegistry serves a fixed domain table, optionally failing lookups.
type fakeRegistry struct {
	table map[worker.Domain][]worker.Target
	err   error
}

func (f *fakeRegistry) Resolve(_ context.Context, d worker.Domain) ([]worker.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.table[d], nil
}

func (f *fakeRegistry) Records(context.Context) ([]worker.Record, error) {
	var recs []worker.Record
	for _, ts := range f.table {
		for _, t := range ts {
			recs = append(recs, worker.Record{ID: t.ID, Domain: t.Domain, Endpoint: t.Endpoint})
		}
	}
	return recs, nil
}

func threeWorkerRegistry() *fakeRegistry {
	return &fakeRegistry{table: map[worker.Domain][]worker.Target{
		worker.DomainMedical:   {{ID: "w-med", Domain: worker.DomainMedical, Endpoint: "http://m"}},
		worker.DomainSatellite: {{ID: "w-sat", Domain: worker.DomainSatellite, Endpoint: "http://s"}},
		worker.DomainGeneral:   {{ID: "w-gen", Domain: worker.DomainGeneral, Endpoint: "http://g"}},
	}}
}

func orchConfig() config.Orchestrator {
	return config.Orchestrator{
		MaxReplans:       3,
		MinConfidence:    0.7,
		RoutingThreshold: 0.75,
		EnsembleMargin:   0.15,
		WorkerTimeout:    time.Second,
		JudgeTimeout:     time.Second,
		RegistryTimeout:  time.Second,
	}
}

func newOrchestrator(t *testing.T, reg *fakeRegistry, disp dispatch.Dispatcher, j *fakeJudge, cfg config.Orchestrator) *Orchestrator {
	t.Helper()
	logger := discardLogger()
	return NewOrchestrator(OrchestratorDeps{
		Store:       memstore.New(),
		Cache:       nopCache{},
		Registry:    reg,
		Intents:     NewIntentService(j, cfg.JudgeTimeout, logger),
		Router:      NewRouter(cfg.RoutingThreshold, cfg.EnsembleMargin),
		Coordinator: NewCoordinator(disp, cfg.WorkerTimeout, logger),
		Verifier:    NewVerifier(),
		Reflector:   NewReflector(j, cfg.JudgeTimeout, cfg.MaxReplans, logger),
		Hub:         nopHub{},
		Logger:      logger,
	}, cfg, time.Minute)
}

func awaitTerminal(t *testing.T, o *Orchestrator, id string) *classify.State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, err := o.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if st.Terminal() {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("request never reached a terminal status")
	return nil
}

const medicalIntentJSON = `{"candidates":[{"domain":"medical","confidence":0.92},{"domain":"general","confidence":0.05},{"domain":"satellite","confidence":0.03}],"reasoning":"clinical imagery"}`

func TestSingleRouteSuccess(t *testing.T) {
	disp := &fakeDispatcher{replies: map[string]*dispatch.Reply{
		"w-med": {WorkerID: "w-med", Label: "pneumonia", Confidence: 0.88},
	}}
	o := newOrchestrator(t, threeWorkerRegistry(), disp, &fakeJudge{out: medicalIntentJSON}, orchConfig())

	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-1", ImageRef: "obj://img/xray.png", Prompt: "classify this chest x-ray",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, o, "req-1")
	if st.Status != classify.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%+v)", st.Status, st)
	}
	if st.Final == nil || st.Final.Label != "pneumonia" {
		t.Fatalf("unexpected final outcome: %+v", st.Final)
	}
	if st.Iteration != 1 || len(st.History) != 1 {
		t.Fatalf("expected one pass, got iteration=%d history=%d", st.Iteration, len(st.History))
	}
	if st.History[0].Route.Mode != "single" {
		t.Fatalf("expected single route, got %+v", st.History[0].Route)
	}
}

func TestEnsembleFallbackIntent(t *testing.T) {
	// Judge down: keyword fallback yields medical at 0.5, forcing an ensemble.
	disp := &fakeDispatcher{replies: map[string]*dispatch.Reply{
		"w-med": {WorkerID: "w-med", Label: "fracture", Confidence: 0.9},
		"w-sat": {WorkerID: "w-sat", Label: "fracture", Confidence: 0.8},
	}}
	o := newOrchestrator(t, threeWorkerRegistry(), disp, &fakeJudge{err: errors.New("judge down")}, orchConfig())

	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-2", ImageRef: "obj://img/a.png", Prompt: "look at this x-ray of a bone",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, o, "req-2")
	if st.Status != classify.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", st.Status)
	}
	if st.History[0].Route.Mode != "ensemble" {
		t.Fatalf("expected ensemble route, got %+v", st.History[0].Route)
	}
	if !st.History[0].Intent.Fallback {
		t.Fatal("expected keyword-fallback intent")
	}
}

func TestReplansUntilCeilingThenFails(t *testing.T) {
	// The judge is down, so the keyword fallback forces an ensemble, and
	// the workers never agree on a label. The rule fallback replans on
	// every disagreement until the ceiling.
	disp := &fakeDispatcher{replies: map[string]*dispatch.Reply{
		"w-med": {WorkerID: "w-med", Label: "pneumonia", Confidence: 0.8},
		"w-sat": {WorkerID: "w-sat", Label: "forest", Confidence: 0.8},
		"w-gen": {WorkerID: "w-gen", Label: "cat", Confidence: 0.8},
	}}
	cfg := orchConfig()
	cfg.MaxReplans = 2
	o := newOrchestrator(t, threeWorkerRegistry(), disp, &fakeJudge{err: errors.New("judge down")}, cfg)

	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-3", ImageRef: "obj://img/b.png", Prompt: "classify this mri scan",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, o, "req-3")
	if st.Status != classify.StatusFailed {
		t.Fatalf("expected FAILED, got %s", st.Status)
	}
	if st.Iteration != 2 || len(st.History) != 2 {
		t.Fatalf("ceiling not honored: iteration=%d history=%d", st.Iteration, len(st.History))
	}
	if st.FailureReason != classify.ReasonDisagreement {
		t.Fatalf("unexpected failure reason %q", st.FailureReason)
	}
}

func TestSingleRouteDispatchesPreferredWorkerOnly(t *testing.T) {
	// Two medical workers are registered; a single route must reach only
	// the first in the registry's preference order.
	reg := &fakeRegistry{table: map[worker.Domain][]worker.Target{
		worker.DomainMedical: {
			{ID: "w-med-a", Domain: worker.DomainMedical, Endpoint: "http://a"},
			{ID: "w-med-b", Domain: worker.DomainMedical, Endpoint: "http://b"},
		},
	}}
	disp := &fakeDispatcher{replies: map[string]*dispatch.Reply{
		"w-med-a": {WorkerID: "w-med-a", Label: "pneumonia", Confidence: 0.9},
		"w-med-b": {WorkerID: "w-med-b", Label: "healthy", Confidence: 0.2},
	}}
	o := newOrchestrator(t, reg, disp, &fakeJudge{out: medicalIntentJSON}, orchConfig())

	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-8", ImageRef: "obj://img/f.png", Prompt: "classify this chest x-ray",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, o, "req-8")
	if st.Status != classify.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", st.Status)
	}
	if len(st.History[0].Outcomes) != 1 || st.History[0].Outcomes[0].WorkerID != "w-med-a" {
		t.Fatalf("single route must dispatch one preferred worker, got %+v", st.History[0].Outcomes)
	}
	if len(st.History[0].Targets) != 1 {
		t.Fatalf("recorded targets must match the dispatched set: %+v", st.History[0].Targets)
	}
}

func TestNoWorkersAvailableFails(t *testing.T) {
	reg := &fakeRegistry{table: map[worker.Domain][]worker.Target{}}
	cfg := orchConfig()
	cfg.MaxReplans = 1
	o := newOrchestrator(t, reg, &fakeDispatcher{}, &fakeJudge{out: medicalIntentJSON}, cfg)

	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-4", ImageRef: "obj://img/c.png", Prompt: "classify this chest x-ray",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, o, "req-4")
	if st.Status != classify.StatusFailed || st.FailureReason != classify.ReasonWorkerError {
		t.Fatalf("expected worker-error failure, got %s/%s", st.Status, st.FailureReason)
	}
	if len(st.History[0].Outcomes) != 0 {
		t.Fatalf("no dispatches expected with zero targets: %+v", st.History[0].Outcomes)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	o := newOrchestrator(t, threeWorkerRegistry(), &fakeDispatcher{}, &fakeJudge{out: medicalIntentJSON}, orchConfig())

	if _, err := o.Submit(context.Background(), classify.Request{ID: "req-5"}); err == nil {
		t.Fatal("expected validation error for empty request")
	}
}

func TestPollIsIdempotent(t *testing.T) {
	disp := &fakeDispatcher{replies: map[string]*dispatch.Reply{
		"w-med": {WorkerID: "w-med", Label: "pneumonia", Confidence: 0.9},
	}}
	o := newOrchestrator(t, threeWorkerRegistry(), disp, &fakeJudge{out: medicalIntentJSON}, orchConfig())

	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-6", ImageRef: "obj://img/d.png", Prompt: "classify this chest x-ray",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	first := awaitTerminal(t, o, "req-6")
	second, err := o.Poll(context.Background(), "req-6")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if first.Status != second.Status || first.Final.Label != second.Final.Label {
		t.Fatalf("polls disagree: %+v vs %+v", first, second)
	}

	// Mutating one snapshot must not leak into the next.
	second.Final.Label = "tampered"
	third, _ := o.Poll(context.Background(), "req-6")
	if third.Final.Label != "pneumonia" {
		t.Fatal("poll returned a shared reference")
	}
}

func TestDefaultMinConfidenceApplied(t *testing.T) {
	disp := &fakeDispatcher{replies: map[string]*dispatch.Reply{
		"w-med": {WorkerID: "w-med", Label: "pneumonia", Confidence: 0.72},
	}}
	o := newOrchestrator(t, threeWorkerRegistry(), disp, &fakeJudge{out: medicalIntentJSON}, orchConfig())

	// No explicit floor: the configured default of 0.7 applies and 0.72 passes.
	_, err := o.Submit(context.Background(), classify.Request{
		ID: "req-7", ImageRef: "obj://img/e.png", Prompt: "classify this chest x-ray",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, o, "req-7")
	if st.Status != classify.StatusCompleted {
		t.Fatalf("expected COMPLETED with default floor, got %s", st.Status)
	}
	if st.Request.MinConfidence != 0.7 {
		t.Fatalf("default floor not applied: %v", st.Request.MinConfidence)
	}
}
