package service

import (
	"reflect"
	"testing"

	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/route"
	"github.com/percept-io/percept/internal/domain/worker"
)

func ranking(pairs ...any) intent.Result {
	var r intent.Result
	for i := 0; i < len(pairs); i += 2 {
		r.Candidates = append(r.Candidates, intent.Candidate{
			Domain:     pairs[i].(worker.Domain),
			Confidence: pairs[i+1].(float64),
		})
	}
	return r
}

func TestConfidentUnambiguousIntentRoutesSingle(t *testing.T) {
	r := NewRouter(0.75, 0.15)

	d := r.Decide(ranking(worker.DomainMedical, 0.92, worker.DomainGeneral, 0.05, worker.DomainSatellite, 0.03), route.Hint{})
	if d.Mode != route.ModeSingle {
		t.Fatalf("expected single, got %s", d.Mode)
	}
	if !reflect.DeepEqual(d.Domains, []worker.Domain{worker.DomainMedical}) {
		t.Fatalf("unexpected domains: %v", d.Domains)
	}
}

func TestLowConfidenceRoutesEnsemble(t *testing.T) {
	r := NewRouter(0.75, 0.15)

	d := r.Decide(ranking(worker.DomainGeneral, 0.5, worker.DomainMedical, 0.25, worker.DomainSatellite, 0.25), route.Hint{})
	if d.Mode != route.ModeEnsemble {
		t.Fatalf("expected ensemble, got %s", d.Mode)
	}
	if len(d.Domains) < 2 {
		t.Fatalf("ensemble needs at least two domains, got %v", d.Domains)
	}
	if d.Domains[0] != worker.DomainGeneral {
		t.Fatalf("top domain must lead the ensemble, got %v", d.Domains)
	}
}

func TestCloseRunnerUpForcesEnsemble(t *testing.T) {
	r := NewRouter(0.75, 0.15)

	// Top clears the threshold but the runner-up is within the margin.
	d := r.Decide(ranking(worker.DomainMedical, 0.8, worker.DomainSatellite, 0.7, worker.DomainGeneral, 0.1), route.Hint{})
	if d.Mode != route.ModeEnsemble {
		t.Fatalf("expected ensemble, got %s", d.Mode)
	}
	if !reflect.DeepEqual(d.Domains, []worker.Domain{worker.DomainMedical, worker.DomainSatellite}) {
		t.Fatalf("unexpected domains: %v", d.Domains)
	}
}

func TestForceEnsembleHintOverridesSingle(t *testing.T) {
	r := NewRouter(0.75, 0.15)

	d := r.Decide(ranking(worker.DomainMedical, 0.95, worker.DomainGeneral, 0.03, worker.DomainSatellite, 0.02), route.Hint{ForceEnsemble: true})
	if d.Mode != route.ModeEnsemble {
		t.Fatalf("expected forced ensemble, got %s", d.Mode)
	}
	if len(d.Domains) < 2 {
		t.Fatalf("forced ensemble still needs two domains, got %v", d.Domains)
	}
}

func TestThresholdBoundaryIsSingle(t *testing.T) {
	r := NewRouter(0.75, 0.15)

	d := r.Decide(ranking(worker.DomainSatellite, 0.75, worker.DomainGeneral, 0.2, worker.DomainMedical, 0.05), route.Hint{})
	if d.Mode != route.ModeSingle {
		t.Fatalf("confidence exactly at the floor should route single, got %s", d.Mode)
	}
}
