package service

import (
	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/route"
	"github.com/percept-io/percept/internal/domain/worker"
)

// Router turns an intent ranking into a routing decision. Pure policy, no
// I/O: single-worker routing for a confident unambiguous intent, ensemble
// otherwise, with reflector hints overriding the default for one iteration.
type Router struct {
	threshold float64 // single-route confidence floor
	margin    float64 // runner-up distance that forces an ensemble
}

// NewRouter creates a router with the given policy knobs.
func NewRouter(threshold, margin float64) *Router {
	return &Router{threshold: threshold, margin: margin}
}

// Decide picks the routing mode and target domains for one iteration.
func (r *Router) Decide(in intent.Result, hint route.Hint) route.Decision {
	top := in.Top()
	contenders := in.Within(r.margin)

	if !hint.ForceEnsemble && top.Confidence >= r.threshold && len(contenders) == 1 {
		return route.Decision{
			Mode:    route.ModeSingle,
			Domains: []worker.Domain{top.Domain},
		}
	}

	// Ensemble needs at least two domains for a meaningful vote; pad with
	// the next-ranked candidates when the margin only captured one.
	domains := make([]worker.Domain, 0, len(in.Candidates))
	for _, c := range contenders {
		domains = append(domains, c.Domain)
	}
	for _, c := range in.Candidates {
		if len(domains) >= 2 {
			break
		}
		if !containsDomain(domains, c.Domain) {
			domains = append(domains, c.Domain)
		}
	}

	return route.Decision{Mode: route.ModeEnsemble, Domains: domains}
}

func containsDomain(ds []worker.Domain, d worker.Domain) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}
