// Package intent defines the result of prompt intent classification.
package intent

import "github.com/percept-io/percept/internal/domain/worker"

// Candidate is one (domain, confidence) pair in the intent ranking.
type Candidate struct {
	Domain     worker.Domain `json:"domain"`
	Confidence float64       `json:"confidence"`
}

// Result is the ranked outcome of one intent classification pass,
// highest confidence first. Produced fresh on every supervisor pass;
// persisted only inside the request history.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Reasoning  string      `json:"reasoning,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"` // true when keyword fallback was used
}

// Top returns the highest-confidence candidate. The zero Candidate is
// returned for an empty ranking.
func (r Result) Top() Candidate {
	if len(r.Candidates) == 0 {
		return Candidate{}
	}
	return r.Candidates[0]
}

// Within returns every candidate whose confidence is within margin of the
// top candidate, including the top itself.
func (r Result) Within(margin float64) []Candidate {
	top := r.Top()
	var out []Candidate
	for _, c := range r.Candidates {
		if top.Confidence-c.Confidence <= margin {
			out = append(out, c)
		}
	}
	return out
}
