package classify

import (
	"time"

	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/route"
)

// State is the aggregate mutable record for one request across its
// lifetime. It is mutated only by the request's own state-machine
// goroutine; every other reader gets a Snapshot, never a live reference.
type State struct {
	Request Request `json:"request"`

	Phase     Phase  `json:"phase"`
	Status    Status `json:"status"`
	Iteration int    `json:"iteration"` // 1-based pass counter, never exceeds max replans

	Intent  *intent.Result `json:"intent,omitempty"` // latest pass
	Hint    route.Hint     `json:"hint,omitempty"`   // reflector adjustment for the current pass
	History []Pass         `json:"history"`

	Final           *Outcome `json:"final,omitempty"` // non-nil iff Status is terminal and accepted
	MismatchWarning string   `json:"mismatch_warning,omitempty"`
	FailureReason   Reason   `json:"failure_reason,omitempty"` // from the last verdict on FAILED

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates the initial state for a freshly submitted request.
func NewState(req Request) *State {
	now := time.Now().UTC()
	return &State{
		Request:   req,
		Phase:     PhaseIntent,
		Status:    StatusProcessing,
		Iteration: 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the request has reached a final status.
func (s *State) Terminal() bool { return s.Status.Terminal() }

// Snapshot returns a deep copy safe to hand to concurrent readers.
func (s *State) Snapshot() *State {
	cp := *s

	if s.Intent != nil {
		in := *s.Intent
		in.Candidates = append([]intent.Candidate(nil), s.Intent.Candidates...)
		cp.Intent = &in
	}
	if s.Final != nil {
		f := *s.Final
		f.TopK = append([]TopK(nil), s.Final.TopK...)
		cp.Final = &f
	}
	cp.Hint.ExcludeWorkers = append([]string(nil), s.Hint.ExcludeWorkers...)

	cp.History = make([]Pass, len(s.History))
	for i, p := range s.History {
		cp.History[i] = clonePass(p)
	}
	return &cp
}

func clonePass(p Pass) Pass {
	cp := p
	cp.Intent.Candidates = append([]intent.Candidate(nil), p.Intent.Candidates...)
	cp.Route.Domains = append(p.Route.Domains[:0:0], p.Route.Domains...)
	cp.Targets = append(p.Targets[:0:0], p.Targets...)
	cp.Outcomes = make([]Outcome, len(p.Outcomes))
	for i, o := range p.Outcomes {
		o.TopK = append([]TopK(nil), o.TopK...)
		cp.Outcomes[i] = o
	}
	if p.Verdict.Chosen != nil {
		ch := *p.Verdict.Chosen
		ch.TopK = append([]TopK(nil), p.Verdict.Chosen.TopK...)
		cp.Verdict.Chosen = &ch
	}
	return cp
}
