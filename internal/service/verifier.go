package service

import (
	"fmt"
	"strings"

	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/route"
)

// Verifier gates dispatch outcomes into an accept/reject verdict. Pure
// policy, no I/O. Single-mode outcomes pass on the confidence floor;
// ensemble outcomes pass on a strict label majority among the workers
// that responded, with cross-worker agreement standing in for the floor.
type Verifier struct{}

// NewVerifier creates a verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify judges one iteration's outcomes against the request's confidence
// floor. mode is the routing mode the outcomes were produced under.
func (v *Verifier) Verify(mode route.Mode, outcomes []classify.Outcome, in intent.Result, minConfidence float64) classify.Verdict {
	if mode == route.ModeEnsemble {
		return v.verifyEnsemble(outcomes, in)
	}
	return v.verifySingle(outcomes, in, minConfidence)
}

func (v *Verifier) verifySingle(outcomes []classify.Outcome, in intent.Result, minConfidence float64) classify.Verdict {
	ok := succeeded(outcomes)
	if len(ok) == 0 {
		return classify.Verdict{
			Reason: classify.ReasonWorkerError,
			Detail: failureDetail(outcomes),
		}
	}

	// Single mode dispatches to one worker; take the first success.
	chosen := ok[0]
	if chosen.Confidence < minConfidence {
		return classify.Verdict{
			Reason: classify.ReasonBelowThreshold,
			Detail: fmt.Sprintf("confidence %.2f below floor %.2f", chosen.Confidence, minConfidence),
		}
	}
	return accepted(chosen, in)
}

func (v *Verifier) verifyEnsemble(outcomes []classify.Outcome, in intent.Result) classify.Verdict {
	ok := succeeded(outcomes)
	if len(ok) < 2 {
		return classify.Verdict{
			Reason: classify.ReasonWorkerError,
			Detail: fmt.Sprintf("ensemble needs at least 2 responses, got %d: %s", len(ok), failureDetail(outcomes)),
		}
	}

	votes := make(map[string]int)
	for _, o := range ok {
		votes[o.Label]++
	}

	// Strict majority of responders. An exact split is disagreement.
	var majorityLabel string
	for label, n := range votes {
		if n*2 > len(ok) {
			majorityLabel = label
			break
		}
	}
	if majorityLabel == "" {
		return classify.Verdict{
			Reason: classify.ReasonDisagreement,
			Detail: fmt.Sprintf("no label held by a majority of %d responders", len(ok)),
		}
	}

	// Chosen outcome is the highest-confidence one agreeing with the majority.
	// Agreement is the acceptance criterion here; the confidence floor
	// applies in single mode only.
	var chosen classify.Outcome
	for _, o := range ok {
		if o.Label == majorityLabel && o.Confidence >= chosen.Confidence {
			chosen = o
		}
	}
	return accepted(chosen, in)
}

// accepted builds the accepting verdict, attaching a non-fatal mismatch
// warning when the winning worker's domain differs from the intent's top
// domain. The mismatch does not reject; it travels to the final result.
func accepted(chosen classify.Outcome, in intent.Result) classify.Verdict {
	verdict := classify.Verdict{
		Accepted: true,
		Reason:   classify.ReasonOK,
		Chosen:   &chosen,
	}
	if top := in.Top(); top.Domain != "" && chosen.WorkerDomain != top.Domain {
		verdict.MismatchWarning = fmt.Sprintf(
			"accepted label %q came from %s worker %s but the prompt intent was %s",
			chosen.Label, chosen.WorkerDomain, chosen.WorkerID, top.Domain)
	}
	return verdict
}

func succeeded(outcomes []classify.Outcome) []classify.Outcome {
	var ok []classify.Outcome
	for _, o := range outcomes {
		if !o.Failed() {
			ok = append(ok, o)
		}
	}
	return ok
}

func failureDetail(outcomes []classify.Outcome) string {
	if len(outcomes) == 0 {
		return "no workers dispatched"
	}
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			parts = append(parts, o.WorkerID+": "+o.Err)
		}
	}
	return strings.Join(parts, "; ")
}
