// Package classify defines the core data model of the routing-and-verification
// engine: classification requests, per-worker outcomes, verification verdicts,
// and the aggregate per-request state the orchestrator drives through its
// lifecycle.
package classify

import (
	"time"

	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/route"
	"github.com/percept-io/percept/internal/domain/worker"
)

// Request is an immutable classification request as accepted at the ingress.
type Request struct {
	ID            string    `json:"id"`
	ImageRef      string    `json:"image_ref"`
	Prompt        string    `json:"prompt"`
	MinConfidence float64   `json:"min_confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// TopK is a single entry in a worker's ranked prediction list.
type TopK struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Outcome is the settled result of one dispatch to one worker. A failed
// call (timeout, transport error, worker error) is still an Outcome, with
// Err set; worker failures are data, never escalated errors.
type Outcome struct {
	WorkerID     string        `json:"worker_id"`
	WorkerDomain worker.Domain `json:"worker_domain"`
	Label        string        `json:"label,omitempty"`
	Confidence   float64       `json:"confidence,omitempty"`
	TopK         []TopK        `json:"top_k,omitempty"`
	Err          string        `json:"error,omitempty"`
	Latency      time.Duration `json:"latency_ns"`
}

// ErrTimeout is the Outcome.Err value for a dispatch that exceeded its
// per-call timeout.
const ErrTimeout = "timeout"

// Failed reports whether the dispatch behind this outcome failed.
func (o Outcome) Failed() bool { return o.Err != "" }

// Reason explains a verification verdict.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonBelowThreshold Reason = "below-threshold"
	ReasonDisagreement   Reason = "ensemble-disagreement"
	ReasonWorkerError    Reason = "worker-error"
)

// Verdict is the verifier's accept/reject decision for one iteration.
// Chosen is non-nil iff Accepted; MismatchWarning is a non-fatal
// annotation set when the accepted label's domain differs from the
// intent's top domain.
type Verdict struct {
	Accepted        bool     `json:"accepted"`
	Reason          Reason   `json:"reason"`
	Chosen          *Outcome `json:"chosen,omitempty"`
	MismatchWarning string   `json:"mismatch_warning,omitempty"`
	Detail          string   `json:"detail,omitempty"`
}

// ReplanAction is the reflector's decision after a rejected verdict.
type ReplanAction string

const (
	ActionSucceed ReplanAction = "succeed" // accept the last results anyway (e.g. prompt-image mismatch)
	ActionReplan  ReplanAction = "replan"
	ActionGiveUp  ReplanAction = "give_up"
)

// ReplanDecision carries the reflector's verdict plus the strategy
// adjustment applied to the next iteration when Action is ActionReplan.
type ReplanDecision struct {
	Action ReplanAction `json:"action"`
	Hint   route.Hint   `json:"hint,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Pass records everything that happened in one supervisor iteration.
// History entries are strictly ordered by Iteration.
type Pass struct {
	Iteration int            `json:"iteration"`
	Intent    intent.Result  `json:"intent"`
	Route     route.Decision `json:"route"`
	Targets   []worker.Target `json:"targets"`
	Outcomes  []Outcome      `json:"outcomes"`
	Verdict   Verdict        `json:"verdict"`
}

// Phase is the orchestration state machine's current position.
type Phase string

const (
	PhaseIntent   Phase = "intent"
	PhaseDiscover Phase = "discover"
	PhaseRoute    Phase = "route"
	PhaseExecute  Phase = "execute"
	PhaseVerify   Phase = "verify"
	PhaseReflect  Phase = "reflect"
	PhaseAccept   Phase = "accept"
	PhaseFail     Phase = "fail"
)

// Status is the externally observable request status.
type Status string

const (
	StatusProcessing       Status = "PROCESSING"
	StatusCompleted        Status = "COMPLETED"
	StatusCompletedWarning Status = "COMPLETED_WITH_WARNING"
	StatusFailed           Status = "FAILED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompletedWarning || s == StatusFailed
}
