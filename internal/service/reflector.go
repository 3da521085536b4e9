package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/percept-io/percept/internal/domain"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/route"
	"github.com/percept-io/percept/internal/port/judge"
)

const reflectSystemPrompt = `You supervise an image classification pipeline that failed verification.
Given the request and the history of attempts, decide the next step:
- "replan": try again with an adjusted strategy
- "succeed": the results are actually usable (e.g. the prompt simply does not match the image); accept the best available result with a warning
- "give_up": another attempt cannot help

Respond with ONLY a JSON object, no prose:
{"action":"replan|succeed|give_up","force_ensemble":<bool>,"exclude_workers":["<id>",...],"adjusted_prompt":"<rewrite or empty>","reason":"<one sentence>"}`

// Reflector decides what happens after a rejected verdict: another
// iteration with an adjusted strategy, acceptance of what exists, or
// giving up. The iteration ceiling is enforced before the judge is ever
// consulted, so a chatty judge can never extend the budget.
type Reflector struct {
	judge      judge.Judge
	timeout    time.Duration
	maxReplans int
	logger     *slog.Logger
}

// NewReflector creates a reflector with the given iteration ceiling.
func NewReflector(j judge.Judge, timeout time.Duration, maxReplans int, logger *slog.Logger) *Reflector {
	return &Reflector{judge: j, timeout: timeout, maxReplans: maxReplans, logger: logger}
}

// Decide resolves the rejected iteration recorded last in st.History.
func (r *Reflector) Decide(ctx context.Context, st *classify.State) classify.ReplanDecision {
	if st.Iteration >= r.maxReplans {
		return classify.ReplanDecision{
			Action: classify.ActionGiveUp,
			Reason: fmt.Sprintf("iteration ceiling of %d reached", r.maxReplans),
		}
	}

	decision, err := r.decideWithJudge(ctx, st)
	if err != nil {
		r.logger.Warn("reflection judge unavailable, using rule fallback",
			"request_id", st.Request.ID, "error", err)
		return ruleFallback(st)
	}
	return decision
}

func (r *Reflector) decideWithJudge(ctx context.Context, st *classify.State) (classify.ReplanDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.judge.Complete(ctx, judge.Request{
		System:      reflectSystemPrompt,
		Prompt:      reflectionPrompt(st),
		MaxTokens:   400,
		Temperature: 0,
	})
	if err != nil {
		return classify.ReplanDecision{}, err
	}
	return parseReflection(raw, st)
}

// reflectionPrompt summarizes the request and every attempt so far for the
// judge.
func reflectionPrompt(st *classify.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request prompt: %q\n", st.Request.Prompt)
	fmt.Fprintf(&b, "Required confidence: %.2f\n", st.Request.MinConfidence)
	for _, pass := range st.History {
		fmt.Fprintf(&b, "\nAttempt %d (%s over %v):\n", pass.Iteration, pass.Route.Mode, pass.Route.Domains)
		for _, o := range pass.Outcomes {
			if o.Failed() {
				fmt.Fprintf(&b, "  %s (%s): FAILED: %s\n", o.WorkerID, o.WorkerDomain, o.Err)
			} else {
				fmt.Fprintf(&b, "  %s (%s): %q at %.2f\n", o.WorkerID, o.WorkerDomain, o.Label, o.Confidence)
			}
		}
		fmt.Fprintf(&b, "  verdict: rejected (%s) %s\n", pass.Verdict.Reason, pass.Verdict.Detail)
	}
	return b.String()
}

type reflectionJudgment struct {
	Action         string   `json:"action"`
	ForceEnsemble  bool     `json:"force_ensemble"`
	ExcludeWorkers []string `json:"exclude_workers"`
	AdjustedPrompt string   `json:"adjusted_prompt"`
	Reason         string   `json:"reason"`
}

func parseReflection(raw string, st *classify.State) (classify.ReplanDecision, error) {
	var j reflectionJudgment
	if err := json.Unmarshal([]byte(stripFences(raw)), &j); err != nil {
		return classify.ReplanDecision{}, fmt.Errorf("%w: %v", domain.ErrMalformedJudgment, err)
	}

	action := classify.ReplanAction(j.Action)
	switch action {
	case classify.ActionReplan, classify.ActionSucceed, classify.ActionGiveUp:
	default:
		return classify.ReplanDecision{}, fmt.Errorf("%w: unknown action %q", domain.ErrMalformedJudgment, j.Action)
	}

	// Excluding a worker the last pass never used is a hallucination.
	known := make(map[string]bool)
	for _, pass := range st.History {
		for _, o := range pass.Outcomes {
			known[o.WorkerID] = true
		}
	}
	var excludes []string
	for _, id := range j.ExcludeWorkers {
		if known[id] {
			excludes = append(excludes, id)
		}
	}

	return classify.ReplanDecision{
		Action: action,
		Hint: route.Hint{
			ForceEnsemble:  j.ForceEnsemble,
			ExcludeWorkers: excludes,
			AdjustedPrompt: j.AdjustedPrompt,
		},
		Reason: j.Reason,
	}, nil
}

// ruleFallback maps the last verdict's reason to a fixed strategy
// adjustment when the judge cannot be consulted.
func ruleFallback(st *classify.State) classify.ReplanDecision {
	last := st.History[len(st.History)-1]

	hint := route.Hint{}
	switch last.Verdict.Reason {
	case classify.ReasonBelowThreshold, classify.ReasonDisagreement:
		hint.ForceEnsemble = true
	case classify.ReasonWorkerError:
		for _, o := range last.Outcomes {
			if o.Failed() && o.Err != classify.ErrTimeout {
				hint.ExcludeWorkers = append(hint.ExcludeWorkers, o.WorkerID)
			}
		}
	}

	return classify.ReplanDecision{
		Action: classify.ActionReplan,
		Hint:   hint,
		Reason: "rule fallback for " + string(last.Verdict.Reason),
	}
}
