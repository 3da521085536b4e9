package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/percept-io/percept/internal/adapter/otel"
	"github.com/percept-io/percept/internal/adapter/ws"
	"github.com/percept-io/percept/internal/config"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/route"
	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/broadcast"
	"github.com/percept-io/percept/internal/port/cache"
	"github.com/percept-io/percept/internal/port/database"
	"github.com/percept-io/percept/internal/port/dispatch"
	"github.com/percept-io/percept/internal/port/registry"
)

// Orchestrator drives each classification request through the supervision
// loop: intent, discovery, routing, execution, verification, and bounded
// replanning. Each request runs on its own goroutine which is the sole
// writer of its state; polls read persisted snapshots.
type Orchestrator struct {
	store       database.Store
	cache       cache.Cache
	registry    registry.Registry
	intents     *IntentService
	router      *Router
	coordinator *Coordinator
	verifier    *Verifier
	reflector   *Reflector
	hub         broadcast.Broadcaster
	metrics     *otel.Metrics
	logger      *slog.Logger

	cfg         config.Orchestrator
	snapshotTTL time.Duration
}

// OrchestratorDeps bundles the collaborators wired in at startup.
type OrchestratorDeps struct {
	Store       database.Store
	Cache       cache.Cache
	Registry    registry.Registry
	Intents     *IntentService
	Router      *Router
	Coordinator *Coordinator
	Verifier    *Verifier
	Reflector   *Reflector
	Hub         broadcast.Broadcaster
	Metrics     *otel.Metrics
	Logger      *slog.Logger
}

// NewOrchestrator creates the supervision loop service.
func NewOrchestrator(deps OrchestratorDeps, cfg config.Orchestrator, snapshotTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		store:       deps.Store,
		cache:       deps.Cache,
		registry:    deps.Registry,
		intents:     deps.Intents,
		router:      deps.Router,
		coordinator: deps.Coordinator,
		verifier:    deps.Verifier,
		reflector:   deps.Reflector,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		snapshotTTL: snapshotTTL,
	}
}

// Submit validates and accepts a request, then starts its supervision
// goroutine. It returns as soon as the initial state is persisted.
func (o *Orchestrator) Submit(ctx context.Context, req classify.Request) (*classify.State, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MinConfidence == 0 {
		req.MinConfidence = o.cfg.MinConfidence
	}
	req.CreatedAt = time.Now().UTC()

	st := classify.NewState(req)
	if err := o.store.CreateState(ctx, st); err != nil {
		return nil, fmt.Errorf("persist request: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RequestsSubmitted.Add(ctx, 1)
	}
	o.logger.Info("request accepted", "request_id", req.ID, "prompt_len", len(req.Prompt))

	go o.run(context.WithoutCancel(ctx), st)
	return st.Snapshot(), nil
}

// Poll returns the current snapshot for a request. Terminal snapshots are
// served from the in-process cache once populated; polling is idempotent
// and never mutates state.
func (o *Orchestrator) Poll(ctx context.Context, id string) (*classify.State, error) {
	if data, ok, err := o.cache.Get(ctx, id); err == nil && ok {
		var st classify.State
		if err := json.Unmarshal(data, &st); err == nil {
			return &st, nil
		}
	}

	st, err := o.store.GetState(ctx, id)
	if err != nil {
		return nil, err
	}

	if st.Terminal() {
		if data, err := json.Marshal(st); err == nil {
			_ = o.cache.Set(ctx, id, data, o.snapshotTTL)
		}
	}
	return st, nil
}

// run is the per-request supervision loop. st is owned by this goroutine.
func (o *Orchestrator) run(ctx context.Context, st *classify.State) {
	ctx, span := otel.StartRequestSpan(ctx, st.Request.ID)
	defer span.End()
	start := time.Now()

	for !st.Terminal() {
		o.iterate(ctx, st)
	}

	if o.metrics != nil {
		o.metrics.RequestDuration.Record(ctx, time.Since(start).Seconds())
		if st.Status == classify.StatusFailed {
			o.metrics.RequestsFailed.Add(ctx, 1)
		} else {
			o.metrics.RequestsCompleted.Add(ctx, 1)
		}
	}

	done := ws.DoneEvent{RequestID: st.Request.ID, Status: string(st.Status), Warning: st.MismatchWarning}
	if st.Final != nil {
		done.Label = st.Final.Label
		done.Confidence = st.Final.Confidence
	}
	o.hub.BroadcastEvent(ctx, ws.EventRequestDone, done)

	o.logger.Info("request finished",
		"request_id", st.Request.ID, "status", st.Status,
		"iterations", st.Iteration, "duration", time.Since(start))
}

// iterate runs one full pass: intent, discover, route, execute, verify,
// and either acceptance or reflection.
func (o *Orchestrator) iterate(ctx context.Context, st *classify.State) {
	prompt := st.Request.Prompt
	if st.Hint.AdjustedPrompt != "" {
		prompt = st.Hint.AdjustedPrompt
	}

	// INTENT
	o.transition(ctx, st, classify.PhaseIntent)
	in := o.phaseIntent(ctx, st, prompt)
	st.Intent = &in

	// ROUTE (policy first, so discovery knows which domains matter)
	o.transition(ctx, st, classify.PhaseRoute)
	decision := o.router.Decide(in, st.Hint)

	// DISCOVER
	o.transition(ctx, st, classify.PhaseDiscover)
	targets, lookupErr := o.phaseDiscover(ctx, st, decision.Domains)

	// A single route goes to the preferred worker only; the rest of the
	// pool is held back for replans, not dispatched alongside it.
	if decision.Mode == route.ModeSingle && len(targets) > 1 {
		targets = targets[:1]
	}

	pass := classify.Pass{
		Iteration: st.Iteration,
		Intent:    in,
		Route:     decision,
		Targets:   targets,
	}

	// EXECUTE
	o.transition(ctx, st, classify.PhaseExecute)
	switch {
	case lookupErr != nil:
		pass.Verdict = classify.Verdict{
			Reason: classify.ReasonWorkerError,
			Detail: "worker discovery failed: " + lookupErr.Error(),
		}
	case len(targets) == 0:
		pass.Verdict = classify.Verdict{
			Reason: classify.ReasonWorkerError,
			Detail: fmt.Sprintf("no workers available for domains %v", decision.Domains),
		}
	default:
		pass.Outcomes = o.phaseExecute(ctx, st, targets, prompt)

		// VERIFY
		o.transition(ctx, st, classify.PhaseVerify)
		pass.Verdict = o.verifier.Verify(decision.Mode, pass.Outcomes, in, st.Request.MinConfidence)
	}

	st.History = append(st.History, pass)

	if pass.Verdict.Accepted {
		o.accept(ctx, st, pass.Verdict)
		return
	}

	// REFLECT
	o.transition(ctx, st, classify.PhaseReflect)
	o.reflect(ctx, st, pass)
}

func (o *Orchestrator) phaseIntent(ctx context.Context, st *classify.State, prompt string) intent.Result {
	ctx, span := otel.StartPhaseSpan(ctx, string(classify.PhaseIntent), st.Iteration)
	defer span.End()

	in := o.intents.Classify(ctx, prompt)
	o.logger.Debug("intent classified",
		"request_id", st.Request.ID, "iteration", st.Iteration,
		"top", in.Top().Domain, "confidence", in.Top().Confidence, "fallback", in.Fallback)
	return in
}

// phaseDiscover resolves fresh targets for the routed domains, dropping
// workers excluded by the current hint. A backend lookup failure is
// returned for the caller to fold into a worker-error verdict; an empty
// resolution is not an error.
func (o *Orchestrator) phaseDiscover(ctx context.Context, st *classify.State, domains []worker.Domain) ([]worker.Target, error) {
	ctx, span := otel.StartPhaseSpan(ctx, string(classify.PhaseDiscover), st.Iteration)
	defer span.End()

	var targets []worker.Target
	for _, d := range domains {
		rctx, cancel := context.WithTimeout(ctx, o.cfg.RegistryTimeout)
		resolved, err := o.registry.Resolve(rctx, d)
		cancel()
		if err != nil {
			return nil, err
		}
		for _, t := range resolved {
			if !st.Hint.Excluded(t.ID) {
				targets = append(targets, t)
			}
		}
	}
	return targets, nil
}

func (o *Orchestrator) phaseExecute(ctx context.Context, st *classify.State, targets []worker.Target, prompt string) []classify.Outcome {
	ctx, span := otel.StartPhaseSpan(ctx, string(classify.PhaseExecute), st.Iteration)
	defer span.End()

	task := dispatch.Task{
		RequestID:     st.Request.ID,
		ImageRef:      st.Request.ImageRef,
		Prompt:        prompt,
		MinConfidence: st.Request.MinConfidence,
	}
	outcomes := o.coordinator.Execute(ctx, targets, task)

	if o.metrics != nil {
		o.metrics.Dispatches.Add(ctx, int64(len(outcomes)))
		for _, out := range outcomes {
			o.metrics.WorkerLatency.Record(ctx, out.Latency.Seconds())
			if out.Failed() {
				o.metrics.DispatchFailures.Add(ctx, 1)
			}
		}
	}
	return outcomes
}

// accept finalizes the request with the verdict's chosen outcome.
func (o *Orchestrator) accept(ctx context.Context, st *classify.State, verdict classify.Verdict) {
	st.Final = verdict.Chosen
	st.MismatchWarning = verdict.MismatchWarning
	if verdict.MismatchWarning != "" {
		st.Status = classify.StatusCompletedWarning
	} else {
		st.Status = classify.StatusCompleted
	}
	o.transition(ctx, st, classify.PhaseAccept)
}

// reflect resolves a rejected pass into another iteration, acceptance of
// the best existing result, or failure.
func (o *Orchestrator) reflect(ctx context.Context, st *classify.State, pass classify.Pass) {
	decision := o.reflector.Decide(ctx, st)

	switch decision.Action {
	case classify.ActionReplan:
		st.Iteration++
		st.Hint = decision.Hint
		o.transition(ctx, st, classify.PhaseIntent)
		if o.metrics != nil {
			o.metrics.Replans.Add(ctx, 1)
		}
		o.hub.BroadcastEvent(ctx, ws.EventRequestReplan, ws.ReplanEvent{
			RequestID: st.Request.ID,
			Iteration: st.Iteration,
			Reason:    decision.Reason,
		})
		o.logger.Info("replanning",
			"request_id", st.Request.ID, "iteration", st.Iteration, "reason", decision.Reason)

	case classify.ActionSucceed:
		best := bestOutcome(pass.Outcomes)
		if best == nil {
			o.fail(ctx, st, pass.Verdict.Reason)
			return
		}
		st.Final = best
		st.MismatchWarning = decision.Reason
		st.Status = classify.StatusCompletedWarning
		o.transition(ctx, st, classify.PhaseAccept)

	default: // give up
		o.fail(ctx, st, pass.Verdict.Reason)
	}
}

func (o *Orchestrator) fail(ctx context.Context, st *classify.State, reason classify.Reason) {
	st.Status = classify.StatusFailed
	st.FailureReason = reason
	o.transition(ctx, st, classify.PhaseFail)
}

// transition records a phase change, persists the state, and broadcasts
// the event. Persistence failures are logged, not fatal; the in-memory
// state machine keeps going and the next successful persist catches up.
func (o *Orchestrator) transition(ctx context.Context, st *classify.State, phase classify.Phase) {
	st.Phase = phase
	st.UpdatedAt = time.Now().UTC()

	if err := o.store.UpdateState(ctx, st); err != nil {
		o.logger.Error("persist state failed",
			"request_id", st.Request.ID, "phase", phase, "error", err)
	}
	o.hub.BroadcastEvent(ctx, ws.EventRequestPhase, ws.PhaseEvent{
		RequestID: st.Request.ID,
		Phase:     string(phase),
		Iteration: st.Iteration,
	})
}

// bestOutcome picks the highest-confidence successful outcome, nil if none.
func bestOutcome(outcomes []classify.Outcome) *classify.Outcome {
	var best *classify.Outcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.Failed() {
			continue
		}
		if best == nil || o.Confidence > best.Confidence {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}
