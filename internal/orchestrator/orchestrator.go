// Package orchestrator drives the policy loop: rounds over the lead set,
// candidate scoring, memory updates, exploration decay and escalation.
package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-policy/internal/escalation"
	"github.com/danielpatrickdp/adaptive-policy/internal/eval"
	"github.com/danielpatrickdp/adaptive-policy/internal/evaluator"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/render"
)

// #endregion imports

// #region orchestrator-struct

// Orchestrator runs the round loop against one PolicyMemory at a time.
type Orchestrator struct {
	config     Config
	selector   *policy.Selector
	decider    *escalation.Decider
	candidates *evaluator.CandidateSet
	dispatcher escalation.Dispatcher
	renderer   func(policy.StrategyID, policy.Lead) string
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	phase Phase
	round int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the parent logger; the orchestrator logs under "orch".
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l.Named("orch")
		}
	}
}

// WithRenderer replaces the response renderer.
func WithRenderer(fn func(policy.StrategyID, policy.Lead) string) Option {
	return func(o *Orchestrator) { o.renderer = fn }
}

// WithClock replaces the history timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// #endregion orchestrator-struct

// #region constructor

// New creates an orchestrator. An evaluator that is not already a
// FallbackEvaluator is wrapped in one, so scoring failures never abort a round.
// A nil dispatcher means dry-run calls.
func New(config Config, ev evaluator.Evaluator, dispatcher escalation.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:   config,
		selector: policy.NewSelector(config.WarmupRounds),
		decider: escalation.NewDecider(escalation.Config{
			MinRound:            config.MinEscalationRound,
			ConversionThreshold: config.ConversionThreshold,
		}),
		renderer: render.Render,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}

	if _, ok := ev.(*evaluator.FallbackEvaluator); !ok {
		ev = evaluator.NewFallbackEvaluator(ev, 0, o.logger)
	}
	o.candidates = evaluator.NewCandidateSet(ev, config.ParallelCandidates)

	if dispatcher == nil {
		dispatcher = escalation.NewDryRunDispatcher(o.logger)
	}
	o.dispatcher = dispatcher
	return o
}

// #endregion constructor

// #region phase

// Phase returns the current state and round index.
func (o *Orchestrator) Phase() (Phase, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase, o.round
}

func (o *Orchestrator) setPhase(p Phase, round int) {
	o.mu.Lock()
	o.phase = p
	o.round = round
	o.mu.Unlock()
}

// #endregion phase

// #region run

// Run executes every configured round over leads, mutating mem in place.
// Leads are processed in input order. Only context cancellation aborts a run.
func (o *Orchestrator) Run(ctx context.Context, mem *policy.Memory, leads []policy.Lead) (*RunReport, error) {
	report := &RunReport{
		RunID:       uuid.New().String(),
		Escalations: []EscalationOutcome{},
	}
	o.logger.Info("run start",
		zap.String("run", report.RunID),
		zap.Int("rounds", o.config.Rounds),
		zap.Int("leads", len(leads)),
		zap.Float64("epsilon", mem.Policy.Epsilon))

	for round := 1; round <= o.config.Rounds; round++ {
		summary, err := o.runRound(ctx, mem, leads, round)
		if err != nil {
			o.setPhase(PhaseIdle, 0)
			return nil, err
		}
		report.Rounds = append(report.Rounds, summary)
		report.RoundAverages = append(report.RoundAverages, summary.Average)
		for _, ev := range summary.Events {
			if ev.Escalation != nil {
				report.Escalations = append(report.Escalations, *ev.Escalation)
			}
		}
		if !summary.Check.Passed {
			report.Violations = append(report.Violations,
				fmt.Sprintf("round %d: %s", summary.Round, summary.Check.Reason))
		}
	}

	o.setPhase(PhaseRunComplete, o.config.Rounds)
	snap := mem.Clone()
	report.Runs = snap.Runs
	report.Policy = snap.Policy
	report.StrategyStats = snap.StrategyStats
	report.ObjectionPolicy = snap.ObjectionPolicy
	report.Summary = summarize(report.RoundAverages)

	o.logger.Info("run complete",
		zap.String("run", report.RunID),
		zap.Float64("first", report.Summary.First),
		zap.Float64("last", report.Summary.Last),
		zap.Float64("delta", report.Summary.Delta),
		zap.Int("escalations", len(report.Escalations)))
	return report, nil
}

// #endregion run

// #region round

func (o *Orchestrator) runRound(ctx context.Context, mem *policy.Memory, leads []policy.Lead, round int) (RoundSummary, error) {
	o.setPhase(PhaseRoundInProgress, round)
	before := mem.Clone()

	events := make([]LeadEvent, 0, len(leads))
	var total float64
	for seq, lead := range leads {
		if err := ctx.Err(); err != nil {
			return RoundSummary{}, err
		}
		ev, err := o.processLead(ctx, mem, lead, round, seq)
		if err != nil {
			return RoundSummary{}, err
		}
		total += ev.Result.Score
		events = append(events, ev)
	}

	o.setPhase(PhaseRoundComplete, round)
	var avg float64
	if len(leads) > 0 {
		avg = policy.Round2(total / float64(len(leads)))
	}
	epsilon := mem.Decay()
	mem.Runs++

	check := eval.Check(before, mem)
	if !check.Passed {
		o.logger.Error("memory check failed",
			zap.Int("round", round),
			zap.String("reason", check.Reason),
			zap.Strings("failures", check.Failures()))
	}

	o.logger.Info("round complete",
		zap.Int("round", round),
		zap.Float64("avg", avg),
		zap.Float64("epsilon", epsilon),
		zap.Int("runs", mem.Runs))

	return RoundSummary{
		Round:   round,
		Average: avg,
		Epsilon: epsilon,
		Events:  events,
		Check:   check,
	}, nil
}

// #endregion round

// #region lead

// processLead selects, renders and scores every candidate, commits the used
// result to memory, then decides and places any escalation.
func (o *Orchestrator) processLead(ctx context.Context, mem *policy.Memory, lead policy.Lead, round, seq int) (LeadEvent, error) {
	sel := o.selector.Select(mem, lead.Objection, round, seq)

	cands := make([]evaluator.Candidate, len(policy.Catalog))
	for i, s := range policy.Catalog {
		cands[i] = evaluator.Candidate{Strategy: s, Text: o.renderer(s, lead)}
	}
	results, err := o.candidates.EvaluateAll(ctx, lead, cands)
	if err != nil {
		return LeadEvent{}, err
	}
	scored := evaluator.AsMap(cands, results)

	var text string
	for _, c := range cands {
		if c.Strategy == sel.Strategy {
			text = c.Text
		}
	}
	used := scored[sel.Strategy]

	best := mem.Update(policy.UpdateInput{
		Lead:       lead,
		Used:       sel.Strategy,
		Result:     used,
		Candidates: scored,
		Round:      round,
		Text:       text,
		At:         o.now(),
	})

	o.logger.Info("lead scored",
		zap.Int("round", round),
		zap.String("lead", lead.ID),
		zap.String("objection", string(lead.Objection)),
		zap.String("strategy", string(sel.Strategy)),
		zap.String("reason", string(sel.Reason)),
		zap.Float64("score", used.Score),
		zap.String("source", string(used.Source)),
		zap.String("best", string(best)))

	ev := LeadEvent{
		Round:        round,
		Seq:          seq,
		LeadID:       lead.ID,
		Objection:    lead.Objection,
		Strategy:     sel.Strategy,
		Reason:       sel.Reason,
		Result:       used,
		Candidates:   scored,
		BestStrategy: best,
		Preview:      policy.Preview(text),
	}

	decision := o.decider.Decide(lead, used, round)
	if decision.Escalate {
		ev.Escalation = o.escalate(ctx, lead, sel.Strategy, used, round, decision)
	}
	return ev, nil
}

func (o *Orchestrator) escalate(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, used policy.Evaluation, round int, decision escalation.Decision) *EscalationOutcome {
	res := o.dispatcher.PlaceCall(ctx, lead.Phone, escalation.NewCallContext(lead, strategy, used, round))
	out := &EscalationOutcome{
		LeadID:   lead.ID,
		Round:    round,
		Strategy: strategy,
		Reason:   decision.Reason,
		Accepted: res.Accepted,
		Status:   res.Status,
		CallID:   res.CallID,
		Error:    res.Error,
	}
	if res.Accepted {
		o.logger.Info("escalated to voice",
			zap.String("lead", lead.ID),
			zap.String("status", res.Status),
			zap.String("reason", decision.Reason))
	} else {
		o.logger.Warn("escalation not accepted",
			zap.String("lead", lead.ID),
			zap.String("status", res.Status),
			zap.String("error", res.Error))
	}
	return out
}

// #endregion lead

// #region summary

func summarize(avgs []float64) Summary {
	if len(avgs) == 0 {
		return Summary{}
	}
	first, last := avgs[0], avgs[len(avgs)-1]
	return Summary{First: first, Last: last, Delta: policy.Round2(last - first)}
}

// #endregion summary
