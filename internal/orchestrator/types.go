package orchestrator

// #region imports
import (
	"github.com/danielpatrickdp/adaptive-policy/internal/escalation"
	"github.com/danielpatrickdp/adaptive-policy/internal/eval"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #endregion imports

// #region phase

// Phase is the orchestrator's position in the run state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseRoundInProgress Phase = "round_in_progress"
	PhaseRoundComplete   Phase = "round_complete"
	PhaseRunComplete     Phase = "run_complete"
)

// #endregion phase

// #region config

// Config holds the loop parameters.
type Config struct {
	Rounds             int
	WarmupRounds       int
	MinEscalationRound int
	// ConversionThreshold below which a result counts as friction.
	ConversionThreshold float64
	ParallelCandidates  bool
	// Exploration seeds memory when none has been saved.
	Exploration policy.Exploration
}

// DefaultConfig returns the reference loop: 2 rounds, 1 warm-up round,
// escalation from round 2.
func DefaultConfig() Config {
	esc := escalation.DefaultConfig()
	return Config{
		Rounds:              2,
		WarmupRounds:        1,
		MinEscalationRound:  esc.MinRound,
		ConversionThreshold: esc.ConversionThreshold,
		ParallelCandidates:  true,
		Exploration:         policy.DefaultExploration(),
	}
}

// #endregion config

// #region lead-event

// EscalationOutcome records one escalation attempt.
type EscalationOutcome struct {
	LeadID   string            `json:"leadId"`
	Round    int               `json:"round"`
	Strategy policy.StrategyID `json:"strategy"`
	Reason   string            `json:"reason"`
	Accepted bool              `json:"accepted"`
	Status   string            `json:"status"`
	CallID   string            `json:"callId,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// LeadEvent is the per-lead record of one round.
type LeadEvent struct {
	Round        int                                     `json:"round"`
	Seq          int                                     `json:"seq"`
	LeadID       string                                  `json:"leadId"`
	Objection    policy.Objection                        `json:"objection"`
	Strategy     policy.StrategyID                       `json:"strategy"`
	Reason       policy.Reason                           `json:"reason"`
	Result       policy.Evaluation                       `json:"result"`
	Candidates   map[policy.StrategyID]policy.Evaluation `json:"candidates"`
	BestStrategy policy.StrategyID                       `json:"bestStrategy"`
	Preview      string                                  `json:"preview"`
	Escalation   *EscalationOutcome                      `json:"escalation,omitempty"`
}

// #endregion lead-event

// #region report

// RoundSummary closes one round.
type RoundSummary struct {
	Round   int             `json:"round"`
	Average float64         `json:"average"`
	Epsilon float64         `json:"epsilon"`
	Events  []LeadEvent     `json:"events"`
	Check   eval.EvalResult `json:"check"`
}

// Summary compares the first and last round averages.
type Summary struct {
	First float64 `json:"first"`
	Last  float64 `json:"last"`
	Delta float64 `json:"delta"`
}

// RunReport is the output of a complete run.
type RunReport struct {
	RunID           string                                     `json:"runId"`
	Runs            int                                        `json:"runs"`
	Rounds          []RoundSummary                             `json:"rounds"`
	RoundAverages   []float64                                  `json:"roundAverages"`
	Policy          policy.Exploration                         `json:"policy"`
	StrategyStats   map[policy.StrategyID]policy.StrategyStats `json:"strategyStats"`
	ObjectionPolicy map[policy.Objection]policy.StrategyID     `json:"objectionPolicy"`
	Summary         Summary                                    `json:"summary"`
	Escalations     []EscalationOutcome                        `json:"escalations"`
	Violations      []string                                   `json:"violations,omitempty"`
}

// Events flattens every round's lead events in order.
func (r *RunReport) Events() []LeadEvent {
	var out []LeadEvent
	for _, rs := range r.Rounds {
		out = append(out, rs.Events...)
	}
	return out
}

// #endregion report
