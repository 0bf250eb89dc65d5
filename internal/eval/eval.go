// Package eval validates policy memory after each round. A failed check
// means a bug in the update path, not bad lead data.
package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region eval-harness
// EvalHarness compares memory before and after a round.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks cur against prev. prev may be nil for the first snapshot,
// in which case only the single-state checks run.
func (h *EvalHarness) Run(prev, cur *policy.Memory) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Running average matches sum/count for every strategy
	for _, s := range policy.Catalog {
		st := cur.StrategyStats[s]
		var drift float64
		if st.Uses > 0 {
			drift = math.Abs(st.AvgScore - st.TotalScore/float64(st.Uses))
		} else {
			drift = math.Abs(st.AvgScore) + math.Abs(st.TotalScore)
		}
		check(fmt.Sprintf("avg_%s", s), drift, drift <= h.config.AvgTolerance,
			fmt.Sprintf("%s average drifts %.4f from total/uses", s, drift))
	}

	// 2. Exploration floor
	p := cur.Policy
	check("epsilon_floor", p.Epsilon, p.Epsilon >= p.MinEpsilon,
		fmt.Sprintf("epsilon %.4f below floor %.4f", p.Epsilon, p.MinEpsilon))

	// 3. History cap
	n := len(cur.History)
	check("history_len", float64(n), n <= h.config.MaxHistory,
		fmt.Sprintf("history has %d entries, cap %d", n, h.config.MaxHistory))

	// 4. Key membership
	keysErr := cur.Validate()
	check("keys_valid", 0, keysErr == nil, fmt.Sprintf("invalid memory: %v", keysErr))

	if prev != nil {
		// 5. Use counts never decrease
		for _, s := range policy.Catalog {
			before, after := prev.StrategyStats[s].Uses, cur.StrategyStats[s].Uses
			check(fmt.Sprintf("uses_%s", s), float64(after-before), after >= before,
				fmt.Sprintf("%s uses dropped from %d to %d", s, before, after))
		}

		// 6. Epsilon never increases
		check("epsilon_monotonic", cur.Policy.Epsilon-prev.Policy.Epsilon,
			cur.Policy.Epsilon <= prev.Policy.Epsilon,
			fmt.Sprintf("epsilon rose from %.4f to %.4f", prev.Policy.Epsilon, cur.Policy.Epsilon))

		// 7. Run counter moves forward
		check("runs_monotonic", float64(cur.Runs-prev.Runs), cur.Runs >= prev.Runs,
			fmt.Sprintf("runs went from %d to %d", prev.Runs, cur.Runs))
	}

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// Check runs the default harness.
func Check(prev, cur *policy.Memory) EvalResult {
	return NewEvalHarness(DefaultEvalConfig()).Run(prev, cur)
}
