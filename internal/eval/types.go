package eval

// #region eval-config
// EvalConfig holds tolerances for post-round validation.
type EvalConfig struct {
	AvgTolerance float64 // max |avgScore - totalScore/uses| allowed after rounding
	MaxHistory   int     // history length cap
}

// DefaultEvalConfig matches the memory's rounding and history cap.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		AvgTolerance: 1e-3,
		MaxHistory:   200,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-round validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Failures returns the names of failed checks.
func (r EvalResult) Failures() []string {
	var out []string
	for _, m := range r.Metrics {
		if !m.Pass {
			out = append(out, m.Name)
		}
	}
	return out
}

// #endregion eval-result
