package evaluator

// #region imports
import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #endregion imports

// #region candidate-set

// Candidate is one strategy's rendered response for a lead.
type Candidate struct {
	Strategy policy.StrategyID
	Text     string
}

// CandidateSet scores every candidate of one lead.
type CandidateSet struct {
	eval     Evaluator
	parallel bool
}

// NewCandidateSet wraps eval. With parallel set, candidates of the same lead
// are scored concurrently.
func NewCandidateSet(eval Evaluator, parallel bool) *CandidateSet {
	return &CandidateSet{eval: eval, parallel: parallel}
}

// #endregion candidate-set

// #region evaluate-all

// EvaluateAll returns one Evaluation per candidate, in candidate order.
// It returns only after every call has finished.
func (c *CandidateSet) EvaluateAll(ctx context.Context, lead policy.Lead, candidates []Candidate) ([]policy.Evaluation, error) {
	results := make([]policy.Evaluation, len(candidates))

	if !c.parallel {
		for i, cand := range candidates {
			ev, err := c.eval.Evaluate(ctx, lead, cand.Strategy, cand.Text)
			if err != nil {
				return nil, err
			}
			results[i] = ev
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		g.Go(func() error {
			ev, err := c.eval.Evaluate(gctx, lead, cand.Strategy, cand.Text)
			if err != nil {
				return err
			}
			results[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AsMap keys results by strategy.
func AsMap(candidates []Candidate, results []policy.Evaluation) map[policy.StrategyID]policy.Evaluation {
	out := make(map[policy.StrategyID]policy.Evaluation, len(candidates))
	for i, cand := range candidates {
		out[cand.Strategy] = results[i]
	}
	return out
}

// #endregion evaluate-all
