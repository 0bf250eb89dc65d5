// Package evaluator scores rendered candidate responses for a lead.
package evaluator

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// ErrOutOfRange marks a backend result with unbounded or out-of-range values.
var ErrOutOfRange = errors.New("evaluation out of range")

// ErrMalformed marks a backend response that could not be parsed.
var ErrMalformed = errors.New("malformed evaluation")

// Evaluator scores one (lead, strategy, response) candidate.
type Evaluator interface {
	Evaluate(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error)
}

// Func adapts a plain function to Evaluator.
type Func func(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error)

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error) {
	return f(ctx, lead, strategy, text)
}

func truncateNotes(s string) string {
	r := []rune(s)
	if len(r) <= policy.MaxNotesLen {
		return s
	}
	return string(r[:policy.MaxNotesLen])
}
