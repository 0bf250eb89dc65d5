package evaluator

// #region imports
import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #endregion imports

// #region fallback-struct

// FallbackEvaluator calls a primary backend under a timeout and substitutes the
// rule score whenever the backend times out, errors or returns out-of-range values.
// Evaluate never returns an error.
type FallbackEvaluator struct {
	primary Evaluator
	rules   *RuleEvaluator
	timeout time.Duration
	logger  *zap.Logger
}

// NewFallbackEvaluator wraps primary. A nil primary means rule scoring only.
// timeout <= 0 disables the deadline.
func NewFallbackEvaluator(primary Evaluator, timeout time.Duration, logger *zap.Logger) *FallbackEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := NewRuleEvaluator()
	if primary == nil {
		primary = rules
	}
	return &FallbackEvaluator{
		primary: primary,
		rules:   rules,
		timeout: timeout,
		logger:  logger.Named("eval"),
	}
}

// #endregion fallback-struct

// #region evaluate

type outcome struct {
	ev  policy.Evaluation
	err error
}

// Evaluate returns the primary result tagged primary, or the rule result tagged
// fallback with the failure text as notes.
func (f *FallbackEvaluator) Evaluate(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error) {
	ev, err := f.callPrimary(ctx, lead, strategy, text)
	if err == nil && !ev.InRange() {
		err = fmt.Errorf("%w: score=%v conversion=%v", ErrOutOfRange, ev.Score, ev.ConversionProbability)
	}
	if err == nil {
		ev.Source = policy.SourcePrimary
		ev.Notes = truncateNotes(ev.Notes)
		return ev, nil
	}

	fb := f.rules.Score(lead, strategy, text)
	fb.Source = policy.SourceFallback
	fb.Notes = truncateNotes(err.Error())
	f.logger.Warn("primary evaluator failed, using rule fallback",
		zap.String("lead", lead.ID),
		zap.String("strategy", string(strategy)),
		zap.Float64("score", fb.Score),
		zap.Error(err))
	return fb, nil
}

// callPrimary waits for the backend or the deadline, whichever comes first.
// A backend that ignores ctx keeps running in its goroutine; its result is dropped.
func (f *FallbackEvaluator) callPrimary(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error) {
	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	ch := make(chan outcome, 1)
	go func() {
		ev, err := f.primary.Evaluate(callCtx, lead, strategy, text)
		ch <- outcome{ev: ev, err: err}
	}()

	select {
	case o := <-ch:
		return o.ev, o.err
	case <-callCtx.Done():
		return policy.Evaluation{}, fmt.Errorf("evaluator timeout after %s: %w", f.timeout, callCtx.Err())
	}
}

// #endregion evaluate
