package evaluator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

func catalogCandidates() []Candidate {
	out := make([]Candidate, 0, len(policy.Catalog))
	for _, s := range policy.Catalog {
		out = append(out, Candidate{Strategy: s, Text: "reply for " + string(s)})
	}
	return out
}

func TestCandidateSet_OrderPreserved(t *testing.T) {
	defer goleak.VerifyNone(t)

	scores := map[policy.StrategyID]float64{
		policy.StrategyConsultative: 4,
		policy.StrategySocialProof:  6,
		policy.StrategyUrgency:      8,
	}
	// slowest first so completion order is reversed
	delays := map[policy.StrategyID]time.Duration{
		policy.StrategyConsultative: 30 * time.Millisecond,
		policy.StrategySocialProof:  15 * time.Millisecond,
		policy.StrategyUrgency:      0,
	}
	ev := Func(func(ctx context.Context, lead policy.Lead, s policy.StrategyID, text string) (policy.Evaluation, error) {
		time.Sleep(delays[s])
		return policy.Evaluation{Score: scores[s], ConversionProbability: 0.5}, nil
	})

	for _, parallel := range []bool{true, false} {
		cands := catalogCandidates()
		results, err := NewCandidateSet(ev, parallel).EvaluateAll(context.Background(), policy.Lead{ID: "l"}, cands)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, c := range cands {
			assert.Equal(t, scores[c.Strategy], results[i].Score, "parallel=%v strategy=%s", parallel, c.Strategy)
		}
		m := AsMap(cands, results)
		assert.Equal(t, 8.0, m[policy.StrategyUrgency].Score)
	}
}

func TestCandidateSet_RunsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inflight, peak int32
	ev := Func(func(ctx context.Context, lead policy.Lead, s policy.StrategyID, text string) (policy.Evaluation, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return policy.Evaluation{Score: 5, ConversionProbability: 0.5}, nil
	})

	_, err := NewCandidateSet(ev, true).EvaluateAll(context.Background(), policy.Lead{ID: "l"}, catalogCandidates())
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestCandidateSet_ErrorPropagates(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	ev := Func(func(ctx context.Context, lead policy.Lead, s policy.StrategyID, text string) (policy.Evaluation, error) {
		if s == policy.StrategySocialProof {
			return policy.Evaluation{}, boom
		}
		return policy.Evaluation{Score: 5, ConversionProbability: 0.5}, nil
	})

	for _, parallel := range []bool{true, false} {
		_, err := NewCandidateSet(ev, parallel).EvaluateAll(context.Background(), policy.Lead{ID: "l"}, catalogCandidates())
		assert.ErrorIs(t, err, boom)
	}
}

func TestCandidateSet_WithFallbackNeverFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	failing := Func(func(ctx context.Context, lead policy.Lead, s policy.StrategyID, text string) (policy.Evaluation, error) {
		return policy.Evaluation{}, errors.New("backend down")
	})
	set := NewCandidateSet(NewFallbackEvaluator(failing, time.Second, nil), true)
	lead := sampleLead(policy.ObjectionPrice, policy.SentimentNeutral)

	results, err := set.EvaluateAll(context.Background(), lead, catalogCandidates())
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, policy.SourceFallback, r.Source)
		assert.True(t, r.InRange())
	}
}
