package evaluator

// #region imports
import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #endregion imports

// #region affinity

// affinity is the score bonus of a strategy against an objection category.
var affinity = map[policy.Objection]map[policy.StrategyID]float64{
	policy.ObjectionPrice: {
		policy.StrategyConsultative: 1.5,
		policy.StrategySocialProof:  0.5,
		policy.StrategyUrgency:      -0.5,
	},
	policy.ObjectionTrust: {
		policy.StrategyConsultative: 0.5,
		policy.StrategySocialProof:  1.5,
		policy.StrategyUrgency:      -1.0,
	},
	policy.ObjectionTiming: {
		policy.StrategyConsultative: 0.0,
		policy.StrategySocialProof:  0.5,
		policy.StrategyUrgency:      1.5,
	},
	policy.ObjectionAuthority: {
		policy.StrategyConsultative: 1.0,
		policy.StrategySocialProof:  1.0,
		policy.StrategyUrgency:      -0.5,
	},
	policy.ObjectionNeed: {
		policy.StrategyConsultative: 1.5,
		policy.StrategySocialProof:  0.0,
		policy.StrategyUrgency:      0.0,
	},
	policy.ObjectionNone: {
		policy.StrategyConsultative: 0.5,
		policy.StrategySocialProof:  0.5,
		policy.StrategyUrgency:      0.5,
	},
}

// #endregion affinity

// #region sentiment-adjust

func sentimentAdjust(s policy.Sentiment, strategy policy.StrategyID) float64 {
	switch s {
	case policy.SentimentNegative, policy.SentimentSkeptical, policy.SentimentFrustrated:
		switch strategy {
		case policy.StrategyUrgency:
			return -1.0
		case policy.StrategySocialProof:
			return 0.5
		}
	case policy.SentimentUncertain:
		if strategy == policy.StrategyConsultative {
			return 0.5
		}
	case policy.SentimentPositive:
		if strategy == policy.StrategyUrgency {
			return 0.5
		}
	}
	return 0
}

// #endregion sentiment-adjust

// #region rule-evaluator

// RuleEvaluator is the deterministic heuristic scorer. No network call.
type RuleEvaluator struct{}

// NewRuleEvaluator returns the heuristic scorer.
func NewRuleEvaluator() *RuleEvaluator { return &RuleEvaluator{} }

// Evaluate scores the candidate with Score. It never fails.
func (r *RuleEvaluator) Evaluate(_ context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error) {
	ev := r.Score(lead, strategy, text)
	ev.Source = policy.SourcePrimary
	return ev, nil
}

// Score computes a bounded score from objection affinity, sentiment fit and
// text features. Same input, same output.
func (r *RuleEvaluator) Score(lead policy.Lead, strategy policy.StrategyID, text string) policy.Evaluation {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	aff := affinity[lead.Objection][strategy]
	sent := sentimentAdjust(lead.Sentiment, strategy)
	length := lengthAdequacy(len(strings.Fields(trimmed)))
	engagement := engagementScore(lead, lower)

	var cta float64
	if strings.Contains(trimmed, "?") {
		cta = 0.5
	}

	score := 5.0 + aff + sent + length + engagement + cta
	score = clamp(round2(score), policy.MinScore, policy.MaxScore)
	conv := clamp(round2(0.1+0.08*score), policy.MinConversion, policy.MaxConversion)

	return policy.Evaluation{
		Score:                 score,
		ConversionProbability: conv,
		Notes: fmt.Sprintf("rule: affinity=%+.2f sentiment=%+.2f length=%+.2f engagement=%+.2f cta=%+.2f",
			aff, sent, length, engagement, cta),
	}
}

// #endregion rule-evaluator

// #region features

// lengthAdequacy: too short is penalised, 12-90 words rewarded, walls of text mildly penalised.
func lengthAdequacy(words int) float64 {
	switch {
	case words < 12:
		return -1.0
	case words <= 90:
		return 0.5
	default:
		return -0.5
	}
}

// engagementScore rewards naming the lead and covering the offer's wording.
func engagementScore(lead policy.Lead, lower string) float64 {
	var s float64
	if name := strings.ToLower(strings.TrimSpace(lead.Name)); name != "" && strings.Contains(lower, name) {
		s += 0.5
	}

	offerWords := strings.Fields(strings.ToLower(lead.Offer))
	counted, hit := 0, 0
	for _, w := range offerWords {
		if len(w) <= 3 {
			continue
		}
		counted++
		if strings.Contains(lower, w) {
			hit++
		}
	}
	if counted > 0 {
		s += float64(hit) / float64(counted)
	}
	return s
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

// #endregion features
