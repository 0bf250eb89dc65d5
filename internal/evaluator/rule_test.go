package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/render"
)

func sampleLead(o policy.Objection, s policy.Sentiment) policy.Lead {
	return policy.Lead{
		ID: "lead-1", Name: "Carla", Goal: "book more clients", Offer: "growth coaching package",
		Message: "not sure this is worth it", Channel: policy.ChannelWhatsApp,
		Objection: o, Sentiment: s, Phone: "+15550001111",
	}
}

func TestRuleEvaluator_Bounded(t *testing.T) {
	r := NewRuleEvaluator()
	texts := []string{"", "ok", render.Render(policy.StrategyUrgency, sampleLead(policy.ObjectionTiming, policy.SentimentPositive))}

	for _, o := range []policy.Objection{policy.ObjectionPrice, policy.ObjectionTrust, policy.ObjectionTiming, policy.ObjectionAuthority, policy.ObjectionNeed, policy.ObjectionNone} {
		for _, s := range []policy.Sentiment{policy.SentimentPositive, policy.SentimentSkeptical, policy.SentimentUncertain} {
			for _, sid := range policy.Catalog {
				for _, text := range texts {
					ev, err := r.Evaluate(context.Background(), sampleLead(o, s), sid, text)
					require.NoError(t, err)
					assert.True(t, ev.InRange(), "out of range for %s/%s/%s: %+v", o, s, sid, ev)
					assert.Equal(t, policy.SourcePrimary, ev.Source)
				}
			}
		}
	}
}

func TestRuleEvaluator_Deterministic(t *testing.T) {
	r := NewRuleEvaluator()
	lead := sampleLead(policy.ObjectionPrice, policy.SentimentSkeptical)
	text := render.Render(policy.StrategyConsultative, lead)

	a := r.Score(lead, policy.StrategyConsultative, text)
	b := r.Score(lead, policy.StrategyConsultative, text)
	assert.Equal(t, a, b)
}

func TestRuleEvaluator_AffinityOrdering(t *testing.T) {
	r := NewRuleEvaluator()
	lead := sampleLead(policy.ObjectionTrust, policy.SentimentNeutral)
	text := "Hi Carla, here is how the growth coaching package helps. Would a short call help you decide this week?"

	proof := r.Score(lead, policy.StrategySocialProof, text)
	urgency := r.Score(lead, policy.StrategyUrgency, text)
	assert.Greater(t, proof.Score, urgency.Score, "trust objection should favour social proof")
	assert.Greater(t, proof.ConversionProbability, urgency.ConversionProbability)
}

func TestRuleEvaluator_ShortTextPenalised(t *testing.T) {
	r := NewRuleEvaluator()
	lead := sampleLead(policy.ObjectionNone, policy.SentimentNeutral)

	short := r.Score(lead, policy.StrategyConsultative, "ok")
	full := r.Score(lead, policy.StrategyConsultative, render.Render(policy.StrategyConsultative, lead))
	assert.Less(t, short.Score, full.Score)
}
