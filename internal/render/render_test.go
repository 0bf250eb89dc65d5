package render

import (
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

func TestRender_DistinctPerStrategy(t *testing.T) {
	lead := policy.Lead{
		ID: "l1", Name: "Bruno", Goal: "close more deals", Offer: "the sales sprint",
		Channel: policy.ChannelSMS, Objection: policy.ObjectionPrice, Sentiment: policy.SentimentNeutral,
	}

	seen := map[string]policy.StrategyID{}
	for _, s := range policy.Catalog {
		text := Render(s, lead)
		if !strings.Contains(text, "Bruno") {
			t.Errorf("%s: missing lead name: %q", s, text)
		}
		if !strings.Contains(text, "the sales sprint") {
			t.Errorf("%s: missing offer: %q", s, text)
		}
		if prev, dup := seen[text]; dup {
			t.Errorf("%s renders the same text as %s", s, prev)
		}
		seen[text] = s
	}
}

func TestRender_Deterministic(t *testing.T) {
	lead := policy.Lead{Name: "", Goal: "g", Offer: "o", Objection: policy.ObjectionTiming}
	a := Render(policy.StrategyUrgency, lead)
	b := Render(policy.StrategyUrgency, lead)
	if a != b {
		t.Fatalf("render not deterministic:\n%q\n%q", a, b)
	}
	if !strings.HasPrefix(a, "Hi there!") {
		t.Errorf("empty name fallback: got %q", a)
	}
}
