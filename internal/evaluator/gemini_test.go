package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

func TestParseJudgeVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    policy.Evaluation
		wantErr error
	}{
		{"bare", `{"score": 7.5, "conversion_probability": 0.62, "notes": "clear ask"}`,
			policy.Evaluation{Score: 7.5, ConversionProbability: 0.62, Notes: "clear ask"}, nil},
		{"fenced", "```json\n{\"score\": 4, \"conversion_probability\": 0.3}\n```",
			policy.Evaluation{Score: 4, ConversionProbability: 0.3}, nil},
		{"missing-score", `{"conversion_probability": 0.3}`, policy.Evaluation{}, ErrMalformed},
		{"not-json", `the reply is great`, policy.Evaluation{}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJudgeVerdict(tt.raw)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJudgePrompt_CarriesCandidate(t *testing.T) {
	lead := sampleLead(policy.ObjectionPrice, policy.SentimentSkeptical)
	p := judgePrompt(lead, policy.StrategyUrgency, "reply body here")

	for _, want := range []string{"book more clients", "growth coaching package", "price", "skeptical", "urgency", "reply body here", "conversion_probability"} {
		assert.Contains(t, p, want)
	}
}

func TestNewGeminiJudge_RequiresKey(t *testing.T) {
	_, err := NewGeminiJudge(context.Background(), "", "")
	assert.Error(t, err)
}
