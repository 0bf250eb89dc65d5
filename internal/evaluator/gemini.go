package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiJudge scores candidates with a Gemini model in JSON mode.
type GeminiJudge struct {
	client *genai.Client
	model  string
}

// NewGeminiJudge creates a judge backed by the Gemini API.
func NewGeminiJudge(ctx context.Context, apiKey, model string) (*GeminiJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiJudge{client: client, model: model}, nil
}

// Evaluate asks the model for a JSON verdict and parses it.
func (g *GeminiJudge) Evaluate(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(judgePrompt(lead, strategy, text)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return policy.Evaluation{}, fmt.Errorf("gemini generate: %w", err)
	}
	return parseJudgeVerdict(resp.Text())
}

func judgePrompt(lead policy.Lead, strategy policy.StrategyID, text string) string {
	var b strings.Builder
	b.WriteString("You are grading a sales reply to a hesitant lead.\n")
	fmt.Fprintf(&b, "Lead goal: %s\nOffer: %s\nLead message: %s\n", lead.Goal, lead.Offer, lead.Message)
	fmt.Fprintf(&b, "Objection: %s\nSentiment: %s\nChannel: %s\n", lead.Objection, lead.Sentiment, lead.Channel)
	fmt.Fprintf(&b, "Strategy: %s\nReply:\n%s\n\n", strategy, text)
	fmt.Fprintf(&b, "Return only JSON: {\"score\": number %g-%g, \"conversion_probability\": number %g-%g, \"notes\": string under %d chars}.",
		policy.MinScore, policy.MaxScore, policy.MinConversion, policy.MaxConversion, policy.MaxNotesLen)
	return b.String()
}

type judgeVerdict struct {
	Score                 *float64 `json:"score"`
	ConversionProbability *float64 `json:"conversion_probability"`
	Notes                 string   `json:"notes"`
}

// parseJudgeVerdict accepts bare JSON or a fenced ```json block.
func parseJudgeVerdict(raw string) (policy.Evaluation, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var v judgeVerdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return policy.Evaluation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v.Score == nil || v.ConversionProbability == nil {
		return policy.Evaluation{}, fmt.Errorf("%w: missing score or conversion_probability", ErrMalformed)
	}
	return policy.Evaluation{
		Score:                 *v.Score,
		ConversionProbability: *v.ConversionProbability,
		Notes:                 v.Notes,
	}, nil
}
