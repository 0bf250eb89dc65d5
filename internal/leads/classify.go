package leads

// #region imports
import (
	"strings"
	"unicode"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #endregion imports

// #region keywords

var priceKeywords = []string{
	"price", "pricing", "expensive", "cost", "costs", "budget", "afford",
	"cheaper", "too much", "discount", "worth it", "money",
}

var trustKeywords = []string{
	"scam", "legit", "trust", "reviews", "proof", "guarantee",
	"results", "testimonials", "burned before", "not sure it works",
}

var timingKeywords = []string{
	"later", "next month", "next year", "busy", "not now", "timing",
	"no time", "after the holidays", "in a few weeks", "not the right time",
}

var authorityKeywords = []string{
	"my boss", "my manager", "my partner", "my wife", "my husband",
	"the team", "approval", "decide together", "check with",
}

var needKeywords = []string{
	"don't need", "do not need", "not needed", "already have",
	"not for me", "why would i", "what's the point",
}

var frustratedKeywords = []string{
	"annoyed", "frustrated", "tired of", "fed up", "ridiculous", "waste of time",
}

var negativeKeywords = []string{
	"no thanks", "not interested", "stop", "bad", "terrible", "hate",
}

var skepticalKeywords = []string{
	"scam", "no way", "doubt", "skeptical", "prove", "too good to be true",
}

var uncertainKeywords = []string{
	"not sure", "maybe", "unsure", "i guess", "don't know", "hmm",
}

var positiveKeywords = []string{
	"great", "love", "excited", "sounds good", "interested", "perfect", "awesome",
}

// #endregion keywords

// #region classify

// ClassifyObjection labels a message via keyword heuristics. No model call.
// Categories are checked in a fixed order; the first hit wins.
func ClassifyObjection(message string) policy.Objection {
	lower := normalize(message)
	if lower == "" {
		return policy.ObjectionNone
	}

	// Need before price: "don't need to spend money" is a need objection
	if containsAny(lower, needKeywords) {
		return policy.ObjectionNeed
	}
	if containsAny(lower, priceKeywords) {
		return policy.ObjectionPrice
	}
	if containsAny(lower, trustKeywords) {
		return policy.ObjectionTrust
	}
	if containsAny(lower, timingKeywords) {
		return policy.ObjectionTiming
	}
	if containsAny(lower, authorityKeywords) {
		return policy.ObjectionAuthority
	}
	return policy.ObjectionNone
}

// ClassifySentiment labels a message's mood via keyword heuristics.
func ClassifySentiment(message string) policy.Sentiment {
	lower := normalize(message)

	switch {
	case containsAny(lower, frustratedKeywords):
		return policy.SentimentFrustrated
	case containsAny(lower, skepticalKeywords):
		return policy.SentimentSkeptical
	case containsAny(lower, negativeKeywords):
		return policy.SentimentNegative
	case containsAny(lower, uncertainKeywords):
		return policy.SentimentUncertain
	case containsAny(lower, positiveKeywords):
		return policy.SentimentPositive
	}
	return policy.SentimentNeutral
}

// #endregion classify

// #region helpers

// normalize lowercases message and reduces it to its words joined by single
// spaces, padded on both ends. Apostrophes stay inside words ("don't") and are
// stripped when used as quotes.
func normalize(message string) string {
	lower := strings.ToLower(strings.ReplaceAll(message, "’", "'"))
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	kept := words[:0]
	for _, w := range words {
		if w = strings.Trim(w, "'"); w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return " " + strings.Join(kept, " ") + " "
}

// containsAny reports whether any keyword occurs as whole words in a
// normalized message. "prove" does not match "improve".
func containsAny(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(normalized, normalize(kw)) {
			return true
		}
	}
	return false
}

// #endregion helpers
