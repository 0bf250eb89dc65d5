// Package render assembles the outbound text for a strategy.
package render

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region objection-lines

var objectionLines = map[policy.Objection]string{
	policy.ObjectionPrice:     "I know budget matters, so let's look at what this pays back.",
	policy.ObjectionTrust:     "It's fair to want proof before committing.",
	policy.ObjectionTiming:    "I hear that the timing feels tight.",
	policy.ObjectionAuthority: "Happy to put together something you can share with your team.",
	policy.ObjectionNeed:      "Let's check whether this actually fits what you need.",
	policy.ObjectionNone:      "Thanks for reaching out.",
}

// #endregion objection-lines

// #region render

// Render builds the response text for a strategy applied to a lead.
func Render(strategy policy.StrategyID, lead policy.Lead) string {
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		name = "there"
	}
	opener := fmt.Sprintf("Hi %s! %s", name, objectionLines[lead.Objection])

	var body string
	switch strategy {
	case policy.StrategyConsultative:
		body = fmt.Sprintf(
			"You mentioned you want to %s. Could you tell me where you're stuck today? "+
				"Then I can show exactly how %s maps to that goal, step by step.",
			lead.Goal, lead.Offer)
	case policy.StrategySocialProof:
		body = fmt.Sprintf(
			"Clients with the same goal (%s) used %s and saw results within the first weeks. "+
				"Want me to send you two short case studies from people in your situation?",
			lead.Goal, lead.Offer)
	case policy.StrategyUrgency:
		body = fmt.Sprintf(
			"This week's enrollment for %s closes soon and spots are limited. "+
				"If you want to %s this quarter, shall I reserve a place for you today?",
			lead.Offer, lead.Goal)
	default:
		body = fmt.Sprintf("Here is more about %s.", lead.Offer)
	}
	return opener + " " + body
}

// #endregion render
