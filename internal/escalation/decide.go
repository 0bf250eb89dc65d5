// Package escalation decides when a text lead moves to a voice call and
// places that call through a provider.
package escalation

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region decider
// Decider applies the channel-escalation rules.
type Decider struct {
	config Config
}

// NewDecider creates a decider with the given thresholds.
func NewDecider(config Config) *Decider {
	return &Decider{config: config}
}

// #endregion decider

// #region decide
// Decide escalates only when the round gate, channel, phone and friction
// conditions all hold. Unmet preconditions are listed in Blocked.
func (d *Decider) Decide(lead policy.Lead, result policy.Evaluation, round int) Decision {
	var blocked []string

	// 1. Round gate
	if round < d.config.MinRound {
		blocked = append(blocked, fmt.Sprintf("round %d before min round %d", round, d.config.MinRound))
	}

	// 2. Text-capable channel
	if !lead.Channel.TextCapable() {
		blocked = append(blocked, fmt.Sprintf("channel %q is not text-capable", lead.Channel))
	}

	// 3. Usable phone
	if strings.TrimSpace(lead.Phone) == "" {
		blocked = append(blocked, "no phone number")
	}

	// 4. Friction signal
	var friction []string
	if lead.Sentiment.Friction() {
		friction = append(friction, fmt.Sprintf("sentiment=%s", lead.Sentiment))
	}
	if result.ConversionProbability < d.config.ConversionThreshold {
		friction = append(friction, fmt.Sprintf("conversion %.2f < %.2f", result.ConversionProbability, d.config.ConversionThreshold))
	}
	if len(friction) == 0 {
		blocked = append(blocked, "no friction signal")
	}

	if len(blocked) > 0 {
		return Decision{
			Escalate: false,
			Reason:   fmt.Sprintf("no escalation: %s", blocked[0]),
			Friction: friction,
			Blocked:  blocked,
		}
	}
	return Decision{
		Escalate: true,
		Reason:   fmt.Sprintf("escalate: %s", strings.Join(friction, ", ")),
		Friction: friction,
	}
}

// ShouldEscalate is the boolean form of Decide.
func (d *Decider) ShouldEscalate(lead policy.Lead, result policy.Evaluation, round int) bool {
	return d.Decide(lead, result, round).Escalate
}

// #endregion decide
