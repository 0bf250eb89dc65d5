package escalation

import "errors"

// #region errors
// ErrInvalidPhone marks a number that is not E.164.
var ErrInvalidPhone = errors.New("invalid phone number")

// #endregion errors

// #region status
// Dispatch statuses.
const (
	StatusQueued       = "queued"
	StatusUnconfirmed  = "unconfirmed"
	StatusDryRun       = "dry_run"
	StatusInvalidPhone = "invalid_phone"
	StatusRejected     = "rejected"
	StatusFailed       = "failed"
)

// #endregion status

// #region config
// Config holds escalation thresholds.
type Config struct {
	MinRound            int     // escalation disabled before this round
	ConversionThreshold float64 // friction when conversion probability is below this
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		MinRound:            2,
		ConversionThreshold: 0.58,
	}
}

// #endregion config

// #region decision
// Decision is the output of Decide.
type Decision struct {
	Escalate bool
	Reason   string   // summary for logs
	Friction []string // friction signals found; empty when none
	Blocked  []string // unmet preconditions; empty when escalating
}

// #endregion decision

// #region dispatch-result
// Result is the voice provider's answer to a call request.
type Result struct {
	Accepted bool   `json:"accepted"`
	Status   string `json:"status"`
	CallID   string `json:"callId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// #endregion dispatch-result
