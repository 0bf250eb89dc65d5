package policy

// #region reason

// Reason explains how a strategy was selected.
type Reason string

const (
	ReasonWarmup          Reason = "warmup"
	ReasonObjectionPolicy Reason = "objection_policy"
	ReasonBestAverage     Reason = "best_average"
)

// Selection is the selector's output for one lead.
type Selection struct {
	Strategy StrategyID
	Reason   Reason
}

// #endregion reason

// #region selector

// Selector picks the strategy to use for a lead in a round.
type Selector struct {
	warmupRounds int
}

// NewSelector creates a selector with the given warm-up length.
func NewSelector(warmupRounds int) *Selector {
	return &Selector{warmupRounds: warmupRounds}
}

// #endregion selector

// #region select

// Select returns the strategy for a lead. round is 1-based; seq is the lead's
// 0-based position within the round.
// Warm-up rounds cycle the catalog by seq; later rounds use the learned
// objection mapping, then the best running average.
func (s *Selector) Select(m *Memory, objection Objection, round, seq int) Selection {
	if round <= s.warmupRounds {
		idx := seq % len(Catalog)
		if idx < 0 {
			idx += len(Catalog)
		}
		return Selection{Strategy: Catalog[idx], Reason: ReasonWarmup}
	}

	if sid, ok := m.ObjectionPolicy[objection]; ok && sid.Valid() {
		return Selection{Strategy: sid, Reason: ReasonObjectionPolicy}
	}

	return Selection{Strategy: BestAverage(m), Reason: ReasonBestAverage}
}

// BestAverage returns the strategy with the highest running average.
// Catalog order breaks ties.
func BestAverage(m *Memory) StrategyID {
	best := Catalog[0]
	bestAvg := m.StrategyStats[best].AvgScore
	for _, sid := range Catalog[1:] {
		if avg := m.StrategyStats[sid].AvgScore; avg > bestAvg {
			best = sid
			bestAvg = avg
		}
	}
	return best
}

// #endregion select
