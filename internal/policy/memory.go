package policy

// #region imports
import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// #endregion imports

// #region memory-struct

// Memory is the policy aggregate: per-strategy stats, the objection mapping,
// the exploration schedule, a bounded history and the run counter.
// A Memory has a single writer; callers serialize mutation.
type Memory struct {
	Runs            int                          `json:"runs"`
	Policy          Exploration                  `json:"policy"`
	StrategyStats   map[StrategyID]StrategyStats `json:"strategyStats"`
	ObjectionPolicy map[Objection]StrategyID     `json:"objectionPolicy"`
	History         []HistoryEvent               `json:"history"`
}

// NewMemory returns the baseline: zero counts, empty mapping, empty history.
func NewMemory(exp Exploration) *Memory {
	stats := make(map[StrategyID]StrategyStats, len(Catalog))
	for _, s := range Catalog {
		stats[s] = StrategyStats{}
	}
	return &Memory{
		Policy:          exp,
		StrategyStats:   stats,
		ObjectionPolicy: make(map[Objection]StrategyID),
		History:         []HistoryEvent{},
	}
}

// #endregion memory-struct

// #region decode

// DecodeMemory parses the persisted JSON shape. Unknown strategy or objection
// keys fail; catalog strategies missing from the document start at zero.
func DecodeMemory(data []byte) (*Memory, error) {
	var m Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode memory: %w", err)
	}
	if m.StrategyStats == nil {
		m.StrategyStats = make(map[StrategyID]StrategyStats, len(Catalog))
	}
	for _, s := range Catalog {
		if _, ok := m.StrategyStats[s]; !ok {
			m.StrategyStats[s] = StrategyStats{}
		}
	}
	if m.ObjectionPolicy == nil {
		m.ObjectionPolicy = make(map[Objection]StrategyID)
	}
	if m.History == nil {
		m.History = []HistoryEvent{}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode renders the persisted JSON shape.
func (m *Memory) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Validate checks key membership and exploration bounds.
func (m *Memory) Validate() error {
	for s := range m.StrategyStats {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
		}
	}
	for o, s := range m.ObjectionPolicy {
		if !o.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownObjection, o)
		}
		if !s.Valid() {
			return fmt.Errorf("objection %s: %w: %q", o, ErrUnknownStrategy, s)
		}
	}
	if len(m.History) > MaxHistory {
		return fmt.Errorf("history has %d entries, cap is %d", len(m.History), MaxHistory)
	}
	return m.Policy.Validate()
}

// #endregion decode

// #region clone

// Clone returns a deep copy.
func (m *Memory) Clone() *Memory {
	c := &Memory{
		Runs:            m.Runs,
		Policy:          m.Policy,
		StrategyStats:   make(map[StrategyID]StrategyStats, len(m.StrategyStats)),
		ObjectionPolicy: make(map[Objection]StrategyID, len(m.ObjectionPolicy)),
		History:         make([]HistoryEvent, len(m.History)),
	}
	for k, v := range m.StrategyStats {
		c.StrategyStats[k] = v
	}
	for k, v := range m.ObjectionPolicy {
		c.ObjectionPolicy[k] = v
	}
	copy(c.History, m.History)
	return c
}

// #endregion clone

// #region update

// UpdateInput carries one lead's outcome into Update.
type UpdateInput struct {
	Lead       Lead
	Used       StrategyID
	Result     Evaluation
	Candidates map[StrategyID]Evaluation
	Round      int
	Text       string
	At         time.Time
}

// Update records the used strategy's score, rewrites the objection mapping
// with this lead's best candidate and appends a history event.
// Only the used strategy's counters move. Returns the best candidate.
func (m *Memory) Update(in UpdateInput) StrategyID {
	st := m.StrategyStats[in.Used]
	st.Uses++
	st.TotalScore = round4(st.TotalScore + in.Result.Score)
	st.AvgScore = round4(st.TotalScore / float64(st.Uses))
	m.StrategyStats[in.Used] = st

	best := BestCandidate(in.Used, in.Result, in.Candidates)
	m.ObjectionPolicy[in.Lead.Objection] = best

	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	m.appendHistory(HistoryEvent{
		Timestamp:             at,
		Round:                 in.Round,
		LeadID:                in.Lead.ID,
		Objection:             in.Lead.Objection,
		Strategy:              in.Used,
		Score:                 round2(in.Result.Score),
		ConversionProbability: round2(in.Result.ConversionProbability),
		Preview:               Preview(in.Text),
	})
	return best
}

// BestCandidate returns the highest-scoring strategy. The used strategy wins
// ties; among the rest, catalog order wins.
func BestCandidate(used StrategyID, usedResult Evaluation, candidates map[StrategyID]Evaluation) StrategyID {
	best := used
	bestScore := usedResult.Score
	if ev, ok := candidates[used]; ok {
		bestScore = ev.Score
	}
	for _, s := range Catalog {
		ev, ok := candidates[s]
		if !ok {
			continue
		}
		if ev.Score > bestScore {
			best = s
			bestScore = ev.Score
		}
	}
	return best
}

func (m *Memory) appendHistory(ev HistoryEvent) {
	m.History = append(m.History, ev)
	if excess := len(m.History) - MaxHistory; excess > 0 {
		trimmed := make([]HistoryEvent, MaxHistory)
		copy(trimmed, m.History[excess:])
		m.History = trimmed
	}
}

// #endregion update

// #region decay

// Decay applies one round of exploration decay: max(floor, epsilon*decay).
func (m *Memory) Decay() float64 {
	p := m.Policy
	next := round4(math.Max(p.MinEpsilon, p.Epsilon*p.Decay))
	if next < p.MinEpsilon {
		next = p.MinEpsilon
	}
	if next > p.Epsilon {
		next = p.Epsilon
	}
	m.Policy.Epsilon = next
	return next
}

// #endregion decay

// #region helpers

// Preview truncates text to PreviewLen runes.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLen {
		return text
	}
	return string(r[:PreviewLen])
}

func round4(x float64) float64 { return math.Round(x*1e4) / 1e4 }

func round2(x float64) float64 { return math.Round(x*100) / 100 }

// Round2 rounds to two decimals, the display precision for scores.
func Round2(x float64) float64 { return round2(x) }

// #endregion helpers
