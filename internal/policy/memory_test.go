package policy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const tolerance = 1e-4

func testLead(id string, o Objection) Lead {
	return Lead{
		ID: id, Name: "Ana", Goal: "grow revenue", Offer: "coaching program",
		Message: "sounds interesting", Channel: ChannelSMS, Objection: o,
		Sentiment: SentimentNeutral, Phone: "+15551234567",
	}
}

func evalOf(score float64) Evaluation {
	return Evaluation{Score: score, ConversionProbability: 0.5, Source: SourcePrimary}
}

func TestNewMemory_Baseline(t *testing.T) {
	mem := NewMemory(DefaultExploration())

	if mem.Runs != 0 {
		t.Errorf("runs: got %d, want 0", mem.Runs)
	}
	if len(mem.StrategyStats) != len(Catalog) {
		t.Fatalf("stats: got %d entries, want %d", len(mem.StrategyStats), len(Catalog))
	}
	for _, s := range Catalog {
		if mem.StrategyStats[s] != (StrategyStats{}) {
			t.Errorf("%s: expected zero stats, got %+v", s, mem.StrategyStats[s])
		}
	}
	if len(mem.ObjectionPolicy) != 0 || len(mem.History) != 0 {
		t.Error("expected empty objection policy and history")
	}
	if mem.Policy.Epsilon != 0.45 {
		t.Errorf("epsilon: got %.4f, want 0.45", mem.Policy.Epsilon)
	}
}

func TestUpdate_AverageInvariant(t *testing.T) {
	mem := NewMemory(DefaultExploration())
	scores := []float64{7.25, 6.5, 8.13, 3.33, 9.99, 1.0, 5.55}

	for i, sc := range scores {
		lead := testLead(fmt.Sprintf("l%d", i), ObjectionPrice)
		mem.Update(UpdateInput{
			Lead: lead, Used: StrategyUrgency, Result: evalOf(sc),
			Candidates: map[StrategyID]Evaluation{StrategyUrgency: evalOf(sc)},
			Round: 1, Text: "hello",
		})

		for _, s := range Catalog {
			st := mem.StrategyStats[s]
			if st.Uses == 0 {
				if st.AvgScore != 0 {
					t.Fatalf("%s: avg %.4f with zero uses", s, st.AvgScore)
				}
				continue
			}
			if math.Abs(st.AvgScore-st.TotalScore/float64(st.Uses)) > tolerance {
				t.Fatalf("%s: avg %.4f != total %.4f / uses %d", s, st.AvgScore, st.TotalScore, st.Uses)
			}
		}
	}

	st := mem.StrategyStats[StrategyUrgency]
	if st.Uses != len(scores) {
		t.Errorf("uses: got %d, want %d", st.Uses, len(scores))
	}
	if mem.StrategyStats[StrategyConsultative].Uses != 0 {
		t.Error("unused strategy counters must not move")
	}
}

func TestUpdate_ObjectionPolicyBestCandidate(t *testing.T) {
	mem := NewMemory(DefaultExploration())
	lead := testLead("l1", ObjectionTrust)

	best := mem.Update(UpdateInput{
		Lead: lead, Used: StrategyConsultative, Result: evalOf(6),
		Candidates: map[StrategyID]Evaluation{
			StrategyConsultative: evalOf(6),
			StrategySocialProof:  evalOf(8.5),
			StrategyUrgency:      evalOf(4),
		},
		Round: 1,
	})
	if best != StrategySocialProof {
		t.Errorf("best: got %q, want %q", best, StrategySocialProof)
	}
	if mem.ObjectionPolicy[ObjectionTrust] != StrategySocialProof {
		t.Errorf("objection policy: got %q", mem.ObjectionPolicy[ObjectionTrust])
	}
	// counterfactual candidates never touch their own counters
	if mem.StrategyStats[StrategySocialProof].Uses != 0 {
		t.Error("candidate counters must not move")
	}

	// a later round overwrites unconditionally
	mem.Update(UpdateInput{
		Lead: lead, Used: StrategySocialProof, Result: evalOf(3),
		Candidates: map[StrategyID]Evaluation{
			StrategyConsultative: evalOf(5),
			StrategySocialProof:  evalOf(3),
			StrategyUrgency:      evalOf(7),
		},
		Round: 2,
	})
	if mem.ObjectionPolicy[ObjectionTrust] != StrategyUrgency {
		t.Errorf("overwrite: got %q, want %q", mem.ObjectionPolicy[ObjectionTrust], StrategyUrgency)
	}
}

func TestBestCandidate_TieKeepsUsed(t *testing.T) {
	cands := map[StrategyID]Evaluation{
		StrategyConsultative: evalOf(7),
		StrategySocialProof:  evalOf(7),
		StrategyUrgency:      evalOf(7),
	}
	if got := BestCandidate(StrategyUrgency, evalOf(7), cands); got != StrategyUrgency {
		t.Errorf("got %q, want used strategy %q", got, StrategyUrgency)
	}

	cands[StrategyUrgency] = evalOf(6)
	if got := BestCandidate(StrategyUrgency, evalOf(6), cands); got != StrategyConsultative {
		t.Errorf("got %q, want first-listed max %q", got, StrategyConsultative)
	}
}

func TestUpdate_HistoryCapFIFO(t *testing.T) {
	mem := NewMemory(DefaultExploration())
	total := MaxHistory + 37

	for i := 0; i < total; i++ {
		mem.Update(UpdateInput{
			Lead: testLead(fmt.Sprintf("lead-%d", i), ObjectionTiming),
			Used: StrategyConsultative, Result: evalOf(5),
			Round: i + 1, Text: "msg",
		})
		if len(mem.History) > MaxHistory {
			t.Fatalf("history exceeded cap: %d", len(mem.History))
		}
	}

	if len(mem.History) != MaxHistory {
		t.Fatalf("history: got %d, want %d", len(mem.History), MaxHistory)
	}
	if got := mem.History[0].LeadID; got != "lead-37" {
		t.Errorf("oldest retained: got %q, want lead-37", got)
	}
	if got := mem.History[MaxHistory-1].LeadID; got != fmt.Sprintf("lead-%d", total-1) {
		t.Errorf("newest: got %q", got)
	}
}

func TestUpdate_PreviewTruncated(t *testing.T) {
	mem := NewMemory(DefaultExploration())
	long := strings.Repeat("é", PreviewLen+50)
	mem.Update(UpdateInput{Lead: testLead("l1", ObjectionNone), Used: StrategyUrgency, Result: evalOf(5), Text: long})

	if got := len([]rune(mem.History[0].Preview)); got != PreviewLen {
		t.Errorf("preview runes: got %d, want %d", got, PreviewLen)
	}
}

func TestDecay_Sequence(t *testing.T) {
	mem := NewMemory(DefaultExploration())

	got := mem.Decay()
	if math.Abs(got-0.315) > tolerance {
		t.Fatalf("first decay: got %.4f, want 0.315", got)
	}

	prev := got
	for i := 0; i < 30; i++ {
		before := mem.Policy.Epsilon
		next := mem.Decay()
		want := math.Max(mem.Policy.MinEpsilon, before*mem.Policy.Decay)
		if math.Abs(next-want) > tolerance {
			t.Fatalf("step %d: got %.4f, want %.4f", i, next, want)
		}
		if next > prev {
			t.Fatalf("step %d: epsilon increased %.4f -> %.4f", i, prev, next)
		}
		if next < mem.Policy.MinEpsilon {
			t.Fatalf("step %d: epsilon %.4f below floor", i, next)
		}
		prev = next
	}
	if prev != 0.05 {
		t.Errorf("expected to settle at floor, got %.4f", prev)
	}
}

func TestUpdate_IdempotentOnClone(t *testing.T) {
	base := NewMemory(DefaultExploration())
	base.Update(UpdateInput{Lead: testLead("seed", ObjectionPrice), Used: StrategySocialProof, Result: evalOf(6.4), Round: 1})

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := UpdateInput{
		Lead: testLead("l2", ObjectionPrice), Used: StrategyConsultative, Result: evalOf(7.31),
		Candidates: map[StrategyID]Evaluation{
			StrategyConsultative: evalOf(7.31),
			StrategySocialProof:  evalOf(5.2),
			StrategyUrgency:      evalOf(8.01),
		},
		Round: 2, Text: "candidate text", At: at,
	}

	scratch := base.Clone()
	scratch.Update(in)

	inline := base.Clone()
	inline.Update(in)

	if diff := cmp.Diff(scratch.StrategyStats, inline.StrategyStats); diff != "" {
		t.Errorf("stats mismatch (-scratch +inline):\n%s", diff)
	}
	if diff := cmp.Diff(scratch.ObjectionPolicy, inline.ObjectionPolicy); diff != "" {
		t.Errorf("objection policy mismatch (-scratch +inline):\n%s", diff)
	}
	// the source memory is untouched by either clone
	if base.StrategyStats[StrategyConsultative].Uses != 0 {
		t.Error("clone mutation leaked into base")
	}
}

func TestDecodeMemory_RoundTrip(t *testing.T) {
	mem := NewMemory(DefaultExploration())
	mem.Runs = 3
	mem.ObjectionPolicy[ObjectionPrice] = StrategyUrgency
	mem.Update(UpdateInput{
		Lead: testLead("l1", ObjectionPrice), Used: StrategyUrgency, Result: evalOf(7),
		At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	data, err := mem.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, key := range []string{`"runs"`, `"policy"`, `"minEpsilon"`, `"strategyStats"`, `"totalScore"`, `"avgScore"`, `"objectionPolicy"`, `"history"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("encoded memory missing %s", key)
		}
	}

	got, err := DecodeMemory(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(mem, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMemory_RejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"strategy-key", `{"strategyStats":{"bribery":{"uses":1}},"policy":{"epsilon":0.4,"decay":0.7,"minEpsilon":0.05}}`, ErrUnknownStrategy},
		{"objection-key", `{"objectionPolicy":{"weather":"urgency"},"policy":{"epsilon":0.4,"decay":0.7,"minEpsilon":0.05}}`, ErrUnknownObjection},
		{"objection-value", `{"objectionPolicy":{"price":"bribery"},"policy":{"epsilon":0.4,"decay":0.7,"minEpsilon":0.05}}`, ErrUnknownStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMemory([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeMemory_FillsMissingStrategies(t *testing.T) {
	got, err := DecodeMemory([]byte(`{"runs":2,"policy":{"epsilon":0.2,"decay":0.7,"minEpsilon":0.05}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, s := range Catalog {
		if _, ok := got.StrategyStats[s]; !ok {
			t.Errorf("missing stats for %s", s)
		}
	}
}

func TestExplorationValidate_NonFinite(t *testing.T) {
	tests := []struct {
		name string
		exp  Exploration
	}{
		{"nan-epsilon", Exploration{Epsilon: math.NaN(), Decay: 0.7, MinEpsilon: 0.05}},
		{"nan-decay", Exploration{Epsilon: 0.45, Decay: math.NaN(), MinEpsilon: 0.05}},
		{"inf-floor", Exploration{Epsilon: 0.45, Decay: 0.7, MinEpsilon: math.Inf(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.exp.Validate(); err == nil {
				t.Fatalf("expected error for %+v", tt.exp)
			}
		})
	}
	if err := DefaultExploration().Validate(); err != nil {
		t.Fatalf("default exploration: %v", err)
	}
}
