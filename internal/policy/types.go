package policy

// #region imports
import (
	"errors"
	"fmt"
	"math"
	"time"
)

// #endregion imports

// #region errors

var (
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrUnknownObjection = errors.New("unknown objection category")
	ErrUnknownSentiment = errors.New("unknown sentiment")
	ErrUnknownChannel   = errors.New("unknown channel")
)

// #endregion errors

// #region strategy-id

// StrategyID identifies a response strategy from the catalog.
type StrategyID string

const (
	StrategyConsultative StrategyID = "consultative"
	StrategySocialProof  StrategyID = "social_proof"
	StrategyUrgency      StrategyID = "urgency"
)

// Catalog is the fixed, ordered strategy set. Order breaks ties and drives warm-up.
var Catalog = []StrategyID{
	StrategyConsultative,
	StrategySocialProof,
	StrategyUrgency,
}

// Valid reports whether s is in the catalog.
func (s StrategyID) Valid() bool {
	for _, c := range Catalog {
		if c == s {
			return true
		}
	}
	return false
}

// UnmarshalText rejects identifiers outside the catalog.
func (s *StrategyID) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStrategy converts a raw string into a catalog StrategyID.
func ParseStrategy(raw string) (StrategyID, error) {
	s := StrategyID(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
	return s, nil
}

// #endregion strategy-id

// #region objection

// Objection classifies why a lead is hesitant.
type Objection string

const (
	ObjectionPrice     Objection = "price"
	ObjectionTrust     Objection = "trust"
	ObjectionTiming    Objection = "timing"
	ObjectionAuthority Objection = "authority"
	ObjectionNeed      Objection = "need"
	ObjectionNone      Objection = "none"
)

var objections = []Objection{
	ObjectionPrice, ObjectionTrust, ObjectionTiming,
	ObjectionAuthority, ObjectionNeed, ObjectionNone,
}

// Valid reports whether o is a known objection category.
func (o Objection) Valid() bool {
	for _, c := range objections {
		if c == o {
			return true
		}
	}
	return false
}

// UnmarshalText rejects unknown objection categories.
func (o *Objection) UnmarshalText(b []byte) error {
	v, err := ParseObjection(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseObjection converts a raw string into an Objection.
func ParseObjection(raw string) (Objection, error) {
	o := Objection(raw)
	if !o.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownObjection, raw)
	}
	return o, nil
}

// #endregion objection

// #region sentiment

// Sentiment is the lead's labelled mood.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentSkeptical  Sentiment = "skeptical"
	SentimentUncertain  Sentiment = "uncertain"
	SentimentFrustrated Sentiment = "frustrated"
)

var sentiments = []Sentiment{
	SentimentPositive, SentimentNeutral, SentimentNegative,
	SentimentSkeptical, SentimentUncertain, SentimentFrustrated,
}

// Valid reports whether s is a known sentiment label.
func (s Sentiment) Valid() bool {
	for _, c := range sentiments {
		if c == s {
			return true
		}
	}
	return false
}

// Friction reports whether the sentiment belongs to the negative/uncertain set.
func (s Sentiment) Friction() bool {
	switch s {
	case SentimentNegative, SentimentSkeptical, SentimentUncertain, SentimentFrustrated:
		return true
	}
	return false
}

// UnmarshalText rejects unknown sentiment labels.
func (s *Sentiment) UnmarshalText(b []byte) error {
	v, err := ParseSentiment(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSentiment converts a raw string into a Sentiment.
func ParseSentiment(raw string) (Sentiment, error) {
	s := Sentiment(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSentiment, raw)
	}
	return s, nil
}

// #endregion sentiment

// #region channel

// Channel is the communication channel a lead arrived on.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelWebChat  Channel = "webchat"
	ChannelVoice    Channel = "voice"
)

var channels = []Channel{ChannelSMS, ChannelWhatsApp, ChannelEmail, ChannelWebChat, ChannelVoice}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, k := range channels {
		if k == c {
			return true
		}
	}
	return false
}

// TextCapable reports whether the channel carries text and can escalate to voice.
func (c Channel) TextCapable() bool {
	return c.Valid() && c != ChannelVoice
}

// UnmarshalText rejects unknown channels.
func (c *Channel) UnmarshalText(b []byte) error {
	v, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseChannel converts a raw string into a Channel.
func ParseChannel(raw string) (Channel, error) {
	c := Channel(raw)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, raw)
	}
	return c, nil
}

// #endregion channel

// #region lead

// Lead is an immutable inbound sales lead.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	Offer     string    `json:"offer"`
	Message   string    `json:"message"`
	Channel   Channel   `json:"channel"`
	Objection Objection `json:"objection"`
	Sentiment Sentiment `json:"sentiment"`
	Phone     string    `json:"phone,omitempty"`
}

// #endregion lead

// #region evaluation

// Source tags which evaluation path produced a result.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Score and conversion bounds for every Evaluation.
const (
	MinScore      = 1.0
	MaxScore      = 10.0
	MinConversion = 0.05
	MaxConversion = 0.95
	MaxNotesLen   = 300
)

// Evaluation scores one (lead, strategy, response) candidate.
type Evaluation struct {
	Score                 float64 `json:"score"`
	ConversionProbability float64 `json:"conversionProbability"`
	Source                Source  `json:"source"`
	Notes                 string  `json:"notes,omitempty"`
}

// InRange reports whether score and conversion probability are finite and bounded.
func (e Evaluation) InRange() bool {
	if math.IsNaN(e.Score) || math.IsNaN(e.ConversionProbability) {
		return false
	}
	return e.Score >= MinScore && e.Score <= MaxScore &&
		e.ConversionProbability >= MinConversion && e.ConversionProbability <= MaxConversion
}

// #endregion evaluation

// #region stats

// StrategyStats accumulates usage for one strategy.
type StrategyStats struct {
	Uses       int     `json:"uses"`
	TotalScore float64 `json:"totalScore"`
	AvgScore   float64 `json:"avgScore"`
}

// #endregion stats

// #region exploration

// Exploration is the decaying exploration rate with its floor.
type Exploration struct {
	Epsilon    float64 `json:"epsilon" yaml:"epsilon"`
	Decay      float64 `json:"decay" yaml:"decay"`
	MinEpsilon float64 `json:"minEpsilon" yaml:"minEpsilon"`
}

// DefaultExploration returns the reference starting policy.
func DefaultExploration() Exploration {
	return Exploration{Epsilon: 0.45, Decay: 0.7, MinEpsilon: 0.05}
}

// Validate checks 0 <= minEpsilon <= epsilon <= 1 and 0 <= decay <= 1.
// NaN and infinite values are rejected.
func (e Exploration) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"epsilon", e.Epsilon}, {"decay", e.Decay}, {"minEpsilon", e.MinEpsilon}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("exploration: %s is not a finite number", f.name)
		}
	}
	if e.MinEpsilon < 0 || e.Epsilon > 1 || e.MinEpsilon > e.Epsilon {
		return fmt.Errorf("exploration: want 0 <= minEpsilon (%.4f) <= epsilon (%.4f) <= 1", e.MinEpsilon, e.Epsilon)
	}
	if e.Decay < 0 || e.Decay > 1 {
		return fmt.Errorf("exploration: decay %.4f outside [0,1]", e.Decay)
	}
	return nil
}

// #endregion exploration

// #region history-event

// MaxHistory caps the persisted history ring.
const MaxHistory = 200

// PreviewLen is the rune limit of a history response preview.
const PreviewLen = 160

// HistoryEvent is one append-only entry of the policy history.
type HistoryEvent struct {
	Timestamp             time.Time  `json:"timestamp"`
	Round                 int        `json:"round"`
	LeadID                string     `json:"leadId"`
	Objection             Objection  `json:"objection"`
	Strategy              StrategyID `json:"strategy"`
	Score                 float64    `json:"score"`
	ConversionProbability float64    `json:"conversionProbability"`
	Preview               string     `json:"preview"`
}

// #endregion history-event
