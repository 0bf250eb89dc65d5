// Package leads loads inbound leads from YAML or JSON files.
package leads

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region raw
// Record is the on-disk shape of a lead. Enum fields stay strings until
// Parse validates them. Empty objection or sentiment is inferred from the message.
type Record struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Goal      string `yaml:"goal" json:"goal"`
	Offer     string `yaml:"offer" json:"offer"`
	Message   string `yaml:"message" json:"message"`
	Channel   string `yaml:"channel" json:"channel"`
	Objection string `yaml:"objection" json:"objection"`
	Sentiment string `yaml:"sentiment" json:"sentiment"`
	Phone     string `yaml:"phone" json:"phone"`
}

type file struct {
	Leads []Record `yaml:"leads" json:"leads"`
}

// #endregion raw

// #region load
// Load reads a lead file. The format follows the extension: .yaml, .yml or .json.
// The document is either a list of leads or an object with a "leads" list.
func Load(path string) ([]policy.Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leads: %w", err)
	}

	var records []Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		records, err = decodeYAML(data)
	case ".json":
		records, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("leads file %s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode leads %s: %w", path, err)
	}
	return ParseAll(records)
}

func decodeYAML(data []byte) ([]Record, error) {
	var list []Record
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Leads, nil
}

func decodeJSON(data []byte) ([]Record, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []Record
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Leads, nil
}

// #endregion load

// #region parse
// ParseAll validates records in order and rejects duplicate ids.
func ParseAll(records []Record) ([]policy.Lead, error) {
	seen := make(map[string]int, len(records))
	out := make([]policy.Lead, 0, len(records))
	for i, r := range records {
		lead, err := Parse(r)
		if err != nil {
			return nil, fmt.Errorf("lead %d: %w", i, err)
		}
		if j, dup := seen[lead.ID]; dup {
			return nil, fmt.Errorf("lead %d: duplicate id %q (first at %d)", i, lead.ID, j)
		}
		seen[lead.ID] = i
		out = append(out, lead)
	}
	return out, nil
}

// Parse converts one record into a Lead.
func Parse(r Record) (policy.Lead, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return policy.Lead{}, fmt.Errorf("missing id")
	}

	channel, err := policy.ParseChannel(strings.ToLower(strings.TrimSpace(r.Channel)))
	if err != nil {
		return policy.Lead{}, fmt.Errorf("%s: %w", id, err)
	}

	objection := ClassifyObjection(r.Message)
	if raw := strings.TrimSpace(r.Objection); raw != "" {
		if objection, err = policy.ParseObjection(strings.ToLower(raw)); err != nil {
			return policy.Lead{}, fmt.Errorf("%s: %w", id, err)
		}
	}

	sentiment := ClassifySentiment(r.Message)
	if raw := strings.TrimSpace(r.Sentiment); raw != "" {
		if sentiment, err = policy.ParseSentiment(strings.ToLower(raw)); err != nil {
			return policy.Lead{}, fmt.Errorf("%s: %w", id, err)
		}
	}

	return policy.Lead{
		ID:        id,
		Name:      strings.TrimSpace(r.Name),
		Goal:      strings.TrimSpace(r.Goal),
		Offer:     strings.TrimSpace(r.Offer),
		Message:   r.Message,
		Channel:   channel,
		Objection: objection,
		Sentiment: sentiment,
		Phone:     strings.TrimSpace(r.Phone),
	}, nil
}

// #endregion parse

// #region demo
// Demo returns the three-lead demo set, one per price, trust and timing objection.
func Demo() []policy.Lead {
	return []policy.Lead{
		{
			ID: "lead-ana", Name: "Ana", Goal: "get more booked consultations",
			Offer:     "done-for-you follow-up automation",
			Message:   "Looks interesting but it's too expensive for us right now.",
			Channel:   policy.ChannelWhatsApp,
			Objection: policy.ObjectionPrice, Sentiment: policy.SentimentSkeptical,
			Phone: "+5511987654321",
		},
		{
			ID: "lead-bruno", Name: "Bruno", Goal: "stop losing leads after the first message",
			Offer:     "AI sales assistant with CRM sync",
			Message:   "How do I know this actually works? I got burned before.",
			Channel:   policy.ChannelSMS,
			Objection: policy.ObjectionTrust, Sentiment: policy.SentimentUncertain,
			Phone: "+14155550123",
		},
		{
			ID: "lead-carla", Name: "Carla", Goal: "launch the new course before summer",
			Offer:     "launch sprint coaching package",
			Message:   "Sounds good, but maybe next month, we're busy.",
			Channel:   policy.ChannelWebChat,
			Objection: policy.ObjectionTiming, Sentiment: policy.SentimentNeutral,
		},
	}
}

// #endregion demo
