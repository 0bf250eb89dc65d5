// Package report prints a RunReport for humans (console) or machines (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/adaptive-policy/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

var (
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	roundStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// Render writes the console report. Section markers are plain text inside
// the styling so they survive a non-terminal writer.
func Render(w io.Writer, r *orchestrator.RunReport) error {
	var b strings.Builder

	for _, rs := range r.Rounds {
		line := fmt.Sprintf("ROUND %d avg=%.2f epsilon=%.4f", rs.Round, rs.Average, rs.Epsilon)
		b.WriteString(roundStyle.Render(line) + "\n")
		for _, ev := range rs.Events {
			b.WriteString(detailStyle.Render(fmt.Sprintf("  %-14s %-10s %-13s %-16s score=%.2f conv=%.2f %s",
				ev.LeadID, ev.Objection, ev.Strategy, ev.Reason, ev.Result.Score,
				ev.Result.ConversionProbability, ev.Result.Source)) + "\n")
		}
	}

	b.WriteString("\n" + headingStyle.Render("POLICY") + "\n")
	fmt.Fprintf(&b, "  runs=%d epsilon=%.4f decay=%.2f minEpsilon=%.2f\n",
		r.Runs, r.Policy.Epsilon, r.Policy.Decay, r.Policy.MinEpsilon)

	b.WriteString("\n" + headingStyle.Render("STRATEGY STATS") + "\n")
	for _, s := range policy.Catalog {
		st := r.StrategyStats[s]
		fmt.Fprintf(&b, "  %-13s uses=%d total=%.4f avg=%.4f\n", s, st.Uses, st.TotalScore, st.AvgScore)
	}

	b.WriteString("\n" + headingStyle.Render("OBJECTION POLICY") + "\n")
	objections := make([]string, 0, len(r.ObjectionPolicy))
	for o := range r.ObjectionPolicy {
		objections = append(objections, string(o))
	}
	sort.Strings(objections)
	if len(objections) == 0 {
		b.WriteString(detailStyle.Render("  (no preference yet)") + "\n")
	}
	for _, o := range objections {
		fmt.Fprintf(&b, "  %-10s -> %s\n", o, r.ObjectionPolicy[policy.Objection(o)])
	}

	b.WriteString("\n" + headingStyle.Render("SUMMARY") + "\n")
	delta := fmt.Sprintf("delta=%+.2f", r.Summary.Delta)
	if r.Summary.Delta >= 0 {
		delta = goodStyle.Render(delta)
	} else {
		delta = badStyle.Render(delta)
	}
	fmt.Fprintf(&b, "  first=%.2f last=%.2f %s\n", r.Summary.First, r.Summary.Last, delta)

	b.WriteString("\n" + headingStyle.Render("ESCALATIONS") + "\n")
	if len(r.Escalations) == 0 {
		b.WriteString(detailStyle.Render("  (none)") + "\n")
	}
	for _, e := range r.Escalations {
		status := goodStyle.Render(e.Status)
		if !e.Accepted {
			status = badStyle.Render(e.Status)
		}
		fmt.Fprintf(&b, "  round=%d lead=%s strategy=%s status=%s", e.Round, e.LeadID, e.Strategy, status)
		if e.Error != "" {
			fmt.Fprintf(&b, " error=%q", e.Error)
		}
		b.WriteString("\n")
	}

	if len(r.Violations) > 0 {
		b.WriteString("\n" + badStyle.Render("VIOLATIONS") + "\n")
		for _, v := range r.Violations {
			b.WriteString("  " + v + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, r *orchestrator.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderMemory writes the memory snapshot and its most recent history.
func RenderMemory(w io.Writer, m *policy.Memory, historyLimit int) error {
	var b strings.Builder
	b.WriteString(headingStyle.Render("POLICY") + "\n")
	fmt.Fprintf(&b, "  runs=%d epsilon=%.4f decay=%.2f minEpsilon=%.2f\n",
		m.Runs, m.Policy.Epsilon, m.Policy.Decay, m.Policy.MinEpsilon)

	b.WriteString("\n" + headingStyle.Render("STRATEGY STATS") + "\n")
	for _, s := range policy.Catalog {
		st := m.StrategyStats[s]
		fmt.Fprintf(&b, "  %-13s uses=%d total=%.4f avg=%.4f\n", s, st.Uses, st.TotalScore, st.AvgScore)
	}

	b.WriteString("\n" + headingStyle.Render("OBJECTION POLICY") + "\n")
	keys := make([]string, 0, len(m.ObjectionPolicy))
	for o := range m.ObjectionPolicy {
		keys = append(keys, string(o))
	}
	sort.Strings(keys)
	for _, o := range keys {
		fmt.Fprintf(&b, "  %-10s -> %s\n", o, m.ObjectionPolicy[policy.Objection(o)])
	}

	history := m.History
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	fmt.Fprintf(&b, "\n%s (%d of %d)\n", headingStyle.Render("HISTORY"), len(history), len(m.History))
	for _, h := range history {
		b.WriteString(detailStyle.Render(fmt.Sprintf("  r%d %-14s %-10s %-13s score=%.2f conv=%.2f %q",
			h.Round, h.LeadID, h.Objection, h.Strategy, h.Score, h.ConversionProbability, h.Preview)) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
