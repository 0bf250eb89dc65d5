package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #endregion imports

// #region execute

// Execute loads memory from store (baseline when none is saved), runs every
// round and saves the result. Persistence failures abort the run and are
// returned as *state.PersistenceError. Event logging failures are not fatal.
func (o *Orchestrator) Execute(ctx context.Context, store state.Store, leads []policy.Lead) (*RunReport, error) {
	mem, err := store.Load(ctx)
	if errors.Is(err, state.ErrNoState) {
		o.logger.Info("no saved memory, starting from baseline",
			zap.Float64("epsilon", o.config.Exploration.Epsilon))
		mem = policy.NewMemory(o.config.Exploration)
	} else if err != nil {
		return nil, err
	}

	report, err := o.Run(ctx, mem, leads)
	if err != nil {
		return nil, err
	}

	if err := store.Save(ctx, mem); err != nil {
		o.logger.Error("save memory failed", zap.String("run", report.RunID), zap.Error(err))
		return nil, err
	}

	if rec, ok := store.(state.EventRecorder); ok {
		if err := rec.RecordEvents(ctx, RoundEvents(report)); err != nil {
			o.logger.Warn("record round events failed", zap.String("run", report.RunID), zap.Error(err))
		}
	}
	return report, nil
}

// #endregion execute

// #region round-events

// RoundEvents converts a report's lead events into round_events rows.
func RoundEvents(report *RunReport) []logging.RoundEvent {
	events := report.Events()
	out := make([]logging.RoundEvent, 0, len(events))
	for _, ev := range events {
		row := logging.RoundEvent{
			EventID:         uuid.New().String(),
			RunID:           report.RunID,
			Round:           ev.Round,
			Seq:             ev.Seq,
			LeadID:          ev.LeadID,
			Objection:       string(ev.Objection),
			Strategy:        string(ev.Strategy),
			SelectionReason: string(ev.Reason),
			BestStrategy:    string(ev.BestStrategy),
			Score:           ev.Result.Score,
			Conversion:      ev.Result.ConversionProbability,
			Source:          string(ev.Result.Source),
		}
		if data, err := json.Marshal(ev.Candidates); err == nil {
			row.CandidatesJSON = string(data)
		}
		if esc := ev.Escalation; esc != nil {
			row.Escalated = true
			row.EscalationStatus = esc.Status
			row.EscalationError = esc.Error
		}
		out = append(out, row)
	}
	return out
}

// #endregion round-events
