package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region schema
// EventSchema creates the round_events table.
const EventSchema = `
CREATE TABLE IF NOT EXISTS round_events (
	event_id          TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	round             INTEGER NOT NULL,
	seq               INTEGER NOT NULL,
	lead_id           TEXT NOT NULL,
	objection         TEXT NOT NULL,
	strategy          TEXT NOT NULL,
	selection_reason  TEXT NOT NULL,
	best_strategy     TEXT NOT NULL,
	score             REAL NOT NULL,
	conversion        REAL NOT NULL,
	source            TEXT NOT NULL,
	candidates_json   TEXT,
	escalated         INTEGER NOT NULL DEFAULT 0,
	escalation_status TEXT,
	escalation_error  TEXT,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_round_events_run ON round_events(run_id, round, seq);
`

// #endregion schema

// #region round-event
// RoundEvent is a single row in the round_events table.
type RoundEvent struct {
	EventID          string
	RunID            string
	Round            int
	Seq              int
	LeadID           string
	Objection        string
	Strategy         string
	SelectionReason  string
	BestStrategy     string
	Score            float64
	Conversion       float64
	Source           string
	CandidatesJSON   string
	Escalated        bool
	EscalationStatus string
	EscalationError  string
	CreatedAt        time.Time
}

// #endregion round-event

// #region log-round-event
// LogRoundEvent writes one event row.
func LogRoundEvent(ctx context.Context, db *sql.DB, ev RoundEvent) error {
	return insertEvent(ctx, db, ev)
}

// LogRoundEvents writes a batch of events in one transaction.
func LogRoundEvents(ctx context.Context, db *sql.DB, events []RoundEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, ev RoundEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	escalated := 0
	if ev.Escalated {
		escalated = 1
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO round_events (event_id, run_id, round, seq, lead_id, objection, strategy,
		 selection_reason, best_strategy, score, conversion, source, candidates_json,
		 escalated, escalation_status, escalation_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID,
		ev.RunID,
		ev.Round,
		ev.Seq,
		ev.LeadID,
		ev.Objection,
		ev.Strategy,
		ev.SelectionReason,
		ev.BestStrategy,
		ev.Score,
		ev.Conversion,
		ev.Source,
		nullIfEmpty(ev.CandidatesJSON),
		escalated,
		nullIfEmpty(ev.EscalationStatus),
		nullIfEmpty(ev.EscalationError),
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log round event: %w", err)
	}
	return nil
}

// #endregion log-round-event

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
