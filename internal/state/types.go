// Package state persists policy memory between runs.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region errors
// ErrNoState means no memory has been saved yet.
var ErrNoState = errors.New("no policy memory saved")

// PersistenceError wraps any failure to read or write policy memory.
// It is fatal to a run.
type PersistenceError struct {
	Op  string // "open" | "load" | "save" | "rollback" | "events"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("policy memory %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// #endregion errors

// #region store
// Store loads and saves the single active PolicyMemory.
type Store interface {
	// Load returns ErrNoState when nothing has been saved.
	Load(ctx context.Context) (*policy.Memory, error)
	Save(ctx context.Context, m *policy.Memory) error
	Close() error
}

// EventRecorder is implemented by stores that also keep per-lead round events.
type EventRecorder interface {
	RecordEvents(ctx context.Context, events []logging.RoundEvent) error
}

// Resetter is implemented by stores that can drop the active memory.
type Resetter interface {
	Reset() error
}

// #endregion store

// #region version
// Version is one saved snapshot of policy memory.
type Version struct {
	VersionID string
	ParentID  string
	Runs      int
	Epsilon   float64
	Memory    *policy.Memory
	CreatedAt time.Time
}

// #endregion version
