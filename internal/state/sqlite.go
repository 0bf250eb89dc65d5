package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS memory_versions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL UNIQUE,
	parent_id     TEXT,
	runs          INTEGER NOT NULL,
	epsilon       REAL NOT NULL,
	memory_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_memory (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES memory_versions(version_id)
);
`

// #endregion schema

// #region store-struct
// SQLiteStore keeps every saved memory as a version and an active pointer
// to the latest (or rolled-back-to) one.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fail("open", fmt.Errorf("open db: %w", err))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("pragma: %w", err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("pragma fk: %w", err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("migrate: %w", err))
	}
	if _, err := db.Exec(logging.EventSchema); err != nil {
		db.Close()
		return nil, fail("open", fmt.Errorf("migrate events: %w", err))
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// #endregion close

// #region load
// Load reads the active memory version.
func (s *SQLiteStore) Load(ctx context.Context) (*policy.Memory, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx, `SELECT version_id FROM active_memory WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fail("load", fmt.Errorf("get active: %w", err))
	}
	v, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return v.Memory, nil
}

// #endregion load

// #region save
// Save inserts a new version and moves the active pointer atomically.
func (s *SQLiteStore) Save(ctx context.Context, m *policy.Memory) error {
	data, err := m.Encode()
	if err != nil {
		return fail("save", fmt.Errorf("encode memory: %w", err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("save", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT version_id FROM active_memory WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fail("save", fmt.Errorf("get active: %w", err))
	}

	var parentPtr interface{}
	if parent.Valid {
		parentPtr = parent.String
	}

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_versions (version_id, parent_id, runs, epsilon, memory_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, parentPtr, m.Runs, m.Policy.Epsilon, string(data), s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fail("save", fmt.Errorf("insert version: %w", err))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_memory (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return fail("save", fmt.Errorf("set active: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fail("save", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// #endregion save

// #region get-version
// GetVersion retrieves a specific memory version by ID.
func (s *SQLiteStore) GetVersion(ctx context.Context, id string) (Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, runs, epsilon, memory_json, created_at
		 FROM memory_versions WHERE version_id = ?`, id)
	v, err := scanVersion(row)
	if err != nil {
		return Version{}, fail("load", fmt.Errorf("get version %s: %w", id, err))
	}
	return v, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row scanner) (Version, error) {
	var v Version
	var parentID sql.NullString
	var memJSON, createdStr string

	if err := row.Scan(&v.VersionID, &parentID, &v.Runs, &v.Epsilon, &memJSON, &createdStr); err != nil {
		return Version{}, err
	}
	if parentID.Valid {
		v.ParentID = parentID.String
	}
	m, err := policy.DecodeMemory([]byte(memJSON))
	if err != nil {
		return Version{}, err
	}
	v.Memory = m
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return v, nil
}

// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *SQLiteStore) Rollback(ctx context.Context, targetVersionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fail("rollback", fmt.Errorf("check version: %w", err))
	}
	if exists == 0 {
		return fail("rollback", fmt.Errorf("version %s not found", targetVersionID))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO active_memory (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fail("rollback", err)
	}
	return nil
}

// Reset clears the active pointer. Saved versions are kept for rollback.
func (s *SQLiteStore) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM active_memory`); err != nil {
		return fail("save", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent memory versions, newest first.
func (s *SQLiteStore) ListVersions(ctx context.Context, limit int) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, runs, epsilon, memory_json, created_at
		 FROM memory_versions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fail("load", fmt.Errorf("list versions: %w", err))
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fail("load", fmt.Errorf("scan row: %w", err))
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("load", err)
	}
	return versions, nil
}

// #endregion list-versions

// #region events
// RecordEvents stores a run's per-lead events.
func (s *SQLiteStore) RecordEvents(ctx context.Context, events []logging.RoundEvent) error {
	if len(events) == 0 {
		return nil
	}
	return fail("events", logging.LogRoundEvents(ctx, s.db, events))
}

// CountEvents returns the number of stored events for a run.
func (s *SQLiteStore) CountEvents(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM round_events WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// #endregion events
