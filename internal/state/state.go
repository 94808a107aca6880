// Package state persists sync state in a local SQLite database: the
// per-entity watermarks and the history of sync runs.
//
// The watermark table is the single owner of watermark values. Commit is
// synchronous and durable (synchronous=FULL): once it returns, a crash
// cannot lose the advance, and a failed commit leaves the prior value
// intact. Commits are serialized per store, giving the single-writer
// discipline the engine relies on.
package state

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

const schema = `
CREATE TABLE IF NOT EXISTS watermarks (
	entity_name            TEXT PRIMARY KEY,
	watermark_type         TEXT NOT NULL,
	watermark_value        TEXT NOT NULL,
	last_success_timestamp TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id               TEXT PRIMARY KEY,
	entity_name      TEXT NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	finished_at      TIMESTAMP NOT NULL,
	rows_transferred INTEGER NOT NULL DEFAULT 0,
	full_load        INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	error            TEXT,
	parent_rows      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_entity ON sync_runs(entity_name, started_at);
`

// State is the SQLite-backed store.
type State struct {
	db *sql.DB
	mu sync.Mutex // serializes watermark commits
}

// Open opens (creating if necessary) the state database at path.
func Open(path string) (*State, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state schema: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the underlying database.
func (s *State) Close() error {
	return s.db.Close()
}

// Get returns the current watermark for the entity, or the sentinel minimum
// if the entity has never been synchronized. Unknown entities are not an
// error.
func (s *State) Get(entityName string, typ watermark.Type) (watermark.Value, error) {
	var storedType, raw string
	err := s.db.QueryRow(
		`SELECT watermark_type, watermark_value FROM watermarks WHERE entity_name = ?`,
		entityName,
	).Scan(&storedType, &raw)
	if err == sql.ErrNoRows {
		return watermark.Sentinel(typ), nil
	}
	if err != nil {
		return watermark.Value{}, fmt.Errorf("reading watermark for %s: %w", entityName, err)
	}
	if storedType != string(typ) {
		return watermark.Value{}, fmt.Errorf("watermark for %s is %s, entity declares %s", entityName, storedType, typ)
	}
	return watermark.Parse(typ, raw)
}

// Commit durably replaces the stored watermark. A commit that would move
// the watermark backward is rejected; committing an equal value refreshes
// last_success_timestamp only.
func (s *State) Commit(entityName string, v watermark.Value) error {
	if v.IsSentinel() {
		return fmt.Errorf("committing sentinel watermark for %s; use Reset instead", entityName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.Get(entityName, v.Type)
	if err != nil {
		return syncerr.Wrap(syncerr.ErrWatermarkCommit, err)
	}
	cmp, err := v.Compare(prev)
	if err != nil {
		return syncerr.Wrap(syncerr.ErrWatermarkCommit, err)
	}
	if cmp < 0 {
		return syncerr.Wrap(syncerr.ErrWatermarkCommit,
			fmt.Errorf("watermark for %s would move backward (%s -> %s)", entityName, prev, v))
	}

	_, err = s.db.Exec(`
		INSERT INTO watermarks (entity_name, watermark_type, watermark_value, last_success_timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_name) DO UPDATE SET
			watermark_type = excluded.watermark_type,
			watermark_value = excluded.watermark_value,
			last_success_timestamp = excluded.last_success_timestamp`,
		entityName, string(v.Type), v.Raw, time.Now().UTC())
	if err != nil {
		return syncerr.Wrap(syncerr.ErrWatermarkCommit, err)
	}
	return nil
}

// Reset sets the entity's watermark back to the sentinel minimum.
// Administrative operation, used only outside normal cycles.
func (s *State) Reset(entityName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM watermarks WHERE entity_name = ?`, entityName)
	if err != nil {
		return fmt.Errorf("resetting watermark for %s: %w", entityName, err)
	}
	return nil
}

// WatermarkInfo is one row of the watermark table, for status reporting.
type WatermarkInfo struct {
	Entity      string
	Type        watermark.Type
	Value       watermark.Value
	LastSuccess time.Time
}

// Watermarks lists all stored watermarks ordered by entity name.
func (s *State) Watermarks() ([]WatermarkInfo, error) {
	rows, err := s.db.Query(
		`SELECT entity_name, watermark_type, watermark_value, last_success_timestamp
		 FROM watermarks ORDER BY entity_name`)
	if err != nil {
		return nil, fmt.Errorf("listing watermarks: %w", err)
	}
	defer rows.Close()

	var infos []WatermarkInfo
	for rows.Next() {
		var info WatermarkInfo
		var typ, raw string
		if err := rows.Scan(&info.Entity, &typ, &raw, &info.LastSuccess); err != nil {
			return nil, err
		}
		info.Type = watermark.Type(typ)
		v, err := watermark.Parse(info.Type, raw)
		if err != nil {
			return nil, err
		}
		info.Value = v
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Run statuses.
const (
	RunSuccess = "success"
	RunFailed  = "failed"
)

// RunRecord is one completed sync cycle, successful or not.
type RunRecord struct {
	ID         string
	Entity     string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       int64
	FullLoad   bool
	Status     string
	Error      string
	ParentRows *int64 // set when the run was triggered by a cascade
}

// RecordRun appends a run to the history.
func (s *State) RecordRun(r RunRecord) error {
	fullLoad := 0
	if r.FullLoad {
		fullLoad = 1
	}
	var parentRows any
	if r.ParentRows != nil {
		parentRows = *r.ParentRows
	}
	_, err := s.db.Exec(`
		INSERT INTO sync_runs (id, entity_name, started_at, finished_at, rows_transferred, full_load, status, error, parent_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Entity, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Rows, fullLoad, r.Status, r.Error, parentRows)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// RecordCycle records one completed cycle, assigning it a run ID. It is
// the run-recorder hook used by the cascade controller.
func (s *State) RecordCycle(entity string, started, finished time.Time, rows int64, fullLoad bool, parentRows *int64, runErr error) error {
	r := RunRecord{
		ID:         uuid.NewString(),
		Entity:     entity,
		StartedAt:  started,
		FinishedAt: finished,
		Rows:       rows,
		FullLoad:   fullLoad,
		ParentRows: parentRows,
		Status:     RunSuccess,
	}
	if runErr != nil {
		r.Status = RunFailed
		r.Error = runErr.Error()
	}
	return s.RecordRun(r)
}

// Runs returns run history, newest first. An empty entity matches all
// entities; limit <= 0 means no limit.
func (s *State) Runs(entityName string, limit int) ([]RunRecord, error) {
	query := `SELECT id, entity_name, started_at, finished_at, rows_transferred, full_load, status, COALESCE(error, ''), parent_rows
		FROM sync_runs`
	var args []any
	if entityName != "" {
		query += ` WHERE entity_name = ?`
		args = append(args, entityName)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var fullLoad int
		var parentRows sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Entity, &r.StartedAt, &r.FinishedAt, &r.Rows, &fullLoad, &r.Status, &r.Error, &parentRows); err != nil {
			return nil, err
		}
		r.FullLoad = fullLoad != 0
		if parentRows.Valid {
			v := parentRows.Int64
			r.ParentRows = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
