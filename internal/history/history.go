// Package history keeps an append-only SQLite log of executed operations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fileman/internal/engine"
)

// Outcome values stored in the outcome column
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDryRun  = "dry_run"
)

// DB manages the SQLite database of operation history
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Record represents a single executed operation
type Record struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Op         string    `json:"op"`
	Source     string    `json:"source,omitempty"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Bytes      int64     `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
}

// Open creates a new database connection and initializes schema
func Open(dbPath string) (*DB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// One writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	// Forces creation of the file so permission problems surface here
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize history database (check permissions on %s): %w", dbPath, err)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &DB{db: db, now: time.Now}
	if err = hdb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		op TEXT NOT NULL,
		source TEXT,
		target TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_kind TEXT,
		detail TEXT,
		bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_operations_op ON operations(op);
	CREATE INDEX IF NOT EXISTS idx_operations_outcome ON operations(outcome);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Record inserts one operation into the database
func (d *DB) Record(ctx context.Context, r Record) (int64, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = d.now()
	}
	res, err := d.db.ExecContext(ctx, `
	INSERT INTO operations (
		timestamp, op, source, target, outcome, error_kind, detail, bytes, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Timestamp.UTC(),
		r.Op,
		r.Source,
		r.Target,
		r.Outcome,
		r.ErrorKind,
		r.Detail,
		r.Bytes,
		r.DurationMS,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record %s operation: %w", r.Op, err)
	}
	return res.LastInsertId()
}

// Observe implements engine.Observer
func (d *DB) Observe(ctx context.Context, ev engine.Event) error {
	_, err := d.Record(ctx, FromEvent(ev))
	return err
}

// FromEvent converts an engine event into a history row
func FromEvent(ev engine.Event) Record {
	res := ev.Result
	r := Record{
		Timestamp:  ev.StartedAt,
		Op:         string(res.Op),
		Source:     ev.Source,
		Target:     ev.Target,
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
	}
	switch {
	case !res.OK():
		r.Outcome = OutcomeFailure
		r.ErrorKind = res.Err.Kind.String()
		r.Detail = res.Err.Detail()
	case ev.DryRun:
		r.Outcome = OutcomeDryRun
		r.Detail = res.Summary
	default:
		r.Outcome = OutcomeSuccess
		r.Detail = res.Summary
	}
	return r
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database
func (d *DB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
