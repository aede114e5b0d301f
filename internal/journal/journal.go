// Package journal keeps a local history of runs and deliveries in SQLite.
//
// The journal is observability, not state. The seen-set alone decides
// what gets sent; every journal failure degrades to a warning and the
// notifier keeps working without it.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrDisabled is returned by queries when the journal database could not
// be opened.
var ErrDisabled = errors.New("journal: disabled")

const schema = `
-- One row per scheduled run
CREATE TABLE IF NOT EXISTS run_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL,
    badge_count   INTEGER NOT NULL DEFAULT 0,
    discovered    INTEGER NOT NULL DEFAULT 0,
    fresh         INTEGER NOT NULL DEFAULT 0,
    delivered     INTEGER NOT NULL DEFAULT 0,
    failed        INTEGER NOT NULL DEFAULT 0,
    dry_run       INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_run_log_time ON run_log(started_at DESC);

-- One row per send attempt
CREATE TABLE IF NOT EXISTS delivery_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      INTEGER NOT NULL REFERENCES run_log(id) ON DELETE CASCADE,
    identity    TEXT NOT NULL,
    title       TEXT NOT NULL,
    delivered   INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    sent_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_delivery_log_run ON delivery_log(run_id);
`

// Run summarises one notifier run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	BadgeCount int
	Discovered int
	Fresh      int
	Delivered  int
	Failed     int
	DryRun     bool
	Error      string
}

// Delivery records one send attempt within a run.
type Delivery struct {
	Identity  string
	Title     string
	Delivered bool
	Error     string
	SentAt    time.Time
}

// Journal wraps the history database. A Journal whose database failed to
// open stays usable: writes become no-ops, reads return ErrDisabled.
type Journal struct {
	log  *slog.Logger
	path string
	db   *sql.DB
}

// Open prepares the journal at path, creating parent directories and the
// schema as needed. Open failures disable the journal instead of
// propagating; history is never worth failing a run over.
func Open(path string, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	j := &Journal{log: log, path: path}
	if path == "" {
		log.Debug("journal: no path configured, disabled")
		return j
	}
	db, err := open(path)
	if err != nil {
		log.Warn("journal: disabled", "path", path, "err", err)
		return j
	}
	j.db = db
	log.Debug("journal: ready", "path", path)
	return j
}

// Enabled reports whether the journal database is open.
func (j *Journal) Enabled() bool { return j.db != nil }

// Close releases the database. Safe on a disabled journal.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordRun inserts the run and its deliveries in one transaction.
// Failures are logged and swallowed.
func (j *Journal) RecordRun(ctx context.Context, run Run, deliveries []Delivery) {
	if j.db == nil {
		return
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		j.log.Warn("journal: begin", "err", err)
		return
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO run_log (started_at, finished_at, badge_count, discovered,
		fresh, delivered, failed, dry_run, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.BadgeCount,
		run.Discovered, run.Fresh, run.Delivered, run.Failed,
		boolToInt(run.DryRun), run.Error,
	)
	if err != nil {
		tx.Rollback()
		j.log.Warn("journal: insert run", "err", err)
		return
	}
	runID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		j.log.Warn("journal: run id", "err", err)
		return
	}
	for _, d := range deliveries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO delivery_log (run_id, identity, title, delivered, error, sent_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, d.Identity, d.Title, boolToInt(d.Delivered), d.Error,
			d.SentAt.UnixMilli(),
		); err != nil {
			tx.Rollback()
			j.log.Warn("journal: insert delivery", "identity", d.Identity, "err", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		j.log.Warn("journal: commit", "err", err)
		return
	}
	j.log.Debug("journal: run recorded", "run_id", runID, "deliveries", len(deliveries))
}

// RecentRuns returns runs newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if j.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, badge_count, discovered,
		fresh, delivered, failed, dry_run, error
		FROM run_log ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		var dryRun int
		if err := rows.Scan(&r.ID, &started, &finished, &r.BadgeCount,
			&r.Discovered, &r.Fresh, &r.Delivered, &r.Failed, &dryRun,
			&r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		r.DryRun = dryRun != 0
		result = append(result, r)
	}
	return result, rows.Err()
}

// RunDeliveries returns the send attempts of one run, oldest first.
func (j *Journal) RunDeliveries(ctx context.Context, runID int64) ([]Delivery, error) {
	if j.db == nil {
		return nil, ErrDisabled
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT identity, title, delivered, error, sent_at
		FROM delivery_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Delivery
	for rows.Next() {
		var d Delivery
		var delivered int
		var sentAt int64
		if err := rows.Scan(&d.Identity, &d.Title, &delivered, &d.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Delivered = delivered != 0
		d.SentAt = time.UnixMilli(sentAt)
		result = append(result, d)
	}
	return result, rows.Err()
}

func open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("journal: mkdir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return db, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
