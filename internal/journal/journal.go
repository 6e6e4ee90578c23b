// Package journal records executed actions in SQLite so budgets and the
// activity summary have something to count. The default ":memory:" path
// keeps the journal inside process RAM; nothing outlives the process
// unless an operator points it at a file.
package journal

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database holding the action journal.
type DB struct{ sql *sql.DB }

// Action is one recorded entry.
type Action struct {
	TS      time.Time
	Type    string
	Target  string
	Outcome string
}

func Open(path string) (*DB, error) {
	if path == "" {
		path = ":memory:"
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The in-memory default closes its schema with the last connection.
	d.SetMaxOpenConns(1)
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS actions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  type TEXT NOT NULL,
	  target TEXT,
	  outcome TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);
	`)
	return err
}

// Record stores one action.
func (d *DB) Record(ctx context.Context, ts time.Time, typ, target, outcome string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO actions(ts, type, target, outcome) VALUES(?,?,?,?)`,
		ts.Unix(), typ, target, outcome)
	return err
}

// CountWithin returns how many actions of typ landed in [start, end).
func (d *DB) CountWithin(ctx context.Context, start, end time.Time, typ string) (int, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actions WHERE ts>=? AND ts<? AND type=?`,
		start.Unix(), end.Unix(), typ)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Recent returns the newest actions, most recent first.
func (d *DB) Recent(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT ts, type, COALESCE(target,''), COALESCE(outcome,'') FROM actions ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		var ts int64
		var a Action
		if err := rows.Scan(&ts, &a.Type, &a.Target, &a.Outcome); err != nil {
			return nil, err
		}
		a.TS = time.Unix(ts, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
