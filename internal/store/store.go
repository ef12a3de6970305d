// Package store mirrors the derived vault snapshot (tasks, tags, backlinks)
// into SQLite so the API and MCP layers can run filtered queries without
// touching orchestrator state. The mirror is replaced wholesale each refresh
// cycle; it is a query surface, not a source of truth.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nordmark/raido/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT NOT NULL,
	note_path     TEXT NOT NULL,
	line_number   INTEGER NOT NULL,
	title         TEXT NOT NULL,
	status        TEXT NOT NULL,
	owner         TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	due           TEXT NOT NULL DEFAULT '',
	priority      TEXT NOT NULL DEFAULT '',
	original_line TEXT NOT NULL,
	PRIMARY KEY (note_path, line_number)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project);

CREATE TABLE IF NOT EXISTS tags (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS backlinks (
	key         TEXT NOT NULL,
	source_path TEXT NOT NULL,
	UNIQUE(key, source_path)
);

CREATE INDEX IF NOT EXISTS idx_backlinks_key ON backlinks(key);
`

// DB wraps a sql.DB with snapshot mirror operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ReplaceSnapshot swaps the whole mirror in one transaction: previous rows
// are dropped, the new cycle's rows inserted. Readers never observe a
// partial cycle.
func (db *DB) ReplaceSnapshot(tasks []models.Task, tagSet []string, backlinks map[string][]*models.NoteMeta) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, table := range []string{"tasks", "tags", "backlinks"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}

	taskStmt, err := tx.Prepare(`
		INSERT INTO tasks (id, note_path, line_number, title, status, owner, project, due, priority, original_line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare task insert: %w", err)
	}
	defer taskStmt.Close()
	for _, t := range tasks {
		if _, err := taskStmt.Exec(t.ID, t.NotePath, t.LineNumber, t.Title, string(t.Status),
			t.Owner, t.Project, t.Due, t.Priority, t.OriginalLine); err != nil {
			return fmt.Errorf("store: insert task: %w", err)
		}
	}

	tagStmt, err := tx.Prepare(`INSERT OR IGNORE INTO tags (name) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("store: prepare tag insert: %w", err)
	}
	defer tagStmt.Close()
	for _, tag := range tagSet {
		if _, err := tagStmt.Exec(tag); err != nil {
			return fmt.Errorf("store: insert tag: %w", err)
		}
	}

	blStmt, err := tx.Prepare(`INSERT OR IGNORE INTO backlinks (key, source_path) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare backlink insert: %w", err)
	}
	defer blStmt.Close()
	for key, sources := range backlinks {
		for _, src := range sources {
			if _, err := blStmt.Exec(key, src.ID); err != nil {
				return fmt.Errorf("store: insert backlink: %w", err)
			}
		}
	}

	return tx.Commit()
}

// TaskFilter narrows ListTasks results. Zero values mean "no constraint".
type TaskFilter struct {
	Status   string
	Project  string
	Owner    string
	Priority string
	Query    string // LIKE match against the title
	Limit    int
}

// Filter applies a TaskFilter against an in-memory task slice with the same
// matching semantics as ListTasks: exact matches on the metadata fields,
// case-insensitive substring match on the title. Callers without a mirror DB
// use this against the live snapshot.
func Filter(all []models.Task, f TaskFilter) []models.Task {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	out := make([]models.Task, 0, len(all))
	for _, t := range all {
		if f.Status != "" && string(t.Status) != f.Status {
			continue
		}
		if f.Project != "" && t.Project != f.Project {
			continue
		}
		if f.Owner != "" && t.Owner != f.Owner {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ListTasks returns tasks matching the filter, ordered by note path then
// line number (the flatten order of the source snapshot).
func (db *DB) ListTasks(f TaskFilter) ([]models.Task, error) {
	q := `SELECT id, note_path, line_number, title, status, owner, project, due, priority, original_line FROM tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Project != "" {
		q += ` AND project = ?`
		args = append(args, f.Project)
	}
	if f.Owner != "" {
		q += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	if f.Priority != "" {
		q += ` AND priority = ?`
		args = append(args, f.Priority)
	}
	if f.Query != "" {
		q += ` AND title LIKE ?`
		args = append(args, "%"+f.Query+"%")
	}
	q += ` ORDER BY note_path, line_number`
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	q += ` LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		var status string
		if err := rows.Scan(&t.ID, &t.NotePath, &t.LineNumber, &t.Title, &status,
			&t.Owner, &t.Project, &t.Due, &t.Priority, &t.OriginalLine); err != nil {
			return nil, err
		}
		t.Status = models.TaskStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Tags returns the vault-wide tag set in sorted order.
func (db *DB) Tags() ([]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// BacklinkSources returns the note paths linking to the given index key.
func (db *DB) BacklinkSources(key string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source_path FROM backlinks WHERE key = ? ORDER BY source_path`, key)
	if err != nil {
		return nil, fmt.Errorf("store: backlink sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
