package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS eval_records (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    chat_id             INTEGER NOT NULL,
    user_msg_id         INTEGER NOT NULL,
    eval_msg_id         INTEGER,
    created_by_user_id  INTEGER NOT NULL,
    revision_id         INTEGER NOT NULL,
    page_state          INTEGER NOT NULL DEFAULT 0,
    UNIQUE (user_msg_id, chat_id)
);

CREATE TABLE IF NOT EXISTS eval_revisions (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id           INTEGER NOT NULL,
    perma_link          TEXT,
    rendered_code       TEXT NOT NULL,
    warning_count       INTEGER NOT NULL DEFAULT 0,
    error_count         INTEGER NOT NULL DEFAULT 0,
    result_success      INTEGER NOT NULL DEFAULT 0,
    result_code         TEXT NOT NULL DEFAULT '',
    result_exit_detail  TEXT NOT NULL DEFAULT '',
    result_stdout       TEXT NOT NULL DEFAULT '',
    result_stderr       TEXT NOT NULL DEFAULT '',
    playground_error    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_eval_revisions_record ON eval_revisions(record_id);
`

// Open opens (creating if needed) the sqlite database at dbPath and runs the
// schema migration. The returned handle is meant to be owned exclusively by a
// Store; nothing else should touch it.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// All access is serialized through the Store worker; a single pooled
	// connection keeps that ownership real at the database/sql level too.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return db, nil
}
