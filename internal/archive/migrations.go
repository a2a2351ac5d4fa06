package archive

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK(kind IN ('daily', 'weekly', 'breaking')),
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL DEFAULT 'running',
    story_count INTEGER DEFAULT 0,
    error TEXT
);

CREATE TABLE IF NOT EXISTS run_articles (
    run_id TEXT NOT NULL REFERENCES runs(id),
    article_hash TEXT NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    category TEXT,
    link TEXT,
    story_index INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, article_hash)
);

CREATE TABLE IF NOT EXISTS videos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    path TEXT NOT NULL,
    orientation TEXT NOT NULL,
    duration REAL DEFAULT 0,
    title TEXT,
    publish_at TEXT
);

CREATE TABLE IF NOT EXISTS reports (
    run_id TEXT PRIMARY KEY REFERENCES runs(id),
    body_markdown TEXT NOT NULL,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_articles_run ON run_articles(run_id);
CREATE INDEX IF NOT EXISTS idx_videos_run ON videos(run_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
