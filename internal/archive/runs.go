package archive

import (
	"database/sql"
	"time"
)

// CreateRun records the start of a pipeline run in the "running" state.
func (db *DB) CreateRun(id, kind string, startedAt time.Time) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, kind, started_at, status) VALUES (?, ?, ?, 'running')`,
		id, kind, startedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FinishRun closes a run. runErr may be nil for a successful run.
func (db *DB) FinishRun(id, status string, storyCount int, runErr error) error {
	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}
	_, err := db.conn.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, story_count = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, storyCount, errText, id,
	)
	return err
}

// GetRun returns a single run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, kind, started_at, finished_at, status, story_count, error
		FROM runs WHERE id = ?`, id,
	)

	var r Run
	if err := row.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.FinishedAt,
		&r.Status, &r.StoryCount, &r.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, kind, started_at, finished_at, status, story_count, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.FinishedAt,
			&r.Status, &r.StoryCount, &r.Error); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AddArticle attaches a selected article to a run. Re-adding the same
// article hash overwrites the previous row.
func (db *DB) AddArticle(runID, hash, title string, source, category, link *string, storyIndex int) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO run_articles
		(run_id, article_hash, title, source, category, link, story_index)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, hash, title, source, category, link, storyIndex,
	)
	return err
}

// ArticlesForRun returns a run's articles in story order.
func (db *DB) ArticlesForRun(runID string) ([]RunArticle, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, article_hash, title, source, category, link, story_index
		FROM run_articles WHERE run_id = ? ORDER BY story_index`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []RunArticle
	for rows.Next() {
		var a RunArticle
		if err := rows.Scan(&a.RunID, &a.Hash, &a.Title, &a.Source,
			&a.Category, &a.Link, &a.StoryIndex); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Stats returns aggregate archive statistics.
func (db *DB) Stats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.TotalRuns},
		{"SELECT COUNT(*) FROM runs WHERE status = 'completed'", &s.CompletedRuns},
		{"SELECT COUNT(*) FROM runs WHERE status = 'failed'", &s.FailedRuns},
		{"SELECT COUNT(*) FROM run_articles", &s.TotalArticles},
		{"SELECT COUNT(*) FROM videos", &s.TotalVideos},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
