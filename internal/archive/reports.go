package archive

import "database/sql"

// SaveReport stores or replaces the markdown summary for a run.
func (db *DB) SaveReport(runID, bodyMarkdown string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO reports (run_id, body_markdown) VALUES (?, ?)`,
		runID, bodyMarkdown,
	)
	return err
}

// GetReport returns the stored report for a run, or nil if none exists.
func (db *DB) GetReport(runID string) (*Report, error) {
	row := db.conn.QueryRow(
		`SELECT run_id, body_markdown, generated_at FROM reports WHERE run_id = ?`, runID,
	)

	var r Report
	if err := row.Scan(&r.RunID, &r.BodyMarkdown, &r.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
