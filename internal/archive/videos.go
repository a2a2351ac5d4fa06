package archive

import "time"

// AddVideo records a rendered video for a run. Returns the row ID.
func (db *DB) AddVideo(runID, path, orientation string, duration float64, title string, publishAt time.Time) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO videos (run_id, path, orientation, duration, title, publish_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, path, orientation, duration, title, publishAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// VideosForRun returns a run's videos in insertion order.
func (db *DB) VideosForRun(runID string) ([]VideoRecord, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, path, orientation, duration, title, publish_at
		FROM videos WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []VideoRecord
	for rows.Next() {
		var v VideoRecord
		if err := rows.Scan(&v.ID, &v.RunID, &v.Path, &v.Orientation,
			&v.Duration, &v.Title, &v.PublishAt); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
