package pipeline

import (
	"encoding/json"
	"os"
)

// runSummary is the hand-off file written next to the finished video. An
// external upload step reads it to schedule the release; everything it
// needs rides in one place.
type runSummary struct {
	Kind        string            `json:"kind"`
	RunID       string            `json:"run_id"`
	Video       string            `json:"video"`
	Thumbnail   string            `json:"thumbnail,omitempty"`
	Subtitles   map[string]string `json:"subtitles,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	PublishAt   string            `json:"publish_at"`
	Privacy     string            `json:"privacy"`
}

func writeSummary(path string, s runSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
