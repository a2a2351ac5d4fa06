// Package report composes the stored markdown summary for a pipeline run:
// what was selected, what was rendered and how the run ended.
package report

import (
	"fmt"
	"log"
	"strings"

	"github.com/newsreel/newsreel/internal/archive"
)

// Composer builds run reports from the archive and stores them back.
type Composer struct {
	db *archive.DB
}

// NewComposer creates a new report composer.
func NewComposer(db *archive.DB) *Composer {
	return &Composer{db: db}
}

// Compose assembles and stores the report for a run.
func (c *Composer) Compose(runID string) (*archive.Report, error) {
	run, err := c.db.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	articles, err := c.db.ArticlesForRun(runID)
	if err != nil {
		return nil, err
	}
	videos, err := c.db.VideosForRun(runID)
	if err != nil {
		return nil, err
	}

	body := assembleBody(run, articles, videos)
	if err := c.db.SaveReport(runID, body); err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	log.Printf("report composed for run %s: %d stories, %d videos", runID, len(articles), len(videos))
	return c.db.GetReport(runID)
}

func assembleBody(run *archive.Run, articles []archive.RunArticle, videos []archive.VideoRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s run %s\n\n", titleKind(run.Kind), run.StartedAt)
	fmt.Fprintf(&b, "- Status: %s\n", run.Status)
	fmt.Fprintf(&b, "- Stories: %d\n", run.StoryCount)
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "- Finished: %s\n", *run.FinishedAt)
	}

	b.WriteString("\n## Stories\n\n")
	if len(articles) == 0 {
		b.WriteString("No stories were selected.\n")
	}
	for i, a := range articles {
		line := fmt.Sprintf("%d. %s", i+1, a.Title)
		if a.Link != nil && *a.Link != "" {
			line = fmt.Sprintf("%d. [%s](%s)", i+1, a.Title, *a.Link)
		}
		var meta []string
		if a.Source != nil && *a.Source != "" {
			meta = append(meta, *a.Source)
		}
		if a.Category != nil && *a.Category != "" {
			meta = append(meta, *a.Category)
		}
		if len(meta) > 0 {
			line += " (" + strings.Join(meta, ", ") + ")"
		}
		b.WriteString(line + "\n")
	}

	if len(videos) > 0 {
		b.WriteString("\n## Videos\n\n")
		for _, v := range videos {
			line := fmt.Sprintf("- `%s` (%s, %.1fs)", v.Path, v.Orientation, v.Duration)
			if v.PublishAt != nil && *v.PublishAt != "" {
				line += ", publish at " + *v.PublishAt
			}
			b.WriteString(line + "\n")
		}
	}

	if run.Error != nil && *run.Error != "" {
		b.WriteString("\n## Error\n\n")
		b.WriteString(*run.Error + "\n")
	}

	return b.String()
}

func titleKind(kind string) string {
	if kind == "" {
		return "Unknown"
	}
	return strings.ToUpper(kind[:1]) + kind[1:]
}
