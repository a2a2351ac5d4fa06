package archive

// Run represents one pipeline invocation.
type Run struct {
	ID         string
	Kind       string // "daily", "weekly" or "breaking"
	StartedAt  string
	FinishedAt *string
	Status     string // "running", "completed" or "failed"
	StoryCount int
	Error      *string
}

// RunArticle is an article that made the cut for a run.
type RunArticle struct {
	RunID      string
	Hash       string
	Title      string
	Source     *string
	Category   *string
	Link       *string
	StoryIndex int
}

// VideoRecord describes one rendered video file.
type VideoRecord struct {
	ID          int64
	RunID       string
	Path        string
	Orientation string
	Duration    float64
	Title       *string
	PublishAt   *string
}

// Report holds the stored markdown summary for a run.
type Report struct {
	RunID        string
	BodyMarkdown string
	GeneratedAt  *string
}

// Stats contains aggregate archive statistics.
type Stats struct {
	TotalRuns     int
	CompletedRuns int
	FailedRuns    int
	TotalArticles int
	TotalVideos   int
}
