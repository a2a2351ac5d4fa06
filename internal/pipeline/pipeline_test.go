package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newsreel/newsreel/internal/archive"
	"github.com/newsreel/newsreel/internal/config"
	"github.com/newsreel/newsreel/internal/feed"
	"github.com/newsreel/newsreel/internal/state"
)

var (
	saturdayMorning = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	tuesdayMorning  = time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC)
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results []feed.Result
	err     error
}

func (f *fakeFetcher) FetchAll(context.Context) ([]feed.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeChat routes by prompt content: image prompt requests get prompt
// lines, narration requests get a two-story script, translations get
// numbered lines.
type fakeChat struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeChat) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	switch {
	case strings.Contains(prompt, "image-generation prompts"):
		return "Professional news photograph of a harbor crane at dawn\nProfessional news photograph of a trading floor", nil
	case strings.Contains(prompt, "narration script"):
		return `[
    {"type": "intro", "story": -1, "text": "Good evening, here is the news for March 15."},
    {"type": "story", "story": 0, "text": "The first story in tonight's lineup."},
    {"type": "story", "story": 1, "text": "The second story in tonight's lineup."},
    {"type": "outro", "story": -1, "text": "Thanks for watching."}
]`, nil
	case strings.Contains(prompt, "Translate to"):
		return "1. uno\n2. dos", nil
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
}

type fakeSpeech struct {
	mu     sync.Mutex
	voices []string
}

func (f *fakeSpeech) Synthesize(_ context.Context, _, voice, outPath string) error {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

type fakeImages struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeImages) Render(_ context.Context, _, _, outPath string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return os.WriteFile(outPath, []byte("png"), 0o644)
}

// fakeRunner records every command invocation and pretends each segment is
// 2.5 seconds long when probed.
type fakeRunner struct {
	mu       sync.Mutex
	runs     [][]string
	failWhen func(args []string) bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, append([]string{name}, args...))
	if f.failWhen != nil && f.failWhen(args) {
		return fmt.Errorf("exit status 1")
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return []byte("2.5\n"), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Selection: config.Selection{DailyCount: 2, WeeklyCount: 2, BackupCount: 2, SimilarityLimit: 0.5},
		Breaking:  config.Breaking{MinSources: 3, MaxPerDay: 2},
		Speech:    config.Speech{Voices: []string{"marin", "cedar"}},
		Output:    config.Output{OutputDir: t.TempDir(), DataDir: t.TempDir()},
	}
}

func openTestDB(t *testing.T) *archive.DB {
	t.Helper()
	db, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPipeline(t *testing.T, cfg *config.Config, fetcher feed.Fetcher, runner *fakeRunner, now time.Time) (*Pipeline, *archive.DB) {
	t.Helper()
	db := openTestDB(t)
	p := &Pipeline{
		cfg:     cfg,
		db:      db,
		chat:    &fakeChat{},
		tts:     &fakeSpeech{},
		images:  &fakeImages{},
		fetcher: fetcher,
		runner:  runner,
		now:     func() time.Time { return now },
	}
	return p, db
}

// newsResults covers two categories with one article per source, all
// globally scoped and mutually dissimilar.
func newsResults() []feed.Result {
	return []feed.Result{
		{Category: "world", Source: "worldwire", Articles: []feed.Article{
			{Title: "Global summit reaches landmark climate accord", Description: "Leaders agreed on binding targets.", Source: "worldwire", Category: "world", Link: "https://worldwire.example/accord"},
		}},
		{Category: "world", Source: "globedesk", Articles: []feed.Article{
			{Title: "Ceasefire negotiations resume after long deadlock", Description: "Mediators returned to the table.", Source: "globedesk", Category: "world", Link: "https://globedesk.example/talks"},
		}},
		{Category: "business", Source: "bizdaily", Articles: []feed.Article{
			{Title: "Central bank surprises markets with a rate cut", Description: "The decision lifted equities.", Source: "bizdaily", Category: "business", Link: "https://bizdaily.example/rates"},
		}},
		{Category: "business", Source: "techledger", Articles: []feed.Article{
			{Title: "Chipmaker posts record quarterly earnings growth", Description: "Revenue beat every forecast.", Source: "techledger", Category: "business", Link: "https://techledger.example/chips"},
		}},
	}
}

func failIfSteps(t *testing.T, r *Result) {
	t.Helper()
	if err := r.Err(); err != nil {
		for _, s := range r.Steps {
			t.Logf("step %s: summary=%q err=%v", s.Name, s.Summary, s.Err)
		}
		t.Fatalf("run failed: %v", err)
	}
}

func TestRunDailyHappyPath(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{results: newsResults()}
	runner := &fakeRunner{}
	p, db := newTestPipeline(t, cfg, fetcher, runner, saturdayMorning)

	r := p.Run(context.Background(), KindDaily)
	failIfSteps(t, r)

	if r.RunID == "" {
		t.Fatal("expected a run ID")
	}
	if r.Stories != 2 {
		t.Fatalf("Stories = %d, want 2", r.Stories)
	}
	wantVideo := filepath.Join(cfg.Output.OutputDir, "daily_20250315_090000", "daily_20250315_090000_subtitled.mp4")
	if r.Video != wantVideo {
		t.Fatalf("Video = %q, want %q", r.Video, wantVideo)
	}

	// One feed snapshot serves both the strict pass and the backup pass.
	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("FetchAll called %d times, want 1", got)
	}

	run, err := db.GetRun(r.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v, %v", run, err)
	}
	if run.Kind != "daily" || run.Status != "completed" || run.StoryCount != 2 {
		t.Fatalf("run = %+v, want completed daily with 2 stories", run)
	}
	if run.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be set")
	}

	articles, err := db.ArticlesForRun(r.RunID)
	if err != nil {
		t.Fatalf("ArticlesForRun: %v", err)
	}
	if len(articles) != 2 || articles[0].StoryIndex != 0 || articles[1].StoryIndex != 1 {
		t.Fatalf("articles = %+v, want two with indexes 0 and 1", articles)
	}

	videos, err := db.VideosForRun(r.RunID)
	if err != nil || len(videos) != 1 {
		t.Fatalf("VideosForRun = %+v, %v, want one record", videos, err)
	}
	v := videos[0]
	if v.Orientation != "vertical" {
		t.Fatalf("Orientation = %q, want vertical", v.Orientation)
	}
	if v.Duration < 9.9 || v.Duration > 10.1 {
		t.Fatalf("Duration = %f, want about 10.0 (four 2.5s segments)", v.Duration)
	}
	if v.Title == nil || !strings.Contains(*v.Title, "#shorts") {
		t.Fatalf("Title = %v, want a shorts title", v.Title)
	}
	if v.PublishAt == nil || *v.PublishAt != "2025-03-15T22:00:00+09:00" {
		t.Fatalf("PublishAt = %v, want 22:00 KST same day", v.PublishAt)
	}

	rep, err := db.GetReport(r.RunID)
	if err != nil || rep == nil {
		t.Fatalf("GetReport: %v, %v", rep, err)
	}
	if !strings.Contains(rep.BodyMarkdown, "Daily run") {
		t.Fatalf("report body = %q, want a daily heading", rep.BodyMarkdown)
	}

	// Strict pass took two articles and the backup pass the other two.
	used, err := state.LoadUsedSet(filepath.Join(cfg.Output.DataDir, "used_daily.json"), state.DefaultMaxUsed)
	if err != nil {
		t.Fatalf("loading used set: %v", err)
	}
	if used.Len() != 4 {
		t.Fatalf("used set has %d identities, want 4", used.Len())
	}

	if _, err := os.Stat(filepath.Join(cfg.Output.DataDir, "daily.lock")); !os.IsNotExist(err) {
		t.Fatalf("expected the run lock to be released, stat err = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.Output.OutputDir, "daily_20250315_090000", "daily_20250315_090000_summary.json"))
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	var summary struct {
		Kind      string            `json:"kind"`
		RunID     string            `json:"run_id"`
		Video     string            `json:"video"`
		Subtitles map[string]string `json:"subtitles"`
		Title     string            `json:"title"`
		PublishAt string            `json:"publish_at"`
		Privacy   string            `json:"privacy"`
	}
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("parsing summary: %v", err)
	}
	if summary.Kind != "daily" || summary.RunID != r.RunID || summary.Video != r.Video {
		t.Fatalf("summary = %+v, want the run's own identifiers", summary)
	}
	if summary.Privacy != "private" || summary.PublishAt != "2025-03-15T22:00:00+09:00" {
		t.Fatalf("summary schedule = %s/%s, want private at 22:00 KST", summary.Privacy, summary.PublishAt)
	}
	srt, ok := summary.Subtitles["en"]
	if !ok {
		t.Fatal("summary is missing the English subtitle track")
	}
	if _, err := os.Stat(srt); err != nil {
		t.Fatalf("subtitle file: %v", err)
	}
}

func TestRunWeeklyHappyPath(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{results: newsResults()}
	runner := &fakeRunner{}
	p, db := newTestPipeline(t, cfg, fetcher, runner, tuesdayMorning)
	tts := p.tts.(*fakeSpeech)

	r := p.Run(context.Background(), KindWeekly)
	failIfSteps(t, r)

	// The weekly cut ships clean; sidecar tracks carry the subtitles.
	if !strings.HasSuffix(r.Video, "weekly_20250318_100000.mp4") {
		t.Fatalf("Video = %q, want the unburned weekly file", r.Video)
	}

	videos, err := db.VideosForRun(r.RunID)
	if err != nil || len(videos) != 1 {
		t.Fatalf("VideosForRun = %+v, %v", videos, err)
	}
	if videos[0].Orientation != "horizontal" {
		t.Fatalf("Orientation = %q, want horizontal", videos[0].Orientation)
	}
	if videos[0].Title == nil || !strings.Contains(*videos[0].Title, "Global News Today") {
		t.Fatalf("Title = %v, want the weekly roundup title", videos[0].Title)
	}
	if videos[0].PublishAt == nil || *videos[0].PublishAt != "2025-03-23T12:00:00+09:00" {
		t.Fatalf("PublishAt = %v, want next Sunday noon KST", videos[0].PublishAt)
	}

	// ISO week 12 is even, so rotation lands on the first voice.
	if len(tts.voices) == 0 || tts.voices[0] != "marin" {
		t.Fatalf("voices = %v, want rotation to pick marin", tts.voices)
	}
}

func TestRunDailyRenderFailureMarksRunFailed(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{results: newsResults()}
	runner := &fakeRunner{failWhen: func(args []string) bool {
		for _, a := range args {
			if a == "-pix_fmt" {
				return true
			}
		}
		return false
	}}
	p, db := newTestPipeline(t, cfg, fetcher, runner, saturdayMorning)

	r := p.Run(context.Background(), KindDaily)
	if r.Err() == nil {
		t.Fatal("expected the render failure to fail the run")
	}
	if r.Video != "" {
		t.Fatalf("Video = %q, want empty after a failed render", r.Video)
	}
	last := r.Steps[len(r.Steps)-1]
	if last.Name != "Render" || last.Err == nil {
		t.Fatalf("last step = %+v, want a Render error", last)
	}

	run, err := db.GetRun(r.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v, %v", run, err)
	}
	if run.Status != "failed" || run.Error == nil {
		t.Fatalf("run = %+v, want failed with an error recorded", run)
	}
	if run.StoryCount != 2 {
		t.Fatalf("StoryCount = %d, want 2: selection had already committed", run.StoryCount)
	}

	rep, err := db.GetReport(r.RunID)
	if err != nil || rep == nil {
		t.Fatalf("GetReport: %v, %v", rep, err)
	}
	if !strings.Contains(rep.BodyMarkdown, "## Error") {
		t.Fatalf("report body = %q, want an error section", rep.BodyMarkdown)
	}

	// A failed run must not wedge the next one.
	if _, err := os.Stat(filepath.Join(cfg.Output.DataDir, "daily.lock")); !os.IsNotExist(err) {
		t.Fatalf("expected the run lock to be released, stat err = %v", err)
	}
}

func TestRunBreakingQuotaExhausted(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{results: breakingResults()}
	p, db := newTestPipeline(t, cfg, fetcher, &fakeRunner{}, saturdayMorning)

	counterPath := filepath.Join(cfg.Output.DataDir, "breaking_counts.json")
	counter, err := state.LoadDailyCounter(counterPath)
	if err != nil {
		t.Fatalf("loading counter: %v", err)
	}
	counter.Increment(saturdayMorning)
	counter.Increment(saturdayMorning)
	if err := counter.Save(saturdayMorning); err != nil {
		t.Fatalf("saving counter: %v", err)
	}

	r := p.Run(context.Background(), KindBreaking)
	failIfSteps(t, r)

	if len(r.Steps) != 1 || !strings.Contains(r.Steps[0].Summary, "quota") {
		t.Fatalf("steps = %+v, want a single quota summary", r.Steps)
	}
	if fetcher.callCount() != 0 {
		t.Fatalf("FetchAll called %d times, want 0 when the quota is spent", fetcher.callCount())
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRuns != 0 {
		t.Fatalf("TotalRuns = %d, want 0: no archive run without a story", stats.TotalRuns)
	}
}

func TestRunBreakingNoCandidate(t *testing.T) {
	cfg := testConfig(t)
	// Calm headlines: nothing trips the breaking classifier.
	fetcher := &fakeFetcher{results: newsResults()}
	p, db := newTestPipeline(t, cfg, fetcher, &fakeRunner{}, saturdayMorning)

	r := p.Run(context.Background(), KindBreaking)
	failIfSteps(t, r)

	if r.RunID != "" {
		t.Fatalf("RunID = %q, want none for an empty scan", r.RunID)
	}
	if len(r.Steps) != 1 || !strings.Contains(r.Steps[0].Summary, "no corroborated") {
		t.Fatalf("steps = %+v, want a single no-candidate summary", r.Steps)
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRuns != 0 {
		t.Fatalf("TotalRuns = %d, want 0", stats.TotalRuns)
	}
}

// breakingResults carries one story under five headlines from five distinct
// outlets, similar enough to group.
func breakingResults() []feed.Result {
	titles := []string{
		"Breaking: major earthquake strikes pacific coast region",
		"Breaking news: major earthquake strikes pacific coast",
		"Major earthquake strikes along pacific coast, breaking reports say",
		"Pacific coast hit as major earthquake strikes region",
		"Earthquake strikes pacific coast region, major damage feared",
	}
	var results []feed.Result
	for i, title := range titles {
		source := fmt.Sprintf("outlet-%d", i+1)
		results = append(results, feed.Result{
			Category: "world",
			Source:   source,
			Articles: []feed.Article{{
				Title:       title,
				Description: "Officials are assessing the damage.",
				Source:      source,
				Category:    "world",
				Link:        fmt.Sprintf("https://%s.example/quake", source),
			}},
		})
	}
	return results
}

func TestScanProbeLeavesStateUntouched(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{results: breakingResults()}
	p, _ := newTestPipeline(t, cfg, fetcher, &fakeRunner{}, saturdayMorning)

	cand, err := p.Scan(context.Background(), false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a corroborated candidate")
	}
	if len(cand.Sources) != 5 {
		t.Fatalf("Sources = %v, want all five outlets", cand.Sources)
	}

	used, err := state.LoadUsedSet(filepath.Join(cfg.Output.DataDir, "used_breaking.json"), state.DefaultMaxUsed)
	if err != nil {
		t.Fatalf("loading used set: %v", err)
	}
	if used.Len() != 0 {
		t.Fatalf("used set has %d identities after a probe, want 0", used.Len())
	}
	counter, err := state.LoadDailyCounter(filepath.Join(cfg.Output.DataDir, "breaking_counts.json"))
	if err != nil {
		t.Fatalf("loading counter: %v", err)
	}
	if got := counter.CountFor(saturdayMorning); got != 0 {
		t.Fatalf("counter = %d after a probe, want 0", got)
	}
}

func TestDryRunDaily(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeFetcher{}, &fakeRunner{}, saturdayMorning)

	r := p.DryRun(KindDaily)
	failIfSteps(t, r)

	if len(r.Steps) != 8 {
		t.Fatalf("got %d steps, want 8", len(r.Steps))
	}
	for _, s := range r.Steps {
		if !strings.Contains(s.Summary, "[dry-run]") {
			t.Fatalf("step %s summary = %q, want a dry-run marker", s.Name, s.Summary)
		}
	}
	if r.Steps[0].Name != "Select" {
		t.Fatalf("first step = %s, want Select", r.Steps[0].Name)
	}
}

func TestDryRunBreakingShowsQuota(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeFetcher{}, &fakeRunner{}, saturdayMorning)

	counterPath := filepath.Join(cfg.Output.DataDir, "breaking_counts.json")
	counter, err := state.LoadDailyCounter(counterPath)
	if err != nil {
		t.Fatalf("loading counter: %v", err)
	}
	counter.Increment(saturdayMorning)
	if err := counter.Save(saturdayMorning); err != nil {
		t.Fatalf("saving counter: %v", err)
	}

	r := p.DryRun(KindBreaking)
	failIfSteps(t, r)
	if r.Steps[0].Name != "Scan" || !strings.Contains(r.Steps[0].Summary, "1 of 2") {
		t.Fatalf("scan step = %+v, want the seeded quota count", r.Steps[0])
	}
}

func TestRunUnknownKind(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeFetcher{}, &fakeRunner{}, saturdayMorning)

	r := p.Run(context.Background(), "hourly")
	if r.Err() == nil {
		t.Fatal("expected an error for an unknown run type")
	}
	if r2 := p.DryRun("hourly"); r2.Err() == nil {
		t.Fatal("expected an error for an unknown dry-run type")
	}
}

func TestVoiceForPinsDailyRotatesWeekly(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeFetcher{}, &fakeRunner{}, saturdayMorning)

	if got := p.voiceFor(KindDaily, saturdayMorning); got != "cedar" {
		t.Fatalf("daily voice = %q, want the pinned last voice", got)
	}
	if got := p.voiceFor(KindBreaking, saturdayMorning); got != "cedar" {
		t.Fatalf("breaking voice = %q, want the pinned last voice", got)
	}
	// Week 11 is odd, week 12 even.
	if got := p.voiceFor(KindWeekly, saturdayMorning); got != "cedar" {
		t.Fatalf("weekly voice in week 11 = %q, want cedar", got)
	}
	if got := p.voiceFor(KindWeekly, tuesdayMorning); got != "marin" {
		t.Fatalf("weekly voice in week 12 = %q, want marin", got)
	}

	cfg.Speech.Voices = nil
	if got := p.voiceFor(KindDaily, saturdayMorning); got != "" {
		t.Fatalf("voice with no list = %q, want empty", got)
	}
}

func TestCachedFetcherFetchesOnce(t *testing.T) {
	inner := &fakeFetcher{results: newsResults()}
	cached := &cachedFetcher{inner: inner}

	for i := 0; i < 3; i++ {
		results, err := cached.FetchAll(context.Background())
		if err != nil {
			t.Fatalf("FetchAll: %v", err)
		}
		if len(results) != 4 {
			t.Fatalf("got %d results, want 4", len(results))
		}
	}
	if inner.callCount() != 1 {
		t.Fatalf("inner fetched %d times, want 1", inner.callCount())
	}
}
