package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsreel/newsreel/internal/ai"
	"github.com/newsreel/newsreel/internal/archive"
	"github.com/newsreel/newsreel/internal/assemble"
	"github.com/newsreel/newsreel/internal/breaking"
	"github.com/newsreel/newsreel/internal/classify"
	"github.com/newsreel/newsreel/internal/config"
	"github.com/newsreel/newsreel/internal/feed"
	"github.com/newsreel/newsreel/internal/fetch"
	"github.com/newsreel/newsreel/internal/imagegen"
	"github.com/newsreel/newsreel/internal/match"
	"github.com/newsreel/newsreel/internal/narrate"
	"github.com/newsreel/newsreel/internal/publish"
	"github.com/newsreel/newsreel/internal/render"
	"github.com/newsreel/newsreel/internal/report"
	"github.com/newsreel/newsreel/internal/selection"
	"github.com/newsreel/newsreel/internal/speech"
	"github.com/newsreel/newsreel/internal/state"
	"github.com/newsreel/newsreel/internal/subtitle"
)

// Run kinds. The archive schema constrains runs to these values.
const (
	KindDaily    = "daily"
	KindWeekly   = "weekly"
	KindBreaking = "breaking"
)

// StepResult holds the outcome of one pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the outcome of a full production run.
type Result struct {
	RunID   string
	Kind    string
	Video   string
	Stories int
	Steps   []StepResult
}

// Err returns the first step error, or nil for a clean run.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

func (r *Result) ok(name, format string, args ...any) {
	r.Steps = append(r.Steps, StepResult{Name: name, Summary: fmt.Sprintf(format, args...)})
}

func (r *Result) fail(name string, err error) {
	r.Steps = append(r.Steps, StepResult{Name: name, Err: err})
}

// Pipeline orchestrates one production run: select or scan, generate
// images, narrate, synthesize speech, assemble and render, subtitle,
// prepare publish metadata, archive.
type Pipeline struct {
	cfg *config.Config
	db  *archive.DB

	chat   ai.Chat
	tts    ai.Speech
	images ai.Images

	fetcher feed.Fetcher
	runner  speech.Runner
	now     func() time.Time
}

// New creates a pipeline wired to the configured providers. A missing API
// key is only warned about here; generation steps will fail loudly later.
func New(cfg *config.Config, db *archive.DB) *Pipeline {
	client := ai.NewClient(os.Getenv(cfg.Models.APIKeyEnv), ai.Models{
		Chat:  cfg.Models.Chat,
		TTS:   cfg.Models.TTS,
		Image: cfg.Models.Image,
	})
	if !client.IsConfigured() {
		log.Printf("Warning: %s is not set, generation steps will fail", cfg.Models.APIKeyEnv)
	}

	return &Pipeline{
		cfg:     cfg,
		db:      db,
		chat:    client,
		tts:     client,
		images:  client,
		fetcher: newFetcher(cfg),
		now:     time.Now,
	}
}

// newFetcher builds the article source: the NewsData API when configured
// and selected, RSS feeds otherwise.
func newFetcher(cfg *config.Config) feed.Fetcher {
	if cfg.Sources.Mode == "api" {
		api := feed.NewNewsDataClient(os.Getenv(cfg.Sources.NewsData.APIKeyEnv), cfg.Sources.NewsData.Categories)
		if api.IsConfigured() {
			return api
		}
		log.Printf("Warning: %s is not set, falling back to RSS feeds", cfg.Sources.NewsData.APIKeyEnv)
	}
	return feed.NewClient(feedCategories(cfg), cfg.Sources.Concurrency)
}

func feedCategories(cfg *config.Config) []feed.Category {
	cats := make([]feed.Category, 0, len(cfg.Sources.Categories))
	for _, c := range cfg.Sources.Categories {
		cat := feed.Category{Name: c.Name}
		for _, f := range c.Feeds {
			cat.Feeds = append(cat.Feeds, feed.Source{Name: f.Name, URL: f.URL})
		}
		cats = append(cats, cat)
	}
	return cats
}

// cachedFetcher fetches at most once and replays the same snapshot, so the
// strict pass and the backup pass select from identical feed state.
type cachedFetcher struct {
	inner   feed.Fetcher
	once    sync.Once
	results []feed.Result
	err     error
}

func (c *cachedFetcher) FetchAll(ctx context.Context) ([]feed.Result, error) {
	c.once.Do(func() {
		c.results, c.err = c.inner.FetchAll(ctx)
	})
	return c.results, c.err
}

// Run executes a full production run of the given kind.
func (p *Pipeline) Run(ctx context.Context, kind string) *Result {
	switch kind {
	case KindDaily, KindWeekly:
		return p.produce(ctx, kind)
	case KindBreaking:
		return p.runBreaking(ctx)
	default:
		r := &Result{Kind: kind}
		r.fail("Setup", fmt.Errorf("unknown run type %q", kind))
		return r
	}
}

// cut carries one video's working state through the shared production tail.
type cut struct {
	kind     string
	now      time.Time
	runID    string
	dir      string
	prefix   string
	orient   imagegen.Orientation
	stories  []feed.Article
	sources  []string
	segments []narrate.Segment
	pool     *imagegen.Pool
}

// produce runs the daily and weekly flow: strict or balanced selection,
// then the shared tail.
func (p *Pipeline) produce(ctx context.Context, kind string) *Result {
	now := p.now()
	r := &Result{Kind: kind}

	lock, err := p.acquireLock(kind)
	if err != nil {
		r.fail("Lock", err)
		return r
	}
	defer lock.Release()

	count := p.cfg.Selection.DailyCount
	style := narrate.StyleShort
	if kind == KindWeekly {
		count = p.cfg.Selection.WeeklyCount
		style = narrate.StyleLong
	}
	orient := orientationFor(kind)

	runID := uuid.NewString()
	r.RunID = runID
	if err := p.db.CreateRun(runID, kind, now); err != nil {
		r.fail("Archive", fmt.Errorf("recording run: %w", err))
		return r
	}
	defer p.finishRun(runID, r)

	log.Printf("Step 1/8: Selecting %s stories...", kind)
	used, err := state.LoadUsedSet(p.usedPath(kind), state.DefaultMaxUsed)
	if err != nil {
		r.fail("Select", fmt.Errorf("loading used set: %w", err))
		return r
	}
	engine := selection.NewEngine(&cachedFetcher{inner: p.fetcher}, classify.New(nil, nil), p.cfg.Selection.SimilarityLimit)

	var candidates []feed.Article
	if kind == KindDaily {
		candidates, err = engine.SelectDaily(ctx, used, count)
		if err != nil {
			r.fail("Select", err)
			return r
		}
		// Backups give the image walk replacements for dropped stories.
		if n := p.cfg.Selection.BackupCount; n > 0 {
			extra, berr := engine.SelectByCategory(ctx, used, n)
			if berr != nil {
				log.Printf("Backup selection failed, continuing without backups: %v", berr)
			} else {
				candidates = append(candidates, extra...)
			}
		}
	} else {
		candidates, err = engine.SelectByCategory(ctx, used, count+p.cfg.Selection.BackupCount)
		if err != nil {
			r.fail("Select", err)
			return r
		}
		if len(candidates) == 0 {
			r.fail("Select", fmt.Errorf("no selectable articles in any feed"))
			return r
		}
	}
	r.ok("Select", "%d candidates for %d story slots", len(candidates), count)

	prefix := runPrefix(kind, now)
	dir := filepath.Join(p.cfg.GetOutputDir(), prefix)

	log.Println("Step 2/8: Generating story images...")
	pool, kept, dropped := imagegen.NewGenerator(p.chat, p.images).GeneratePools(ctx, candidates, count, orient, dir, prefix)
	if len(kept) == 0 {
		r.fail("Images", fmt.Errorf("no story produced a usable image"))
		return r
	}
	r.Stories = len(kept)
	p.recordArticles(runID, kept)
	r.ok("Images", "%d images for %d stories (%d dropped)", pool.Size(), len(kept), len(dropped))

	log.Println("Step 3/8: Writing narration...")
	segments := narrate.NewNarrator(p.chat).Narrate(ctx, kept, style, now)
	r.ok("Narrate", "%d segments", len(segments))

	p.produceTail(ctx, r, &cut{
		kind:     kind,
		now:      now,
		runID:    runID,
		dir:      dir,
		prefix:   prefix,
		orient:   orient,
		stories:  kept,
		segments: segments,
		pool:     pool,
	})
	return r
}

// runBreaking scans for a corroborated story and, when one is confirmed,
// produces a vertical deep-dive video for it. The scan commits the used set
// and quota before production; a later render failure does not roll that
// back, so a broken story costs its slot.
func (p *Pipeline) runBreaking(ctx context.Context) *Result {
	now := p.now()
	r := &Result{Kind: KindBreaking}

	lock, err := p.acquireLock(KindBreaking)
	if err != nil {
		r.fail("Lock", err)
		return r
	}
	defer lock.Release()

	log.Println("Step 1/8: Scanning for breaking news...")
	used, err := state.LoadUsedSet(p.usedPath(KindBreaking), state.DefaultMaxUsed)
	if err != nil {
		r.fail("Scan", fmt.Errorf("loading breaking used set: %w", err))
		return r
	}
	counter, err := state.LoadDailyCounter(p.counterPath())
	if err != nil {
		r.fail("Scan", fmt.Errorf("loading breaking counter: %w", err))
		return r
	}

	cand, err := p.aggregator(true).Scan(ctx, used, counter, now)
	if errors.Is(err, breaking.ErrQuotaExhausted) {
		r.ok("Scan", "daily breaking quota exhausted, nothing to do")
		return r
	}
	if err != nil {
		r.fail("Scan", err)
		return r
	}
	if cand == nil {
		r.ok("Scan", "no corroborated breaking story this cycle")
		return r
	}
	r.ok("Scan", "%q corroborated by %d sources", cand.Article.Title, len(cand.Sources))

	runID := uuid.NewString()
	r.RunID = runID
	if err := p.db.CreateRun(runID, KindBreaking, now); err != nil {
		r.fail("Archive", fmt.Errorf("recording run: %w", err))
		return r
	}
	defer p.finishRun(runID, r)

	prefix := runPrefix(KindBreaking, now)
	dir := filepath.Join(p.cfg.GetOutputDir(), prefix)

	log.Println("Step 2/8: Generating story images...")
	pool, kept, _ := imagegen.NewGenerator(p.chat, p.images).GeneratePools(ctx, []feed.Article{cand.Article}, 1, imagegen.Vertical, dir, prefix)
	if len(kept) == 0 {
		r.fail("Images", fmt.Errorf("no usable image for the breaking story"))
		return r
	}
	r.Stories = 1
	p.recordArticles(runID, kept)
	r.ok("Images", "%d images generated", pool.Size())

	log.Println("Step 3/8: Writing narration...")
	detailText := ""
	if cand.Detail != nil {
		detailText = cand.Detail.Text
	}
	segments := narrate.NewNarrator(p.chat).NarrateBreaking(ctx, cand.Article, detailText, now)
	r.ok("Narrate", "%d segments", len(segments))

	p.produceTail(ctx, r, &cut{
		kind:     KindBreaking,
		now:      now,
		runID:    runID,
		dir:      dir,
		prefix:   prefix,
		orient:   imagegen.Vertical,
		stories:  kept,
		sources:  cand.Sources,
		segments: segments,
		pool:     pool,
	})
	return r
}

// produceTail runs the steps every kind shares once it has stories, a
// narration script, and an image pool: speech, assembly and render,
// subtitles, publish metadata, archive.
func (p *Pipeline) produceTail(ctx context.Context, r *Result, c *cut) {
	log.Println("Step 4/8: Synthesizing speech...")
	voice := p.voiceFor(c.kind, c.now)
	track, err := speech.NewSynthesizer(p.tts, voice, p.runner).Synthesize(ctx, c.segments, c.dir, c.prefix)
	if err != nil {
		r.fail("Speech", err)
		return
	}
	r.ok("Speech", "voice %s, %.1fs narration", voice, track.Total)

	log.Println("Step 5/8: Assembling and rendering...")
	script := assemble.BuildEditScript(track.Segments, c.pool, track.Path, p.endingAsset(c.orient), assemble.EndingDuration(c.orient))
	renderer := render.NewRenderer(p.runner)
	videoPath := filepath.Join(c.dir, c.prefix+".mp4")
	if err := renderer.Render(ctx, script, c.orient, videoPath); err != nil {
		r.fail("Render", err)
		return
	}
	r.Video = videoPath
	r.ok("Render", "%s (%.1fs, %d entries)", videoPath, script.Total, len(script.Entries))

	log.Println("Step 6/8: Generating subtitles...")
	subs, err := subtitle.NewGenerator(p.chat).Generate(ctx, track.Segments, p.cfg.Subtitles.Languages, c.dir, c.prefix)
	if err != nil {
		r.fail("Subtitles", err)
		return
	}
	// Shorts players hide sidecar tracks, so the vertical cut gets the
	// English track burned in. A failed burn ships the clean cut.
	if c.orient == imagegen.Vertical {
		if en := subs["en"]; en != "" {
			burned := filepath.Join(c.dir, c.prefix+"_subtitled.mp4")
			if err := renderer.BurnSubtitles(ctx, videoPath, en, burned); err != nil {
				log.Printf("Subtitle burn failed, keeping the clean cut: %v", err)
			} else {
				r.Video = burned
			}
		}
	}
	r.ok("Subtitles", "%d languages", len(subs))

	log.Println("Step 7/8: Preparing publish metadata...")
	meta := p.metadataFor(c)
	thumb := ""
	if imgs := c.pool.Images(0); len(imgs) > 0 {
		path := filepath.Join(c.dir, c.prefix+"_thumb.jpg")
		if err := renderer.Thumbnail(ctx, imgs[0], meta.Title, c.orient, path); err != nil {
			log.Printf("Thumbnail render failed: %v", err)
		} else {
			thumb = path
		}
	}
	summaryPath := filepath.Join(c.dir, c.prefix+"_summary.json")
	err = writeSummary(summaryPath, runSummary{
		Kind:        c.kind,
		RunID:       c.runID,
		Video:       r.Video,
		Thumbnail:   thumb,
		Subtitles:   subs,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		PublishAt:   meta.PublishAt.Format(time.RFC3339),
		Privacy:     meta.Privacy,
	})
	if err != nil {
		r.fail("Publish", fmt.Errorf("writing summary file: %w", err))
		return
	}
	r.ok("Publish", "%q scheduled for %s", meta.Title, meta.PublishAt.Format(time.RFC3339))

	log.Println("Step 8/8: Archiving...")
	if _, err := p.db.AddVideo(c.runID, r.Video, string(c.orient), script.Total, meta.Title, meta.PublishAt); err != nil {
		log.Printf("Recording video in archive: %v", err)
	}
	r.ok("Archive", "run %s recorded in %s", c.runID, p.db.Path())
}

// Scan runs breaking detection without producing a video or touching any
// state. With verify true the corroborated group also passes LLM
// verification and detail fetch, matching what a breaking run would do.
func (p *Pipeline) Scan(ctx context.Context, verify bool) (*breaking.Candidate, error) {
	now := p.now()
	used, err := state.LoadUsedSet(p.usedPath(KindBreaking), state.DefaultMaxUsed)
	if err != nil {
		return nil, fmt.Errorf("loading breaking used set: %w", err)
	}
	counter, err := state.LoadDailyCounter(p.counterPath())
	if err != nil {
		return nil, fmt.Errorf("loading breaking counter: %w", err)
	}
	return p.aggregator(verify).Probe(ctx, used, counter, now)
}

// DryRun reports what a run of the given kind would do: configured counts,
// state already on disk, voice, formats, and schedule. Nothing is fetched,
// generated, or written.
func (p *Pipeline) DryRun(kind string) *Result {
	now := p.now()
	r := &Result{Kind: kind}
	if kind != KindDaily && kind != KindWeekly && kind != KindBreaking {
		r.fail("Setup", fmt.Errorf("unknown run type %q", kind))
		return r
	}

	orient := orientationFor(kind)
	stories := 1
	switch kind {
	case KindDaily:
		stories = p.cfg.Selection.DailyCount
	case KindWeekly:
		stories = p.cfg.Selection.WeeklyCount
	}

	if kind == KindBreaking {
		slots := 0
		if counter, err := state.LoadDailyCounter(p.counterPath()); err == nil {
			slots = counter.CountFor(now)
		}
		r.ok("Scan", "[dry-run] %d of %d breaking slots used today, corroboration threshold %d sources",
			slots, p.cfg.Breaking.MaxPerDay, p.cfg.Breaking.MinSources)
	} else {
		usedLen := 0
		if used, err := state.LoadUsedSet(p.usedPath(kind), state.DefaultMaxUsed); err == nil {
			usedLen = used.Len()
		}
		r.ok("Select", "[dry-run] would select %d stories plus %d backups (%d identities already consumed)",
			stories, p.cfg.Selection.BackupCount, usedLen)
	}

	r.ok("Images", "[dry-run] %d images per story at %s", orient.PerStory(), orient.Size())
	if kind == KindBreaking {
		r.ok("Narrate", "[dry-run] deep-dive script: intro, three aspects, outro")
	} else {
		r.ok("Narrate", "[dry-run] %d story segments plus intro and outro", stories)
	}
	r.ok("Speech", "[dry-run] voice %s", p.voiceFor(kind, now))
	w, h := render.Resolution(orient)
	r.ok("Render", "[dry-run] %dx%d %s video under %s", w, h, orient, p.cfg.GetOutputDir())
	r.ok("Subtitles", "[dry-run] en plus %s", strings.Join(p.cfg.Subtitles.Languages, ", "))
	r.ok("Publish", "[dry-run] would schedule for %s", publishTimeFor(kind, now).Format(time.RFC3339))
	r.ok("Archive", "[dry-run] would record the run in %s", p.db.Path())
	return r
}

// finishRun records the run's final status and composes its report. It runs
// deferred so failed runs are archived with their first error too.
func (p *Pipeline) finishRun(runID string, r *Result) {
	status := "completed"
	if r.Err() != nil {
		status = "failed"
	}
	if err := p.db.FinishRun(runID, status, r.Stories, r.Err()); err != nil {
		log.Printf("Recording run outcome: %v", err)
		return
	}
	if _, err := report.NewComposer(p.db).Compose(runID); err != nil {
		log.Printf("Composing run report: %v", err)
	}
}

// recordArticles archives the kept stories in their final order. Archive
// write failures do not stop production.
func (p *Pipeline) recordArticles(runID string, stories []feed.Article) {
	for i, a := range stories {
		if err := p.db.AddArticle(runID, a.ID(), a.Title, optional(a.Source), optional(a.Category), optional(a.Link), i); err != nil {
			log.Printf("Recording article %q: %v", a.Title, err)
		}
	}
}

// aggregator wires the breaking-news detector. withAI controls whether the
// LLM verifier and the page fetcher participate; a probe without them makes
// no provider calls at all.
func (p *Pipeline) aggregator(withAI bool) *breaking.Aggregator {
	classifier := classify.New(nil, nil)
	matcher := match.NewMatcher(0, nil, classifier)
	var verifier breaking.Verifier
	var details breaking.DetailFetcher
	if withAI {
		verifier = breaking.NewAIVerifier(p.chat)
		details = fetch.NewClient(15 * time.Second)
	}
	return breaking.NewAggregator(p.fetcher, classifier, matcher, verifier, details, breaking.Config{
		MinSources: p.cfg.Breaking.MinSources,
		MaxPerDay:  p.cfg.Breaking.MaxPerDay,
	})
}

func (p *Pipeline) acquireLock(kind string) (*state.RunLock, error) {
	if err := os.MkdirAll(p.cfg.GetDataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	lock, err := state.AcquireRunLock(p.lockPath(kind))
	if err != nil {
		return nil, fmt.Errorf("another %s run may be active: %w", kind, err)
	}
	return lock, nil
}

// voiceFor picks the speaking voice. The weekly cut rotates week by week;
// daily and breaking pin the last configured voice so the evening slot
// keeps a consistent anchor.
func (p *Pipeline) voiceFor(kind string, now time.Time) string {
	voices := p.cfg.Speech.Voices
	if len(voices) == 0 {
		return ""
	}
	if kind == KindWeekly {
		return publish.RotateVoice(voices, now)
	}
	return voices[len(voices)-1]
}

func (p *Pipeline) metadataFor(c *cut) publish.Metadata {
	switch c.kind {
	case KindWeekly:
		return publish.Weekly(c.stories, c.now)
	case KindBreaking:
		return publish.Breaking(c.stories[0], c.sources, c.now)
	default:
		return publish.Daily(c.stories, c.now)
	}
}

func (p *Pipeline) endingAsset(o imagegen.Orientation) string {
	if o == imagegen.Horizontal {
		return p.cfg.Assets.EndingHorizontal
	}
	return p.cfg.Assets.EndingVertical
}

func (p *Pipeline) usedPath(kind string) string {
	return filepath.Join(p.cfg.GetDataDir(), "used_"+kind+".json")
}

func (p *Pipeline) lockPath(kind string) string {
	return filepath.Join(p.cfg.GetDataDir(), kind+".lock")
}

func (p *Pipeline) counterPath() string {
	return filepath.Join(p.cfg.GetDataDir(), "breaking_counts.json")
}

func orientationFor(kind string) imagegen.Orientation {
	if kind == KindWeekly {
		return imagegen.Horizontal
	}
	return imagegen.Vertical
}

func publishTimeFor(kind string, now time.Time) time.Time {
	switch kind {
	case KindWeekly:
		return publish.WeeklyPublishTime(now)
	case KindBreaking:
		return publish.BreakingPublishTime(now)
	default:
		return publish.DailyPublishTime(now)
	}
}

func runPrefix(kind string, now time.Time) string {
	return kind + "_" + now.Format("20060102_150405")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
