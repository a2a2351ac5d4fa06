package breaking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/newsreel/newsreel/internal/classify"
	"github.com/newsreel/newsreel/internal/feed"
	"github.com/newsreel/newsreel/internal/fetch"
	"github.com/newsreel/newsreel/internal/match"
	"github.com/newsreel/newsreel/internal/state"
)

// ErrQuotaExhausted reports that today's confirmed-story allowance is spent.
// It is a routine outcome for frequent scans, not a failure.
var ErrQuotaExhausted = errors.New("daily breaking quota exhausted")

const (
	// DefaultMinSources is how many distinct outlets must carry a story
	// before it counts as corroborated breaking news.
	DefaultMinSources = 5

	// DefaultMaxPerDay caps confirmed breaking stories per calendar day.
	DefaultMaxPerDay = 2
)

// Group collects articles that cover the same story. Membership is decided
// against the representative only, so the first article seen for a story
// anchors its group.
type Group struct {
	Representative feed.Article
	Members        []feed.Article

	sources []string
	seen    map[string]struct{}
}

func newGroup(rep feed.Article) *Group {
	g := &Group{
		Representative: rep,
		seen:           make(map[string]struct{}),
	}
	g.add(rep)
	return g
}

func (g *Group) add(a feed.Article) {
	g.Members = append(g.Members, a)
	if _, ok := g.seen[a.Source]; !ok {
		g.seen[a.Source] = struct{}{}
		g.sources = append(g.sources, a.Source)
	}
}

// DistinctSources counts the outlets represented in the group.
func (g *Group) DistinctSources() int {
	return len(g.sources)
}

// Sources returns the outlet names in first-seen order.
func (g *Group) Sources() []string {
	return g.sources
}

// Candidate is a corroborated breaking story ready for video production.
type Candidate struct {
	Article feed.Article
	Members []feed.Article
	Sources []string

	// Detail carries the representative article's fetched page content
	// when available; nil when the fetch failed or was not attempted.
	Detail *fetch.Detail
}

// Verifier makes the final call on whether a corroborated group is one
// coherent breaking story rather than a keyword coincidence.
type Verifier interface {
	Verify(ctx context.Context, c *Candidate) (bool, error)
}

// DetailFetcher pulls full text and a lead image for a confirmed story.
type DetailFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Detail, error)
}

// Config carries the aggregator's thresholds.
type Config struct {
	MinSources int
	MaxPerDay  int
}

// Aggregator scans all feeds for corroborated breaking news, holding a
// daily quota so a volatile news day cannot flood the channel.
type Aggregator struct {
	fetcher    feed.Fetcher
	classifier *classify.Classifier
	matcher    *match.Matcher
	verifier   Verifier
	details    DetailFetcher
	cfg        Config
}

// NewAggregator creates a breaking-news aggregator. verifier and details
// may be nil; confirmation then rests on source corroboration alone.
func NewAggregator(fetcher feed.Fetcher, classifier *classify.Classifier, matcher *match.Matcher, verifier Verifier, details DetailFetcher, cfg Config) *Aggregator {
	if cfg.MinSources <= 0 {
		cfg.MinSources = DefaultMinSources
	}
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = DefaultMaxPerDay
	}
	return &Aggregator{
		fetcher:    fetcher,
		classifier: classifier,
		matcher:    matcher,
		verifier:   verifier,
		details:    details,
		cfg:        cfg,
	}
}

// Scan looks for one confirmed breaking story. A nil candidate with a nil
// error means nothing qualified this cycle, which is the routine outcome;
// ErrQuotaExhausted means today's allowance is spent. The daily quota is
// checked before any network traffic, and the used set and counter are
// persisted only after a story is confirmed.
func (a *Aggregator) Scan(ctx context.Context, used *state.UsedSet, counter *state.DailyCounter, now time.Time) (*Candidate, error) {
	return a.scan(ctx, used, counter, now, true)
}

// Probe runs the same detection as Scan but persists nothing: the story is
// not marked used and the quota is not consumed, so a later Scan can still
// pick it up. Operators use it to check what a breaking run would find.
func (a *Aggregator) Probe(ctx context.Context, used *state.UsedSet, counter *state.DailyCounter, now time.Time) (*Candidate, error) {
	return a.scan(ctx, used, counter, now, false)
}

func (a *Aggregator) scan(ctx context.Context, used *state.UsedSet, counter *state.DailyCounter, now time.Time, commit bool) (*Candidate, error) {
	if n := counter.CountFor(now); n >= a.cfg.MaxPerDay {
		log.Printf("Breaking quota reached for today (%d/%d), skipping scan", n, a.cfg.MaxPerDay)
		return nil, ErrQuotaExhausted
	}

	results, err := a.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feeds for breaking scan: %w", err)
	}

	groups := a.groupArticles(results, used)
	log.Printf("Breaking scan: %d topic groups formed", len(groups))

	candidate := a.promote(ctx, groups)
	if candidate == nil {
		log.Println("No breaking news this cycle")
		return nil, nil
	}

	if a.details != nil {
		detail, err := a.details.Fetch(ctx, candidate.Article.Link)
		if err != nil {
			log.Printf("Detail fetch failed for %s: %v", candidate.Article.Link, err)
		} else {
			candidate.Detail = detail
		}
	}

	if !commit {
		log.Printf("Breaking probe found: %s (%d sources), state untouched", candidate.Article.Title, len(candidate.Sources))
		return candidate, nil
	}

	used.Add(candidate.Article.ID())
	if err := used.Save(); err != nil {
		return nil, fmt.Errorf("saving breaking used set: %w", err)
	}
	counter.Increment(now)
	if err := counter.Save(now); err != nil {
		return nil, fmt.Errorf("saving breaking counter: %w", err)
	}

	log.Printf("BREAKING confirmed: %s (%d sources)", candidate.Article.Title, len(candidate.Sources))
	return candidate, nil
}

// groupArticles filters the fetched articles and assigns each survivor to
// the first group whose representative covers the same story, opening a
// new group when none does. Group order is discovery order.
func (a *Aggregator) groupArticles(results []feed.Result, used *state.UsedSet) []*Group {
	var groups []*Group

	for _, res := range results {
		for _, article := range res.Articles {
			if !a.classifier.IsBreakingNews(article.Title, article.Description) {
				continue
			}
			if used.Contains(article.ID()) {
				continue
			}
			if a.classifier.IsLocalNews(article.Title, article.Description) {
				continue
			}

			placed := false
			for _, g := range groups {
				if a.matcher.SameTopic(article, g.Representative) {
					g.add(article)
					placed = true
					break
				}
			}
			if !placed {
				groups = append(groups, newGroup(article))
			}
		}
	}

	return groups
}

// promote walks the groups in discovery order and returns the first one
// that reaches the source threshold and survives verification. Recency and
// outlet authority do not reorder the groups.
func (a *Aggregator) promote(ctx context.Context, groups []*Group) *Candidate {
	for _, g := range groups {
		if g.DistinctSources() < a.cfg.MinSources {
			continue
		}

		candidate := &Candidate{
			Article: g.Representative,
			Members: g.Members,
			Sources: g.Sources(),
		}

		if a.verifier == nil {
			return candidate
		}
		ok, err := a.verifier.Verify(ctx, candidate)
		if err != nil {
			// Corroboration already passed; a downed verifier must not
			// suppress real breaking news.
			log.Printf("Verification error for %q, accepting on corroboration: %v", candidate.Article.Title, err)
			return candidate
		}
		if ok {
			return candidate
		}
		log.Printf("Verification rejected group: %s", candidate.Article.Title)
	}
	return nil
}
