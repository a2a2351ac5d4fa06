package selection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/newsreel/newsreel/internal/classify"
	"github.com/newsreel/newsreel/internal/feed"
	"github.com/newsreel/newsreel/internal/match"
	"github.com/newsreel/newsreel/internal/state"
)

// ErrInsufficientArticles is returned by strict (daily) selection when the
// backfill still cannot reach the requested count. The used set is not
// committed in that case, so a rerun may draw the same articles.
var ErrInsufficientArticles = errors.New("insufficient articles")

// DefaultSimilarityLimit is the title similarity at or above which a
// candidate is dropped as a duplicate of an already-accepted article.
const DefaultSimilarityLimit = 0.5

// at most two pool entries per category while collecting
const maxPerCategoryPass = 2

// Engine picks a diverse, non-duplicate article set for one content type.
type Engine struct {
	fetcher    feed.Fetcher
	classifier *classify.Classifier
	simLimit   float64
}

// NewEngine creates a selection engine. A zero simLimit falls back to
// DefaultSimilarityLimit.
func NewEngine(fetcher feed.Fetcher, classifier *classify.Classifier, simLimit float64) *Engine {
	if simLimit <= 0 {
		simLimit = DefaultSimilarityLimit
	}
	if classifier == nil {
		classifier = classify.New(nil, nil)
	}
	return &Engine{fetcher: fetcher, classifier: classifier, simLimit: simLimit}
}

// SelectDaily picks count articles with at most one per category until every
// category has contributed, backfilling across categories when short. A
// shortfall after backfill is fatal: daily narration assumes a full set.
// Selected identities are committed to the used set before returning.
func (e *Engine) SelectDaily(ctx context.Context, used *state.UsedSet, count int) ([]feed.Article, error) {
	results, err := e.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feeds: %w", err)
	}

	categories, byCategory := groupShuffled(results)

	// Collecting + Filtering: build a pool with one accept per source and
	// at most two kept per category, dropping used, local, and similar.
	var pool []feed.Article
	var poolTitles []string
	for _, cat := range categories {
		kept := 0
		for _, res := range byCategory[cat] {
			if kept >= maxPerCategoryPass {
				break
			}
			for _, a := range res.Articles {
				if !e.accept(a, used, poolTitles) {
					continue
				}
				pool = append(pool, a)
				poolTitles = append(poolTitles, a.Title)
				kept++
				break // one per source
			}
		}
	}

	// Diversifying: first pooled article per category, cycling categories.
	var selected []feed.Article
	var selectedTitles []string
	picked := make(map[string]struct{})
	for _, cat := range categories {
		if len(selected) >= count {
			break
		}
		for _, a := range pool {
			if a.Category != cat {
				continue
			}
			selected = append(selected, a)
			selectedTitles = append(selectedTitles, a.Title)
			picked[a.ID()] = struct{}{}
			break
		}
	}

	// BackfillingIfShort: relax the category cap only; the similarity
	// check still applies against what was already selected.
	if len(selected) < count {
		log.Printf("Selection short by %d, backfilling across categories", count-len(selected))
		for _, a := range pool {
			if len(selected) >= count {
				break
			}
			if _, ok := picked[a.ID()]; ok {
				continue
			}
			if similarToAny(a.Title, selectedTitles, e.simLimit) {
				continue
			}
			selected = append(selected, a)
			selectedTitles = append(selectedTitles, a.Title)
			picked[a.ID()] = struct{}{}
		}
	}

	if len(selected) < count {
		return nil, fmt.Errorf("%w: accepted %d of %d requested", ErrInsufficientArticles, len(selected), count)
	}

	// Finalizing: presentation shuffle, then the single commit point.
	rand.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	for _, a := range selected {
		used.Add(a.ID())
	}
	if err := used.Save(); err != nil {
		return nil, fmt.Errorf("persisting used set: %w", err)
	}

	log.Printf("Selected %d articles", len(selected))
	return selected, nil
}

// SelectByCategory picks up to count articles balanced across categories:
// a ceil(count/categories) quota per category first, then a second pass
// fills from whatever remains. Shortfall is a soft outcome; the result is
// whatever was collected, capped at count.
func (e *Engine) SelectByCategory(ctx context.Context, used *state.UsedSet, count int) ([]feed.Article, error) {
	results, err := e.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feeds: %w", err)
	}

	categories, byCategory := groupShuffled(results)
	if len(categories) == 0 {
		log.Printf("Selection found no feed results at all")
		return nil, nil
	}
	perCategory := (count + len(categories) - 1) / len(categories)

	candidates := make(map[string][]feed.Article, len(categories))
	for _, cat := range categories {
		for _, res := range byCategory[cat] {
			candidates[cat] = append(candidates[cat], res.Articles...)
		}
	}

	var selected []feed.Article
	var selectedTitles []string
	picked := make(map[string]struct{})

	take := func(a feed.Article) {
		selected = append(selected, a)
		selectedTitles = append(selectedTitles, a.Title)
		picked[a.ID()] = struct{}{}
	}

	// First pass: fill each category up to its quota.
	for _, cat := range categories {
		taken := 0
		for _, a := range candidates[cat] {
			if taken >= perCategory {
				break
			}
			if _, ok := picked[a.ID()]; ok {
				continue
			}
			if !e.accept(a, used, selectedTitles) {
				continue
			}
			take(a)
			taken++
		}
	}

	// Second pass: quota relaxed, remaining filters unchanged.
	if len(selected) < count {
		log.Printf("Selection short by %d after category quotas, filling from remainder", count-len(selected))
		shuffled := append([]string(nil), categories...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		for _, cat := range shuffled {
			for _, a := range candidates[cat] {
				if len(selected) >= count {
					break
				}
				if _, ok := picked[a.ID()]; ok {
					continue
				}
				if !e.accept(a, used, selectedTitles) {
					continue
				}
				take(a)
			}
		}
	}

	rand.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	if len(selected) > count {
		selected = selected[:count]
	}
	if len(selected) < count {
		log.Printf("Selection returning short set: %d of %d requested", len(selected), count)
	}

	for _, a := range selected {
		used.Add(a.ID())
	}
	if err := used.Save(); err != nil {
		return nil, fmt.Errorf("persisting used set: %w", err)
	}

	log.Printf("Selected %d articles across %d categories", len(selected), len(categories))
	return selected, nil
}

// accept applies the three filters every candidate must pass: not already
// consumed, not region-scoped, not a near-duplicate of an accepted title.
func (e *Engine) accept(a feed.Article, used *state.UsedSet, acceptedTitles []string) bool {
	if used.Contains(a.ID()) {
		return false
	}
	if e.classifier.IsLocalNews(a.Title, a.Description) {
		log.Printf("Skipping local story: %s", clip(a.Title))
		return false
	}
	if similarToAny(a.Title, acceptedTitles, e.simLimit) {
		log.Printf("Skipping similar story: %s", clip(a.Title))
		return false
	}
	return true
}

func similarToAny(title string, titles []string, limit float64) bool {
	for _, t := range titles {
		if match.TitleSimilarity(title, t) >= limit {
			return true
		}
	}
	return false
}

// groupShuffled indexes feed results by category, shuffling the category
// order and each category's feed order for run-to-run diversity while
// keeping per-feed item order intact.
func groupShuffled(results []feed.Result) ([]string, map[string][]feed.Result) {
	byCategory := make(map[string][]feed.Result)
	var categories []string
	for _, r := range results {
		if _, ok := byCategory[r.Category]; !ok {
			categories = append(categories, r.Category)
		}
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	rand.Shuffle(len(categories), func(i, j int) {
		categories[i], categories[j] = categories[j], categories[i]
	})
	for _, cat := range categories {
		feeds := byCategory[cat]
		rand.Shuffle(len(feeds), func(i, j int) { feeds[i], feeds[j] = feeds[j], feeds[i] })
	}
	return categories, byCategory
}

func clip(s string) string {
	const n = 60
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
