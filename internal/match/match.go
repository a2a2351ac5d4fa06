package match

import (
	"strings"
	"unicode"

	"github.com/newsreel/newsreel/internal/classify"
	"github.com/newsreel/newsreel/internal/feed"
)

// DefaultThreshold is the title similarity at or above which two articles
// count as the same topic.
const DefaultThreshold = 0.4

// TopicEntry names one recurring news topic by a keyword family. Two texts
// that both hit any keyword of the same entry are topic-grouped even when
// their titles share no vocabulary ("Venezuela unrest" vs "Maduro crisis").
type TopicEntry struct {
	Name     string
	Keywords []string
}

// DefaultTopics is the built-in topic table. Keyword grouping recovers
// same-event articles with divergent phrasing, at the cost of occasional
// false grouping.
var DefaultTopics = []TopicEntry{
	{Name: "venezuela", Keywords: []string{"venezuela", "maduro", "caracas"}},
	{Name: "ukraine", Keywords: []string{"ukraine", "kyiv", "zelensky", "donbas", "kharkiv"}},
	{Name: "russia", Keywords: []string{"russia", "putin", "moscow", "kremlin"}},
	{Name: "middle-east", Keywords: []string{"gaza", "israel", "hamas", "hezbollah", "west bank", "idf"}},
	{Name: "iran", Keywords: []string{"iran", "tehran", "irgc"}},
	{Name: "korea", Keywords: []string{"north korea", "pyongyang", "kim jong"}},
	{Name: "taiwan", Keywords: []string{"taiwan", "taipei", "taiwan strait"}},
	{Name: "earthquake", Keywords: []string{"earthquake", "quake", "seismic", "tremor", "aftershock", "magnitude"}},
	{Name: "storm", Keywords: []string{"hurricane", "typhoon", "cyclone", "storm surge", "landfall"}},
	{Name: "wildfire", Keywords: []string{"wildfire", "bushfire", "blaze"}},
	{Name: "aviation", Keywords: []string{"plane crash", "air crash", "jet crash", "airliner"}},
	{Name: "shooting", Keywords: []string{"shooting", "gunman", "shooter", "shots fired"}},
}

// Matcher decides whether two articles cover the same story, by title
// similarity or by shared topic keywords.
type Matcher struct {
	threshold  float64
	topics     []TopicEntry
	classifier *classify.Classifier
}

// NewMatcher creates a Matcher. A zero threshold falls back to
// DefaultThreshold and an empty topic table to DefaultTopics.
func NewMatcher(threshold float64, topics []TopicEntry, classifier *classify.Classifier) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	if classifier == nil {
		classifier = classify.New(nil, nil)
	}
	return &Matcher{threshold: threshold, topics: topics, classifier: classifier}
}

// SameTopic reports whether two articles cover the same story: either the
// titles are similar enough, or both texts hit the same topic entry while
// both also carry a breaking-news keyword. Symmetric in its arguments.
func (m *Matcher) SameTopic(a, b feed.Article) bool {
	if TitleSimilarity(a.Title, b.Title) >= m.threshold {
		return true
	}

	textA := a.Title + " " + a.Description
	textB := b.Title + " " + b.Description
	if !m.sharedTopicEntry(textA, textB) {
		return false
	}
	return m.classifier.IsBreakingNews(a.Title, a.Description) &&
		m.classifier.IsBreakingNews(b.Title, b.Description)
}

func (m *Matcher) sharedTopicEntry(textA, textB string) bool {
	la := strings.ToLower(textA)
	lb := strings.ToLower(textB)
	for _, entry := range m.topics {
		if matchesEntry(la, entry) && matchesEntry(lb, entry) {
			return true
		}
	}
	return false
}

func matchesEntry(lowerText string, entry TopicEntry) bool {
	for _, kw := range entry.Keywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// TitleSimilarity computes the Jaccard index of the two titles' token sets.
// Titles are lowercased and stripped of punctuation before tokenizing.
// Returns 0 when either token set is empty; identical titles return 1.
func TitleSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)

	set := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		set[tok] = struct{}{}
	}
	return set
}
