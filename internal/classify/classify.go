package classify

import "strings"

// DefaultLocalKeywords flags region-scoped stories that read as noise in a
// global briefing: named cities, local institutions, local sports.
var DefaultLocalKeywords = []string{
	// US regions
	"florida", "texas", "california", "new york city", "nyc", "los angeles", "chicago",
	"boston", "seattle", "denver", "atlanta", "miami", "phoenix", "detroit", "portland",
	// UK regions
	"london", "manchester", "birmingham", "liverpool", "scotland", "wales", "northern ireland",
	// Australian regions
	"sydney", "melbourne", "brisbane", "perth", "adelaide",
	// local institutions
	"local council", "city council", "county", "municipality", "township",
	"school board", "school district", "high school", "elementary school",
	"local police", "sheriff", "state trooper",
	// local sports
	"minor league", "college football", "college basketball", "ncaa", "high school sports",
	// local phrasing
	"residents say", "neighbors", "local community", "town hall", "local election",
	"state legislature", "governor signs", "mayor announces",
}

// DefaultBreakingKeywords flags stories with breaking-news urgency: urgency
// markers, casualties, conflict, disasters, political upheaval, superlatives.
var DefaultBreakingKeywords = []string{
	// urgency
	"breaking", "urgent", "just in", "developing", "live updates", "emergency",
	// death and casualties
	"dead", "dies", "killed", "death toll", "casualties", "fatal", "victims",
	// conflict
	"attack", "strikes", "invasion", "missile", "explosion", "bombing", "gunfire", "hostage",
	// disasters
	"earthquake", "quake", "tsunami", "hurricane", "typhoon", "wildfire", "flood",
	"eruption", "disaster", "crash", "derail", "collapse",
	// political upheaval
	"resigns", "resignation", "impeach", "arrested", "indicted", "coup",
	"assassination", "overthrow",
	// superlative and historic
	"historic", "unprecedented", "first time", "record-breaking", "worst",
}

// Classifier screens article text by keyword membership. Matching is plain
// case-insensitive substring containment with no stemming, so a film review
// mentioning "invasion" will match.
type Classifier struct {
	local    []string
	breaking []string
}

// New creates a Classifier. Empty lists fall back to the defaults.
func New(local, breaking []string) *Classifier {
	if len(local) == 0 {
		local = DefaultLocalKeywords
	}
	if len(breaking) == 0 {
		breaking = DefaultBreakingKeywords
	}
	return &Classifier{
		local:    lowerAll(local),
		breaking: lowerAll(breaking),
	}
}

// IsLocalNews reports whether the article text reads as region-scoped news.
func (c *Classifier) IsLocalNews(title, description string) bool {
	return containsAny(title+" "+description, c.local)
}

// IsBreakingNews reports whether the article text carries breaking urgency.
func (c *Classifier) IsBreakingNews(title, description string) bool {
	return containsAny(title+" "+description, c.breaking)
}

func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowerAll(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = strings.ToLower(kw)
	}
	return out
}
