package feed

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
)

const (
	maxPerFeed     = 10
	maxDescription = 500
)

// Source is one RSS feed within a category.
type Source struct {
	Name string
	URL  string
}

// Category groups the feeds that cover one news beat.
type Category struct {
	Name  string
	Feeds []Source
}

// Result is the outcome of fetching one feed: its eligible articles in
// feed order. A failed feed produces no Result at all.
type Result struct {
	Category string
	Source   string
	Articles []Article
}

// Fetcher pulls candidate articles from every configured source.
// Implemented by Client (RSS) and NewsDataClient (REST API).
type Fetcher interface {
	FetchAll(ctx context.Context) ([]Result, error)
}

// Client fetches and parses RSS feeds with bounded concurrency.
type Client struct {
	categories  []Category
	parser      *gofeed.Parser
	concurrency int
}

// NewClient creates an RSS feed client. Concurrency bounds the number of
// feeds fetched at once; values below 1 mean sequential.
func NewClient(categories []Category, concurrency int) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{
		categories:  categories,
		parser:      gofeed.NewParser(),
		concurrency: concurrency,
	}
}

// FetchAll fetches every configured feed and returns one Result per feed
// that responded, merged back into catalog order regardless of which
// fetch finished first. Individual feed failures are logged and skipped;
// a single outage never aborts the whole fetch.
func (c *Client) FetchAll(ctx context.Context) ([]Result, error) {
	type job struct {
		category string
		source   Source
	}

	var jobs []job
	for _, cat := range c.categories {
		for _, src := range cat.Feeds {
			jobs = append(jobs, job{category: cat.Name, source: src})
		}
	}

	slots := make([]*Result, len(jobs))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			name := j.source.Name
			if name == "" {
				name = extractSourceName(j.source.URL)
			}

			articles, err := c.parseFeed(ctx, j.source.URL, name, j.category)
			if err != nil {
				log.Printf("Failed to parse feed %s: %v", j.source.URL, err)
				return
			}
			slots[i] = &Result{Category: j.category, Source: name, Articles: articles}
		}(i, j)
	}
	wg.Wait()

	var results []Result
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

func (c *Client) parseFeed(ctx context.Context, feedURL, sourceName, category string) ([]Article, error) {
	parsed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var articles []Article
	for _, item := range parsed.Items {
		if len(articles) >= maxPerFeed {
			break
		}
		a := parseItem(item, sourceName, category)
		if a == nil {
			continue
		}
		articles = append(articles, *a)
	}
	return articles, nil
}

func parseItem(item *gofeed.Item, source, category string) *Article {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	if link == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)

	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	desc = truncateRunes(StripHTML(desc), maxDescription)

	var published string
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.Format("2006-01-02")
	}

	a := Article{
		Title:       title,
		Description: desc,
		Source:      source,
		Category:    category,
		Link:        link,
		Published:   published,
	}
	if !a.Eligible() {
		return nil
	}
	return &a
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// StripHTML removes tags, decodes common entities, and collapses whitespace.
func StripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	if host == "" {
		return feedURL
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
