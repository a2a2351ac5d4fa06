package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const newsDataBaseURL = "https://newsdata.io/api/1/latest"

// NewsDataClient fetches articles from the NewsData REST API, one request
// per configured category. It is the API-mode alternative to Client.
type NewsDataClient struct {
	apiKey     string
	categories []string
	client     *http.Client
}

// NewNewsDataClient creates a NewsData client for the given categories.
func NewNewsDataClient(apiKey string, categories []string) *NewsDataClient {
	return &NewsDataClient{
		apiKey:     apiKey,
		categories: categories,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsDataClient) IsConfigured() bool {
	return c.apiKey != ""
}

// FetchAll fetches the latest articles for every configured category.
// Per-category request failures are logged and skipped.
func (c *NewsDataClient) FetchAll(ctx context.Context) ([]Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsdata API key not configured")
	}

	var results []Result
	for _, category := range c.categories {
		articles, err := c.fetchCategory(ctx, category)
		if err != nil {
			log.Printf("NewsData fetch failed for %s: %v", category, err)
			continue
		}
		results = append(results, groupBySource(category, articles)...)
	}
	return results, nil
}

func (c *NewsDataClient) fetchCategory(ctx context.Context, category string) ([]Article, error) {
	params := url.Values{
		"apikey":   {c.apiKey},
		"category": {category},
		"language": {"en"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", newsDataBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsdata API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("newsdata API returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			Title       string `json:"title"`
			Link        string `json:"link"`
			Description string `json:"description"`
			SourceName  string `json:"source_name"`
			SourceID    string `json:"source_id"`
			PubDate     string `json:"pubDate"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if payload.Status != "success" {
		return nil, fmt.Errorf("newsdata status: %s", payload.Status)
	}

	var articles []Article
	for _, r := range payload.Results {
		if len(articles) >= maxPerFeed {
			break
		}
		source := r.SourceName
		if source == "" {
			source = r.SourceID
		}

		var published string
		if t, err := time.Parse("2006-01-02 15:04:05", r.PubDate); err == nil {
			published = t.Format("2006-01-02")
		}

		a := Article{
			Title:       strings.TrimSpace(r.Title),
			Description: truncateRunes(StripHTML(r.Description), maxDescription),
			Source:      source,
			Category:    category,
			Link:        r.Link,
			Published:   published,
		}
		if !a.Eligible() || a.Link == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// groupBySource splits a category's articles into per-source Results so the
// selection engine sees the same shape as RSS mode.
func groupBySource(category string, articles []Article) []Result {
	var order []string
	bySource := make(map[string][]Article)
	for _, a := range articles {
		if _, ok := bySource[a.Source]; !ok {
			order = append(order, a.Source)
		}
		bySource[a.Source] = append(bySource[a.Source], a)
	}

	results := make([]Result, 0, len(order))
	for _, src := range order {
		results = append(results, Result{Category: category, Source: src, Articles: bySource[src]})
	}
	return results
}
