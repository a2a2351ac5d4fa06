package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ErrSkippedDomain marks a fetch short-circuited because an earlier request
// to the same domain failed during this run.
var ErrSkippedDomain = errors.New("domain skipped after earlier failure")

// Detail holds what could be extracted from one article page. Either field
// may be empty; a page with no readable body can still carry a lead image.
type Detail struct {
	Text     string
	ImageURL string
}

// Client fetches article pages over HTTP and extracts readable text plus a
// lead image. A domain that fails once is skipped for the life of the client,
// so a dead site costs one request per run instead of one per article.
type Client struct {
	http          *http.Client
	failedDomains map[string]struct{}
}

// NewClient creates a detail fetcher with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// Fetch downloads the article page and extracts its readable text and lead
// image. HTTP-level failures return an error and blacklist the domain;
// extraction failures are soft and yield an empty Detail field instead.
func (c *Client) Fetch(ctx context.Context, articleURL string) (*Detail, error) {
	domain := hostOf(articleURL)
	if _, failed := c.failedDomains[domain]; failed && domain != "" {
		return nil, ErrSkippedDomain
	}

	body, err := c.download(ctx, articleURL)
	if err != nil {
		if domain != "" {
			c.failedDomains[domain] = struct{}{}
		}
		return nil, err
	}

	detail := &Detail{}
	parsedURL, _ := url.Parse(articleURL)

	if article, err := readability.FromReader(bytes.NewReader(body), parsedURL); err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) > 100 {
			detail.Text = text
		}
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		detail.ImageURL = leadImage(doc, parsedURL)
	}

	if detail.Text == "" {
		log.Printf("No extractable content from: %s", articleURL)
	}
	return detail, nil
}

func (c *Client) download(ctx context.Context, articleURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "newsreel/1.0 (news video pipeline)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// leadImage looks for a social-card image, falling back to the first <img>
// with an absolute source. Relative URLs are resolved against the page URL.
func leadImage(doc *goquery.Document, pageURL *url.URL) string {
	selectors := []struct{ sel, attr string }{
		{`meta[property="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`meta[name="twitter:image:src"]`, "content"},
	}
	for _, s := range selectors {
		if v, ok := doc.Find(s.sel).First().Attr(s.attr); ok {
			if resolved := resolveURL(strings.TrimSpace(v), pageURL); resolved != "" {
				return resolved
			}
		}
	}

	var found string
	doc.Find("article img, img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok {
			return true
		}
		if resolved := resolveURL(strings.TrimSpace(src), pageURL); resolved != "" {
			found = resolved
			return false
		}
		return true
	})
	return found
}

func resolveURL(raw string, base *url.URL) string {
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hostOf(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil || u == nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
