package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const (
	// maxFetchBytes bounds how much of a page is read before parsing.
	maxFetchBytes = 2 * 1024 * 1024
	// maxContentRunes caps the extracted text per page.
	maxContentRunes = 50_000
)

// Page is one fetched and text-extracted input page.
type Page struct {
	URL     string
	Title   string
	Content string
}

// FetcherOptions configures the page fetcher.
type FetcherOptions struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxContentRunes overrides the per-page text cap.
	MaxContentRunes int
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	http      *http.Client
	userAgent string
	maxRunes  int
}

// NewFetcher constructs a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "marketpeak-research/1.0"
	}
	maxRunes := opts.MaxContentRunes
	if maxRunes <= 0 {
		maxRunes = maxContentRunes
	}
	return &Fetcher{http: hc, userAgent: ua, maxRunes: maxRunes}
}

// Fetch downloads one page and returns its extracted text.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	// Pages are not reliably UTF-8; sniff the charset before parsing.
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxFetchBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := f.extractText(doc)

	return &Page{URL: pageURL, Title: title, Content: content}, nil
}

// extractText pulls readable text from the document, preferring semantic
// content containers over the raw body, and strips boilerplate elements.
func (f *Fetcher) extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe, svg").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}

	var b strings.Builder
	root.Find("h1, h2, h3, h4, p, li, td, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteByte('\n')
	})

	text := strings.TrimSpace(b.String())
	if text == "" {
		// Structureless pages fall back to the container's own text.
		text = collapseWhitespace(root.Text())
	}

	runes := []rune(text)
	if len(runes) > f.maxRunes {
		text = string(runes[:f.maxRunes])
	}
	return text
}

// collapseWhitespace normalizes runs of whitespace to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
