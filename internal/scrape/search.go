// Package scrape resolves research input pages: a search client to find
// candidate URLs for topic-driven jobs, and a fetcher that extracts
// readable article text from each page.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultSearchLimit caps how many results a topic search feeds the pipeline.
const DefaultSearchLimit = 5

// SearchResult is one hit from the search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchClientOptions configures the search provider client.
type SearchClientOptions struct {
	// BaseURL is the search API root.
	BaseURL string
	// APIKey authenticates against the provider.
	APIKey     string
	HTTPClient *http.Client
}

// SearchClient queries the web search provider's JSON API.
type SearchClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewSearchClient constructs a SearchClient.
func NewSearchClient(opts SearchClientOptions) (*SearchClient, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("search base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &SearchClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    hc,
	}, nil
}

// Search returns the top results for a query, capped at limit.
func (c *SearchClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	u := c.baseURL + "/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := payload.Results
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
