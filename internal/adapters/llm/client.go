// Package llm wraps the Gemini client behind a small text-generation
// interface with global throttling, so pipeline code stays testable and
// provider limits are respected regardless of worker concurrency.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Generation throttling defaults. All model calls in the process share one
// gate: a small fixed concurrency plus a minimum inter-call spacing.
const (
	DefaultMaxConcurrent = 2
	DefaultMinInterval   = 500 * time.Millisecond
)

// Generation is one model response with its token accounting.
type Generation struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces text completions. The pipeline depends on this, not
// on the concrete client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// ClientOptions configures the Gemini-backed Generator.
type ClientOptions struct {
	// APIKey authenticates against the Gemini API.
	APIKey string
	// Model names the generation model, e.g. "gemini-2.0-flash".
	Model string
	// MaxConcurrent bounds in-flight calls; defaults to 2.
	MaxConcurrent int
	// MinInterval is the minimum spacing between call starts; defaults to 500ms.
	MinInterval time.Duration
}

// Client calls the Gemini API with process-wide throttling.
type Client struct {
	genai   *genai.Client
	model   string
	gate    chan struct{}
	limiter *rate.Limiter
}

// NewClient constructs a throttled Gemini client.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("gemini model is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}

	return &Client{
		genai:   gc,
		model:   opts.Model,
		gate:    make(chan struct{}, maxConcurrent),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}, nil
}

// Generate runs one completion under the global gate.
func (c *Client) Generate(ctx context.Context, prompt string) (*Generation, error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.gate }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	gen := &Generation{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		gen.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		gen.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return gen, nil
}

var _ Generator = (*Client)(nil)
