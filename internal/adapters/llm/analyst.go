package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// Usage accumulates token counts across every model call a job makes. The
// accumulator is threaded through both reasoning phases; per-call additions
// happen under its mutex because phase 1 runs pages in parallel.
type Usage struct {
	mu           sync.Mutex
	inputTokens  int64
	outputTokens int64
}

// Add records one generation's token counts.
func (u *Usage) Add(gen *Generation) {
	if gen == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inputTokens += gen.InputTokens
	u.outputTokens += gen.OutputTokens
}

// Tokens returns the accumulated input and output token counts.
func (u *Usage) Tokens() (input, output int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.inputTokens, u.outputTokens
}

// Pricing holds the per-token prices used for cost accounting.
type Pricing struct {
	InputPerToken  float64
	OutputPerToken float64
}

// Cost converts accumulated usage to US dollars.
func (p Pricing) Cost(u *Usage) float64 {
	input, output := u.Tokens()
	return float64(input)*p.InputPerToken + float64(output)*p.OutputPerToken
}

// Analyst runs the two reasoning phases over scraped pages.
type Analyst struct {
	generator Generator
	// pageCap truncates each page's text before prompting.
	pageCap int
	// combinedCap truncates the concatenated corpus for synthesis.
	combinedCap int
}

// AnalystOptions configures an Analyst.
type AnalystOptions struct {
	Generator Generator // Required
	// PageCharCap caps per-page prompt text; defaults to 20000.
	PageCharCap int
	// CombinedCharCap caps the synthesis corpus; defaults to 60000.
	CombinedCharCap int
}

// NewAnalyst constructs an Analyst.
func NewAnalyst(opts AnalystOptions) (*Analyst, error) {
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	pageCap := opts.PageCharCap
	if pageCap <= 0 {
		pageCap = 20_000
	}
	combinedCap := opts.CombinedCharCap
	if combinedCap <= 0 {
		combinedCap = 60_000
	}
	return &Analyst{generator: opts.Generator, pageCap: pageCap, combinedCap: combinedCap}, nil
}

const pageAnalysisPrompt = `You are a market research analyst. Analyze the following web page in the
context of this research topic: %q

Page URL: %s
Page content:
%s

Respond with a single JSON object, no markdown fences, with exactly these
fields:
{
  "company_name": "the company the page is about, or empty if unclear",
  "website_summary": "2-3 sentence summary of the page",
  "analysis": "how this page relates to the research topic",
  "key_findings": ["list", "of", "concrete findings"]
}`

// AnalyzePage runs the phase-1 per-page analysis. Pages with no usable
// content return a synthetic skipped analysis without a model call, so the
// output count always matches the input count. A malformed model response
// degrades into the analysis field instead of failing.
func (a *Analyst) AnalyzePage(
	ctx context.Context,
	topic string,
	doc model.ResearchDocument,
	usage *Usage,
) (*model.InputCompanyAnalysis, error) {
	if strings.TrimSpace(doc.Content) == "" {
		reason := "no content could be extracted from this page"
		if doc.ScrapeErr != nil && *doc.ScrapeErr != "" {
			reason = "page could not be scraped: " + *doc.ScrapeErr
		}
		return &model.InputCompanyAnalysis{
			SourceURL:   doc.URL,
			Analysis:    reason,
			KeyFindings: []string{},
			Skipped:     true,
		}, nil
	}

	prompt := fmt.Sprintf(pageAnalysisPrompt, topic, doc.URL, truncate(doc.Content, a.pageCap))
	gen, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze page %s: %w", doc.URL, err)
	}
	usage.Add(gen)

	var parsed struct {
		CompanyName    string   `json:"company_name"`
		WebsiteSummary string   `json:"website_summary"`
		Analysis       string   `json:"analysis"`
		KeyFindings    []string `json:"key_findings"`
	}
	if jsonErr := json.Unmarshal(extractJSON(gen.Text), &parsed); jsonErr != nil {
		return &model.InputCompanyAnalysis{
			SourceURL:   doc.URL,
			Analysis:    fmt.Sprintf("analysis response could not be parsed: %v; raw: %s", jsonErr, truncate(gen.Text, 500)),
			KeyFindings: []string{},
		}, nil
	}
	if parsed.KeyFindings == nil {
		parsed.KeyFindings = []string{}
	}
	return &model.InputCompanyAnalysis{
		SourceURL:      doc.URL,
		CompanyName:    parsed.CompanyName,
		WebsiteSummary: parsed.WebsiteSummary,
		Analysis:       parsed.Analysis,
		KeyFindings:    parsed.KeyFindings,
	}, nil
}

const synthesisPrompt = `You are a market research analyst. Based on the combined page analyses
below, identify competitors relevant to this research topic: %q

Do NOT list these companies (they are the input companies themselves): %s

Combined analyses:
%s

Respond with a single JSON object, no markdown fences, with exactly these
fields:
{
  "identified_competitors": ["competitor names not among the excluded companies"],
  "overall_summary": "a cross-page synthesis of the competitive landscape"
}`

// SynthesisOutcome carries the phase-2 fields. Parse failures degrade to
// descriptive error strings rather than an error return, so the job still
// completes.
type SynthesisOutcome struct {
	IdentifiedCompetitors []string
	OverallSummary        string
}

// Synthesize runs the phase-2 cross-page synthesis.
func (a *Analyst) Synthesize(
	ctx context.Context,
	topic string,
	combined string,
	excludeCompanies []string,
	usage *Usage,
) (*SynthesisOutcome, error) {
	exclude := "none"
	if len(excludeCompanies) > 0 {
		exclude = strings.Join(excludeCompanies, ", ")
	}
	prompt := fmt.Sprintf(synthesisPrompt, topic, exclude, truncate(combined, a.combinedCap))

	gen, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	usage.Add(gen)

	var parsed struct {
		IdentifiedCompetitors []string `json:"identified_competitors"`
		OverallSummary        string   `json:"overall_summary"`
	}
	if jsonErr := json.Unmarshal(extractJSON(gen.Text), &parsed); jsonErr != nil {
		msg := fmt.Sprintf("synthesis response could not be parsed: %v", jsonErr)
		return &SynthesisOutcome{
			IdentifiedCompetitors: []string{},
			OverallSummary:        msg + "; raw: " + truncate(gen.Text, 500),
		}, nil
	}
	return &SynthesisOutcome{
		IdentifiedCompetitors: filterExcluded(parsed.IdentifiedCompetitors, excludeCompanies),
		OverallSummary:        parsed.OverallSummary,
	}, nil
}

// filterExcluded drops competitors matching an excluded company name. The
// prompt already asks the model to omit them, but models echo input
// companies often enough that the list is filtered again here.
func filterExcluded(competitors, exclude []string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	out := []string{}
	for _, name := range competitors {
		if _, ok := excluded[strings.ToLower(strings.TrimSpace(name))]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

// extractJSON strips markdown code fences models sometimes wrap around
// JSON output.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
