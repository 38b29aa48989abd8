package config

import (
	"strings"
	"time"
)

// ResearchConfig contains research pipeline configuration: the generation
// model, its pricing, prompt size caps, and the web search provider.
type ResearchConfig struct {
	// GeminiAPIKey authenticates against the Gemini API.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// GeminiModel names the generation model.
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Per-token prices in USD, used for job cost accounting.
	InputPricePerToken  float64 `env:"GEMINI_INPUT_PRICE_PER_TOKEN"  envDefault:"0.0000001"`
	OutputPricePerToken float64 `env:"GEMINI_OUTPUT_PRICE_PER_TOKEN" envDefault:"0.0000004"`

	// Prompt size caps in characters.
	PageCharCap     int `env:"RESEARCH_PAGE_CHAR_CAP"     envDefault:"20000"`
	CombinedCharCap int `env:"RESEARCH_COMBINED_CHAR_CAP" envDefault:"60000"`

	// Model call throttling shared across all workers in the process.
	MaxConcurrent int           `env:"GEMINI_MAX_CONCURRENT" envDefault:"2"`
	MinInterval   time.Duration `env:"GEMINI_MIN_INTERVAL"   envDefault:"500ms"`

	// Web search provider used for topic-driven jobs without source URLs.
	SearchBaseURL string `env:"SEARCH_BASE_URL" envDefault:"https://api.search.brave.com/res/v1"`
	SearchAPIKey  string `env:"SEARCH_API_KEY"`
	SearchLimit   int    `env:"SEARCH_LIMIT" envDefault:"5"`
}

// Sanitize applies guardrails to research configuration values.
func (r *ResearchConfig) Sanitize() {
	r.GeminiAPIKey = strings.TrimSpace(r.GeminiAPIKey)
	r.GeminiModel = strings.TrimSpace(r.GeminiModel)
	r.SearchBaseURL = strings.TrimSpace(r.SearchBaseURL)
	r.SearchAPIKey = strings.TrimSpace(r.SearchAPIKey)

	if r.InputPricePerToken < 0 {
		r.InputPricePerToken = 0
	}
	if r.OutputPricePerToken < 0 {
		r.OutputPricePerToken = 0
	}
	if r.PageCharCap < 1000 {
		r.PageCharCap = 1000
	}
	if r.CombinedCharCap < r.PageCharCap {
		r.CombinedCharCap = r.PageCharCap
	}
	if r.MaxConcurrent < 1 {
		r.MaxConcurrent = 1
	}
	if r.MinInterval < 0 {
		r.MinInterval = 0
	}
	if r.SearchLimit < 1 {
		r.SearchLimit = 1
	}
	if r.SearchLimit > 20 {
		r.SearchLimit = 20
	}
}
