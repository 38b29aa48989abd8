package model

import (
	"errors"
	"strings"
	"time"
)

// ResearchStatus tracks a research job through its pipeline. Transitions are
// forward-only: queued -> scraping -> reasoning -> completed | error.
// Terminal states are final; no worker may mutate a completed or errored job.
type ResearchStatus string

const (
	// ResearchQueued indicates the job waits for the next stage's worker.
	ResearchQueued ResearchStatus = "queued"
	// ResearchScraping indicates the scrape stage holds the job.
	ResearchScraping ResearchStatus = "scraping"
	// ResearchReasoning indicates the reasoning stage holds the job.
	ResearchReasoning ResearchStatus = "reasoning"
	// ResearchCompleted indicates the pipeline finished (possibly degraded).
	ResearchCompleted ResearchStatus = "completed"
	// ResearchError indicates a transport-level pipeline failure.
	ResearchError ResearchStatus = "error"
)

// ResearchStage selects which pipeline worker owns a queued research job.
type ResearchStage string

const (
	// StageScrape is the search & scrape stage.
	StageScrape ResearchStage = "scrape"
	// StageReason is the two-phase reasoning stage.
	StageReason ResearchStage = "reason"
)

// Valid returns true if the ResearchStatus is a known state.
func (s ResearchStatus) Valid() bool {
	switch s {
	case ResearchQueued, ResearchScraping, ResearchReasoning, ResearchCompleted, ResearchError:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s ResearchStatus) Terminal() bool {
	return s == ResearchCompleted || s == ResearchError
}

// ErrResearchJobNotFound is returned when a research job is absent.
var ErrResearchJobNotFound = errors.New("research job not found")

// ResearchJob is one user-initiated competitor/market analysis request.
type ResearchJob struct {
	ID           string          `json:"id"                      db:"id"`
	BusinessID   string          `json:"business_id"             db:"business_id"`
	UserID       string          `json:"user_id"                 db:"user_id"`
	Topic        string          `json:"topic"                   db:"topic"`
	SourceURLs   []string        `json:"source_urls,omitempty"   db:"source_urls"`
	Status       ResearchStatus  `json:"status"                  db:"status"`
	Stage        ResearchStage   `json:"-"                       db:"stage"`
	StartedAt    *time.Time      `json:"started_at,omitempty"    db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"   db:"finished_at"`
	Result       *ResearchResult `json:"result,omitempty"        db:"result"`
	CostUSD      *float64        `json:"cost_usd,omitempty"      db:"cost_usd"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	LeaseExpires *time.Time      `json:"-"                       db:"lease_expires_at"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// InputCompanyAnalysis is the per-page output of the reasoning stage's first
// phase. Output count always matches the scrape stage's page count; pages
// with no usable content carry a synthetic skipped analysis.
type InputCompanyAnalysis struct {
	SourceURL      string   `json:"source_url"`
	CompanyName    string   `json:"company_name,omitempty"`
	WebsiteSummary string   `json:"website_summary,omitempty"`
	Analysis       string   `json:"analysis"`
	KeyFindings    []string `json:"key_findings"`
	Skipped        bool     `json:"skipped,omitempty"`
}

// ResearchResult is the final structured analysis persisted with the job.
// Degraded phases embed descriptive error text in the relevant field rather
// than failing the job.
type ResearchResult struct {
	InputCompanyAnalyses  []InputCompanyAnalysis `json:"input_company_analyses"`
	IdentifiedCompetitors []string               `json:"identified_competitors"`
	OverallSummary        string                 `json:"overall_summary"`
}

// ResearchDocument is one scraped page, written append-only as the scrape
// stage processes URLs.
type ResearchDocument struct {
	ID        string    `json:"id"         db:"id"`
	JobID     string    `json:"job_id"     db:"job_id"`
	URL       string    `json:"url"        db:"url"`
	Title     string    `json:"title"      db:"title"`
	Content   string    `json:"content"    db:"content"`
	ScrapeErr *string   `json:"scrape_error,omitempty" db:"scrape_error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreateResearchJobParams groups the values needed to enqueue a research job.
// Either Topic alone (topic-driven) or SourceURLs plus Topic (URL-driven)
// must be supplied.
type CreateResearchJobParams struct {
	BusinessID string
	UserID     string
	Topic      string
	SourceURLs []string
}

// Validate validates CreateResearchJobParams.
func (p *CreateResearchJobParams) Validate() error {
	if strings.TrimSpace(p.BusinessID) == "" {
		return errors.New("business id is required")
	}
	if strings.TrimSpace(p.Topic) == "" {
		return errors.New("research topic is required")
	}
	for _, u := range p.SourceURLs {
		if strings.TrimSpace(u) == "" {
			return errors.New("source urls must be non-empty")
		}
	}
	return nil
}
