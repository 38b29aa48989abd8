// Package research contains the two research pipeline workers: the scrape
// runner resolves and fetches input pages, the reason runner turns them
// into the final analysis.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	domainjob "github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/job"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/metrics"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/statsd"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/scrape"
)

// Searcher finds candidate URLs for topic-driven jobs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]scrape.SearchResult, error)
}

// PageFetcher downloads one page and extracts its text.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*scrape.Page, error)
}

// ScrapeRunnerOptions configures the scrape-stage runner.
type ScrapeRunnerOptions struct {
	Jobs      core.ResearchJobRepository // Required: the queue
	Documents core.DocumentRepository    // Required: scraped page store
	Fetcher   PageFetcher                // Required: page download + extraction
	Search    Searcher                   // Required for topic-driven jobs
	Notifier  domainjob.Notifier         // Required: queue wakeups
	Progress  core.ProgressPublisher     // Optional: error events for live subscribers

	Logger      *slog.Logger
	Metrics     statsd.Sink
	Lease       time.Duration // per-job lease; defaults to 5m
	Concurrency int           // worker goroutines; defaults to 1
	SearchLimit int           // top-N search results; defaults to 5
}

// ScrapeRunner is the scrape-stage worker loop. It resolves a job's input
// pages, persists them as documents, and hands the job to the reason queue.
type ScrapeRunner struct {
	jobs        core.ResearchJobRepository
	documents   core.DocumentRepository
	fetcher     PageFetcher
	search      Searcher
	notifier    domainjob.Notifier
	progress    core.ProgressPublisher
	logger      *slog.Logger
	metrics     statsd.Sink
	lease       time.Duration
	workers     int
	searchLimit int
}

// NewScrapeRunner constructs the scrape runner.
func NewScrapeRunner(opts ScrapeRunnerOptions) (*ScrapeRunner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("ResearchJobRepository is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("DocumentRepository is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("page fetcher is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("notifier is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	searchLimit := opts.SearchLimit
	if searchLimit <= 0 {
		searchLimit = scrape.DefaultSearchLimit
	}

	return &ScrapeRunner{
		jobs:        opts.Jobs,
		documents:   opts.Documents,
		fetcher:     opts.Fetcher,
		search:      opts.Search,
		notifier:    opts.Notifier,
		progress:    opts.Progress,
		logger:      logger,
		metrics:     opts.Metrics,
		lease:       lease,
		workers:     workers,
		searchLimit: searchLimit,
	}, nil
}

// Run starts worker goroutines and processes scrape jobs until the context
// is cancelled.
func (r *ScrapeRunner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting research scrape runner",
		"workers", r.workers, "lease", r.lease)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, notify := r.notifier.Subscribe(domainjob.QueueResearchScrape)
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, notify); err != nil {
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *ScrapeRunner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, model.StageScrape, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return nil
			case <-notify:
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *ScrapeRunner) processJob(ctx context.Context, job *model.ResearchJob) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    "research_scrape",
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	usable, err := r.scrapePages(ctx, job)
	if err != nil {
		r.failJob(ctx, job.ID, err.Error())
		emit("failed", metrics.ResultError, err)
		return
	}
	if usable == 0 {
		msg := "every input page failed to scrape"
		r.failJob(ctx, job.ID, msg)
		emit("failed", metrics.ResultError, errors.New(msg))
		return
	}

	advanced, err := r.jobs.AdvanceToReason(ctx, job.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "advance research job",
			"job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
		return
	}
	result := metrics.ResultNoop
	if advanced {
		result = metrics.ResultSuccess
	}
	r.logger.InfoContext(ctx, "research job scraped",
		"job_id", job.ID, "usable_pages", usable, "advanced", advanced)
	emit("completed", result, nil)
}

// scrapePages resolves the job's input URLs and fetches each page,
// persisting every attempt as a document. Returns how many pages produced
// usable content.
func (r *ScrapeRunner) scrapePages(ctx context.Context, job *model.ResearchJob) (int, error) {
	// A lease-expiry redelivery re-scrapes from scratch. Drop any documents
	// a previous attempt persisted so the reasoner never sees more pages
	// than the job has inputs.
	dropped, err := r.documents.DeleteByJob(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("clear prior documents: %w", err)
	}
	if dropped > 0 {
		r.logger.WarnContext(ctx, "cleared documents from a previous scrape attempt",
			"job_id", job.ID, "count", dropped)
	}

	urls := job.SourceURLs
	if len(urls) == 0 {
		if r.search == nil {
			return 0, errors.New("job has no source urls and no search provider is configured")
		}
		results, err := r.search.Search(ctx, job.Topic, r.searchLimit)
		if err != nil {
			return 0, fmt.Errorf("search for %q: %w", job.Topic, err)
		}
		if len(results) == 0 {
			return 0, fmt.Errorf("search for %q returned no results", job.Topic)
		}
		for _, res := range results {
			urls = append(urls, res.URL)
		}
	}

	usable := 0
	for _, pageURL := range urls {
		doc := &model.ResearchDocument{JobID: job.ID, URL: pageURL}

		page, fetchErr := r.fetcher.Fetch(ctx, pageURL)
		if fetchErr != nil {
			msg := fetchErr.Error()
			doc.ScrapeErr = &msg
			r.logger.WarnContext(ctx, "scrape page failed",
				"job_id", job.ID, "url", pageURL, "error", fetchErr)
		} else {
			doc.Title = page.Title
			doc.Content = page.Content
			if page.Content != "" {
				usable++
			}
		}

		if _, insertErr := r.documents.Insert(ctx, doc); insertErr != nil {
			return usable, fmt.Errorf("persist document for %s: %w", pageURL, insertErr)
		}
	}
	return usable, nil
}

func (r *ScrapeRunner) failJob(ctx context.Context, id, msg string) {
	if _, err := r.jobs.MarkError(ctx, id, msg); err != nil {
		r.logger.ErrorContext(ctx, "mark research job error",
			"job_id", id, "error", err, "original_error", msg)
	}
	if r.progress == nil {
		return
	}
	ev := &model.StageEvent{JobID: id, Step: model.StepError, Note: msg}
	if err := r.progress.Publish(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "publish research progress",
			"job_id", id, "step", ev.Step, "error", err)
	}
}
