package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/llm"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	domainjob "github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/job"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/metrics"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/statsd"
)

// DefaultPageParallel bounds how many per-page analyses run at once.
const DefaultPageParallel = 3

// Analyzer is the reasoning model port. AnalyzePage is phase 1, Synthesize
// phase 2; implementations accumulate token usage into the shared Usage.
type Analyzer interface {
	AnalyzePage(ctx context.Context, topic string, doc model.ResearchDocument, usage *llm.Usage) (*model.InputCompanyAnalysis, error)
	Synthesize(ctx context.Context, topic string, combined string, excludeCompanies []string, usage *llm.Usage) (*llm.SynthesisOutcome, error)
}

// ReasonRunnerOptions configures the reason-stage runner.
type ReasonRunnerOptions struct {
	Jobs      core.ResearchJobRepository // Required: the queue
	Documents core.DocumentRepository    // Required: scraped page store
	Analyst   Analyzer                   // Required: reasoning model
	Progress  core.ProgressPublisher     // Required: incremental events
	Notifier  domainjob.Notifier         // Required: queue wakeups

	Logger       *slog.Logger
	Metrics      statsd.Sink
	Pricing      llm.Pricing   // token pricing for cost accounting
	Lease        time.Duration // per-job lease; defaults to 10m
	Concurrency  int           // worker goroutines; defaults to 1
	PageParallel int           // concurrent phase-1 analyses; defaults to 3
}

// ReasonRunner is the reason-stage worker loop. Phase 1 analyzes every
// scraped page in bounded parallel, streaming each result as it completes.
// Phase 2 runs one synthesis over the combined analyses, then finalizes the
// job with its result and cost.
type ReasonRunner struct {
	jobs         core.ResearchJobRepository
	documents    core.DocumentRepository
	analyst      Analyzer
	progress     core.ProgressPublisher
	notifier     domainjob.Notifier
	logger       *slog.Logger
	metrics      statsd.Sink
	pricing      llm.Pricing
	lease        time.Duration
	workers      int
	pageParallel int
}

// NewReasonRunner constructs the reason runner.
func NewReasonRunner(opts ReasonRunnerOptions) (*ReasonRunner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("ResearchJobRepository is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("DocumentRepository is required")
	}
	if opts.Analyst == nil {
		return nil, errors.New("analyzer is required")
	}
	if opts.Progress == nil {
		return nil, errors.New("progress publisher is required")
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
		lease = 10 * time.Minute
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	pageParallel := opts.PageParallel
	if pageParallel <= 0 {
		pageParallel = DefaultPageParallel
	}

	return &ReasonRunner{
		jobs:         opts.Jobs,
		documents:    opts.Documents,
		analyst:      opts.Analyst,
		progress:     opts.Progress,
		notifier:     opts.Notifier,
		logger:       logger,
		metrics:      opts.Metrics,
		pricing:      opts.Pricing,
		lease:        lease,
		workers:      workers,
		pageParallel: pageParallel,
	}, nil
}

// Run starts worker goroutines and processes reason jobs until the context
// is cancelled.
func (r *ReasonRunner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting research reason runner",
		"workers", r.workers, "lease", r.lease, "page_parallel", r.pageParallel)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, notify := r.notifier.Subscribe(domainjob.QueueResearchReason)
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

func (r *ReasonRunner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, model.StageReason, r.lease)
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

func (r *ReasonRunner) processJob(ctx context.Context, job *model.ResearchJob) {
	start := time.Now()
	emit := func(result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    "research_reason",
			Transition: "completed",
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	result, cost, err := r.reason(ctx, job)
	if err != nil {
		r.failJob(ctx, job.ID, err)
		emit(metrics.ResultError, err)
		return
	}

	completed, err := r.jobs.Complete(ctx, &core.CompleteResearchParams{
		ID:      job.ID,
		Result:  result,
		CostUSD: cost,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "complete research job",
			"job_id", job.ID, "error", err)
		emit(metrics.ResultError, err)
		return
	}
	if !completed {
		r.logger.WarnContext(ctx, "research job no longer reasoning, result discarded",
			"job_id", job.ID)
		emit(metrics.ResultNoop, nil)
		return
	}

	r.publish(ctx, &model.StageEvent{
		JobID: job.ID,
		Step:  model.StepDone,
		Note:  fmt.Sprintf("analysis complete, %d pages, $%.4f", len(result.InputCompanyAnalyses), cost),
	})
	r.logger.InfoContext(ctx, "research job completed",
		"job_id", job.ID, "pages", len(result.InputCompanyAnalyses),
		"competitors", len(result.IdentifiedCompetitors), "cost_usd", cost)
	emit(metrics.ResultSuccess, nil)
}

func (r *ReasonRunner) reason(ctx context.Context, job *model.ResearchJob) (*model.ResearchResult, float64, error) {
	docs, err := r.documents.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, 0, errors.New("no scraped documents for job")
	}

	usage := &llm.Usage{}
	analyses := make([]*model.InputCompanyAnalysis, len(docs))

	// Phase 1: per-page analyses in bounded parallel. Each result streams
	// out the moment it completes; order in the final result follows the
	// document order regardless of completion order.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.pageParallel)
	for i, doc := range docs {
		g.Go(func() error {
			analysis, err := r.analyst.AnalyzePage(gctx, job.Topic, doc, usage)
			if err != nil {
				return err
			}
			analyses[i] = analysis

			payload, merr := json.Marshal(analysis)
			if merr != nil {
				return fmt.Errorf("encode analysis for %s: %w", doc.URL, merr)
			}
			r.publish(gctx, &model.StageEvent{
				JobID:   job.ID,
				Step:    model.StepPartialInputAnalysis,
				Note:    analysis.SourceURL,
				Payload: payload,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	// Phase 2: one synthesis over everything phase 1 produced. Companies
	// already analyzed as inputs are excluded from the competitor list.
	outcome, err := r.analyst.Synthesize(ctx, job.Topic, combineAnalyses(analyses), inputCompanies(analyses), usage)
	if err != nil {
		return nil, 0, err
	}

	r.publish(ctx, &model.StageEvent{
		JobID:   job.ID,
		Step:    model.StepIdentifiedCompetitors,
		Payload: mustJSON(map[string]any{"identified_competitors": outcome.IdentifiedCompetitors}),
	})
	r.publish(ctx, &model.StageEvent{
		JobID:   job.ID,
		Step:    model.StepOverallSummary,
		Payload: mustJSON(map[string]any{"overall_summary": outcome.OverallSummary}),
	})

	result := &model.ResearchResult{
		InputCompanyAnalyses:  make([]model.InputCompanyAnalysis, 0, len(analyses)),
		IdentifiedCompetitors: outcome.IdentifiedCompetitors,
		OverallSummary:        outcome.OverallSummary,
	}
	for _, a := range analyses {
		result.InputCompanyAnalyses = append(result.InputCompanyAnalyses, *a)
	}
	return result, r.pricing.Cost(usage), nil
}

// combineAnalyses flattens phase-1 output into the synthesis corpus.
func combineAnalyses(analyses []*model.InputCompanyAnalysis) string {
	var b strings.Builder
	for _, a := range analyses {
		if a.Skipped {
			continue
		}
		fmt.Fprintf(&b, "Source: %s\n", a.SourceURL)
		if a.CompanyName != "" {
			fmt.Fprintf(&b, "Company: %s\n", a.CompanyName)
		}
		if a.WebsiteSummary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", a.WebsiteSummary)
		}
		if a.Analysis != "" {
			fmt.Fprintf(&b, "Analysis: %s\n", a.Analysis)
		}
		for _, f := range a.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// inputCompanies collects the company names phase 1 recognized so the
// synthesis can exclude them from the competitor list.
func inputCompanies(analyses []*model.InputCompanyAnalysis) []string {
	var names []string
	for _, a := range analyses {
		if a.CompanyName != "" {
			names = append(names, a.CompanyName)
		}
	}
	return names
}

func (r *ReasonRunner) publish(ctx context.Context, ev *model.StageEvent) {
	if err := r.progress.Publish(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "publish research progress",
			"job_id", ev.JobID, "step", ev.Step, "error", err)
	}
}

func (r *ReasonRunner) failJob(ctx context.Context, id string, cause error) {
	r.logger.ErrorContext(ctx, "research reasoning failed",
		"job_id", id, "error", cause)
	if _, err := r.jobs.MarkError(ctx, id, cause.Error()); err != nil {
		r.logger.ErrorContext(ctx, "mark research job error",
			"job_id", id, "error", err)
	}
	r.publish(ctx, &model.StageEvent{
		JobID: id,
		Step:  model.StepError,
		Note:  cause.Error(),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
