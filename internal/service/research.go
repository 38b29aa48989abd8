package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"
)

// ResearchServiceOptions groups dependencies for ResearchService.
type ResearchServiceOptions struct {
	Jobs     core.ResearchJobRepository // Required: research queue
	Timeline core.TimelineRepository    // Required: persisted progress timeline
	Progress core.ProgressPublisher     // Optional: live progress subscription
	Logger   *slog.Logger               // Optional: structured logger
}

// ResearchService provides the request-side API of the research pipeline:
// job submission, status reads and progress subscriptions. The pipeline
// itself runs in the scrape and reason workers.
type ResearchService struct {
	jobs     core.ResearchJobRepository
	timeline core.TimelineRepository
	progress core.ProgressPublisher
	logger   *slog.Logger
}

// NewResearchService constructs a new ResearchService.
func NewResearchService(opts ResearchServiceOptions) (*ResearchService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("ResearchJobRepository is required")
	}
	if opts.Timeline == nil {
		return nil, errors.New("TimelineRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchService{
		jobs:     opts.Jobs,
		timeline: opts.Timeline,
		progress: opts.Progress,
		logger:   logger,
	}, nil
}

// MustNewResearchService constructs a new ResearchService and panics on error.
func MustNewResearchService(opts ResearchServiceOptions) *ResearchService {
	svc, err := NewResearchService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ResearchService: %v", err))
	}
	return svc
}

// Create validates and enqueues a research job on the scrape queue.
func (s *ResearchService) Create(ctx context.Context, p *model.CreateResearchJobParams) (*model.ResearchJob, error) {
	if p == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid research request")
	}
	job, err := s.jobs.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create research job: %w", err)
	}
	s.logger.InfoContext(ctx, "research job queued",
		"job_id", job.ID, "business_id", job.BusinessID, "topic", job.Topic,
		"source_urls", len(job.SourceURLs))
	return job, nil
}

// Get returns a research job by id.
func (s *ResearchService) Get(ctx context.Context, id string) (*model.ResearchJob, error) {
	if id == "" {
		return nil, apperrors.Validation("job id is required")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, model.ErrResearchJobNotFound) {
		return nil, apperrors.NotFoundf("research job %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Timeline returns the persisted progress events for a job, in order. The
// timeline is the source of truth; live pub/sub is a liveness layer on top.
func (s *ResearchService) Timeline(ctx context.Context, jobID string) ([]model.StageEvent, error) {
	if jobID == "" {
		return nil, apperrors.Validation("job id is required")
	}
	return s.timeline.ListByJob(ctx, jobID)
}

// Subscribe opens a live progress subscription for a job. Callers must
// invoke the returned cancel func when done.
func (s *ResearchService) Subscribe(ctx context.Context, jobID string) (<-chan model.StageEvent, func(), error) {
	if s.progress == nil {
		return nil, nil, errors.New("progress subscriptions are not configured")
	}
	if jobID == "" {
		return nil, nil, apperrors.Validation("job id is required")
	}
	return s.progress.Subscribe(ctx, jobID)
}
