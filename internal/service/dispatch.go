package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"
)

// DefaultDispatchConcurrency bounds the per-request channel fan-out.
const DefaultDispatchConcurrency = 5

// DispatchRequest is one distribution request: fan a content item out to a
// set of channels.
type DispatchRequest struct {
	BusinessID  string               `json:"business_id"`
	ContentID   string               `json:"content_id"`
	Channels    []string             `json:"channels"`
	ScheduledAt *time.Time           `json:"scheduled_at,omitempty"`
	Payload     model.ChannelPayload `json:"payload"`
}

// QueuedJob identifies one successfully enqueued per-channel job.
type QueuedJob struct {
	Channel     model.Channel `json:"channel"`
	JobID       string        `json:"jobId"`
	ScheduledAt time.Time     `json:"scheduledAt"`
}

// ChannelFailure reports why one channel could not be enqueued.
type ChannelFailure struct {
	Channel model.Channel `json:"channel"`
	Reason  string        `json:"reason"`
}

// DispatchResult always enumerates both outcomes; the caller decides
// whether partial success is acceptable.
type DispatchResult struct {
	SuccessJobs []QueuedJob      `json:"successJobs"`
	FailedJobs  []ChannelFailure `json:"failedJobs"`
	TotalJobs   int              `json:"totalJobs"`
}

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	Jobs        core.DistributionJobRepository // Required: distribution queue
	Content     core.ContentRepository         // Required: content lookup
	Credentials core.CredentialRepository      // Required: credential resolution
	Logger      *slog.Logger                   // Optional: structured logger
	Concurrency int                            // Optional: fan-out bound, defaults to 5
	Now         func() time.Time               // Optional: clock override for tests
}

// DispatchService validates distribution requests and fans them out into
// per-channel queue jobs. Channels are independent: one channel's failure
// never aborts or rolls back its siblings.
type DispatchService struct {
	jobs        core.DistributionJobRepository
	content     core.ContentRepository
	credentials core.CredentialRepository
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) (*DispatchService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("DistributionJobRepository is required")
	}
	if opts.Content == nil {
		return nil, errors.New("ContentRepository is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("CredentialRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &DispatchService{
		jobs:        opts.Jobs,
		content:     opts.Content,
		credentials: opts.Credentials,
		logger:      logger,
		concurrency: concurrency,
		now:         now,
	}, nil
}

// GetJob returns one distribution job by id.
func (s *DispatchService) GetJob(ctx context.Context, id string) (*model.DistributionJob, error) {
	if id == "" {
		return nil, apperrors.Validation("job id is required")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, model.ErrDistributionJobNotFound) {
		return nil, apperrors.NotFoundf("distribution job %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MustNewDispatchService constructs a new DispatchService and panics on error.
func MustNewDispatchService(opts DispatchServiceOptions) *DispatchService {
	svc, err := NewDispatchService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create DispatchService: %v", err))
	}
	return svc
}

// Dispatch validates the request, fetches the content once, then enqueues
// one job per requested channel concurrently. Validation failures reject
// the whole request before any side effect; per-channel failures after
// validation are reported individually.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	channels, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	content, err := s.content.GetByID(ctx, req.ContentID)
	if errors.Is(err, model.ErrContentNotFound) {
		return nil, apperrors.ValidationField("content_id", "content not found")
	}
	if err != nil {
		return nil, fmt.Errorf("fetch content %s: %w", req.ContentID, err)
	}
	if content.BusinessID != req.BusinessID {
		return nil, apperrors.Validationf("content %s does not belong to business %s",
			req.ContentID, req.BusinessID)
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode channel payload: %w", err)
	}

	scheduledAt := s.now()
	if req.ScheduledAt != nil && req.ScheduledAt.After(scheduledAt) {
		scheduledAt = *req.ScheduledAt
	}

	result := &DispatchResult{TotalJobs: len(channels)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, channel := range channels {
		g.Go(func() error {
			job, chErr := s.enqueueChannel(gctx, req, channel, scheduledAt, payload)
			mu.Lock()
			defer mu.Unlock()
			if chErr != nil {
				result.FailedJobs = append(result.FailedJobs, ChannelFailure{
					Channel: channel,
					Reason:  chErr.Error(),
				})
				return nil
			}
			result.SuccessJobs = append(result.SuccessJobs, QueuedJob{
				Channel:     channel,
				JobID:       job.ID,
				ScheduledAt: job.ScheduledAt,
			})
			return nil
		})
	}
	// Goroutines report failures through the result, never as group errors.
	_ = g.Wait()

	sortDispatchResult(result)

	s.logger.InfoContext(ctx, "distribution dispatched",
		"business_id", req.BusinessID,
		"content_id", req.ContentID,
		"total", result.TotalJobs,
		"queued", len(result.SuccessJobs),
		"failed", len(result.FailedJobs))
	return result, nil
}

// validate applies the request checks in order, short-circuiting on the
// first failure. Any unknown channel rejects the whole request.
func (s *DispatchService) validate(req DispatchRequest) ([]model.Channel, error) {
	if strings.TrimSpace(req.BusinessID) == "" {
		return nil, apperrors.ValidationField("business_id", "business id is required")
	}
	if strings.TrimSpace(req.ContentID) == "" {
		return nil, apperrors.ValidationField("content_id", "content id is required")
	}
	if len(req.Channels) == 0 {
		return nil, apperrors.ValidationField("channels", "at least one channel is required")
	}

	seen := make(map[model.Channel]struct{}, len(req.Channels))
	channels := make([]model.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		ch, err := model.ParseChannel(raw)
		if err != nil {
			return nil, apperrors.ValidationField("channels", err.Error())
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}

	if req.ScheduledAt != nil && req.ScheduledAt.Before(s.now()) {
		return nil, apperrors.ValidationField("scheduled_at", "scheduled time is in the past")
	}
	return channels, nil
}

// enqueueChannel resolves the channel credential and inserts the queued job
// row. The credential check happens at dispatch time so a missing or
// undecryptable credential surfaces immediately in the response instead of
// as a delayed worker failure.
func (s *DispatchService) enqueueChannel(
	ctx context.Context,
	req DispatchRequest,
	channel model.Channel,
	scheduledAt time.Time,
	payload json.RawMessage,
) (*model.DistributionJob, error) {
	if _, err := s.credentials.GetFields(ctx, req.BusinessID, channel); err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			return nil, fmt.Errorf("no credential configured for channel %s", channel)
		}
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	job, err := s.jobs.Create(ctx, &model.CreateDistributionJobParams{
		BusinessID:  req.BusinessID,
		ContentID:   req.ContentID,
		Channel:     channel,
		ScheduledAt: scheduledAt,
		Payload:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// sortDispatchResult orders both lists by channel so responses are stable
// regardless of goroutine completion order.
func sortDispatchResult(result *DispatchResult) {
	sort.Slice(result.SuccessJobs, func(i, j int) bool {
		return result.SuccessJobs[i].Channel < result.SuccessJobs[j].Channel
	})
	sort.Slice(result.FailedJobs, func(i, j int) bool {
		return result.FailedJobs[i].Channel < result.FailedJobs[j].Channel
	})
}
