package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/config"
	obserrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/errors"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/metrics"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/statsd"
)

// LeaseRequeuer returns expired-lease running jobs to their queue.
type LeaseRequeuer interface {
	RequeueExpired(ctx context.Context) (int64, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Distribution LeaseRequeuer       // Required: distribution queue
	Research     LeaseRequeuer       // Required: research queue
	Config       config.ReaperConfig // Required: reaper configuration
	Logger       *slog.Logger        // Optional: structured logger
	Metrics      statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService returns jobs whose worker died mid-lease to their queues.
// A lease expiring is the only signal of a crashed worker, so this loop is
// what turns the queues' leases into at-least-once delivery.
type ReaperService struct {
	distribution LeaseRequeuer
	research     LeaseRequeuer
	config       config.ReaperConfig
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Distribution == nil {
		return nil, errors.New("distribution queue is required")
	}
	if opts.Research == nil {
		return nil, errors.New("research queue is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized", "interval", opts.Config.Interval)
	}

	return &ReaperService{
		distribution: opts.Distribution,
		research:     opts.Research,
		config:       opts.Config,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// Run starts the requeue loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run immediately after jitter
	if err := s.runRequeue(ctx); err != nil {
		s.logRequeueError(err, "initial requeue")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the requeue loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runRequeue(ctx); err != nil {
				s.logRequeueError(err, "requeue")
				// Continue running despite errors
			}
		}
	}
}

// runRequeue requeues expired leases on both queues.
func (s *ReaperService) runRequeue(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		m                  requeueMetrics
	)

	steps := []requeueStep{
		{
			queue:     s.distribution,
			label:     "requeue expired distribution jobs",
			operation: "requeue_distribution",
			count:     &m.DistributionCount,
			metricErr: &m.DistributionErr,
		},
		{
			queue:     s.research,
			label:     "requeue expired research jobs",
			operation: "requeue_research",
			count:     &m.ResearchCount,
			metricErr: &m.ResearchErr,
		},
	}

	for _, step := range steps {
		count, err := step.queue.RequeueExpired(ctx)
		*step.count = count
		*step.metricErr = suppressContextCancellation(err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
		if count > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, step.label, "count", count)
		}
	}

	m.Elapsed = time.Since(start)
	s.emitRequeueMetrics(m)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("requeue failed: %w", joined)
	}

	return nil
}

type requeueStep struct {
	queue     LeaseRequeuer
	label     string
	operation string
	count     *int64
	metricErr *error
}

type requeueMetrics struct {
	DistributionCount int64
	DistributionErr   error
	ResearchCount     int64
	ResearchErr       error
	Elapsed           time.Duration
}

func (s *ReaperService) emitRequeueMetrics(m requeueMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.DistributionCount + m.ResearchCount
	firstErr := firstError(m.DistributionErr, m.ResearchErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.requeue", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.requeue_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitRequeueOperationMetric("requeue_distribution", m.DistributionCount, m.DistributionErr)
	s.emitRequeueOperationMetric("requeue_research", m.ResearchCount, m.ResearchErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitRequeueOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.requeue_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_requeued", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logRequeueError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
