// Package distrorunner pulls distribution jobs off the queue and executes
// them through the channel adapter registry.
package distrorunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/channels"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	domainjob "github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/job"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/metrics"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/statsd"
)

// RunnerOptions configures the distribution runner.
type RunnerOptions struct {
	Jobs        core.DistributionJobRepository // Required: the queue
	Content     core.ContentRepository         // Required: content lookup
	Credentials core.CredentialRepository      // Required: decrypted credential resolution
	Registry    *channels.Registry             // Required: the adapter set
	Notifier    domainjob.Notifier             // Required: queue wakeups

	Logger      *slog.Logger
	Metrics     statsd.Sink
	Lease       time.Duration       // per-job lease; defaults to 2m
	LeasePolicy *domainjob.LeasePolicy
	Concurrency int                 // worker goroutines; defaults to 1
}

// Runner is the distribution worker loop. Each worker reserves one job at a
// time; the queue's lease plus the reaper give at-least-once delivery, so
// processing must tolerate redelivery of the same job id.
type Runner struct {
	jobs        core.DistributionJobRepository
	content     core.ContentRepository
	credentials core.CredentialRepository
	registry    *channels.Registry
	notifier    domainjob.Notifier
	logger      *slog.Logger
	metrics     statsd.Sink
	lease       time.Duration
	workers     int
}

// NewRunner constructs the distribution runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("DistributionJobRepository is required")
	}
	if opts.Content == nil {
		return nil, errors.New("ContentRepository is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("CredentialRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("adapter registry is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("notifier is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if opts.LeasePolicy != nil {
		decision := opts.LeasePolicy.Resolve(lease)
		lease = time.Duration(decision.Seconds) * time.Second
	} else if lease <= 0 {
		lease = 2 * time.Minute
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	return &Runner{
		jobs:        opts.Jobs,
		content:     opts.Content,
		credentials: opts.Credentials,
		registry:    opts.Registry,
		notifier:    opts.Notifier,
		logger:      logger,
		metrics:     opts.Metrics,
		lease:       lease,
		workers:     workers,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting distribution runner",
		"workers", r.workers, "lease", r.lease, "channels", r.registry.Channels())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, notify := r.notifier.Subscribe(domainjob.QueueDistribution)
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

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// processJob executes one reserved job through its channel adapter and
// persists the outcome. Status-write failures are logged, not returned:
// the lease reaper requeues the job for redelivery.
func (r *Runner) processJob(ctx context.Context, job *model.DistributionJob) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    "distribution_" + string(job.Channel),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	res := r.execute(ctx, job)
	if res.Success {
		if _, err := r.jobs.MarkSuccess(ctx, job.ID, res.ExternalID); err != nil {
			r.logger.ErrorContext(ctx, "mark job success",
				"job_id", job.ID, "error", err)
			emit("completed", metrics.ResultError, err)
			return
		}
		r.logger.InfoContext(ctx, "distribution job delivered",
			"job_id", job.ID, "channel", job.Channel, "external_id", res.ExternalID)
		emit("completed", metrics.ResultSuccess, nil)
		return
	}

	msg := "delivery failed"
	if res.Err != nil {
		msg = res.Err.Error()
	}
	if _, err := r.jobs.MarkError(ctx, job.ID, msg); err != nil {
		r.logger.ErrorContext(ctx, "mark job error",
			"job_id", job.ID, "error", err, "original_error", msg)
	}
	r.logger.WarnContext(ctx, "distribution job failed",
		"job_id", job.ID, "channel", job.Channel, "error", msg)
	emit("failed", metrics.ResultError, res.Err)
}

// execute resolves the adapter and its inputs; every failure comes back as
// a structured result so the loop's control flow is uniform.
func (r *Runner) execute(ctx context.Context, job *model.DistributionJob) *channels.Result {
	adapter, err := r.registry.For(job.Channel)
	if err != nil {
		return &channels.Result{Err: err}
	}
	if err := adapter.Validate(job); err != nil {
		return &channels.Result{Err: fmt.Errorf("validate job: %w", err)}
	}

	content, err := r.content.GetByID(ctx, job.ContentID)
	if err != nil {
		return &channels.Result{Err: fmt.Errorf("fetch content: %w", err)}
	}

	fields, err := r.credentials.GetFields(ctx, job.BusinessID, job.Channel)
	if err != nil {
		return &channels.Result{Err: fmt.Errorf("resolve credential: %w", err)}
	}

	payload, err := job.ChannelPayload()
	if err != nil {
		return &channels.Result{Err: fmt.Errorf("decode payload: %w", err)}
	}

	return adapter.Process(ctx, &channels.ProcessInput{
		Job:         job,
		Content:     content,
		Credentials: fields,
		Payload:     payload,
	})
}
