// Package reaper provides the adapter for running the lease reaper loop.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shillsphere/market-peak-pilot-sub000/config"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/statsd"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/service"
)

// Runner constructs the reaper service over the real queue repositories
// and runs its requeue loop.
type Runner struct {
	reaper  *service.ReaperService
	logger  *slog.Logger
	metrics statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Distribution service.LeaseRequeuer
	Research     service.LeaseRequeuer
	Metrics      statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	distribution := opts.Distribution
	if distribution == nil {
		distribution = data.NewDistributionRepo(opts.DB, data.DistributionRepoConfig{Logger: opts.Logger})
	}
	research := opts.Research
	if research == nil {
		research = data.NewResearchRepo(opts.DB, data.ResearchRepoConfig{Logger: opts.Logger})
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Distribution: distribution,
		Research:     research,
		Config:       opts.Config,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper:  reaper,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Distribution == nil || opts.Research == nil) {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
