package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shillsphere/market-peak-pilot-sub000/config"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/channels"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/distrorunner"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/llm"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/reaper"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/research"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/cryptoutil"
	domainjob "github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/job"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/observability/statsd"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/progress"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/scrape"
)

// queueWaiter maps logical queues onto the repositories' LISTEN loops so
// one notifier can serve every worker in the process.
type queueWaiter struct {
	distribution *data.DistributionRepo
	research     *data.ResearchRepo
}

func (w *queueWaiter) WaitForNotification(ctx context.Context, queue domainjob.Queue) error {
	switch queue {
	case domainjob.QueueDistribution:
		return w.distribution.WaitForNotification(ctx)
	case domainjob.QueueResearchScrape:
		return w.research.WaitForNotification(ctx, model.StageScrape)
	case domainjob.QueueResearchReason:
		return w.research.WaitForNotification(ctx, model.StageReason)
	}
	return fmt.Errorf("unknown queue %q", queue)
}

func newQueueNotifier(db *sql.DB, logger *slog.Logger) (*domainjob.DefaultNotifier, error) {
	waiter := &queueWaiter{
		distribution: data.NewDistributionRepo(db, data.DistributionRepoConfig{Logger: logger}),
		research:     data.NewResearchRepo(db, data.ResearchRepoConfig{Logger: logger}),
	}
	notifier, err := domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: waiter})
	if err != nil {
		return nil, fmt.Errorf("create queue notifier: %w", err)
	}
	return notifier, nil
}

// buildChannelRegistry constructs the full adapter set from the channel
// provider configuration.
func buildChannelRegistry(
	cfg config.ChannelsConfig,
	credentials *data.CredentialRepo,
	logger *slog.Logger,
) (*channels.Registry, error) {
	return channels.NewRegistry(
		channels.NewSocialAdapter(channels.SocialOptions{
			BaseURL:      cfg.SocialBaseURL,
			TokenURL:     cfg.SocialTokenURL,
			ClientID:     cfg.SocialClientID,
			ClientSecret: cfg.SocialClientSecret,
			Credentials:  credentials,
			Logger:       logger,
		}),
		channels.NewListingAdapter(channels.ListingOptions{
			BaseURL: cfg.ListingBaseURL,
		}),
		channels.NewSMSAdapter(channels.SMSOptions{
			BaseURL:    cfg.SMSBaseURL,
			BatchSize:  cfg.SMSBatchSize,
			BatchDelay: cfg.SMSBatchDelay,
		}),
		channels.NewEmailAdapter(channels.EmailOptions{
			BaseURL: cfg.EmailBaseURL,
		}),
		channels.NewGroupNotifyAdapter(channels.GroupNotifyOptions{
			BaseURL:      cfg.GroupNotifyBaseURL,
			ShareBaseURL: cfg.GroupShareBaseURL,
		}),
	)
}

// DistributorRunnerConfig contains configuration for the distribution worker.
type DistributorRunnerConfig struct {
	DB       *sql.DB
	Logger   *slog.Logger
	Config   config.DistributorConfig
	Channels config.ChannelsConfig
	Vault    *cryptoutil.Vault
	Metrics  statsd.Sink
}

// defaultDistributionLease bounds how long a delivery attempt may hold a
// reserved job before the reaper returns it to the queue.
const defaultDistributionLease = 2 * time.Minute

// RunDistributor starts the distribution delivery worker.
func RunDistributor(ctx context.Context, cfg DistributorRunnerConfig) error {
	leasePolicy, err := domainjob.NewLeasePolicy(defaultDistributionLease)
	if err != nil {
		return fmt.Errorf("create lease policy: %w", err)
	}

	credentials := data.NewCredentialRepo(cfg.DB, cfg.Vault)
	registry, err := buildChannelRegistry(cfg.Channels, credentials, cfg.Logger)
	if err != nil {
		return fmt.Errorf("build channel registry: %w", err)
	}

	notifier, err := newQueueNotifier(cfg.DB, cfg.Logger)
	if err != nil {
		return err
	}
	defer notifier.StopAll()

	runner, err := distrorunner.NewRunner(distrorunner.RunnerOptions{
		Jobs:        data.NewDistributionRepo(cfg.DB, data.DistributionRepoConfig{Logger: cfg.Logger}),
		Content:     data.NewContentRepo(cfg.DB),
		Credentials: credentials,
		Registry:    registry,
		Notifier:    notifier,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Lease:       cfg.Config.JobLease,
		LeasePolicy: leasePolicy,
		Concurrency: cfg.Config.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("create distribution runner: %w", err)
	}

	return runner.Run(ctx)
}

// ScraperRunnerConfig contains configuration for the scrape-stage worker.
type ScraperRunnerConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Config      config.ScrapeRunnerConfig
	Research    config.ResearchConfig
	Metrics     statsd.Sink
}

// RunScraper starts the research scrape-stage worker.
func RunScraper(ctx context.Context, cfg ScraperRunnerConfig) error {
	notifier, err := newQueueNotifier(cfg.DB, cfg.Logger)
	if err != nil {
		return err
	}
	defer notifier.StopAll()

	var search research.Searcher
	if cfg.Research.SearchAPIKey != "" {
		client, searchErr := scrape.NewSearchClient(scrape.SearchClientOptions{
			BaseURL: cfg.Research.SearchBaseURL,
			APIKey:  cfg.Research.SearchAPIKey,
		})
		if searchErr != nil {
			return fmt.Errorf("create search client: %w", searchErr)
		}
		search = client
	} else if cfg.Logger != nil {
		cfg.Logger.Warn("no search api key configured; topic-driven research jobs will fail")
	}

	publisher, err := newProgressPublisher(cfg.DB, cfg.RedisClient, cfg.Logger)
	if err != nil {
		return err
	}

	runner, err := research.NewScrapeRunner(research.ScrapeRunnerOptions{
		Jobs:        data.NewResearchRepo(cfg.DB, data.ResearchRepoConfig{Logger: cfg.Logger}),
		Documents:   data.NewDocumentRepo(cfg.DB),
		Fetcher:     scrape.NewFetcher(scrape.FetcherOptions{MaxContentRunes: cfg.Research.PageCharCap}),
		Search:      search,
		Notifier:    notifier,
		Progress:    publisher,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Lease:       cfg.Config.JobLease,
		Concurrency: cfg.Config.Concurrency,
		SearchLimit: cfg.Research.SearchLimit,
	})
	if err != nil {
		return fmt.Errorf("create scrape runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReasonerRunnerConfig contains configuration for the reason-stage worker.
type ReasonerRunnerConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Config      config.ReasonRunnerConfig
	Research    config.ResearchConfig
	Metrics     statsd.Sink
}

// RunReasoner starts the research reason-stage worker.
func RunReasoner(ctx context.Context, cfg ReasonerRunnerConfig) error {
	generator, err := llm.NewClient(ctx, llm.ClientOptions{
		APIKey:        cfg.Research.GeminiAPIKey,
		Model:         cfg.Research.GeminiModel,
		MaxConcurrent: cfg.Research.MaxConcurrent,
		MinInterval:   cfg.Research.MinInterval,
	})
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}

	analyst, err := llm.NewAnalyst(llm.AnalystOptions{
		Generator:       generator,
		PageCharCap:     cfg.Research.PageCharCap,
		CombinedCharCap: cfg.Research.CombinedCharCap,
	})
	if err != nil {
		return fmt.Errorf("create analyst: %w", err)
	}

	notifier, err := newQueueNotifier(cfg.DB, cfg.Logger)
	if err != nil {
		return err
	}
	defer notifier.StopAll()

	publisher, err := newProgressPublisher(cfg.DB, cfg.RedisClient, cfg.Logger)
	if err != nil {
		return err
	}

	runner, err := research.NewReasonRunner(research.ReasonRunnerOptions{
		Jobs:      data.NewResearchRepo(cfg.DB, data.ResearchRepoConfig{Logger: cfg.Logger}),
		Documents: data.NewDocumentRepo(cfg.DB),
		Analyst:   analyst,
		Progress:  publisher,
		Notifier:  notifier,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
		Pricing: llm.Pricing{
			InputPerToken:  cfg.Research.InputPricePerToken,
			OutputPerToken: cfg.Research.OutputPricePerToken,
		},
		Lease:        cfg.Config.JobLease,
		Concurrency:  cfg.Config.Concurrency,
		PageParallel: cfg.Config.PageParallel,
	})
	if err != nil {
		return fmt.Errorf("create reason runner: %w", err)
	}

	return runner.Run(ctx)
}

func newProgressPublisher(
	db *sql.DB,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) (*progress.Publisher, error) {
	publisher, err := progress.NewPublisher(progress.PublisherOptions{
		Redis:    redisClient,
		Timeline: data.NewTimelineRepo(db),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create progress publisher: %w", err)
	}
	return publisher, nil
}

// ReaperRunnerConfig contains configuration for the lease reaper.
type ReaperRunnerConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the lease reaper service.
func RunReaper(ctx context.Context, cfg ReaperRunnerConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
