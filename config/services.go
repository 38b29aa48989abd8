package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeDistributor runs the distribution delivery worker.
	ServiceModeDistributor ServiceMode = "distributor"
	// ServiceModeScraper runs the research scrape-stage worker.
	ServiceModeScraper ServiceMode = "scraper"
	// ServiceModeReasoner runs the research reason-stage worker.
	ServiceModeReasoner ServiceMode = "reasoner"
	// ServiceModeReaper runs the expired-lease reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeDistributor,
		ServiceModeScraper,
		ServiceModeReasoner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeDistributor,
			ServiceModeScraper,
			ServiceModeReasoner,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, distributor, scraper, reasoner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// DistributorConfig contains distribution worker configuration.
type DistributorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"DISTRIBUTOR_CONCURRENCY" envDefault:"4"`

	// JobLease is the duration to lease a distribution job.
	JobLease time.Duration `env:"DISTRIBUTOR_JOB_LEASE" envDefault:"2m"`
}

// Sanitize applies guardrails to distributor configuration values.
func (d *DistributorConfig) Sanitize() {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.JobLease < 5*time.Second {
		d.JobLease = 5 * time.Second
	}
}

// ScrapeRunnerConfig contains research scrape worker configuration.
type ScrapeRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"SCRAPE_RUNNER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a scrape-stage job.
	JobLease time.Duration `env:"SCRAPE_RUNNER_JOB_LEASE" envDefault:"5m"`
}

// Sanitize applies guardrails to scrape runner configuration values.
func (s *ScrapeRunnerConfig) Sanitize() {
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.JobLease < 30*time.Second {
		s.JobLease = 30 * time.Second
	}
}

// ReasonRunnerConfig contains research reason worker configuration.
type ReasonRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"REASON_RUNNER_CONCURRENCY" envDefault:"1"`

	// JobLease is the duration to lease a reason-stage job.
	JobLease time.Duration `env:"REASON_RUNNER_JOB_LEASE" envDefault:"10m"`

	// PageParallel bounds concurrent per-page model calls within one job.
	PageParallel int `env:"REASON_RUNNER_PAGE_PARALLEL" envDefault:"3"`
}

// Sanitize applies guardrails to reason runner configuration values.
func (r *ReasonRunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.JobLease < 30*time.Second {
		r.JobLease = 30 * time.Second
	}
	if r.PageParallel < 1 {
		r.PageParallel = 1
	}
}

// ReaperConfig contains expired-lease reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce a minimum interval to prevent excessive database load
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
}
