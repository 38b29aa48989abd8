package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode and worker configuration
//   - channels.go: Channel provider configuration
//   - research.go: Research pipeline configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// CredentialEncryptionKey encrypts channel credentials at rest.
	// Required for production, optional for development.
	CredentialEncryptionKey string `env:"CREDENTIAL_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Distribution worker configuration
	Distributor DistributorConfig

	// Research pipeline worker configuration
	ScrapeRunner ScrapeRunnerConfig
	ReasonRunner ReasonRunnerConfig

	// Channel provider configuration
	Channels ChannelsConfig

	// Research pipeline provider configuration
	Research ResearchConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Distributor.Sanitize()
	c.ScrapeRunner.Sanitize()
	c.ReasonRunner.Sanitize()
	c.Channels.Sanitize()
	c.Research.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsDistributorEnabled returns true if the distribution worker is enabled.
func (c *AppConfig) IsDistributorEnabled() bool {
	return c.isEnabled(ServiceModeDistributor)
}

// IsScraperEnabled returns true if the research scrape worker is enabled.
func (c *AppConfig) IsScraperEnabled() bool {
	return c.isEnabled(ServiceModeScraper)
}

// IsReasonerEnabled returns true if the research reason worker is enabled.
func (c *AppConfig) IsReasonerEnabled() bool {
	return c.isEnabled(ServiceModeReasoner)
}

// IsReaperEnabled returns true if the lease reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isEnabled(ServiceModeReaper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
