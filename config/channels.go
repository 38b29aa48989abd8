package config

import (
	"strings"
	"time"
)

// ChannelsConfig contains the outbound provider endpoints for each
// distribution channel.
type ChannelsConfig struct {
	// Social platform API root and the OAuth2 app used to refresh tokens.
	SocialBaseURL      string `env:"CHANNEL_SOCIAL_BASE_URL"      envDefault:"https://graph.socialplatform.com/v19.0"`
	SocialTokenURL     string `env:"CHANNEL_SOCIAL_TOKEN_URL"     envDefault:"https://graph.socialplatform.com/oauth/access_token"`
	SocialClientID     string `env:"CHANNEL_SOCIAL_CLIENT_ID"`
	SocialClientSecret string `env:"CHANNEL_SOCIAL_CLIENT_SECRET"`

	// ListingBaseURL is the business listing API root.
	ListingBaseURL string `env:"CHANNEL_LISTING_BASE_URL" envDefault:"https://mybusiness.googleapis.com/v4"`

	// SMS provider settings.
	SMSBaseURL    string        `env:"CHANNEL_SMS_BASE_URL"    envDefault:"https://api.twilio.com/2010-04-01"`
	SMSBatchSize  int           `env:"CHANNEL_SMS_BATCH_SIZE"  envDefault:"10"`
	SMSBatchDelay time.Duration `env:"CHANNEL_SMS_BATCH_DELAY" envDefault:"1s"`

	// EmailBaseURL is the transactional email API root.
	EmailBaseURL string `env:"CHANNEL_EMAIL_BASE_URL" envDefault:"https://api.sendgrid.com/v3"`

	// Group notification relay and the public URL its deep links point at.
	GroupNotifyBaseURL string `env:"CHANNEL_GROUP_NOTIFY_BASE_URL" envDefault:"https://api.groupnotify.example.com/v1"`
	GroupShareBaseURL  string `env:"CHANNEL_GROUP_SHARE_BASE_URL"  envDefault:""`
}

// Sanitize applies guardrails to channel configuration values.
func (c *ChannelsConfig) Sanitize() {
	c.SocialBaseURL = strings.TrimSpace(c.SocialBaseURL)
	c.SocialTokenURL = strings.TrimSpace(c.SocialTokenURL)
	c.ListingBaseURL = strings.TrimSpace(c.ListingBaseURL)
	c.SMSBaseURL = strings.TrimSpace(c.SMSBaseURL)
	c.EmailBaseURL = strings.TrimSpace(c.EmailBaseURL)
	c.GroupNotifyBaseURL = strings.TrimSpace(c.GroupNotifyBaseURL)
	c.GroupShareBaseURL = strings.TrimSpace(c.GroupShareBaseURL)

	if c.SMSBatchSize < 1 {
		c.SMSBatchSize = 10
	}
	if c.SMSBatchDelay <= 0 {
		c.SMSBatchDelay = time.Second
	}
}
